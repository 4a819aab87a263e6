package txlog

import (
	"context"
	"testing"
	"time"

	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
)

type mockStore struct {
	transactions []*models.Transaction
	operations   []*models.Operation
	closed       map[string]time.Time
}

func newMockStore() *mockStore {
	return &mockStore{closed: make(map[string]time.Time)}
}

func (m *mockStore) CreateTransaction(_ context.Context, tx *models.Transaction) error {
	m.transactions = append(m.transactions, tx)
	return nil
}

func (m *mockStore) CloseTransaction(_ context.Context, tuid string, at time.Time) error {
	m.closed[tuid] = at
	return nil
}

func (m *mockStore) CreateOperation(_ context.Context, op *models.Operation) error {
	m.operations = append(m.operations, op)
	return nil
}

func TestTrailRecordsAuthorshipAndTenant(t *testing.T) {
	store := newMockStore()
	ctx := meld.WithCtx(context.Background(), meld.Ctx{User: "jsmith", Tenant: "acme"})

	trail, err := Open(ctx, store, "add_identity")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.transactions) != 1 {
		t.Fatalf("expected one transaction, got %d", len(store.transactions))
	}
	tx := store.transactions[0]
	if tx.Name != "add_identity" || tx.AuthoredBy != "jsmith" || tx.Tenant != "acme" {
		t.Errorf("transaction misattributed: %+v", tx)
	}
	if tx.IsClosed {
		t.Error("new transaction must be open")
	}
	if trail.TUID() != tx.TUID {
		t.Errorf("trail tuid mismatch")
	}
}

func TestTrailAppendsOrderedOperations(t *testing.T) {
	store := newMockStore()
	ctx := meld.WithCtx(context.Background(), meld.Ctx{User: "jsmith", Tenant: "acme"})

	trail, err := Open(ctx, store, "merge")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := trail.Log(ctx, models.OpUpdate, "individual", "mk1", map[string]any{"to": "mk2"}); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := trail.Log(ctx, models.OpDelete, "individual", "mk1", nil); err != nil {
		t.Fatalf("log: %v", err)
	}

	if len(store.operations) != 2 {
		t.Fatalf("expected two operations, got %d", len(store.operations))
	}
	if store.operations[0].OpType != models.OpUpdate || store.operations[1].OpType != models.OpDelete {
		t.Error("operations out of order")
	}
	for _, op := range store.operations {
		if op.TUID != trail.TUID() {
			t.Errorf("operation bound to wrong transaction: %q", op.TUID)
		}
	}
	if store.operations[1].Args != nil {
		t.Error("nil args must serialize as absent")
	}
}

func TestTrailClose(t *testing.T) {
	store := newMockStore()
	ctx := meld.WithCtx(context.Background(), meld.Ctx{User: "worker", Tenant: "default"})

	trail, err := Open(ctx, store, "unify")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := trail.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := store.closed[trail.TUID()]; !ok {
		t.Error("close not persisted")
	}
}
