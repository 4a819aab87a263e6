// Package txlog records the audit trail: every mutation verb opens a
// transaction record, appends one operation per entity change, and
// closes the record when the verb commits. These records are
// append-only logs scoped by tenant, orthogonal to database
// transactions.
package txlog

import (
	"context"
	"time"

	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
)

// Store is the persistence surface the trail writes through. It is
// satisfied by the storage gateway, including its in-transaction view,
// so trail rows commit atomically with the mutation they describe.
type Store interface {
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	CloseTransaction(ctx context.Context, tuid string, at time.Time) error
	CreateOperation(ctx context.Context, op *models.Operation) error
}

// Trail is one open transaction record accepting operations.
type Trail struct {
	store Store
	tx    *models.Transaction
}

// Open creates a transaction record named after the verb being
// executed. Authorship and tenant come from the execution context.
func Open(ctx context.Context, store Store, name string) (*Trail, error) {
	mc, _ := meld.CtxFrom(ctx)
	tx := models.NewTransaction(name, mc.Tenant, mc.User)
	if err := store.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return &Trail{store: store, tx: tx}, nil
}

// TUID returns the identifier of the underlying transaction record.
func (t *Trail) TUID() string { return t.tx.TUID }

// Log appends one operation to the trail.
func (t *Trail) Log(ctx context.Context, opType models.OpType, entityType, target string, args map[string]any) error {
	op, err := models.NewOperation(t.tx.TUID, opType, entityType, target, args)
	if err != nil {
		return err
	}
	return t.store.CreateOperation(ctx, op)
}

// Close marks the trail's transaction record closed.
func (t *Trail) Close(ctx context.Context) error {
	now := time.Now().UTC()
	if err := t.store.CloseTransaction(ctx, t.tx.TUID, now); err != nil {
		return err
	}
	t.tx.ClosedAt = &now
	t.tx.IsClosed = true
	return nil
}
