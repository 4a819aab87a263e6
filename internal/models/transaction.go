package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Transaction is an append-only audit log entry grouping the operations
// performed by one API verb or one job. It is orthogonal to database
// transactions.
type Transaction struct {
	TUID       string     `json:"tuid"`
	Name       string     `json:"name"`
	Tenant     string     `json:"tenant"`
	AuthoredBy string     `json:"authored_by"`
	CreatedAt  time.Time  `json:"created_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	IsClosed   bool       `json:"is_closed"`
}

// NewTransaction opens a transaction record authored by the given user.
func NewTransaction(name, tenant, authoredBy string) *Transaction {
	return &Transaction{
		TUID:       uuid.NewString(),
		Name:       name,
		Tenant:     tenant,
		AuthoredBy: authoredBy,
		CreatedAt:  time.Now().UTC(),
	}
}

// OpType is the kind of mutation an operation records.
type OpType string

const (
	// OpAdd records an entity insertion.
	OpAdd OpType = "ADD"
	// OpUpdate records an entity update.
	OpUpdate OpType = "UPDATE"
	// OpDelete records an entity deletion.
	OpDelete OpType = "DELETE"
)

// Operation is one mutation recorded against a transaction. Target is a
// natural key such as an individual main key or an organization name;
// Args holds the verb arguments serialized as JSON. Operations are
// ordered within their transaction by Timestamp and insertion order.
type Operation struct {
	OUID       string          `json:"ouid"`
	TUID       string          `json:"tuid"`
	OpType     OpType          `json:"op_type"`
	EntityType string          `json:"entity_type"`
	Target     string          `json:"target"`
	Timestamp  time.Time       `json:"timestamp"`
	Args       json.RawMessage `json:"args,omitempty"`
}

// NewOperation records a mutation of entityType identified by target.
// args must be JSON-serializable; a nil map records no arguments.
func NewOperation(tuid string, opType OpType, entityType, target string, args map[string]any) (*Operation, error) {
	var raw json.RawMessage
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return &Operation{
		OUID:       uuid.NewString(),
		TUID:       tuid,
		OpType:     opType,
		EntityType: entityType,
		Target:     target,
		Timestamp:  time.Now().UTC(),
		Args:       raw,
	}, nil
}
