package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
)

// TransactionFilter narrows ListTransactions results.
type TransactionFilter struct {
	TUID       string
	Name       string
	AuthoredBy string
	IsClosed   *bool
	FromDate   *time.Time
	ToDate     *time.Time
}

// CreateTransaction appends a transaction record to the audit log.
func (db *DB) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	_, err := db.q.Exec(ctx, `
		INSERT INTO transactions (tuid, name, tenant, authored_by, created_at, closed_at, is_closed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, tx.TUID, tx.Name, tx.Tenant, tx.AuthoredBy, tx.CreatedAt, tx.ClosedAt, tx.IsClosed)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

// CloseTransaction marks a transaction closed at the given instant.
func (db *DB) CloseTransaction(ctx context.Context, tuid string, at time.Time) error {
	tag, err := db.q.Exec(ctx, `
		UPDATE transactions SET closed_at = $2, is_closed = TRUE WHERE tuid = $1
	`, tuid, at.UTC())
	if err != nil {
		return fmt.Errorf("close transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return meld.NotFoundf("transaction %q not found", tuid)
	}
	return nil
}

// CreateOperation appends an operation to its transaction.
func (db *DB) CreateOperation(ctx context.Context, op *models.Operation) error {
	_, err := db.q.Exec(ctx, `
		INSERT INTO operations (ouid, tuid, op_type, entity_type, target, timestamp, args)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, op.OUID, op.TUID, op.OpType, op.EntityType, op.Target, op.Timestamp, op.Args)
	if err != nil {
		return fmt.Errorf("create operation: %w", err)
	}
	return nil
}

// ListTransactions returns a page of audit log transactions.
func (db *DB) ListTransactions(ctx context.Context, filter TransactionFilter, page, pageSize int) (*models.Paginated[*models.Transaction], error) {
	conds := []string{}
	args := []any{}
	if filter.TUID != "" {
		args = append(args, filter.TUID)
		conds = append(conds, fmt.Sprintf("tuid = $%d", len(args)))
	}
	if filter.Name != "" {
		args = append(args, filter.Name)
		conds = append(conds, fmt.Sprintf("name = $%d", len(args)))
	}
	if filter.AuthoredBy != "" {
		args = append(args, filter.AuthoredBy)
		conds = append(conds, fmt.Sprintf("authored_by = $%d", len(args)))
	}
	if filter.IsClosed != nil {
		args = append(args, *filter.IsClosed)
		conds = append(conds, fmt.Sprintf("is_closed = $%d", len(args)))
	}
	if filter.FromDate != nil {
		args = append(args, filter.FromDate.UTC())
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.ToDate != nil {
		args = append(args, filter.ToDate.UTC())
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := db.q.QueryRow(ctx, "SELECT COUNT(*) FROM transactions"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count transactions: %w", err)
	}
	info, err := validatePage(page, pageSize, total)
	if err != nil {
		return nil, err
	}

	limit, offset := pageWindow(page, pageSize)
	args = append(args, limit, offset)
	rows, err := db.q.Query(ctx, fmt.Sprintf(`
		SELECT tuid, name, tenant, authored_by, created_at, closed_at, is_closed
		FROM transactions
		%s
		ORDER BY created_at, tuid
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []*models.Transaction
	for rows.Next() {
		var tx models.Transaction
		err := rows.Scan(&tx.TUID, &tx.Name, &tx.Tenant, &tx.AuthoredBy,
			&tx.CreatedAt, &tx.ClosedAt, &tx.IsClosed)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, &tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return &models.Paginated[*models.Transaction]{Entities: txs, PageInfo: info}, nil
}

// OperationFilter narrows ListOperations results.
type OperationFilter struct {
	OUID       string
	TUID       string
	OpType     models.OpType
	EntityType string
	Target     string
	FromDate   *time.Time
	ToDate     *time.Time
}

// ListOperations returns a page of operations, ordered as appended
// within their transactions.
func (db *DB) ListOperations(ctx context.Context, filter OperationFilter, page, pageSize int) (*models.Paginated[*models.Operation], error) {
	conds := []string{}
	args := []any{}
	if filter.OUID != "" {
		args = append(args, filter.OUID)
		conds = append(conds, fmt.Sprintf("ouid = $%d", len(args)))
	}
	if filter.TUID != "" {
		args = append(args, filter.TUID)
		conds = append(conds, fmt.Sprintf("tuid = $%d", len(args)))
	}
	if filter.OpType != "" {
		args = append(args, filter.OpType)
		conds = append(conds, fmt.Sprintf("op_type = $%d", len(args)))
	}
	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		conds = append(conds, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if filter.Target != "" {
		args = append(args, filter.Target)
		conds = append(conds, fmt.Sprintf("target = $%d", len(args)))
	}
	if filter.FromDate != nil {
		args = append(args, filter.FromDate.UTC())
		conds = append(conds, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if filter.ToDate != nil {
		args = append(args, filter.ToDate.UTC())
		conds = append(conds, fmt.Sprintf("timestamp <= $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := db.q.QueryRow(ctx, "SELECT COUNT(*) FROM operations"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count operations: %w", err)
	}
	info, err := validatePage(page, pageSize, total)
	if err != nil {
		return nil, err
	}

	limit, offset := pageWindow(page, pageSize)
	args = append(args, limit, offset)
	rows, err := db.q.Query(ctx, fmt.Sprintf(`
		SELECT ouid, tuid, op_type, entity_type, target, timestamp, args
		FROM operations
		%s
		ORDER BY seq
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	var ops []*models.Operation
	for rows.Next() {
		var op models.Operation
		err := rows.Scan(&op.OUID, &op.TUID, &op.OpType, &op.EntityType,
			&op.Target, &op.Timestamp, &op.Args)
		if err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		ops = append(ops, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	return &models.Paginated[*models.Operation]{Entities: ops, PageInfo: info}, nil
}
