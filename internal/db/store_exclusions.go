package db

import (
	"context"
	"fmt"

	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
)

// CreateExclusionTerm adds a term to the matching exclusion list.
func (db *DB) CreateExclusionTerm(ctx context.Context, term *models.ExclusionTerm) error {
	_, err := db.q.Exec(ctx, `
		INSERT INTO exclusion_terms (term, created_at) VALUES ($1, $2)
	`, term.Term, term.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return meld.AlreadyExistsf("", "exclusion term %q already exists", term.Term)
		}
		return fmt.Errorf("create exclusion term: %w", err)
	}
	return nil
}

// DeleteExclusionTerm removes a term from the exclusion list.
func (db *DB) DeleteExclusionTerm(ctx context.Context, term string) error {
	tag, err := db.q.Exec(ctx, `DELETE FROM exclusion_terms WHERE term = $1`, term)
	if err != nil {
		return fmt.Errorf("delete exclusion term: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return meld.NotFoundf("exclusion term %q not found", term)
	}
	return nil
}

// GetExclusionTerms returns every exclusion term.
func (db *DB) GetExclusionTerms(ctx context.Context) ([]*models.ExclusionTerm, error) {
	rows, err := db.q.Query(ctx, `
		SELECT term, created_at FROM exclusion_terms ORDER BY term
	`)
	if err != nil {
		return nil, fmt.Errorf("list exclusion terms: %w", err)
	}
	defer rows.Close()

	var terms []*models.ExclusionTerm
	for rows.Next() {
		var t models.ExclusionTerm
		if err := rows.Scan(&t.Term, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan exclusion term: %w", err)
		}
		terms = append(terms, &t)
	}
	return terms, rows.Err()
}
