package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
)

const recommendationColumns = `id, kind, individual_mk, organization_name, match_mk, gender, gender_acc, applied, created_at`

func scanRecommendation(row interface{ Scan(...any) error }) (*models.Recommendation, error) {
	var r models.Recommendation
	err := row.Scan(&r.ID, &r.Kind, &r.IndividualMK, &r.OrganizationName, &r.MatchMK,
		&r.Gender, &r.GenderAcc, &r.Applied, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRecommendation inserts a recommendation, ignoring duplicates of
// one already recorded (pending, applied or dismissed).
func (db *DB) CreateRecommendation(ctx context.Context, r *models.Recommendation) error {
	err := db.q.QueryRow(ctx, `
		INSERT INTO recommendations (kind, individual_mk, organization_name, match_mk, gender, gender_acc, applied, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (kind, individual_mk, organization_name, match_mk) DO UPDATE
			SET gender = EXCLUDED.gender, gender_acc = EXCLUDED.gender_acc
		RETURNING id
	`, r.Kind, r.IndividualMK, r.OrganizationName, r.MatchMK, r.Gender, r.GenderAcc,
		r.Applied, r.CreatedAt).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("create recommendation: %w", err)
	}
	return nil
}

// GetRecommendation returns a recommendation by id.
func (db *DB) GetRecommendation(ctx context.Context, id int64) (*models.Recommendation, error) {
	r, err := scanRecommendation(db.q.QueryRow(ctx, `
		SELECT `+recommendationColumns+` FROM recommendations WHERE id = $1
	`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, meld.NotFoundf("recommendation %d not found", id)
		}
		return nil, fmt.Errorf("get recommendation: %w", err)
	}
	return r, nil
}

// SetRecommendationApplied records the apply/dismiss decision.
func (db *DB) SetRecommendationApplied(ctx context.Context, id int64, applied bool) error {
	tag, err := db.q.Exec(ctx, `
		UPDATE recommendations SET applied = $2 WHERE id = $1
	`, id, applied)
	if err != nil {
		return fmt.Errorf("set recommendation applied: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return meld.NotFoundf("recommendation %d not found", id)
	}
	return nil
}

// DeleteRecommendation removes a recommendation record.
func (db *DB) DeleteRecommendation(ctx context.Context, id int64) error {
	tag, err := db.q.Exec(ctx, `DELETE FROM recommendations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete recommendation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return meld.NotFoundf("recommendation %d not found", id)
	}
	return nil
}

// DeleteRecommendationsByIndividual removes every recommendation that
// references mk, used when the individual disappears in a merge.
func (db *DB) DeleteRecommendationsByIndividual(ctx context.Context, mk string) error {
	_, err := db.q.Exec(ctx, `
		DELETE FROM recommendations WHERE individual_mk = $1 OR match_mk = $1
	`, mk)
	if err != nil {
		return fmt.Errorf("delete recommendations for individual: %w", err)
	}
	return nil
}

// HasRecommendation reports whether a recommendation with the same
// natural key already exists, regardless of its applied state.
func (db *DB) HasRecommendation(ctx context.Context, r *models.Recommendation) (bool, error) {
	var exists bool
	err := db.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM recommendations
			WHERE kind = $1 AND individual_mk = $2 AND organization_name = $3 AND match_mk = $4
		)
	`, r.Kind, r.IndividualMK, r.OrganizationName, r.MatchMK).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check recommendation: %w", err)
	}
	return exists, nil
}

// ListRecommendations returns a page of recommendations of one kind,
// optionally filtered by their applied state (nil isApplied matches
// only pending ones when pendingOnly is set, any state otherwise).
func (db *DB) ListRecommendations(ctx context.Context, kind models.RecommendationKind, isApplied *bool, pendingOnly bool, page, pageSize int) (*models.Paginated[*models.Recommendation], error) {
	conds := []string{"kind = $1"}
	args := []any{kind}
	if isApplied != nil {
		args = append(args, *isApplied)
		conds = append(conds, fmt.Sprintf("applied = $%d", len(args)))
	} else if pendingOnly {
		conds = append(conds, "applied IS NULL")
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := db.q.QueryRow(ctx, "SELECT COUNT(*) FROM recommendations"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count recommendations: %w", err)
	}
	info, err := validatePage(page, pageSize, total)
	if err != nil {
		return nil, err
	}

	limit, offset := pageWindow(page, pageSize)
	args = append(args, limit, offset)
	rows, err := db.q.Query(ctx, fmt.Sprintf(`
		SELECT `+recommendationColumns+` FROM recommendations
		%s
		ORDER BY id
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	defer rows.Close()

	var recs []*models.Recommendation
	for rows.Next() {
		r, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	return &models.Paginated[*models.Recommendation]{Entities: recs, PageInfo: info}, nil
}
