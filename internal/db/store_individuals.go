package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
)

// IndividualFilter narrows ListIndividuals results.
type IndividualFilter struct {
	// Term matches a substring of profile name, profile email, or any
	// identity name, email or username.
	Term string
	// LastUpdated filters on the individual's last_modified column.
	LastUpdated *DateFilter
	// LastReviewed filters on the last_reviewed column.
	LastReviewed *DateFilter
	IsLocked     *bool
	IsBot        *bool
}

// IndividualOrder names the supported sort orders for ListIndividuals.
type IndividualOrder string

const (
	// OrderByMK sorts by main key.
	OrderByMK IndividualOrder = "mk"
	// OrderByLastModified sorts newest-modified first.
	OrderByLastModified IndividualOrder = "last_modified"
	// OrderByCreatedAt sorts newest-created first.
	OrderByCreatedAt IndividualOrder = "created_at"
)

// CreateIndividual inserts an individual and its empty profile row.
func (db *DB) CreateIndividual(ctx context.Context, ind *models.Individual) error {
	_, err := db.q.Exec(ctx, `
		INSERT INTO individuals (mk, is_locked, last_reviewed, last_modified, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ind.MK, ind.IsLocked, ind.LastReviewed, ind.LastModified, ind.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return meld.AlreadyExistsf(ind.MK, "individual %q already exists", ind.MK)
		}
		return fmt.Errorf("create individual: %w", err)
	}
	_, err = db.q.Exec(ctx, `
		INSERT INTO profiles (individual_mk) VALUES ($1)
	`, ind.MK)
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// GetIndividual returns the individual identified by mk with its
// profile, identities and enrollments loaded.
func (db *DB) GetIndividual(ctx context.Context, mk string) (*models.Individual, error) {
	var ind models.Individual
	err := db.q.QueryRow(ctx, `
		SELECT mk, is_locked, last_reviewed, last_modified, created_at
		FROM individuals
		WHERE mk = $1
	`, mk).Scan(&ind.MK, &ind.IsLocked, &ind.LastReviewed, &ind.LastModified, &ind.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, meld.NotFoundf("individual %q not found", mk)
		}
		return nil, fmt.Errorf("get individual: %w", err)
	}

	if ind.Profile, err = db.GetProfile(ctx, mk); err != nil {
		return nil, err
	}
	if ind.Identities, err = db.GetIdentitiesByIndividual(ctx, mk); err != nil {
		return nil, err
	}
	if ind.Enrollments, err = db.GetEnrollmentsByIndividual(ctx, mk); err != nil {
		return nil, err
	}
	return &ind, nil
}

// DeleteIndividual removes an individual; identities, profile and
// enrollments cascade.
func (db *DB) DeleteIndividual(ctx context.Context, mk string) error {
	tag, err := db.q.Exec(ctx, `DELETE FROM individuals WHERE mk = $1`, mk)
	if err != nil {
		return fmt.Errorf("delete individual: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return meld.NotFoundf("individual %q not found", mk)
	}
	return nil
}

// SetIndividualLock toggles the is_locked flag.
func (db *DB) SetIndividualLock(ctx context.Context, mk string, locked bool) error {
	tag, err := db.q.Exec(ctx, `
		UPDATE individuals SET is_locked = $2, last_modified = $3 WHERE mk = $1
	`, mk, locked, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set individual lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return meld.NotFoundf("individual %q not found", mk)
	}
	return nil
}

// TouchIndividual bumps last_modified on the given individuals.
func (db *DB) TouchIndividual(ctx context.Context, mks ...string) error {
	if len(mks) == 0 {
		return nil
	}
	_, err := db.q.Exec(ctx, `
		UPDATE individuals SET last_modified = $2 WHERE mk = ANY($1)
	`, mks, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("touch individuals: %w", err)
	}
	return nil
}

// ReviewIndividual records a review timestamp.
func (db *DB) ReviewIndividual(ctx context.Context, mk string, at time.Time) error {
	tag, err := db.q.Exec(ctx, `
		UPDATE individuals SET last_reviewed = $2, last_modified = $2 WHERE mk = $1
	`, mk, at.UTC())
	if err != nil {
		return fmt.Errorf("review individual: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return meld.NotFoundf("individual %q not found", mk)
	}
	return nil
}

// ListIndividuals returns a page of individuals matching the filter.
func (db *DB) ListIndividuals(ctx context.Context, filter IndividualFilter, order IndividualOrder, page, pageSize int) (*models.Paginated[*models.Individual], error) {
	conds := []string{}
	args := []any{}

	if filter.Term != "" {
		args = append(args, "%"+filter.Term+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(`(
			EXISTS (SELECT 1 FROM profiles p WHERE p.individual_mk = i.mk
				AND (p.name ILIKE $%d OR p.email ILIKE $%d))
			OR EXISTS (SELECT 1 FROM identities idn WHERE idn.individual_mk = i.mk
				AND (idn.name ILIKE $%d OR idn.email ILIKE $%d OR idn.username ILIKE $%d))
		)`, n, n, n, n, n))
	}
	if filter.LastUpdated != nil {
		filter.LastUpdated.appendSQL("i.last_modified", &conds, &args)
	}
	if filter.LastReviewed != nil {
		filter.LastReviewed.appendSQL("i.last_reviewed", &conds, &args)
	}
	if filter.IsLocked != nil {
		args = append(args, *filter.IsLocked)
		conds = append(conds, fmt.Sprintf("i.is_locked = $%d", len(args)))
	}
	if filter.IsBot != nil {
		args = append(args, *filter.IsBot)
		conds = append(conds, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM profiles p WHERE p.individual_mk = i.mk AND p.is_bot = $%d)", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	err := db.q.QueryRow(ctx, "SELECT COUNT(*) FROM individuals i"+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count individuals: %w", err)
	}

	info, err := validatePage(page, pageSize, total)
	if err != nil {
		return nil, err
	}

	orderBy := "i.mk ASC"
	switch order {
	case OrderByLastModified:
		orderBy = "i.last_modified DESC"
	case OrderByCreatedAt:
		orderBy = "i.created_at DESC"
	case OrderByMK, "":
	default:
		return nil, meld.InvalidValuef("unknown order %q", order)
	}

	limit, offset := pageWindow(page, pageSize)
	args = append(args, limit, offset)
	rows, err := db.q.Query(ctx, fmt.Sprintf(`
		SELECT i.mk, i.is_locked, i.last_reviewed, i.last_modified, i.created_at
		FROM individuals i
		%s
		ORDER BY %s
		LIMIT $%d OFFSET $%d
	`, where, orderBy, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("list individuals: %w", err)
	}
	defer rows.Close()

	var individuals []*models.Individual
	for rows.Next() {
		var ind models.Individual
		if err := rows.Scan(&ind.MK, &ind.IsLocked, &ind.LastReviewed, &ind.LastModified, &ind.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan individual: %w", err)
		}
		individuals = append(individuals, &ind)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list individuals: %w", err)
	}

	for _, ind := range individuals {
		if ind.Profile, err = db.GetProfile(ctx, ind.MK); err != nil {
			return nil, err
		}
		if ind.Identities, err = db.GetIdentitiesByIndividual(ctx, ind.MK); err != nil {
			return nil, err
		}
		if ind.Enrollments, err = db.GetEnrollmentsByIndividual(ctx, ind.MK); err != nil {
			return nil, err
		}
	}

	return &models.Paginated[*models.Individual]{Entities: individuals, PageInfo: info}, nil
}

// IndividualMKs returns the main keys of individuals modified at or
// after lastModified (all individuals when nil), in mk order.
func (db *DB) IndividualMKs(ctx context.Context, lastModified *time.Time) ([]string, error) {
	query := `SELECT mk FROM individuals`
	args := []any{}
	if lastModified != nil {
		query += ` WHERE last_modified >= $1`
		args = append(args, lastModified.UTC())
	}
	query += ` ORDER BY mk`

	rows, err := db.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list individual mks: %w", err)
	}
	defer rows.Close()

	var mks []string
	for rows.Next() {
		var mk string
		if err := rows.Scan(&mk); err != nil {
			return nil, fmt.Errorf("scan mk: %w", err)
		}
		mks = append(mks, mk)
	}
	return mks, rows.Err()
}
