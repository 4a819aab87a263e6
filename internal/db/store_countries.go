package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
)

// CreateCountry inserts a country catalog entry.
func (db *DB) CreateCountry(ctx context.Context, c *models.Country) error {
	_, err := db.q.Exec(ctx, `
		INSERT INTO countries (code, alpha3, name) VALUES ($1, $2, $3)
	`, c.Code, c.Alpha3, c.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return meld.AlreadyExistsf("", "country %q already exists", c.Code)
		}
		return fmt.Errorf("create country: %w", err)
	}
	return nil
}

// GetCountry returns a country by its alpha-2 code.
func (db *DB) GetCountry(ctx context.Context, code string) (*models.Country, error) {
	var c models.Country
	err := db.q.QueryRow(ctx, `
		SELECT code, alpha3, name FROM countries WHERE code = $1
	`, code).Scan(&c.Code, &c.Alpha3, &c.Name)
	if err != nil {
		if isNoRows(err) {
			return nil, meld.NotFoundf("country %q not found", code)
		}
		return nil, fmt.Errorf("get country: %w", err)
	}
	return &c, nil
}

// ListCountries returns a page of the country catalog, optionally
// filtered by code or name substring.
func (db *DB) ListCountries(ctx context.Context, term string, page, pageSize int) (*models.Paginated[*models.Country], error) {
	conds := []string{}
	args := []any{}
	if term != "" {
		args = append(args, "%"+term+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(code ILIKE $%d OR alpha3 ILIKE $%d OR name ILIKE $%d)", n, n, n))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := db.q.QueryRow(ctx, "SELECT COUNT(*) FROM countries"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count countries: %w", err)
	}
	info, err := validatePage(page, pageSize, total)
	if err != nil {
		return nil, err
	}

	limit, offset := pageWindow(page, pageSize)
	args = append(args, limit, offset)
	rows, err := db.q.Query(ctx, fmt.Sprintf(`
		SELECT code, alpha3, name FROM countries
		%s
		ORDER BY code
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	defer rows.Close()

	var countries []*models.Country
	for rows.Next() {
		var c models.Country
		if err := rows.Scan(&c.Code, &c.Alpha3, &c.Name); err != nil {
			return nil, fmt.Errorf("scan country: %w", err)
		}
		countries = append(countries, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	return &models.Paginated[*models.Country]{Entities: countries, PageInfo: info}, nil
}
