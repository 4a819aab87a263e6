package db

import (
	"context"
	"fmt"
	"time"

	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
)

const identityColumns = `uuid, individual_mk, source, name, email, username, last_modified, created_at`

func scanIdentity(row interface{ Scan(...any) error }) (*models.Identity, error) {
	var idn models.Identity
	err := row.Scan(&idn.UUID, &idn.IndividualMK, &idn.Source, &idn.Name,
		&idn.Email, &idn.Username, &idn.LastModified, &idn.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &idn, nil
}

// CreateIdentity inserts an identity. A uuid collision reports the main
// key of the individual already owning it.
func (db *DB) CreateIdentity(ctx context.Context, idn *models.Identity) error {
	_, err := db.q.Exec(ctx, `
		INSERT INTO identities (`+identityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, idn.UUID, idn.IndividualMK, idn.Source, idn.Name, idn.Email, idn.Username,
		idn.LastModified, idn.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			owner := ""
			if existing, lookupErr := db.GetIdentity(ctx, idn.UUID); lookupErr == nil {
				owner = existing.IndividualMK
			}
			return meld.AlreadyExistsf(owner, "identity %q already exists", idn.UUID)
		}
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

// GetIdentity returns the identity with the given uuid.
func (db *DB) GetIdentity(ctx context.Context, uuid string) (*models.Identity, error) {
	idn, err := scanIdentity(db.q.QueryRow(ctx, `
		SELECT `+identityColumns+` FROM identities WHERE uuid = $1
	`, uuid))
	if err != nil {
		if isNoRows(err) {
			return nil, meld.NotFoundf("identity %q not found", uuid)
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return idn, nil
}

// GetIdentitiesByIndividual returns the identities owned by mk in
// creation order.
func (db *DB) GetIdentitiesByIndividual(ctx context.Context, mk string) ([]*models.Identity, error) {
	rows, err := db.q.Query(ctx, `
		SELECT `+identityColumns+` FROM identities
		WHERE individual_mk = $1
		ORDER BY created_at, uuid
	`, mk)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var identities []*models.Identity
	for rows.Next() {
		idn, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, idn)
	}
	return identities, rows.Err()
}

// DeleteIdentity removes a single identity row.
func (db *DB) DeleteIdentity(ctx context.Context, uuid string) error {
	tag, err := db.q.Exec(ctx, `DELETE FROM identities WHERE uuid = $1`, uuid)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return meld.NotFoundf("identity %q not found", uuid)
	}
	return nil
}

// MoveIdentity reassigns an identity to another individual.
func (db *DB) MoveIdentity(ctx context.Context, uuid, toMK string) error {
	tag, err := db.q.Exec(ctx, `
		UPDATE identities SET individual_mk = $2, last_modified = $3 WHERE uuid = $1
	`, uuid, toMK, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("move identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return meld.NotFoundf("identity %q not found", uuid)
	}
	return nil
}

// FindIndividualByIdentity resolves an identity uuid to its owning
// individual.
func (db *DB) FindIndividualByIdentity(ctx context.Context, uuid string) (*models.Individual, error) {
	var mk string
	err := db.q.QueryRow(ctx, `
		SELECT individual_mk FROM identities WHERE uuid = $1
	`, uuid).Scan(&mk)
	if err != nil {
		if isNoRows(err) {
			return nil, meld.NotFoundf("identity %q not found", uuid)
		}
		return nil, fmt.Errorf("resolve identity: %w", err)
	}
	return db.GetIndividual(ctx, mk)
}

// IdentityMatch is one identity row considered by the matching
// recommender.
type IdentityMatch struct {
	UUID         string
	IndividualMK string
	Source       string
	Name         string
	Email        string
	Username     string
}

// GetIdentitiesForMatching returns all identities, optionally narrowed
// to individuals in mks or modified at or after lastModified.
func (db *DB) GetIdentitiesForMatching(ctx context.Context, mks []string, lastModified *time.Time) ([]IdentityMatch, error) {
	query := `
		SELECT idn.uuid, idn.individual_mk, idn.source, idn.name, idn.email, idn.username
		FROM identities idn
		JOIN individuals i ON i.mk = idn.individual_mk
	`
	conds := []string{}
	args := []any{}
	if len(mks) > 0 {
		args = append(args, mks)
		conds = append(conds, fmt.Sprintf("idn.individual_mk = ANY($%d)", len(args)))
	}
	if lastModified != nil {
		args = append(args, lastModified.UTC())
		conds = append(conds, fmt.Sprintf("i.last_modified >= $%d", len(args)))
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY idn.individual_mk, idn.uuid"

	rows, err := db.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list identities for matching: %w", err)
	}
	defer rows.Close()

	var matches []IdentityMatch
	for rows.Next() {
		var m IdentityMatch
		if err := rows.Scan(&m.UUID, &m.IndividualMK, &m.Source, &m.Name, &m.Email, &m.Username); err != nil {
			return nil, fmt.Errorf("scan identity match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
