package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openmeld/meld/internal/models"
)

// CreateEnrollment inserts an enrollment row. Range invariants are the
// caller's responsibility; the enroll verb coalesces before writing.
func (db *DB) CreateEnrollment(ctx context.Context, e *models.Enrollment) error {
	_, err := db.q.Exec(ctx, `
		INSERT INTO enrollments (id, individual_mk, group_id, start_date, end_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.IndividualMK, e.GroupID, e.Start, e.End, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// GetEnrollmentsByIndividual returns all enrollments of an individual
// with their groups loaded, ordered by group and start date.
func (db *DB) GetEnrollmentsByIndividual(ctx context.Context, mk string) ([]*models.Enrollment, error) {
	rows, err := db.q.Query(ctx, `
		SELECT e.id, e.individual_mk, e.group_id, e.start_date, e.end_date, e.created_at,
		       g.id, g.name, g.type, g.parent_org_id, g.parent_team_id, g.created_at, g.last_modified
		FROM enrollments e
		JOIN groups g ON g.id = e.group_id
		WHERE e.individual_mk = $1
		ORDER BY g.name, e.start_date
	`, mk)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []*models.Enrollment
	for rows.Next() {
		var e models.Enrollment
		var g models.Group
		err := rows.Scan(&e.ID, &e.IndividualMK, &e.GroupID, &e.Start, &e.End, &e.CreatedAt,
			&g.ID, &g.Name, &g.Type, &g.ParentOrgID, &g.ParentTeamID, &g.CreatedAt, &g.LastModified)
		if err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		e.Group = &g
		enrollments = append(enrollments, &e)
	}
	return enrollments, rows.Err()
}

// GetEnrollments returns the enrollments of (individual, group) ordered
// by start date.
func (db *DB) GetEnrollments(ctx context.Context, mk string, groupID uuid.UUID) ([]*models.Enrollment, error) {
	return db.getEnrollments(ctx, mk, groupID, nil, nil)
}

// GetEnrollmentsInRange returns the enrollments of (individual, group)
// overlapping [from, to], touching bounds included.
func (db *DB) GetEnrollmentsInRange(ctx context.Context, mk string, groupID uuid.UUID, from, to time.Time) ([]*models.Enrollment, error) {
	return db.getEnrollments(ctx, mk, groupID, &from, &to)
}

func (db *DB) getEnrollments(ctx context.Context, mk string, groupID uuid.UUID, from, to *time.Time) ([]*models.Enrollment, error) {
	query := `
		SELECT id, individual_mk, group_id, start_date, end_date, created_at
		FROM enrollments
		WHERE individual_mk = $1 AND group_id = $2
	`
	args := []any{mk, groupID}
	if from != nil && to != nil {
		args = append(args, *to, *from)
		query += fmt.Sprintf(" AND start_date <= $%d AND end_date >= $%d", len(args)-1, len(args))
	}
	query += " ORDER BY start_date"

	rows, err := db.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []*models.Enrollment
	for rows.Next() {
		var e models.Enrollment
		if err := rows.Scan(&e.ID, &e.IndividualMK, &e.GroupID, &e.Start, &e.End, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		enrollments = append(enrollments, &e)
	}
	return enrollments, rows.Err()
}

// DeleteEnrollments removes the given enrollment rows.
func (db *DB) DeleteEnrollments(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.q.Exec(ctx, `DELETE FROM enrollments WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("delete enrollments: %w", err)
	}
	return nil
}

// GetEnrollmentsByGroup returns every enrollment in a group, ordered by
// individual and start date.
func (db *DB) GetEnrollmentsByGroup(ctx context.Context, groupID uuid.UUID) ([]*models.Enrollment, error) {
	rows, err := db.q.Query(ctx, `
		SELECT id, individual_mk, group_id, start_date, end_date, created_at
		FROM enrollments
		WHERE group_id = $1
		ORDER BY individual_mk, start_date
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []*models.Enrollment
	for rows.Next() {
		var e models.Enrollment
		if err := rows.Scan(&e.ID, &e.IndividualMK, &e.GroupID, &e.Start, &e.End, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		enrollments = append(enrollments, &e)
	}
	return enrollments, rows.Err()
}

// EnrolledOrganizationNames returns the names of organizations that mk
// has any enrollment in, at any time range.
func (db *DB) EnrolledOrganizationNames(ctx context.Context, mk string) ([]string, error) {
	rows, err := db.q.Query(ctx, `
		SELECT DISTINCT g.name
		FROM enrollments e
		JOIN groups g ON g.id = e.group_id
		WHERE e.individual_mk = $1 AND g.type = 'organization'
	`, mk)
	if err != nil {
		return nil, fmt.Errorf("list enrolled organizations: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan organization name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
