package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
)

const groupColumns = `id, name, type, parent_org_id, parent_team_id, created_at, last_modified`

func scanGroup(row interface{ Scan(...any) error }) (*models.Group, error) {
	var g models.Group
	err := row.Scan(&g.ID, &g.Name, &g.Type, &g.ParentOrgID, &g.ParentTeamID,
		&g.CreatedAt, &g.LastModified)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// CreateGroup inserts an organization or team node.
func (db *DB) CreateGroup(ctx context.Context, g *models.Group) error {
	_, err := db.q.Exec(ctx, `
		INSERT INTO groups (`+groupColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, g.ID, g.Name, g.Type, g.ParentOrgID, g.ParentTeamID, g.CreatedAt, g.LastModified)
	if err != nil {
		if isUniqueViolation(err) {
			return meld.AlreadyExistsf("", "%s %q already exists", g.Type, g.Name)
		}
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// GetGroupByID returns a group node by its surrogate id.
func (db *DB) GetGroupByID(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	g, err := scanGroup(db.q.QueryRow(ctx, `
		SELECT `+groupColumns+` FROM groups WHERE id = $1
	`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, meld.NotFoundf("group %q not found", id)
		}
		return nil, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

// GetOrganization returns the organization with the given primary name,
// with its domains and aliases loaded.
func (db *DB) GetOrganization(ctx context.Context, name string) (*models.Group, error) {
	g, err := scanGroup(db.q.QueryRow(ctx, `
		SELECT `+groupColumns+` FROM groups
		WHERE type = 'organization' AND name = $1
	`, name))
	if err != nil {
		if isNoRows(err) {
			return nil, meld.NotFoundf("organization %q not found", name)
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}
	if g.Domains, err = db.GetDomainsByOrganization(ctx, g.ID); err != nil {
		return nil, err
	}
	if g.Aliases, err = db.GetAliasesByOrganization(ctx, g.ID); err != nil {
		return nil, err
	}
	return g, nil
}

// ResolveOrganization returns the organization whose primary name or
// alias equals name.
func (db *DB) ResolveOrganization(ctx context.Context, name string) (*models.Group, error) {
	org, err := db.GetOrganization(ctx, name)
	if err == nil {
		return org, nil
	}
	if !meld.IsNotFound(err) {
		return nil, err
	}
	var orgName string
	err = db.q.QueryRow(ctx, `
		SELECT g.name FROM aliases a JOIN groups g ON g.id = a.organization_id
		WHERE a.alias = $1
	`, name).Scan(&orgName)
	if err != nil {
		if isNoRows(err) {
			return nil, meld.NotFoundf("organization %q not found", name)
		}
		return nil, fmt.Errorf("resolve organization alias: %w", err)
	}
	return db.GetOrganization(ctx, orgName)
}

// GetTeam returns the team with the given name under an organization,
// or an organization-less team when orgID is nil.
func (db *DB) GetTeam(ctx context.Context, name string, orgID *uuid.UUID) (*models.Group, error) {
	var row interface{ Scan(...any) error }
	if orgID != nil {
		row = db.q.QueryRow(ctx, `
			SELECT `+groupColumns+` FROM groups
			WHERE type = 'team' AND name = $1 AND parent_org_id = $2
		`, name, *orgID)
	} else {
		row = db.q.QueryRow(ctx, `
			SELECT `+groupColumns+` FROM groups
			WHERE type = 'team' AND name = $1 AND parent_org_id IS NULL
		`, name)
	}
	g, err := scanGroup(row)
	if err != nil {
		if isNoRows(err) {
			return nil, meld.NotFoundf("team %q not found", name)
		}
		return nil, fmt.Errorf("get team: %w", err)
	}
	return g, nil
}

// DeleteGroup removes a group node. Subteams, domains, aliases and
// enrollments cascade.
func (db *DB) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	tag, err := db.q.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return meld.NotFoundf("group %q not found", id)
	}
	return nil
}

// ReparentTeams moves all teams owned by fromOrg to toOrg. A team
// whose name already exists under toOrg is folded into that team: its
// enrollments and subteams move over and the duplicate row is removed.
func (db *DB) ReparentTeams(ctx context.Context, fromOrg, toOrg uuid.UUID) error {
	rows, err := db.q.Query(ctx, `
		SELECT src.id, dst.id FROM groups src
		JOIN groups dst ON dst.type = 'team' AND dst.parent_org_id = $2 AND dst.name = src.name
		WHERE src.type = 'team' AND src.parent_org_id = $1
	`, fromOrg, toOrg)
	if err != nil {
		return fmt.Errorf("reparent teams: %w", err)
	}
	type teamPair struct{ src, dst uuid.UUID }
	var colliding []teamPair
	for rows.Next() {
		var p teamPair
		if err := rows.Scan(&p.src, &p.dst); err != nil {
			rows.Close()
			return fmt.Errorf("reparent teams: %w", err)
		}
		colliding = append(colliding, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reparent teams: %w", err)
	}

	for _, p := range colliding {
		if _, err := db.q.Exec(ctx, `
			UPDATE enrollments SET group_id = $2 WHERE group_id = $1
		`, p.src, p.dst); err != nil {
			return fmt.Errorf("fold team enrollments: %w", err)
		}
		if _, err := db.q.Exec(ctx, `
			UPDATE groups SET parent_team_id = $2 WHERE parent_team_id = $1
		`, p.src, p.dst); err != nil {
			return fmt.Errorf("fold subteams: %w", err)
		}
		if _, err := db.q.Exec(ctx, `DELETE FROM groups WHERE id = $1`, p.src); err != nil {
			return fmt.Errorf("fold team: %w", err)
		}
	}

	_, err = db.q.Exec(ctx, `
		UPDATE groups SET parent_org_id = $2 WHERE parent_org_id = $1
	`, fromOrg, toOrg)
	if err != nil {
		return fmt.Errorf("reparent teams: %w", err)
	}
	return nil
}

// ListOrganizations returns a page of organizations matching term, with
// domains and aliases loaded.
func (db *DB) ListOrganizations(ctx context.Context, term string, page, pageSize int) (*models.Paginated[*models.Group], error) {
	conds := []string{"type = 'organization'"}
	args := []any{}
	if term != "" {
		args = append(args, "%"+term+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(`(name ILIKE $%d
			OR EXISTS (SELECT 1 FROM aliases a WHERE a.organization_id = groups.id AND a.alias ILIKE $%d))`, n, n))
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := db.q.QueryRow(ctx, "SELECT COUNT(*) FROM groups"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count organizations: %w", err)
	}
	info, err := validatePage(page, pageSize, total)
	if err != nil {
		return nil, err
	}

	limit, offset := pageWindow(page, pageSize)
	args = append(args, limit, offset)
	rows, err := db.q.Query(ctx, fmt.Sprintf(`
		SELECT `+groupColumns+` FROM groups
		%s
		ORDER BY name
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		orgs = append(orgs, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}

	for _, g := range orgs {
		if g.Domains, err = db.GetDomainsByOrganization(ctx, g.ID); err != nil {
			return nil, err
		}
		if g.Aliases, err = db.GetAliasesByOrganization(ctx, g.ID); err != nil {
			return nil, err
		}
	}
	return &models.Paginated[*models.Group]{Entities: orgs, PageInfo: info}, nil
}

// ListTeams returns one page of the team forest in pre-order. When
// orgID is non-nil only that organization's teams are listed; when
// rootless is true only organization-less teams are listed.
func (db *DB) ListTeams(ctx context.Context, orgID *uuid.UUID, rootless bool, page, pageSize int) (*models.Paginated[*models.Group], error) {
	scope := ""
	args := []any{}
	if orgID != nil {
		args = append(args, *orgID)
		scope = "AND g.parent_org_id = $1"
	} else if rootless {
		scope = "AND g.parent_org_id IS NULL"
	}

	// Pre-order over the forest: the path of names from root to node is
	// the sort key.
	query := fmt.Sprintf(`
		WITH RECURSIVE tree AS (
			SELECT g.id, g.name, g.type, g.parent_org_id, g.parent_team_id,
			       g.created_at, g.last_modified, ARRAY[g.name] AS path
			FROM groups g
			WHERE g.type = 'team' AND g.parent_team_id IS NULL %s
			UNION ALL
			SELECT g.id, g.name, g.type, g.parent_org_id, g.parent_team_id,
			       g.created_at, g.last_modified, tree.path || g.name
			FROM groups g
			JOIN tree ON g.parent_team_id = tree.id
		)
		SELECT id, name, type, parent_org_id, parent_team_id, created_at, last_modified
		FROM tree
		ORDER BY path
	`, scope)

	rows, err := db.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var teams []*models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}

	info, err := validatePage(page, pageSize, len(teams))
	if err != nil {
		return nil, err
	}
	limit, offset := pageWindow(page, pageSize)
	end := offset + limit
	if offset > len(teams) {
		offset = len(teams)
	}
	if end > len(teams) {
		end = len(teams)
	}
	return &models.Paginated[*models.Group]{Entities: teams[offset:end], PageInfo: info}, nil
}

// ListGroups returns a page over all groups, organizations first.
func (db *DB) ListGroups(ctx context.Context, term string, page, pageSize int) (*models.Paginated[*models.Group], error) {
	conds := []string{}
	args := []any{}
	if term != "" {
		args = append(args, "%"+term+"%")
		conds = append(conds, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := db.q.QueryRow(ctx, "SELECT COUNT(*) FROM groups"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count groups: %w", err)
	}
	info, err := validatePage(page, pageSize, total)
	if err != nil {
		return nil, err
	}

	limit, offset := pageWindow(page, pageSize)
	args = append(args, limit, offset)
	rows, err := db.q.Query(ctx, fmt.Sprintf(`
		SELECT `+groupColumns+` FROM groups
		%s
		ORDER BY type DESC, name
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return &models.Paginated[*models.Group]{Entities: groups, PageInfo: info}, nil
}
