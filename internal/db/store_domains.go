package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
)

// CreateDomain inserts a domain for an organization.
func (db *DB) CreateDomain(ctx context.Context, d *models.Domain) error {
	_, err := db.q.Exec(ctx, `
		INSERT INTO domains (id, organization_id, domain, is_top_domain, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, d.ID, d.OrganizationID, d.Domain, d.IsTopDomain, d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return meld.AlreadyExistsf("", "domain %q already exists", d.Domain)
		}
		return fmt.Errorf("create domain: %w", err)
	}
	return nil
}

// GetDomain returns a domain record by its name.
func (db *DB) GetDomain(ctx context.Context, domain string) (*models.Domain, error) {
	var d models.Domain
	err := db.q.QueryRow(ctx, `
		SELECT id, organization_id, domain, is_top_domain, created_at
		FROM domains WHERE domain = $1
	`, domain).Scan(&d.ID, &d.OrganizationID, &d.Domain, &d.IsTopDomain, &d.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, meld.NotFoundf("domain %q not found", domain)
		}
		return nil, fmt.Errorf("get domain: %w", err)
	}
	return &d, nil
}

// DeleteDomain removes a domain by name.
func (db *DB) DeleteDomain(ctx context.Context, domain string) error {
	tag, err := db.q.Exec(ctx, `DELETE FROM domains WHERE domain = $1`, domain)
	if err != nil {
		return fmt.Errorf("delete domain: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return meld.NotFoundf("domain %q not found", domain)
	}
	return nil
}

// GetDomainsByOrganization lists the domains owned by an organization.
func (db *DB) GetDomainsByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.Domain, error) {
	rows, err := db.q.Query(ctx, `
		SELECT id, organization_id, domain, is_top_domain, created_at
		FROM domains WHERE organization_id = $1
		ORDER BY domain
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	var domains []*models.Domain
	for rows.Next() {
		var d models.Domain
		if err := rows.Scan(&d.ID, &d.OrganizationID, &d.Domain, &d.IsTopDomain, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		domains = append(domains, &d)
	}
	return domains, rows.Err()
}

// ReparentDomains moves all domains from one organization to another.
func (db *DB) ReparentDomains(ctx context.Context, fromOrg, toOrg uuid.UUID) error {
	_, err := db.q.Exec(ctx, `
		UPDATE domains SET organization_id = $2 WHERE organization_id = $1
	`, fromOrg, toOrg)
	if err != nil {
		return fmt.Errorf("reparent domains: %w", err)
	}
	return nil
}

// FindMatchingDomain resolves an email domain to the organization
// claiming it: an exact domain match, or the longest registered top
// domain that is a suffix of it. Returns NotFound when no domain
// claims it.
func (db *DB) FindMatchingDomain(ctx context.Context, emailDomain string) (*models.Domain, error) {
	emailDomain = strings.ToLower(emailDomain)
	rows, err := db.q.Query(ctx, `
		SELECT id, organization_id, domain, is_top_domain, created_at
		FROM domains
		WHERE lower(domain) = $1
		   OR (is_top_domain AND $1 LIKE '%.' || lower(domain))
	`, emailDomain)
	if err != nil {
		return nil, fmt.Errorf("match domain: %w", err)
	}
	defer rows.Close()

	var best *models.Domain
	for rows.Next() {
		var d models.Domain
		if err := rows.Scan(&d.ID, &d.OrganizationID, &d.Domain, &d.IsTopDomain, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		if best == nil || len(d.Domain) > len(best.Domain) {
			dd := d
			best = &dd
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("match domain: %w", err)
	}
	if best == nil {
		return nil, meld.NotFoundf("no organization claims domain %q", emailDomain)
	}
	return best, nil
}

// CreateAlias inserts an alternative organization name.
func (db *DB) CreateAlias(ctx context.Context, a *models.Alias) error {
	_, err := db.q.Exec(ctx, `
		INSERT INTO aliases (id, organization_id, alias, created_at)
		VALUES ($1, $2, $3, $4)
	`, a.ID, a.OrganizationID, a.Alias, a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return meld.AlreadyExistsf("", "alias %q already exists", a.Alias)
		}
		return fmt.Errorf("create alias: %w", err)
	}
	return nil
}

// DeleteAlias removes an alias by name.
func (db *DB) DeleteAlias(ctx context.Context, alias string) error {
	tag, err := db.q.Exec(ctx, `DELETE FROM aliases WHERE alias = $1`, alias)
	if err != nil {
		return fmt.Errorf("delete alias: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return meld.NotFoundf("alias %q not found", alias)
	}
	return nil
}

// GetAliasesByOrganization lists the aliases of an organization.
func (db *DB) GetAliasesByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.Alias, error) {
	rows, err := db.q.Query(ctx, `
		SELECT id, organization_id, alias, created_at
		FROM aliases WHERE organization_id = $1
		ORDER BY alias
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list aliases: %w", err)
	}
	defer rows.Close()

	var aliases []*models.Alias
	for rows.Next() {
		var a models.Alias
		if err := rows.Scan(&a.ID, &a.OrganizationID, &a.Alias, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alias: %w", err)
		}
		aliases = append(aliases, &a)
	}
	return aliases, rows.Err()
}

// ReparentAliases moves all aliases from one organization to another.
func (db *DB) ReparentAliases(ctx context.Context, fromOrg, toOrg uuid.UUID) error {
	_, err := db.q.Exec(ctx, `
		UPDATE aliases SET organization_id = $2 WHERE organization_id = $1
	`, fromOrg, toOrg)
	if err != nil {
		return fmt.Errorf("reparent aliases: %w", err)
	}
	return nil
}
