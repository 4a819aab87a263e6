package models

import (
	"time"

	"github.com/google/uuid"
)

// GroupType discriminates the two kinds of enrollable groups.
type GroupType string

const (
	// GroupTypeOrganization is a top-level organization.
	GroupTypeOrganization GroupType = "organization"
	// GroupTypeTeam is a team node; teams form a forest and may belong
	// to an organization or be organization-less.
	GroupTypeTeam GroupType = "team"
)

// Group is the unit of enrollment: an organization or a team.
type Group struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Type GroupType `json:"type"`
	// ParentOrgID is set for teams owned by an organization.
	ParentOrgID *uuid.UUID `json:"parent_org_id,omitempty"`
	// ParentTeamID is set for subteams.
	ParentTeamID *uuid.UUID `json:"parent_team_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastModified time.Time  `json:"last_modified"`

	Domains []*Domain `json:"domains,omitempty"`
	Aliases []*Alias  `json:"aliases,omitempty"`
}

// NewOrganization creates an organization group.
func NewOrganization(name string) *Group {
	now := time.Now().UTC()
	return &Group{
		ID:           uuid.New(),
		Name:         name,
		Type:         GroupTypeOrganization,
		CreatedAt:    now,
		LastModified: now,
	}
}

// NewTeam creates a team group, optionally owned by an organization
// and/or nested under a parent team.
func NewTeam(name string, orgID, parentTeamID *uuid.UUID) *Group {
	now := time.Now().UTC()
	return &Group{
		ID:           uuid.New(),
		Name:         name,
		Type:         GroupTypeTeam,
		ParentOrgID:  orgID,
		ParentTeamID: parentTeamID,
		CreatedAt:    now,
		LastModified: now,
	}
}

// Domain maps an email domain to the organization owning it. A top
// domain also claims all of its subdomains during affiliation matching.
type Domain struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Domain         string    `json:"domain"`
	IsTopDomain    bool      `json:"is_top_domain"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewDomain creates a domain record for an organization.
func NewDomain(orgID uuid.UUID, domain string, isTop bool) *Domain {
	return &Domain{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Domain:         domain,
		IsTopDomain:    isTop,
		CreatedAt:      time.Now().UTC(),
	}
}

// Alias is an alternative name for an organization, unique per tenant.
type Alias struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Alias          string    `json:"alias"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewAlias creates an alias for an organization.
func NewAlias(orgID uuid.UUID, alias string) *Alias {
	return &Alias{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Alias:          alias,
		CreatedAt:      time.Now().UTC(),
	}
}
