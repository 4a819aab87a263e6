// Package orgs implements the organization, team, domain, alias and
// enrollment verbs. Organizations own email domains and aliases and
// may hold a forest of teams; enrollments bind individuals to any
// group over a date range kept disjoint per (individual, group) pair.
package orgs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/openmeld/meld/internal/db"
	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
	"github.com/openmeld/meld/internal/tenant"
	"github.com/openmeld/meld/internal/txlog"
	"github.com/rs/zerolog"
)

// Store is the persistence surface the organization verbs need.
type Store interface {
	txlog.Store

	Atomic(ctx context.Context, fn func(tx Store) error) error

	CreateGroup(ctx context.Context, g *models.Group) error
	GetOrganization(ctx context.Context, name string) (*models.Group, error)
	GetTeam(ctx context.Context, name string, orgID *uuid.UUID) (*models.Group, error)
	DeleteGroup(ctx context.Context, id uuid.UUID) error
	ReparentTeams(ctx context.Context, fromOrg, toOrg uuid.UUID) error

	CreateDomain(ctx context.Context, d *models.Domain) error
	GetDomain(ctx context.Context, domain string) (*models.Domain, error)
	DeleteDomain(ctx context.Context, domain string) error
	ReparentDomains(ctx context.Context, fromOrg, toOrg uuid.UUID) error

	CreateAlias(ctx context.Context, a *models.Alias) error
	DeleteAlias(ctx context.Context, alias string) error
	ReparentAliases(ctx context.Context, fromOrg, toOrg uuid.UUID) error

	CreateEnrollment(ctx context.Context, e *models.Enrollment) error
	GetEnrollments(ctx context.Context, mk string, groupID uuid.UUID) ([]*models.Enrollment, error)
	GetEnrollmentsInRange(ctx context.Context, mk string, groupID uuid.UUID, from, to time.Time) ([]*models.Enrollment, error)
	DeleteEnrollments(ctx context.Context, ids []uuid.UUID) error
	GetEnrollmentsByGroup(ctx context.Context, groupID uuid.UUID) ([]*models.Enrollment, error)

	FindIndividualByIdentity(ctx context.Context, uuid string) (*models.Individual, error)
	GetIndividual(ctx context.Context, mk string) (*models.Individual, error)
	TouchIndividual(ctx context.Context, mks ...string) error
}

type dbStore struct {
	*db.DB
}

func (s dbStore) Atomic(ctx context.Context, fn func(tx Store) error) error {
	return s.DB.WithTx(ctx, func(tx *db.DB) error {
		return fn(dbStore{tx})
	})
}

// StoreProvider resolves the store for the tenant in scope.
type StoreProvider func(ctx context.Context) (Store, error)

// Service exposes the organization and enrollment verbs.
type Service struct {
	store  StoreProvider
	logger zerolog.Logger
}

// NewService creates an orgs service routing through the tenant
// registry.
func NewService(tenants *tenant.Registry, logger zerolog.Logger) *Service {
	return &Service{
		store: func(ctx context.Context) (Store, error) {
			d, err := tenants.DB(ctx)
			if err != nil {
				return nil, err
			}
			return dbStore{d}, nil
		},
		logger: logger.With().Str("component", "orgs").Logger(),
	}
}

// NewServiceWithStore creates an orgs service over a fixed store.
func NewServiceWithStore(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  func(context.Context) (Store, error) { return store, nil },
		logger: logger.With().Str("component", "orgs").Logger(),
	}
}

// resolveGroup finds the enrollment target. With a parent organization
// the name designates a team inside it; otherwise it designates an
// organization, falling back to an organization-less team.
func resolveGroup(ctx context.Context, tx Store, name string, parentOrg string) (*models.Group, error) {
	if name == "" {
		return nil, meld.InvalidValuef("group name cannot be empty")
	}
	if parentOrg != "" {
		org, err := tx.GetOrganization(ctx, parentOrg)
		if err != nil {
			return nil, err
		}
		return tx.GetTeam(ctx, name, &org.ID)
	}
	org, err := tx.GetOrganization(ctx, name)
	if err == nil {
		return org, nil
	}
	if !meld.IsNotFound(err) {
		return nil, err
	}
	return tx.GetTeam(ctx, name, nil)
}

func checkUnlocked(ind *models.Individual) error {
	if ind.IsLocked {
		return meld.Lockedf("individual %q is locked", ind.MK)
	}
	return nil
}
