// Package registry implements the identity and individual mutation
// verbs: adding and deleting identities, moving them between
// individuals, merging and unmerging, profile updates, locking and
// review. Every verb runs inside a single storage transaction and
// records its mutations in the audit trail.
package registry

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

// Store is the persistence surface the registry verbs need. It is
// satisfied by the storage gateway; Atomic yields a view of the same
// store bound to one database transaction.
type Store interface {
	txlog.Store

	Atomic(ctx context.Context, fn func(tx Store) error) error

	CreateIndividual(ctx context.Context, ind *models.Individual) error
	GetIndividual(ctx context.Context, mk string) (*models.Individual, error)
	DeleteIndividual(ctx context.Context, mk string) error
	SetIndividualLock(ctx context.Context, mk string, locked bool) error
	TouchIndividual(ctx context.Context, mks ...string) error
	ReviewIndividual(ctx context.Context, mk string, at time.Time) error

	CreateIdentity(ctx context.Context, idn *models.Identity) error
	GetIdentity(ctx context.Context, uuid string) (*models.Identity, error)
	DeleteIdentity(ctx context.Context, uuid string) error
	MoveIdentity(ctx context.Context, uuid, toMK string) error
	FindIndividualByIdentity(ctx context.Context, uuid string) (*models.Individual, error)

	GetProfile(ctx context.Context, mk string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, p *models.Profile) error
	GetCountry(ctx context.Context, code string) (*models.Country, error)

	CreateEnrollment(ctx context.Context, e *models.Enrollment) error
	DeleteEnrollments(ctx context.Context, ids []uuid.UUID) error

	DeleteRecommendationsByIndividual(ctx context.Context, mk string) error
}

// dbStore adapts the storage gateway to Store, threading transactional
// views back through the interface.
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

// Service exposes the identity registry verbs.
type Service struct {
	store  StoreProvider
	logger zerolog.Logger
}

// NewService creates a registry service routing through the tenant
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
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// NewServiceWithStore creates a registry service over a fixed store.
func NewServiceWithStore(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  func(context.Context) (Store, error) { return store, nil },
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// checkUnlocked fails with Locked when the individual may not be
// mutated.
func checkUnlocked(ind *models.Individual) error {
	if ind.IsLocked {
		return meld.Lockedf("individual %q is locked", ind.MK)
	}
	return nil
}
