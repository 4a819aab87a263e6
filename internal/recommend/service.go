// Package recommend implements the recommendation engines: affiliation
// from email domains, duplicate-individual matching, and gender lookup
// through an external oracle. Recommendations are persisted for later
// review; the affiliate, unify and genderize verbs apply them in bulk.
package recommend

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openmeld/meld/internal/db"
	"github.com/openmeld/meld/internal/models"
	"github.com/openmeld/meld/internal/orgs"
	"github.com/openmeld/meld/internal/registry"
	"github.com/openmeld/meld/internal/tenant"
	"github.com/rs/zerolog"
)

// Store is the persistence surface the recommenders need.
type Store interface {
	IndividualMKs(ctx context.Context, lastModified *time.Time) ([]string, error)
	GetIdentitiesForMatching(ctx context.Context, mks []string, lastModified *time.Time) ([]db.IdentityMatch, error)
	EnrolledOrganizationNames(ctx context.Context, mk string) ([]string, error)
	FindMatchingDomain(ctx context.Context, emailDomain string) (*models.Domain, error)
	GetGroupByID(ctx context.Context, id uuid.UUID) (*models.Group, error)
	GetProfile(ctx context.Context, mk string) (*models.Profile, error)

	CreateRecommendation(ctx context.Context, r *models.Recommendation) error
	GetRecommendation(ctx context.Context, id int64) (*models.Recommendation, error)
	SetRecommendationApplied(ctx context.Context, id int64, applied bool) error
	DeleteRecommendation(ctx context.Context, id int64) error
	HasRecommendation(ctx context.Context, r *models.Recommendation) (bool, error)

	CreateExclusionTerm(ctx context.Context, term *models.ExclusionTerm) error
	DeleteExclusionTerm(ctx context.Context, term string) error
	GetExclusionTerms(ctx context.Context) ([]*models.ExclusionTerm, error)
}

// StoreProvider resolves the store for the tenant in scope.
type StoreProvider func(ctx context.Context) (Store, error)

// Service exposes the recommenders and the verbs applying their
// output.
type Service struct {
	store    StoreProvider
	registry *registry.Service
	orgs     *orgs.Service
	oracle   Oracle
	logger   zerolog.Logger
}

// NewService creates a recommendation service routing through the
// tenant registry. The oracle may be nil, disabling gender
// recommendations.
func NewService(tenants *tenant.Registry, reg *registry.Service, org *orgs.Service, oracle Oracle, logger zerolog.Logger) *Service {
	return &Service{
		store: func(ctx context.Context) (Store, error) {
			d, err := tenants.DB(ctx)
			if err != nil {
				return nil, err
			}
			return d, nil
		},
		registry: reg,
		orgs:     org,
		oracle:   oracle,
		logger:   logger.With().Str("component", "recommend").Logger(),
	}
}

// NewServiceWithStore creates a recommendation service over a fixed
// store.
func NewServiceWithStore(store Store, reg *registry.Service, org *orgs.Service, oracle Oracle, logger zerolog.Logger) *Service {
	return &Service{
		store:    func(context.Context) (Store, error) { return store, nil },
		registry: reg,
		orgs:     org,
		oracle:   oracle,
		logger:   logger.With().Str("component", "recommend").Logger(),
	}
}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@.]+(\.[^\s@.]+)+$`)

// wellFormedEmail reports whether the address is usable for matching
// and affiliation.
func wellFormedEmail(email string) bool {
	return emailRe.MatchString(email)
}

// fullName reports whether the name looks like a real first plus last
// name. Single tokens and tokens carrying digits are rejected.
func fullName(name string) bool {
	tokens := strings.Fields(name)
	if len(tokens) < 2 {
		return false
	}
	for _, tok := range tokens {
		if strings.ContainsAny(tok, "0123456789") {
			return false
		}
	}
	return true
}
