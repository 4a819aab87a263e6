package registry

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
)

// memStore is an in-memory Store used by the verb tests.
type memStore struct {
	individuals map[string]*models.Individual
	profiles    map[string]*models.Profile
	identities  map[string]*models.Identity
	enrollments map[uuid.UUID]*models.Enrollment
	countries   map[string]*models.Country

	transactions []*models.Transaction
	operations   []*models.Operation

	recsDeletedFor []string
}

func newMemStore() *memStore {
	return &memStore{
		individuals: make(map[string]*models.Individual),
		profiles:    make(map[string]*models.Profile),
		identities:  make(map[string]*models.Identity),
		enrollments: make(map[uuid.UUID]*models.Enrollment),
		countries:   make(map[string]*models.Country),
	}
}

func (m *memStore) Atomic(_ context.Context, fn func(tx Store) error) error {
	return fn(m)
}

func (m *memStore) CreateTransaction(_ context.Context, tx *models.Transaction) error {
	m.transactions = append(m.transactions, tx)
	return nil
}

func (m *memStore) CloseTransaction(_ context.Context, tuid string, at time.Time) error {
	for _, tx := range m.transactions {
		if tx.TUID == tuid {
			tx.ClosedAt = &at
			tx.IsClosed = true
		}
	}
	return nil
}

func (m *memStore) CreateOperation(_ context.Context, op *models.Operation) error {
	m.operations = append(m.operations, op)
	return nil
}

func (m *memStore) CreateIndividual(_ context.Context, ind *models.Individual) error {
	if _, ok := m.individuals[ind.MK]; ok {
		return meld.AlreadyExistsf(ind.MK, "individual %q already exists", ind.MK)
	}
	clone := *ind
	m.individuals[ind.MK] = &clone
	m.profiles[ind.MK] = &models.Profile{IndividualMK: ind.MK}
	return nil
}

func (m *memStore) build(ind *models.Individual) *models.Individual {
	out := *ind
	out.Profile = m.profiles[ind.MK]
	out.Identities = nil
	out.Enrollments = nil
	for _, idn := range m.identities {
		if idn.IndividualMK == ind.MK {
			out.Identities = append(out.Identities, idn)
		}
	}
	sort.Slice(out.Identities, func(i, j int) bool {
		return out.Identities[i].UUID < out.Identities[j].UUID
	})
	for _, e := range m.enrollments {
		if e.IndividualMK == ind.MK {
			out.Enrollments = append(out.Enrollments, e)
		}
	}
	sort.Slice(out.Enrollments, func(i, j int) bool {
		return out.Enrollments[i].Start.Before(out.Enrollments[j].Start)
	})
	return &out
}

func (m *memStore) GetIndividual(_ context.Context, mk string) (*models.Individual, error) {
	ind, ok := m.individuals[mk]
	if !ok {
		return nil, meld.NotFoundf("individual %q not found", mk)
	}
	return m.build(ind), nil
}

func (m *memStore) DeleteIndividual(_ context.Context, mk string) error {
	if _, ok := m.individuals[mk]; !ok {
		return meld.NotFoundf("individual %q not found", mk)
	}
	delete(m.individuals, mk)
	delete(m.profiles, mk)
	for id, idn := range m.identities {
		if idn.IndividualMK == mk {
			delete(m.identities, id)
		}
	}
	for id, e := range m.enrollments {
		if e.IndividualMK == mk {
			delete(m.enrollments, id)
		}
	}
	return nil
}

func (m *memStore) SetIndividualLock(_ context.Context, mk string, locked bool) error {
	ind, ok := m.individuals[mk]
	if !ok {
		return meld.NotFoundf("individual %q not found", mk)
	}
	ind.IsLocked = locked
	return nil
}

func (m *memStore) TouchIndividual(_ context.Context, mks ...string) error {
	now := time.Now().UTC()
	for _, mk := range mks {
		if ind, ok := m.individuals[mk]; ok {
			ind.LastModified = now
		}
	}
	return nil
}

func (m *memStore) ReviewIndividual(_ context.Context, mk string, at time.Time) error {
	ind, ok := m.individuals[mk]
	if !ok {
		return meld.NotFoundf("individual %q not found", mk)
	}
	ind.LastReviewed = &at
	return nil
}

func (m *memStore) CreateIdentity(_ context.Context, idn *models.Identity) error {
	if existing, ok := m.identities[idn.UUID]; ok {
		return meld.AlreadyExistsf(existing.IndividualMK, "identity %q already exists", idn.UUID)
	}
	clone := *idn
	m.identities[idn.UUID] = &clone
	return nil
}

func (m *memStore) GetIdentity(_ context.Context, id string) (*models.Identity, error) {
	idn, ok := m.identities[id]
	if !ok {
		return nil, meld.NotFoundf("identity %q not found", id)
	}
	return idn, nil
}

func (m *memStore) DeleteIdentity(_ context.Context, id string) error {
	if _, ok := m.identities[id]; !ok {
		return meld.NotFoundf("identity %q not found", id)
	}
	delete(m.identities, id)
	return nil
}

func (m *memStore) MoveIdentity(_ context.Context, id, toMK string) error {
	idn, ok := m.identities[id]
	if !ok {
		return meld.NotFoundf("identity %q not found", id)
	}
	idn.IndividualMK = toMK
	return nil
}

func (m *memStore) FindIndividualByIdentity(_ context.Context, id string) (*models.Individual, error) {
	idn, ok := m.identities[id]
	if !ok {
		return nil, meld.NotFoundf("identity %q not found", id)
	}
	return m.GetIndividual(context.Background(), idn.IndividualMK)
}

func (m *memStore) GetProfile(_ context.Context, mk string) (*models.Profile, error) {
	p, ok := m.profiles[mk]
	if !ok {
		return nil, meld.NotFoundf("profile for %q not found", mk)
	}
	return p, nil
}

func (m *memStore) UpdateProfile(_ context.Context, p *models.Profile) error {
	if _, ok := m.profiles[p.IndividualMK]; !ok {
		return meld.NotFoundf("profile for %q not found", p.IndividualMK)
	}
	clone := *p
	m.profiles[p.IndividualMK] = &clone
	return nil
}

func (m *memStore) GetCountry(_ context.Context, code string) (*models.Country, error) {
	c, ok := m.countries[code]
	if !ok {
		return nil, meld.NotFoundf("country %q not found", code)
	}
	return c, nil
}

func (m *memStore) CreateEnrollment(_ context.Context, e *models.Enrollment) error {
	clone := *e
	m.enrollments[e.ID] = &clone
	return nil
}

func (m *memStore) DeleteEnrollments(_ context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		delete(m.enrollments, id)
	}
	return nil
}

func (m *memStore) DeleteRecommendationsByIndividual(_ context.Context, mk string) error {
	m.recsDeletedFor = append(m.recsDeletedFor, mk)
	return nil
}
