package orgs

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
)

// memStore is an in-memory Store used by the verb tests. Individuals
// are registered directly with their main key doubling as an identity.
type memStore struct {
	groups      map[uuid.UUID]*models.Group
	domains     map[string]*models.Domain
	aliases     map[string]*models.Alias
	enrollments map[uuid.UUID]*models.Enrollment
	individuals map[string]*models.Individual

	transactions []*models.Transaction
	operations   []*models.Operation
}

func newMemStore() *memStore {
	return &memStore{
		groups:      make(map[uuid.UUID]*models.Group),
		domains:     make(map[string]*models.Domain),
		aliases:     make(map[string]*models.Alias),
		enrollments: make(map[uuid.UUID]*models.Enrollment),
		individuals: make(map[string]*models.Individual),
	}
}

func (m *memStore) addIndividual(mk string) {
	m.individuals[mk] = models.NewIndividual(mk)
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

func (m *memStore) CreateGroup(_ context.Context, g *models.Group) error {
	for _, other := range m.groups {
		if other.Type != g.Type || other.Name != g.Name {
			continue
		}
		if g.Type == models.GroupTypeOrganization {
			return meld.AlreadyExistsf("", "organization %q already exists", g.Name)
		}
		if uuidPtrEqual(other.ParentOrgID, g.ParentOrgID) {
			return meld.AlreadyExistsf("", "team %q already exists", g.Name)
		}
	}
	clone := *g
	m.groups[g.ID] = &clone
	return nil
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (m *memStore) GetOrganization(_ context.Context, name string) (*models.Group, error) {
	for _, g := range m.groups {
		if g.Type == models.GroupTypeOrganization && g.Name == name {
			out := *g
			out.Domains = nil
			out.Aliases = nil
			for _, d := range m.domains {
				if d.OrganizationID == g.ID {
					out.Domains = append(out.Domains, d)
				}
			}
			for _, a := range m.aliases {
				if a.OrganizationID == g.ID {
					out.Aliases = append(out.Aliases, a)
				}
			}
			return &out, nil
		}
	}
	return nil, meld.NotFoundf("organization %q not found", name)
}

func (m *memStore) GetTeam(_ context.Context, name string, orgID *uuid.UUID) (*models.Group, error) {
	for _, g := range m.groups {
		if g.Type == models.GroupTypeTeam && g.Name == name && uuidPtrEqual(g.ParentOrgID, orgID) {
			out := *g
			return &out, nil
		}
	}
	return nil, meld.NotFoundf("team %q not found", name)
}

func (m *memStore) DeleteGroup(_ context.Context, id uuid.UUID) error {
	if _, ok := m.groups[id]; !ok {
		return meld.NotFoundf("group %q not found", id)
	}
	doomed := map[uuid.UUID]bool{id: true}
	for changed := true; changed; {
		changed = false
		for gid, g := range m.groups {
			if doomed[gid] {
				continue
			}
			if (g.ParentOrgID != nil && doomed[*g.ParentOrgID]) ||
				(g.ParentTeamID != nil && doomed[*g.ParentTeamID]) {
				doomed[gid] = true
				changed = true
			}
		}
	}
	for gid := range doomed {
		delete(m.groups, gid)
	}
	for name, d := range m.domains {
		if doomed[d.OrganizationID] {
			delete(m.domains, name)
		}
	}
	for name, a := range m.aliases {
		if doomed[a.OrganizationID] {
			delete(m.aliases, name)
		}
	}
	for eid, e := range m.enrollments {
		if doomed[e.GroupID] {
			delete(m.enrollments, eid)
		}
	}
	return nil
}

func (m *memStore) ReparentTeams(_ context.Context, fromOrg, toOrg uuid.UUID) error {
	for _, g := range m.groups {
		if g.Type == models.GroupTypeTeam && g.ParentOrgID != nil && *g.ParentOrgID == fromOrg {
			org := toOrg
			g.ParentOrgID = &org
		}
	}
	return nil
}

func (m *memStore) CreateDomain(_ context.Context, d *models.Domain) error {
	if _, ok := m.domains[d.Domain]; ok {
		return meld.AlreadyExistsf("", "domain %q already exists", d.Domain)
	}
	clone := *d
	m.domains[d.Domain] = &clone
	return nil
}

func (m *memStore) GetDomain(_ context.Context, domain string) (*models.Domain, error) {
	d, ok := m.domains[domain]
	if !ok {
		return nil, meld.NotFoundf("domain %q not found", domain)
	}
	return d, nil
}

func (m *memStore) DeleteDomain(_ context.Context, domain string) error {
	if _, ok := m.domains[domain]; !ok {
		return meld.NotFoundf("domain %q not found", domain)
	}
	delete(m.domains, domain)
	return nil
}

func (m *memStore) ReparentDomains(_ context.Context, fromOrg, toOrg uuid.UUID) error {
	for _, d := range m.domains {
		if d.OrganizationID == fromOrg {
			d.OrganizationID = toOrg
		}
	}
	return nil
}

func (m *memStore) CreateAlias(_ context.Context, a *models.Alias) error {
	if _, ok := m.aliases[a.Alias]; ok {
		return meld.AlreadyExistsf("", "alias %q already exists", a.Alias)
	}
	clone := *a
	m.aliases[a.Alias] = &clone
	return nil
}

func (m *memStore) DeleteAlias(_ context.Context, alias string) error {
	if _, ok := m.aliases[alias]; !ok {
		return meld.NotFoundf("alias %q not found", alias)
	}
	delete(m.aliases, alias)
	return nil
}

func (m *memStore) ReparentAliases(_ context.Context, fromOrg, toOrg uuid.UUID) error {
	for _, a := range m.aliases {
		if a.OrganizationID == fromOrg {
			a.OrganizationID = toOrg
		}
	}
	return nil
}

func (m *memStore) CreateEnrollment(_ context.Context, e *models.Enrollment) error {
	clone := *e
	m.enrollments[e.ID] = &clone
	return nil
}

func (m *memStore) enrollmentsOf(mk string, groupID uuid.UUID) []*models.Enrollment {
	var out []*models.Enrollment
	for _, e := range m.enrollments {
		if e.IndividualMK == mk && e.GroupID == groupID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func (m *memStore) GetEnrollments(_ context.Context, mk string, groupID uuid.UUID) ([]*models.Enrollment, error) {
	return m.enrollmentsOf(mk, groupID), nil
}

func (m *memStore) GetEnrollmentsInRange(_ context.Context, mk string, groupID uuid.UUID, from, to time.Time) ([]*models.Enrollment, error) {
	var out []*models.Enrollment
	for _, e := range m.enrollmentsOf(mk, groupID) {
		if !e.Start.After(to) && !e.End.Before(from) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) DeleteEnrollments(_ context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		delete(m.enrollments, id)
	}
	return nil
}

func (m *memStore) GetEnrollmentsByGroup(_ context.Context, groupID uuid.UUID) ([]*models.Enrollment, error) {
	var out []*models.Enrollment
	for _, e := range m.enrollments {
		if e.GroupID == groupID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IndividualMK < out[j].IndividualMK })
	return out, nil
}

func (m *memStore) FindIndividualByIdentity(ctx context.Context, uuid string) (*models.Individual, error) {
	return m.GetIndividual(ctx, uuid)
}

func (m *memStore) GetIndividual(_ context.Context, mk string) (*models.Individual, error) {
	ind, ok := m.individuals[mk]
	if !ok {
		return nil, meld.NotFoundf("individual %q not found", mk)
	}
	out := *ind
	out.Enrollments = nil
	for _, e := range m.enrollments {
		if e.IndividualMK == mk {
			out.Enrollments = append(out.Enrollments, e)
		}
	}
	sort.Slice(out.Enrollments, func(i, j int) bool {
		return out.Enrollments[i].Start.Before(out.Enrollments[j].Start)
	})
	return &out, nil
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
