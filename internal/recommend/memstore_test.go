package recommend

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openmeld/meld/internal/db"
	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
	"github.com/openmeld/meld/internal/orgs"
	"github.com/openmeld/meld/internal/registry"
)

// memBackend is a single in-memory state shared by the registry, orgs
// and recommend services under test.
type memBackend struct {
	individuals map[string]*models.Individual
	profiles    map[string]*models.Profile
	identities  map[string]*models.Identity
	enrollments map[uuid.UUID]*models.Enrollment
	groups      map[uuid.UUID]*models.Group
	domains     map[string]*models.Domain
	aliases     map[string]*models.Alias
	countries   map[string]*models.Country
	exclusions  map[string]*models.ExclusionTerm

	recommendations map[int64]*models.Recommendation
	nextRecID       int64

	transactions []*models.Transaction
	operations   []*models.Operation
}

func newMemBackend() *memBackend {
	return &memBackend{
		individuals:     make(map[string]*models.Individual),
		profiles:        make(map[string]*models.Profile),
		identities:      make(map[string]*models.Identity),
		enrollments:     make(map[uuid.UUID]*models.Enrollment),
		groups:          make(map[uuid.UUID]*models.Group),
		domains:         make(map[string]*models.Domain),
		aliases:         make(map[string]*models.Alias),
		countries:       make(map[string]*models.Country),
		exclusions:      make(map[string]*models.ExclusionTerm),
		recommendations: make(map[int64]*models.Recommendation),
	}
}

// regStore and orgStore graft the transactional entry points the verb
// services expect onto the shared backend.
type regStore struct{ *memBackend }

func (s regStore) Atomic(_ context.Context, fn func(tx registry.Store) error) error {
	return fn(s)
}

type orgStore struct{ *memBackend }

func (s orgStore) Atomic(_ context.Context, fn func(tx orgs.Store) error) error {
	return fn(s)
}

func (m *memBackend) CreateTransaction(_ context.Context, tx *models.Transaction) error {
	m.transactions = append(m.transactions, tx)
	return nil
}

func (m *memBackend) CloseTransaction(_ context.Context, tuid string, at time.Time) error {
	for _, tx := range m.transactions {
		if tx.TUID == tuid {
			tx.ClosedAt = &at
			tx.IsClosed = true
		}
	}
	return nil
}

func (m *memBackend) CreateOperation(_ context.Context, op *models.Operation) error {
	m.operations = append(m.operations, op)
	return nil
}

func (m *memBackend) CreateIndividual(_ context.Context, ind *models.Individual) error {
	if _, ok := m.individuals[ind.MK]; ok {
		return meld.AlreadyExistsf(ind.MK, "individual %q already exists", ind.MK)
	}
	clone := *ind
	m.individuals[ind.MK] = &clone
	m.profiles[ind.MK] = &models.Profile{IndividualMK: ind.MK}
	return nil
}

func (m *memBackend) GetIndividual(_ context.Context, mk string) (*models.Individual, error) {
	ind, ok := m.individuals[mk]
	if !ok {
		return nil, meld.NotFoundf("individual %q not found", mk)
	}
	out := *ind
	out.Profile = m.profiles[mk]
	out.Identities = nil
	out.Enrollments = nil
	for _, idn := range m.identities {
		if idn.IndividualMK == mk {
			out.Identities = append(out.Identities, idn)
		}
	}
	sort.Slice(out.Identities, func(i, j int) bool {
		return out.Identities[i].UUID < out.Identities[j].UUID
	})
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

func (m *memBackend) DeleteIndividual(_ context.Context, mk string) error {
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

func (m *memBackend) SetIndividualLock(_ context.Context, mk string, locked bool) error {
	ind, ok := m.individuals[mk]
	if !ok {
		return meld.NotFoundf("individual %q not found", mk)
	}
	ind.IsLocked = locked
	return nil
}

func (m *memBackend) TouchIndividual(_ context.Context, mks ...string) error {
	now := time.Now().UTC()
	for _, mk := range mks {
		if ind, ok := m.individuals[mk]; ok {
			ind.LastModified = now
		}
	}
	return nil
}

func (m *memBackend) ReviewIndividual(_ context.Context, mk string, at time.Time) error {
	ind, ok := m.individuals[mk]
	if !ok {
		return meld.NotFoundf("individual %q not found", mk)
	}
	ind.LastReviewed = &at
	return nil
}

func (m *memBackend) CreateIdentity(_ context.Context, idn *models.Identity) error {
	if existing, ok := m.identities[idn.UUID]; ok {
		return meld.AlreadyExistsf(existing.IndividualMK, "identity %q already exists", idn.UUID)
	}
	clone := *idn
	m.identities[idn.UUID] = &clone
	return nil
}

func (m *memBackend) GetIdentity(_ context.Context, id string) (*models.Identity, error) {
	idn, ok := m.identities[id]
	if !ok {
		return nil, meld.NotFoundf("identity %q not found", id)
	}
	return idn, nil
}

func (m *memBackend) DeleteIdentity(_ context.Context, id string) error {
	if _, ok := m.identities[id]; !ok {
		return meld.NotFoundf("identity %q not found", id)
	}
	delete(m.identities, id)
	return nil
}

func (m *memBackend) MoveIdentity(_ context.Context, id, toMK string) error {
	idn, ok := m.identities[id]
	if !ok {
		return meld.NotFoundf("identity %q not found", id)
	}
	idn.IndividualMK = toMK
	return nil
}

func (m *memBackend) FindIndividualByIdentity(ctx context.Context, id string) (*models.Individual, error) {
	idn, ok := m.identities[id]
	if !ok {
		return nil, meld.NotFoundf("identity %q not found", id)
	}
	return m.GetIndividual(ctx, idn.IndividualMK)
}

func (m *memBackend) GetProfile(_ context.Context, mk string) (*models.Profile, error) {
	p, ok := m.profiles[mk]
	if !ok {
		return nil, meld.NotFoundf("profile for %q not found", mk)
	}
	return p, nil
}

func (m *memBackend) UpdateProfile(_ context.Context, p *models.Profile) error {
	if _, ok := m.profiles[p.IndividualMK]; !ok {
		return meld.NotFoundf("profile for %q not found", p.IndividualMK)
	}
	clone := *p
	m.profiles[p.IndividualMK] = &clone
	return nil
}

func (m *memBackend) GetCountry(_ context.Context, code string) (*models.Country, error) {
	c, ok := m.countries[code]
	if !ok {
		return nil, meld.NotFoundf("country %q not found", code)
	}
	return c, nil
}

func (m *memBackend) CreateGroup(_ context.Context, g *models.Group) error {
	for _, other := range m.groups {
		if other.Type == g.Type && other.Name == g.Name {
			return meld.AlreadyExistsf("", "group %q already exists", g.Name)
		}
	}
	clone := *g
	m.groups[g.ID] = &clone
	return nil
}

func (m *memBackend) GetOrganization(_ context.Context, name string) (*models.Group, error) {
	for _, g := range m.groups {
		if g.Type == models.GroupTypeOrganization && g.Name == name {
			out := *g
			return &out, nil
		}
	}
	return nil, meld.NotFoundf("organization %q not found", name)
}

func (m *memBackend) GetTeam(_ context.Context, name string, orgID *uuid.UUID) (*models.Group, error) {
	for _, g := range m.groups {
		if g.Type != models.GroupTypeTeam || g.Name != name {
			continue
		}
		if (orgID == nil) != (g.ParentOrgID == nil) {
			continue
		}
		if orgID == nil || *orgID == *g.ParentOrgID {
			out := *g
			return &out, nil
		}
	}
	return nil, meld.NotFoundf("team %q not found", name)
}

func (m *memBackend) GetGroupByID(_ context.Context, id uuid.UUID) (*models.Group, error) {
	g, ok := m.groups[id]
	if !ok {
		return nil, meld.NotFoundf("group %q not found", id)
	}
	return g, nil
}

func (m *memBackend) DeleteGroup(_ context.Context, id uuid.UUID) error {
	if _, ok := m.groups[id]; !ok {
		return meld.NotFoundf("group %q not found", id)
	}
	delete(m.groups, id)
	for eid, e := range m.enrollments {
		if e.GroupID == id {
			delete(m.enrollments, eid)
		}
	}
	return nil
}

func (m *memBackend) ReparentTeams(_ context.Context, fromOrg, toOrg uuid.UUID) error {
	for _, g := range m.groups {
		if g.ParentOrgID != nil && *g.ParentOrgID == fromOrg {
			org := toOrg
			g.ParentOrgID = &org
		}
	}
	return nil
}

func (m *memBackend) CreateDomain(_ context.Context, d *models.Domain) error {
	if _, ok := m.domains[d.Domain]; ok {
		return meld.AlreadyExistsf("", "domain %q already exists", d.Domain)
	}
	clone := *d
	m.domains[d.Domain] = &clone
	return nil
}

func (m *memBackend) GetDomain(_ context.Context, domain string) (*models.Domain, error) {
	d, ok := m.domains[domain]
	if !ok {
		return nil, meld.NotFoundf("domain %q not found", domain)
	}
	return d, nil
}

func (m *memBackend) DeleteDomain(_ context.Context, domain string) error {
	delete(m.domains, domain)
	return nil
}

func (m *memBackend) ReparentDomains(_ context.Context, fromOrg, toOrg uuid.UUID) error {
	for _, d := range m.domains {
		if d.OrganizationID == fromOrg {
			d.OrganizationID = toOrg
		}
	}
	return nil
}

func (m *memBackend) FindMatchingDomain(_ context.Context, emailDomain string) (*models.Domain, error) {
	emailDomain = strings.ToLower(emailDomain)
	var best *models.Domain
	for _, d := range m.domains {
		if d.Domain == emailDomain {
			return d, nil
		}
		if d.IsTopDomain && strings.HasSuffix(emailDomain, "."+d.Domain) {
			if best == nil || len(d.Domain) > len(best.Domain) {
				best = d
			}
		}
	}
	if best == nil {
		return nil, meld.NotFoundf("no organization claims domain %q", emailDomain)
	}
	return best, nil
}

func (m *memBackend) CreateAlias(_ context.Context, a *models.Alias) error {
	if _, ok := m.aliases[a.Alias]; ok {
		return meld.AlreadyExistsf("", "alias %q already exists", a.Alias)
	}
	clone := *a
	m.aliases[a.Alias] = &clone
	return nil
}

func (m *memBackend) DeleteAlias(_ context.Context, alias string) error {
	delete(m.aliases, alias)
	return nil
}

func (m *memBackend) ReparentAliases(_ context.Context, fromOrg, toOrg uuid.UUID) error {
	for _, a := range m.aliases {
		if a.OrganizationID == fromOrg {
			a.OrganizationID = toOrg
		}
	}
	return nil
}

func (m *memBackend) CreateEnrollment(_ context.Context, e *models.Enrollment) error {
	clone := *e
	m.enrollments[e.ID] = &clone
	return nil
}

func (m *memBackend) GetEnrollments(_ context.Context, mk string, groupID uuid.UUID) ([]*models.Enrollment, error) {
	var out []*models.Enrollment
	for _, e := range m.enrollments {
		if e.IndividualMK == mk && e.GroupID == groupID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (m *memBackend) GetEnrollmentsInRange(ctx context.Context, mk string, groupID uuid.UUID, from, to time.Time) ([]*models.Enrollment, error) {
	all, _ := m.GetEnrollments(ctx, mk, groupID)
	var out []*models.Enrollment
	for _, e := range all {
		if !e.Start.After(to) && !e.End.Before(from) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memBackend) DeleteEnrollments(_ context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		delete(m.enrollments, id)
	}
	return nil
}

func (m *memBackend) GetEnrollmentsByGroup(_ context.Context, groupID uuid.UUID) ([]*models.Enrollment, error) {
	var out []*models.Enrollment
	for _, e := range m.enrollments {
		if e.GroupID == groupID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memBackend) EnrolledOrganizationNames(_ context.Context, mk string) ([]string, error) {
	seen := make(map[string]bool)
	var names []string
	for _, e := range m.enrollments {
		if e.IndividualMK != mk {
			continue
		}
		g, ok := m.groups[e.GroupID]
		if !ok || g.Type != models.GroupTypeOrganization || seen[g.Name] {
			continue
		}
		seen[g.Name] = true
		names = append(names, g.Name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memBackend) IndividualMKs(_ context.Context, lastModified *time.Time) ([]string, error) {
	var mks []string
	for mk, ind := range m.individuals {
		if lastModified != nil && ind.LastModified.Before(*lastModified) {
			continue
		}
		mks = append(mks, mk)
	}
	sort.Strings(mks)
	return mks, nil
}

func (m *memBackend) GetIdentitiesForMatching(_ context.Context, mks []string, lastModified *time.Time) ([]db.IdentityMatch, error) {
	wanted := make(map[string]bool, len(mks))
	for _, mk := range mks {
		wanted[mk] = true
	}
	var out []db.IdentityMatch
	for _, idn := range m.identities {
		if len(mks) > 0 && !wanted[idn.IndividualMK] {
			continue
		}
		if lastModified != nil {
			ind, ok := m.individuals[idn.IndividualMK]
			if !ok || ind.LastModified.Before(*lastModified) {
				continue
			}
		}
		out = append(out, db.IdentityMatch{
			UUID:         idn.UUID,
			IndividualMK: idn.IndividualMK,
			Source:       idn.Source,
			Name:         idn.Name,
			Email:        idn.Email,
			Username:     idn.Username,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out, nil
}

func (m *memBackend) CreateRecommendation(_ context.Context, r *models.Recommendation) error {
	for _, other := range m.recommendations {
		if other.Kind == r.Kind && other.IndividualMK == r.IndividualMK &&
			other.OrganizationName == r.OrganizationName && other.MatchMK == r.MatchMK {
			r.ID = other.ID
			return nil
		}
	}
	m.nextRecID++
	r.ID = m.nextRecID
	clone := *r
	m.recommendations[r.ID] = &clone
	return nil
}

func (m *memBackend) GetRecommendation(_ context.Context, id int64) (*models.Recommendation, error) {
	r, ok := m.recommendations[id]
	if !ok {
		return nil, meld.NotFoundf("recommendation %d not found", id)
	}
	return r, nil
}

func (m *memBackend) SetRecommendationApplied(_ context.Context, id int64, applied bool) error {
	r, ok := m.recommendations[id]
	if !ok {
		return meld.NotFoundf("recommendation %d not found", id)
	}
	r.Applied = &applied
	return nil
}

func (m *memBackend) DeleteRecommendation(_ context.Context, id int64) error {
	delete(m.recommendations, id)
	return nil
}

func (m *memBackend) DeleteRecommendationsByIndividual(_ context.Context, mk string) error {
	for id, r := range m.recommendations {
		if r.IndividualMK == mk || r.MatchMK == mk {
			delete(m.recommendations, id)
		}
	}
	return nil
}

func (m *memBackend) HasRecommendation(_ context.Context, r *models.Recommendation) (bool, error) {
	for _, other := range m.recommendations {
		if other.Kind == r.Kind && other.IndividualMK == r.IndividualMK &&
			other.OrganizationName == r.OrganizationName && other.MatchMK == r.MatchMK {
			return true, nil
		}
	}
	return false, nil
}

func (m *memBackend) CreateExclusionTerm(_ context.Context, term *models.ExclusionTerm) error {
	if _, ok := m.exclusions[term.Term]; ok {
		return meld.AlreadyExistsf("", "term %q already excluded", term.Term)
	}
	clone := *term
	m.exclusions[term.Term] = &clone
	return nil
}

func (m *memBackend) DeleteExclusionTerm(_ context.Context, term string) error {
	if _, ok := m.exclusions[term]; !ok {
		return meld.NotFoundf("term %q not found", term)
	}
	delete(m.exclusions, term)
	return nil
}

func (m *memBackend) GetExclusionTerms(_ context.Context) ([]*models.ExclusionTerm, error) {
	var out []*models.ExclusionTerm
	for _, t := range m.exclusions {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Term < out[j].Term })
	return out, nil
}
