// Package importer loads identity data from external locations into
// the registry. Documents are JSON exports holding organizations with
// their domains and individuals with their identities, profile and
// enrollments; backends abstract where the document is fetched from.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
	"github.com/openmeld/meld/internal/registry"
	"github.com/rs/zerolog"
)

// Backend fetches an import document from a location.
type Backend interface {
	Open(ctx context.Context, url string, params map[string]any) (io.ReadCloser, error)
}

// IdentityLoader is the slice of the registry service the importer
// writes identities through.
type IdentityLoader interface {
	AddIdentity(ctx context.Context, source, name, email, username, parentUUID string) (*models.Identity, error)
	UpdateProfile(ctx context.Context, uuid string, update registry.ProfileUpdate) (*models.Individual, error)
}

// OrgLoader is the slice of the orgs service the importer writes
// organizations and enrollments through.
type OrgLoader interface {
	AddOrganization(ctx context.Context, name string) (*models.Group, error)
	AddDomain(ctx context.Context, orgName, domain string, isTopDomain bool) (*models.Domain, error)
	Enroll(ctx context.Context, uuid, groupName, parentOrg string, from, to time.Time, force bool) (*models.Individual, error)
}

// Document is the import file layout.
type Document struct {
	Organizations []OrganizationRecord `json:"organizations"`
	Individuals   []IndividualRecord   `json:"individuals"`
}

// OrganizationRecord is one organization with its email domains.
type OrganizationRecord struct {
	Name    string `json:"name"`
	Domains []struct {
		Domain      string `json:"domain"`
		IsTopDomain bool   `json:"is_top_domain"`
	} `json:"domains,omitempty"`
}

// IndividualRecord is one individual with its identities, profile and
// enrollments.
type IndividualRecord struct {
	Profile struct {
		Name        *string `json:"name,omitempty"`
		Email       *string `json:"email,omitempty"`
		Gender      *string `json:"gender,omitempty"`
		IsBot       *bool   `json:"is_bot,omitempty"`
		CountryCode *string `json:"country_code,omitempty"`
	} `json:"profile"`
	Identities []struct {
		Source   string `json:"source"`
		Name     string `json:"name,omitempty"`
		Email    string `json:"email,omitempty"`
		Username string `json:"username,omitempty"`
	} `json:"identities"`
	Enrollments []struct {
		Organization string     `json:"organization"`
		Start        *time.Time `json:"start,omitempty"`
		End          *time.Time `json:"end,omitempty"`
	} `json:"enrollments,omitempty"`
}

// Result summarizes one import run.
type Result struct {
	Organizations int      `json:"organizations"`
	Individuals   int      `json:"individuals"`
	Identities    int      `json:"identities"`
	Enrollments   int      `json:"enrollments"`
	Errors        []string `json:"errors,omitempty"`
}

// Importer loads import documents through the registry verbs, so
// every change is audited and validated like any other mutation.
type Importer struct {
	identities IdentityLoader
	orgs       OrgLoader
	backends   map[string]Backend
	logger     zerolog.Logger
}

// New creates an importer writing through the given loaders.
func New(identities IdentityLoader, orgs OrgLoader, logger zerolog.Logger) *Importer {
	return &Importer{
		identities: identities,
		orgs:       orgs,
		backends:   make(map[string]Backend),
		logger:     logger.With().Str("component", "importer").Logger(),
	}
}

// RegisterBackend makes a backend available under a name, matching the
// URL scheme it serves.
func (im *Importer) RegisterBackend(name string, backend Backend) {
	im.backends[name] = backend
}

// backendFor picks the backend for a location. An explicit name wins;
// otherwise the URL scheme decides, defaulting to file.
func (im *Importer) backendFor(url, name string) (Backend, error) {
	if name == "" {
		name = "file"
		if i := strings.Index(url, "://"); i > 0 {
			name = url[:i]
		}
	}
	backend, ok := im.backends[name]
	if !ok {
		return nil, meld.InvalidValuef("unknown import backend %q", name)
	}
	return backend, nil
}

// Import fetches and loads a document. Per-record problems are
// collected in the result; only fetch or decode failures abort the
// run.
func (im *Importer) Import(ctx context.Context, url, backendName string, params map[string]any) (*Result, error) {
	backend, err := im.backendFor(url, backendName)
	if err != nil {
		return nil, err
	}
	body, err := backend.Open(ctx, url, params)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", url, err)
	}
	defer body.Close()

	var doc Document
	if err := json.NewDecoder(body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode %q: %w", url, err)
	}

	result := &Result{}
	im.loadOrganizations(ctx, &doc, result)
	im.loadIndividuals(ctx, &doc, result)

	im.logger.Info().
		Str("url", url).
		Int("organizations", result.Organizations).
		Int("individuals", result.Individuals).
		Int("errors", len(result.Errors)).
		Msg("import finished")
	return result, nil
}

func (im *Importer) loadOrganizations(ctx context.Context, doc *Document, result *Result) {
	for _, org := range doc.Organizations {
		if _, err := im.orgs.AddOrganization(ctx, org.Name); err != nil {
			if !meld.IsAlreadyExists(err) {
				result.Errors = append(result.Errors, fmt.Sprintf("organization %q: %v", org.Name, err))
				continue
			}
		} else {
			result.Organizations++
		}
		for _, d := range org.Domains {
			if _, err := im.orgs.AddDomain(ctx, org.Name, d.Domain, d.IsTopDomain); err != nil && !meld.IsAlreadyExists(err) {
				result.Errors = append(result.Errors, fmt.Sprintf("domain %q: %v", d.Domain, err))
			}
		}
	}
}

func (im *Importer) loadIndividuals(ctx context.Context, doc *Document, result *Result) {
	for i, ind := range doc.Individuals {
		if len(ind.Identities) == 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("individual %d has no identities", i))
			continue
		}

		parent := ""
		loaded := 0
		for _, idn := range ind.Identities {
			created, err := im.identities.AddIdentity(ctx, idn.Source, idn.Name, idn.Email, idn.Username, parent)
			if err != nil {
				var merr *meld.Error
				if errors.As(err, &merr) && merr.Kind == meld.KindAlreadyExists && merr.EntityMK != "" {
					// Already known; keep attaching to its owner.
					if parent == "" {
						parent = merr.EntityMK
					}
					continue
				}
				result.Errors = append(result.Errors, fmt.Sprintf("individual %d: %v", i, err))
				continue
			}
			loaded++
			if parent == "" {
				parent = created.IndividualMK
			}
		}
		if parent == "" {
			continue
		}
		if loaded > 0 {
			result.Individuals++
			result.Identities += loaded
		}

		if err := im.loadProfile(ctx, parent, ind); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("individual %d: %v", i, err))
		}

		for _, e := range ind.Enrollments {
			var start, end time.Time
			if e.Start != nil {
				start = *e.Start
			}
			if e.End != nil {
				end = *e.End
			}
			if _, err := im.orgs.Enroll(ctx, parent, e.Organization, "", start, end, false); err != nil {
				if meld.IsKind(err, meld.KindDuplicateRange) {
					continue
				}
				result.Errors = append(result.Errors, fmt.Sprintf("individual %d: %v", i, err))
				continue
			}
			result.Enrollments++
		}
	}
}

func (im *Importer) loadProfile(ctx context.Context, uuid string, ind IndividualRecord) error {
	update := registry.ProfileUpdate{
		Name:        ind.Profile.Name,
		Email:       ind.Profile.Email,
		Gender:      ind.Profile.Gender,
		IsBot:       ind.Profile.IsBot,
		CountryCode: ind.Profile.CountryCode,
	}
	if update == (registry.ProfileUpdate{}) {
		return nil
	}
	_, err := im.identities.UpdateProfile(ctx, uuid, update)
	return err
}
