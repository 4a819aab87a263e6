package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
	"github.com/openmeld/meld/internal/registry"
	"github.com/rs/zerolog"
)

type fakeLoader struct {
	// identity key -> owner mk, to simulate duplicates.
	known map[string]string

	identities  []string
	profiles    map[string]registry.ProfileUpdate
	orgs        []string
	domains     []string
	enrollments []string
	nextMK      int
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		known:    make(map[string]string),
		profiles: make(map[string]registry.ProfileUpdate),
	}
}

func (f *fakeLoader) AddIdentity(_ context.Context, source, name, email, username, parent string) (*models.Identity, error) {
	key := source + "|" + name + "|" + email + "|" + username
	if mk, ok := f.known[key]; ok {
		return nil, meld.AlreadyExistsf(mk, "identity already exists")
	}
	mk := parent
	if mk == "" {
		f.nextMK++
		mk = fmt.Sprintf("mk%d", f.nextMK)
	}
	f.known[key] = mk
	f.identities = append(f.identities, key)
	return &models.Identity{UUID: key, IndividualMK: mk, Source: source}, nil
}

func (f *fakeLoader) UpdateProfile(_ context.Context, uuid string, update registry.ProfileUpdate) (*models.Individual, error) {
	f.profiles[uuid] = update
	return &models.Individual{MK: uuid}, nil
}

func (f *fakeLoader) AddOrganization(_ context.Context, name string) (*models.Group, error) {
	for _, o := range f.orgs {
		if o == name {
			return nil, meld.AlreadyExistsf("", "organization %q already exists", name)
		}
	}
	f.orgs = append(f.orgs, name)
	return &models.Group{Name: name}, nil
}

func (f *fakeLoader) AddDomain(_ context.Context, orgName, domain string, isTop bool) (*models.Domain, error) {
	f.domains = append(f.domains, orgName+"|"+domain)
	return &models.Domain{Domain: domain}, nil
}

func (f *fakeLoader) Enroll(_ context.Context, uuid, group, parentOrg string, from, to time.Time, force bool) (*models.Individual, error) {
	f.enrollments = append(f.enrollments, uuid+"|"+group)
	return &models.Individual{MK: uuid}, nil
}

func writeDoc(t *testing.T, doc Document) string {
	t.Helper()
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal document: %v", err)
	}
	path := filepath.Join(t.TempDir(), "export.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write document: %v", err)
	}
	return path
}

func testImporter(loader *fakeLoader) *Importer {
	im := New(loader, loader, zerolog.Nop())
	im.RegisterBackend("file", FileBackend{})
	return im
}

func strPtr(s string) *string { return &s }

func TestImportLoadsDocument(t *testing.T) {
	doc := Document{}
	doc.Organizations = []OrganizationRecord{{Name: "Example"}}
	doc.Organizations[0].Domains = []struct {
		Domain      string `json:"domain"`
		IsTopDomain bool   `json:"is_top_domain"`
	}{{Domain: "example.com", IsTopDomain: true}}

	var ind IndividualRecord
	ind.Profile.Name = strPtr("Jane Roe")
	ind.Profile.CountryCode = strPtr("US")
	ind.Identities = []struct {
		Source   string `json:"source"`
		Name     string `json:"name,omitempty"`
		Email    string `json:"email,omitempty"`
		Username string `json:"username,omitempty"`
	}{
		{Source: "git", Name: "Jane Roe", Email: "jroe@example.com"},
		{Source: "github", Username: "jroe"},
	}
	start := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	ind.Enrollments = []struct {
		Organization string     `json:"organization"`
		Start        *time.Time `json:"start,omitempty"`
		End          *time.Time `json:"end,omitempty"`
	}{{Organization: "Example", Start: &start}}
	doc.Individuals = []IndividualRecord{ind}

	loader := newFakeLoader()
	result, err := testImporter(loader).Import(context.Background(), writeDoc(t, doc), "", nil)
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	if result.Organizations != 1 || result.Individuals != 1 || result.Identities != 2 || result.Enrollments != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if len(loader.domains) != 1 || loader.domains[0] != "Example|example.com" {
		t.Fatalf("domain not loaded: %v", loader.domains)
	}
	update, ok := loader.profiles["mk1"]
	if !ok || update.Name == nil || *update.Name != "Jane Roe" {
		t.Fatalf("profile not applied: %+v", update)
	}
	if len(loader.enrollments) != 1 || loader.enrollments[0] != "mk1|Example" {
		t.Fatalf("enrollment not loaded: %v", loader.enrollments)
	}
}

func TestImportAttachesToExistingIndividual(t *testing.T) {
	loader := newFakeLoader()
	loader.known["git|Jane Roe|jroe@example.com|"] = "mk42"

	var ind IndividualRecord
	ind.Identities = []struct {
		Source   string `json:"source"`
		Name     string `json:"name,omitempty"`
		Email    string `json:"email,omitempty"`
		Username string `json:"username,omitempty"`
	}{
		{Source: "git", Name: "Jane Roe", Email: "jroe@example.com"},
		{Source: "slack", Username: "jane"},
	}
	doc := Document{Individuals: []IndividualRecord{ind}}

	result, err := testImporter(loader).Import(context.Background(), writeDoc(t, doc), "", nil)
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	// The duplicate resolves the owner and the new identity lands there.
	if result.Identities != 1 {
		t.Fatalf("expected 1 new identity, got %d", result.Identities)
	}
	if mk := loader.known["slack|||jane"]; mk != "mk42" {
		t.Fatalf("identity attached to %q, want mk42", mk)
	}
}

func TestImportCollectsRecordErrors(t *testing.T) {
	doc := Document{Individuals: []IndividualRecord{{}}}

	loader := newFakeLoader()
	result, err := testImporter(loader).Import(context.Background(), writeDoc(t, doc), "", nil)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 record error, got %v", result.Errors)
	}
	if result.Individuals != 0 {
		t.Fatalf("expected no individuals loaded, got %d", result.Individuals)
	}
}

func TestImportUnknownBackend(t *testing.T) {
	loader := newFakeLoader()
	_, err := testImporter(loader).Import(context.Background(), "ftp://example.com/export.json", "", nil)
	if !meld.IsInvalidValue(err) {
		t.Fatalf("expected invalid value error, got %v", err)
	}
}

func TestFileBackendRejectsMissingFile(t *testing.T) {
	_, err := FileBackend{}.Open(context.Background(), filepath.Join(t.TempDir(), "missing.json"), nil)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
