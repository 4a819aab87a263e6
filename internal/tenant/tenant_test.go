package tenant

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/openmeld/meld/internal/meld"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tenants.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
default_tenant: default
tenants:
  - name: default
    database: meld_default
  - name: acme
    database: meld_acme
    dedicated_queue: true
users:
  - user: jsmith
    header: acme-corp
    tenant: acme
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DefaultTenant != "default" {
		t.Errorf("default tenant = %q", cfg.DefaultTenant)
	}
	if len(cfg.Tenants) != 2 || !cfg.Tenants[1].DedicatedQueue {
		t.Errorf("tenants misparsed: %+v", cfg.Tenants)
	}
}

func TestLoadConfigRejectsUnknownDefault(t *testing.T) {
	path := writeConfig(t, `
default_tenant: missing
tenants:
  - name: default
    database: meld_default
`)
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for undeclared default tenant")
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	cfg := &Config{
		DefaultTenant: "default",
		Tenants: []Tenant{
			{Name: "default", Database: "meld_default"},
			{Name: "acme", Database: "meld_acme", DedicatedQueue: true},
		},
		Users: []UserMapping{
			{User: "jsmith", Header: "acme-corp", Tenant: "acme"},
		},
	}
	r := &Registry{cfg: cfg, tenants: map[string]Tenant{}}
	for _, tn := range cfg.Tenants {
		r.tenants[tn.Name] = tn
	}
	return r
}

func TestResolve(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		name         string
		user, header string
		want         string
		wantErr      bool
	}{
		{"empty header selects default", "anyone", "", "default", false},
		{"mapped user and header", "jsmith", "acme-corp", "acme", false},
		{"mapping is per user", "other", "acme-corp", "", true},
		{"header naming a tenant directly", "anyone", "acme", "acme", false},
		{"unknown header rejected", "anyone", "nope", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Resolve(tc.user, tc.header)
			if tc.wantErr {
				if !meld.IsNotFound(err) {
					t.Fatalf("expected not found, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("resolved %q, want %q", got, tc.want)
			}
		})
	}
}

func TestQueueFor(t *testing.T) {
	r := newTestRegistry(t)

	if q, err := r.QueueFor("default"); err != nil || q != DefaultQueue {
		t.Errorf("QueueFor(default) = %q, %v", q, err)
	}
	if q, err := r.QueueFor("acme"); err != nil || q != "acme" {
		t.Errorf("QueueFor(acme) = %q, %v", q, err)
	}
	if _, err := r.QueueFor("ghost"); !meld.IsKind(err, meld.KindJobError) {
		t.Errorf("expected job error for unknown tenant, got %v", err)
	}
}

func TestQueueNames(t *testing.T) {
	r := newTestRegistry(t)
	names := r.QueueNames()
	if len(names) != 2 || names[0] != DefaultQueue || names[1] != "acme" {
		t.Errorf("queue names = %v", names)
	}
}
