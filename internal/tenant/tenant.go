// Package tenant implements multi-tenant routing: each logical tenant
// maps to its own database and, optionally, a dedicated job queue.
// Request middleware and the job worker install the current tenant into
// the context; the storage gateway is always reached through DB(ctx).
package tenant

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openmeld/meld/internal/db"
	"github.com/openmeld/meld/internal/meld"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// DefaultQueue is the queue shared by tenants without a dedicated one.
const DefaultQueue = "default"

// Tenant describes one logical tenant.
type Tenant struct {
	Name           string `yaml:"name"`
	Database       string `yaml:"database"`
	DedicatedQueue bool   `yaml:"dedicated_queue"`
}

// UserMapping routes a (user, header) pair to a tenant. An empty user
// matches any user.
type UserMapping struct {
	User   string `yaml:"user"`
	Header string `yaml:"header"`
	Tenant string `yaml:"tenant"`
}

// Config is the tenant topology, loaded from YAML.
type Config struct {
	DefaultTenant string        `yaml:"default_tenant"`
	Tenants       []Tenant      `yaml:"tenants"`
	Users         []UserMapping `yaml:"users"`
}

// LoadConfig reads and validates a tenant topology file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenant config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse tenant config: %w", err)
	}
	if len(cfg.Tenants) == 0 {
		return nil, fmt.Errorf("tenant config %s declares no tenants", path)
	}
	if cfg.DefaultTenant == "" {
		cfg.DefaultTenant = cfg.Tenants[0].Name
	}
	byName := map[string]bool{}
	for _, t := range cfg.Tenants {
		if t.Name == "" || t.Database == "" {
			return nil, fmt.Errorf("tenant config: every tenant needs a name and a database")
		}
		if byName[t.Name] {
			return nil, fmt.Errorf("tenant config: duplicate tenant %q", t.Name)
		}
		byName[t.Name] = true
	}
	if !byName[cfg.DefaultTenant] {
		return nil, fmt.Errorf("tenant config: default tenant %q is not declared", cfg.DefaultTenant)
	}
	return &cfg, nil
}

// Registry holds one open database pool per tenant and answers routing
// questions for requests and jobs.
type Registry struct {
	cfg     *Config
	tenants map[string]Tenant
	dbs     map[string]*db.DB
	logger  zerolog.Logger
}

// NewRegistry opens a connection pool for every declared tenant.
// baseURL is a postgres URL without a database path; the tenant's
// database name is appended.
func NewRegistry(ctx context.Context, cfg *Config, baseURL string, logger zerolog.Logger) (*Registry, error) {
	r := &Registry{
		cfg:     cfg,
		tenants: make(map[string]Tenant, len(cfg.Tenants)),
		dbs:     make(map[string]*db.DB, len(cfg.Tenants)),
		logger:  logger.With().Str("component", "tenant_registry").Logger(),
	}
	for _, t := range cfg.Tenants {
		r.tenants[t.Name] = t
		url := strings.TrimSuffix(baseURL, "/") + "/" + t.Database
		pool, err := db.New(ctx, db.DefaultConfig(url), logger)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("open database for tenant %q: %w", t.Name, err)
		}
		r.dbs[t.Name] = pool
		r.logger.Info().Str("tenant", t.Name).Str("database", t.Database).Msg("tenant database opened")
	}
	return r, nil
}

// Close closes every tenant pool.
func (r *Registry) Close() {
	for _, d := range r.dbs {
		d.Close()
	}
}

// DefaultTenant returns the tenant used when no header is present.
func (r *Registry) DefaultTenant() string { return r.cfg.DefaultTenant }

// Tenants returns the declared tenants.
func (r *Registry) Tenants() []Tenant { return r.cfg.Tenants }

// DBFor returns the storage gateway of a tenant.
func (r *Registry) DBFor(tenant string) (*db.DB, error) {
	d, ok := r.dbs[tenant]
	if !ok {
		return nil, meld.NotFoundf("unknown tenant %q", tenant)
	}
	return d, nil
}

// DB returns the storage gateway for the tenant installed in ctx.
// Touching the gateway without a tenant in scope is a bug.
func (r *Registry) DB(ctx context.Context) (*db.DB, error) {
	mc, ok := meld.CtxFrom(ctx)
	if !ok || mc.Tenant == "" {
		return nil, meld.JobErrorf("no tenant in scope")
	}
	return r.DBFor(mc.Tenant)
}

// QueueFor returns the queue name routing jobs of a tenant: the
// tenant's own queue when dedicated, the default queue otherwise.
func (r *Registry) QueueFor(tenant string) (string, error) {
	t, ok := r.tenants[tenant]
	if !ok {
		return "", meld.JobErrorf("unknown tenant %q", tenant)
	}
	if t.DedicatedQueue {
		return t.Name, nil
	}
	return DefaultQueue, nil
}

// QueueNames returns the distinct queue names of all tenants, the
// default queue first.
func (r *Registry) QueueNames() []string {
	names := []string{DefaultQueue}
	for _, t := range r.cfg.Tenants {
		if t.DedicatedQueue {
			names = append(names, t.Name)
		}
	}
	return names
}

// Resolve maps a request (user, header) pair to a tenant name. An empty
// header selects the default tenant; an unrecognized header is
// rejected, never silently collapsed to the default.
func (r *Registry) Resolve(user, header string) (string, error) {
	if header == "" {
		return r.cfg.DefaultTenant, nil
	}
	for _, m := range r.cfg.Users {
		if m.Header != header {
			continue
		}
		if m.User == "" || m.User == user {
			if _, ok := r.tenants[m.Tenant]; !ok {
				return "", meld.NotFoundf("unknown tenant %q", m.Tenant)
			}
			return m.Tenant, nil
		}
	}
	if _, ok := r.tenants[header]; ok {
		return header, nil
	}
	return "", meld.NotFoundf("unknown tenant %q", header)
}
