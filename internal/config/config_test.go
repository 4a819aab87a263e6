package config

import "testing"

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg := LoadServerConfig()
	if cfg.Environment != EnvDevelopment {
		t.Errorf("default environment = %q, want development", cfg.Environment)
	}
	if cfg.ListenAddr != ":8000" {
		t.Errorf("default listen addr = %q", cfg.ListenAddr)
	}
	if cfg.PageSize != 25 {
		t.Errorf("default page size = %d", cfg.PageSize)
	}
}

func TestLoadServerConfigOverrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("MELD_PAGE_SIZE", "50")
	t.Setenv("MELD_RATE_LIMIT", "100-M")

	cfg := LoadServerConfig()
	if cfg.Environment != EnvProduction {
		t.Errorf("environment = %q, want production", cfg.Environment)
	}
	if cfg.PageSize != 50 {
		t.Errorf("page size = %d, want 50", cfg.PageSize)
	}
	if cfg.RateLimit != "100-M" {
		t.Errorf("rate limit = %q", cfg.RateLimit)
	}
}

func TestLoadServerConfigRejectsBadValues(t *testing.T) {
	t.Setenv("ENV", "sandbox")
	t.Setenv("MELD_PAGE_SIZE", "-3")

	cfg := LoadServerConfig()
	if cfg.Environment != EnvDevelopment {
		t.Errorf("invalid environment must fall back, got %q", cfg.Environment)
	}
	if cfg.PageSize != 25 {
		t.Errorf("invalid page size must fall back, got %d", cfg.PageSize)
	}
}

func TestLoadWorkerConfigQueues(t *testing.T) {
	t.Setenv("MELD_WORKER_QUEUES", "default, acme ,")

	cfg := LoadWorkerConfig()
	if len(cfg.Queues) != 2 || cfg.Queues[0] != "default" || cfg.Queues[1] != "acme" {
		t.Errorf("queues = %v", cfg.Queues)
	}
}

func TestLoadWorkerConfigJobDuration(t *testing.T) {
	cfg := LoadWorkerConfig()
	if cfg.MaxJobDurationMins != 0 {
		t.Errorf("jobs must be unbounded by default, got %d", cfg.MaxJobDurationMins)
	}

	t.Setenv("MELD_MAX_JOB_DURATION_MINS", "0")
	if cfg = LoadWorkerConfig(); cfg.MaxJobDurationMins != 0 {
		t.Errorf("explicit zero must stay zero, got %d", cfg.MaxJobDurationMins)
	}

	t.Setenv("MELD_MAX_JOB_DURATION_MINS", "90")
	if cfg = LoadWorkerConfig(); cfg.MaxJobDurationMins != 90 {
		t.Errorf("duration = %d, want 90", cfg.MaxJobDurationMins)
	}
}
