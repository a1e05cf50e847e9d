package config

import (
	"testing"
)

func TestLoad_MissingSecretKey(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("STRIPE_SYNC_ADMIN_API_KEY", "test-admin-key")

	if _, err := Load(); err == nil {
		t.Fatal("expected ConfigError when STRIPE_SECRET_KEY is unset")
	}
}

func TestLoad_MissingAdminKeyInAPIMode(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_SYNC_ADMIN_API_KEY", "")
	t.Setenv("STRIPE_SYNC_MODE", "api")

	if _, err := Load(); err == nil {
		t.Fatal("expected ConfigError when admin API key is unset in api mode")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_SYNC_ADMIN_API_KEY", "test-admin-key")

	tests := []struct {
		name  string
		check func(*Config) bool
	}{
		{name: "default mode is api", check: func(c *Config) bool { return c.Mode == "api" }},
		{name: "default host is 0.0.0.0", check: func(c *Config) bool { return c.Host == "0.0.0.0" }},
		{name: "default port is 8080", check: func(c *Config) bool { return c.Port == 8080 }},
		{name: "default schema is stripe", check: func(c *Config) bool { return c.Schema == "stripe" }},
		{name: "default pool max is 10", check: func(c *Config) bool { return c.PoolMax == 10 }},
		{name: "default max concurrent is 4", check: func(c *Config) bool { return c.MaxConcurrent == 4 }},
		{name: "default page size is 100", check: func(c *Config) bool { return c.PageSize == 100 }},
		{name: "auto expand lists defaults false", check: func(c *Config) bool { return !c.AutoExpandLists }},
		{name: "backfill related defaults true", check: func(c *Config) bool { return c.BackfillRelatedEntities }},
		{name: "listen addr format", check: func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" }},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("%s: check failed", tt.name)
			}
		})
	}
}

func TestLoad_WorkerModeDoesNotRequireAdminKey(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_SYNC_ADMIN_API_KEY", "")
	t.Setenv("STRIPE_SYNC_MODE", "worker")

	if _, err := Load(); err != nil {
		t.Fatalf("Load() error in worker mode: %v", err)
	}
}
