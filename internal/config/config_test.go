package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheTTL != 30*time.Minute {
		t.Errorf("CacheTTL = %s", cfg.CacheTTL)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Marketplace.PageSize != 6 || again.Ticketing.MaxPages != 6 {
		t.Errorf("defaults did not round trip: %+v", again.Marketplace)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
listen: 0.0.0.0:9090
cache_ttl: 5m
ticketing:
  enabled: false
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "0.0.0.0:9090" || cfg.CacheTTL != 5*time.Minute {
		t.Errorf("overrides not applied: %s %s", cfg.Listen, cfg.CacheTTL)
	}
	if cfg.Ticketing.Enabled {
		t.Error("ticketing should be disabled")
	}
	if !cfg.Marketplace.Enabled || cfg.Marketplace.MaxPages != 3 {
		t.Errorf("marketplace defaults lost: %+v", cfg.Marketplace)
	}
	if cfg.Extract.MarkdownBudget != 12000 {
		t.Errorf("MarkdownBudget = %d", cfg.Extract.MarkdownBudget)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApplyEnvAlternateNames(t *testing.T) {
	env := map[string]string{
		"FIRECRAWL_TOKEN":    "fc-token",
		"OPENROUTER_KEY":     " or-key ",
		"LOG_LEVEL":          "DEBUG",
		"EVENTCAL_LISTEN":    ":7000",
		"FIRECRAWL_API_KEY":  "",
		"EVENTCAL_UNRELATED": "x",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	cfg.ApplyEnv(lookup)

	if cfg.Extract.ScrapeKey != "fc-token" {
		t.Errorf("ScrapeKey = %q", cfg.Extract.ScrapeKey)
	}
	if cfg.Extract.CompletionKey != "or-key" {
		t.Errorf("CompletionKey = %q", cfg.Extract.CompletionKey)
	}
	if !cfg.Extract.Enabled() {
		t.Error("extract should be enabled with both keys")
	}
	if cfg.Listen != ":7000" || cfg.Log.Level != "debug" {
		t.Errorf("overlay = %s %s", cfg.Listen, cfg.Log.Level)
	}
}

func TestApplyEnvWarningLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyEnv(func(k string) (string, bool) {
		if k == "LOG_LEVEL" {
			return "WARNING", true
		}
		return "", false
	})
	if cfg.Log.Level != "warn" {
		t.Fatalf("level = %q, want warn", cfg.Log.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestExtractDisabledWithOneKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyEnv(func(k string) (string, bool) {
		if k == "FIRECRAWL_API_KEY" {
			return "only-one", true
		}
		return "", false
	})
	if cfg.Extract.Enabled() {
		t.Fatal("extract must stay disabled without a completion key")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Listen = "not a listen address"
	cfg.Marketplace.BaseURL = "::::"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "Listen") {
		t.Errorf("error should name Listen: %v", err)
	}
}

func TestSaveDoesNotPersistSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Extract.ScrapeKey = "secret-scrape"
	cfg.Extract.CompletionKey = "secret-completion"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret") {
		t.Fatalf("secrets leaked into %s:\n%s", path, data)
	}
}
