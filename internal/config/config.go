package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions. Secrets never live in the YAML file; they are overlaid from
// the environment by ApplyEnv.

// MarketplaceConfig configures the cursor-paginated marketplace API.
type MarketplaceConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// BaseURL is the query endpoint receiving the ?input= JSON document.
	BaseURL string `yaml:"base_url" json:"base_url" validate:"required,url"`
	// EventBaseURL is joined with each event's path segment.
	EventBaseURL string `yaml:"event_base_url" json:"event_base_url" validate:"omitempty,url"`

	City      string  `yaml:"city" json:"city"`
	Latitude  float64 `yaml:"latitude" json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `yaml:"longitude" json:"longitude" validate:"gte=-180,lte=180"`
	Sort      string  `yaml:"sort" json:"sort"`
	When      string  `yaml:"when" json:"when"`

	PageSize int `yaml:"page_size" json:"page_size" validate:"gte=1,lte=100"`
	// MaxPages is a safety bound; pagination normally ends when the server
	// stops returning a cursor.
	MaxPages     int           `yaml:"max_pages" json:"max_pages" validate:"gte=1"`
	PageInterval time.Duration `yaml:"page_interval" json:"page_interval"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
}

// TicketingConfig configures the browser-assisted ticket marketplace.
type TicketingConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// ListingURL is opened in the headless browser to obtain cookies.
	ListingURL string `yaml:"listing_url" json:"listing_url" validate:"required,url"`
	// APIURL is the JSON listing endpoint; the page index is added as ?page=N.
	APIURL string `yaml:"api_url" json:"api_url" validate:"required,url"`

	MaxPages     int           `yaml:"max_pages" json:"max_pages" validate:"gte=1"`
	PageInterval time.Duration `yaml:"page_interval" json:"page_interval"`
	// RenderWait is the fixed delay after navigation before cookies are read.
	RenderWait time.Duration `yaml:"render_wait" json:"render_wait"`
	// BrowserTimeout bounds the whole browser session.
	BrowserTimeout time.Duration `yaml:"browser_timeout" json:"browser_timeout"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	// ExecPath optionally points at a Chromium binary.
	ExecPath string `yaml:"exec_path,omitempty" json:"exec_path,omitempty"`
}

// ExtractConfig configures the markdown scrape + LLM extraction source.
type ExtractConfig struct {
	// Pages are scraped to markdown and handed to the model together.
	Pages []string `yaml:"pages" json:"pages" validate:"dive,url"`

	ScrapeURL     string        `yaml:"scrape_url" json:"scrape_url" validate:"omitempty,url"`
	ScrapeWaitFor time.Duration `yaml:"scrape_wait_for" json:"scrape_wait_for"`
	ScrapeTimeout time.Duration `yaml:"scrape_timeout" json:"scrape_timeout"`

	CompletionURL string        `yaml:"completion_url" json:"completion_url" validate:"omitempty,url"`
	Model         string        `yaml:"model" json:"model"`
	MaxTokens     int           `yaml:"max_tokens" json:"max_tokens" validate:"gte=1"`
	Referer       string        `yaml:"referer" json:"referer"`
	AppTitle      string        `yaml:"app_title" json:"app_title"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`

	// MarkdownBudget and LinksBudget cap the prompt size in characters.
	MarkdownBudget int `yaml:"markdown_budget" json:"markdown_budget" validate:"gte=1"`
	LinksBudget    int `yaml:"links_budget" json:"links_budget" validate:"gte=0"`

	// Keys are populated from the environment only.
	ScrapeKey     string `yaml:"-" json:"-"`
	CompletionKey string `yaml:"-" json:"-"`
}

// Enabled reports whether both service keys are present.
func (e ExtractConfig) Enabled() bool {
	return e.ScrapeKey != "" && e.CompletionKey != ""
}

// ExportConfig configures the static events.json writer.
type ExportConfig struct {
	Paths []string `yaml:"paths" json:"paths"`
	// Schedule is an optional cron expression for repeated exports.
	Schedule string `yaml:"schedule,omitempty" json:"schedule,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for /metrics.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// RateLimitConfig limits /api requests per client IP.
type RateLimitConfig struct {
	Requests int           `yaml:"requests" json:"requests" validate:"gte=0"`
	Window   time.Duration `yaml:"window" json:"window"`
}

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level  string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"omitempty,oneof=json console"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen" validate:"required,hostname_port"`

	// CacheTTL is how long an aggregation result is served before the
	// sources are queried again.
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`

	// StaticFile, when set and readable, is served by /api/events instead of
	// running the live pipeline.
	StaticFile string `yaml:"static_file,omitempty" json:"static_file,omitempty"`

	// AllowedOrigins feeds the CORS middleware.
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`

	RateLimit   RateLimitConfig   `yaml:"rate_limit" json:"rate_limit"`
	Log         LogConfig         `yaml:"log" json:"log"`
	Marketplace MarketplaceConfig `yaml:"marketplace" json:"marketplace"`
	Ticketing   TicketingConfig   `yaml:"ticketing" json:"ticketing"`
	Extract     ExtractConfig     `yaml:"extract" json:"extract"`
	Export      ExportConfig      `yaml:"export" json:"export"`

	// MetricsAuth, if non-nil, enables HTTP Basic Authentication on /metrics.
	MetricsAuth *BasicAuthConfig `yaml:"metrics_auth,omitempty" json:"metrics_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         "127.0.0.1:8080",
		CacheTTL:       30 * time.Minute,
		AllowedOrigins: []string{"*"},
		RateLimit:      RateLimitConfig{Requests: 120, Window: time.Minute},
		Log:            LogConfig{Level: "info", Format: "json"},
		Marketplace: MarketplaceConfig{
			Enabled:      true,
			BaseURL:      "https://posh.vip/api/web/v2/trpc/events.fetchMarketplaceEvents",
			EventBaseURL: "https://posh.vip/e",
			City:         "Tampa, FL, USA",
			Latitude:     27.9516896,
			Longitude:    -82.45875269999999,
			Sort:         "Trending",
			When:         "This Month",
			PageSize:     6,
			MaxPages:     3,
			PageInterval: 250 * time.Millisecond,
			Timeout:      15 * time.Second,
		},
		Ticketing: TicketingConfig{
			Enabled:        true,
			ListingURL:     "https://www.ticketmaster.com/discover/concerts/tampa",
			APIURL:         "https://www.ticketmaster.com/api/search/events/category",
			MaxPages:       6,
			PageInterval:   500 * time.Millisecond,
			RenderWait:     3 * time.Second,
			BrowserTimeout: 45 * time.Second,
			Timeout:        15 * time.Second,
		},
		Extract: ExtractConfig{
			Pages: []string{
				"https://shotgun.live/en/cities/tampa",
				"https://dice.fm/browse/Tampa:27.947974:-82.457098",
			},
			ScrapeURL:      "https://api.firecrawl.dev",
			ScrapeWaitFor:  1500 * time.Millisecond,
			ScrapeTimeout:  30 * time.Second,
			CompletionURL:  "https://openrouter.ai/api/v1",
			Model:          "x-ai/grok-4-fast:free",
			MaxTokens:      2000,
			Referer:        "https://calendar-app.local",
			AppTitle:       "Calendar-App Event Extractor",
			Timeout:        60 * time.Second,
			MarkdownBudget: 12000,
			LinksBudget:    15000,
		},
		Export: ExportConfig{
			Paths: []string{"data/events.json", "public/data/events.json"},
		},
		MetricsAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()

	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.AllowedOrigins == nil {
		c.AllowedOrigins = d.AllowedOrigins
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = d.RateLimit.Window
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}

	m := &c.Marketplace
	if m.BaseURL == "" {
		m.BaseURL = d.Marketplace.BaseURL
	}
	if m.EventBaseURL == "" {
		m.EventBaseURL = d.Marketplace.EventBaseURL
	}
	if m.City == "" {
		m.City = d.Marketplace.City
	}
	if m.Latitude == 0 && m.Longitude == 0 {
		m.Latitude, m.Longitude = d.Marketplace.Latitude, d.Marketplace.Longitude
	}
	if m.Sort == "" {
		m.Sort = d.Marketplace.Sort
	}
	if m.When == "" {
		m.When = d.Marketplace.When
	}
	if m.PageSize <= 0 {
		m.PageSize = d.Marketplace.PageSize
	}
	if m.MaxPages <= 0 {
		m.MaxPages = d.Marketplace.MaxPages
	}
	if m.Timeout <= 0 {
		m.Timeout = d.Marketplace.Timeout
	}

	t := &c.Ticketing
	if t.ListingURL == "" {
		t.ListingURL = d.Ticketing.ListingURL
	}
	if t.APIURL == "" {
		t.APIURL = d.Ticketing.APIURL
	}
	if t.MaxPages <= 0 {
		t.MaxPages = d.Ticketing.MaxPages
	}
	if t.RenderWait <= 0 {
		t.RenderWait = d.Ticketing.RenderWait
	}
	if t.BrowserTimeout <= 0 {
		t.BrowserTimeout = d.Ticketing.BrowserTimeout
	}
	if t.Timeout <= 0 {
		t.Timeout = d.Ticketing.Timeout
	}

	e := &c.Extract
	if e.Pages == nil {
		e.Pages = d.Extract.Pages
	}
	if e.ScrapeURL == "" {
		e.ScrapeURL = d.Extract.ScrapeURL
	}
	if e.ScrapeWaitFor <= 0 {
		e.ScrapeWaitFor = d.Extract.ScrapeWaitFor
	}
	if e.ScrapeTimeout <= 0 {
		e.ScrapeTimeout = d.Extract.ScrapeTimeout
	}
	if e.CompletionURL == "" {
		e.CompletionURL = d.Extract.CompletionURL
	}
	if e.Model == "" {
		e.Model = d.Extract.Model
	}
	if e.MaxTokens <= 0 {
		e.MaxTokens = d.Extract.MaxTokens
	}
	if e.Referer == "" {
		e.Referer = d.Extract.Referer
	}
	if e.AppTitle == "" {
		e.AppTitle = d.Extract.AppTitle
	}
	if e.Timeout <= 0 {
		e.Timeout = d.Extract.Timeout
	}
	if e.MarkdownBudget <= 0 {
		e.MarkdownBudget = d.Extract.MarkdownBudget
	}
	if e.LinksBudget <= 0 {
		e.LinksBudget = d.Extract.LinksBudget
	}

	if len(c.Export.Paths) == 0 {
		c.Export.Paths = d.Export.Paths
	}
}

// Env names checked for the service keys, in priority order.
var (
	ScrapeKeyEnv     = []string{"FIRECRAWL_API_KEY", "FIRECRAWL_KEY", "FIRECRAWL_TOKEN"}
	CompletionKeyEnv = []string{"OPENROUTER_API_KEY", "OPENROUTER_KEY"}
)

// ApplyEnv overlays environment values onto c. lookup is os.LookupEnv in
// production and a map in tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	c.Extract.ScrapeKey = firstEnv(lookup, ScrapeKeyEnv...)
	c.Extract.CompletionKey = firstEnv(lookup, CompletionKeyEnv...)

	if v := firstEnv(lookup, "EVENTCAL_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := firstEnv(lookup, "EVENTCAL_STATIC_FILE"); v != "" {
		c.StaticFile = v
	}
	if v := firstEnv(lookup, "LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
		if c.Log.Level == "warning" {
			c.Log.Level = "warn"
		}
	}
	if v := firstEnv(lookup, "LOG_FORMAT"); v != "" {
		c.Log.Format = strings.ToLower(v)
	}
}

func firstEnv(lookup func(string) (string, bool), names ...string) string {
	for _, n := range names {
		if v, ok := lookup(n); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints declared in struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal over DefaultConfig
//   - normalize defaults
//
// Environment overlay and validation are left to the caller so that Save
// never persists secrets.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	// Decode over the defaults so keys missing from older files (notably the
	// per-source enabled flags) keep their default values.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0755).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0o600)
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".eventcal-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
