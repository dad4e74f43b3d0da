package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/blackmichael/species-poster/internal/domain"
)

const (
	configPathEnv = "SPECIESBOT_CONFIG"
	pdsHostEnv    = "ATP_PDS_HOST"
	handleEnv     = "ATP_AUTH_HANDLE"
	passwordEnv   = "ATP_AUTH_PASSWORD"
	stateDBEnv    = "SPECIESBOT_STATE_DB"
	catalogEnv    = "SPECIESBOT_CATALOG"
	logLevelEnv   = "SPECIESBOT_LOG_LEVEL"
	logFormatEnv  = "SPECIESBOT_LOG_FORMAT"
	scheduleEnv   = "SPECIESBOT_SCHEDULE"
	portEnv       = "PORT"

	defaultTimezone = "UTC"
)

// Config holds all configuration for the application.
type Config struct {
	Bluesky   BlueskyConfig   `yaml:"bluesky"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	State     StateConfig     `yaml:"state"`
	Scratch   ScratchConfig   `yaml:"scratch"`
	Scrape    ScrapeConfig    `yaml:"scrape"`
	Features  FeaturesConfig  `yaml:"features"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Firehose  FirehoseConfig  `yaml:"firehose"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// BlueskyConfig identifies the PDS and the posting account.
type BlueskyConfig struct {
	PDSHost string `yaml:"pdsHost"`

	// Handle and Password usually come from ATP_AUTH_HANDLE and
	// ATP_AUTH_PASSWORD. Use an App Password.
	Handle   string `yaml:"handle"`
	Password string `yaml:"password"`
}

// CatalogConfig locates the tab-delimited species table.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// StateConfig locates the selection database and the legacy text files it
// can import.
type StateConfig struct {
	DBPath       string `yaml:"dbPath"`
	PossibleFile string `yaml:"possibleFile"`
	SampledFile  string `yaml:"sampledFile"`
	NumberFile   string `yaml:"numberFile"`
}

// ScratchConfig names the files each run overwrites with its image and caption.
type ScratchConfig struct {
	ImagePath   string `yaml:"imagePath"`
	CaptionPath string `yaml:"captionPath"`
}

// ScrapeConfig tunes the profile page scraper.
type ScrapeConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// FeaturesConfig switches optional behaviour on and off.
type FeaturesConfig struct {
	AspectRatio    bool `yaml:"aspectRatio"`
	RichTextFacets bool `yaml:"richTextFacets"`
	DeepScrape     bool `yaml:"deepScrape"`
	Confirm        bool `yaml:"confirm"`
}

// PipelineConfig tunes a single run.
type PipelineConfig struct {
	MaxAttempts int      `yaml:"maxAttempts"`
	Langs       []string `yaml:"langs"`
}

// FirehoseConfig is used to confirm posts when features.confirm is set.
type FirehoseConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// SchedulerConfig defines when the daemon posts.
type SchedulerConfig struct {
	Cron     string         `yaml:"cron"`
	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Location returns the resolved scheduler timezone.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	return time.UTC
}

// ServerConfig is the daemon's status server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LogConfig selects the log level and output format (json or text).
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load builds the configuration from defaults, the YAML file at path (or
// $SPECIESBOT_CONFIG), a .env file in the working directory and environment
// overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Bluesky: BlueskyConfig{PDSHost: "https://bsky.social"},
		Catalog: CatalogConfig{Path: "resources/amphib_names.txt"},
		State: StateConfig{
			DBPath:       "resources/state.db",
			PossibleFile: "resources/possible_spp.txt",
			SampledFile:  "resources/sampled_spp.txt",
			NumberFile:   "resources/iteration_number.txt",
		},
		Scratch: ScratchConfig{
			ImagePath:   "resources/today_sp.jpg",
			CaptionPath: "resources/today_text.txt",
		},
		Scrape:    ScrapeConfig{Timeout: 30 * time.Second},
		Features:  FeaturesConfig{AspectRatio: true, RichTextFacets: true},
		Pipeline:  PipelineConfig{MaxAttempts: domain.DefaultMaxAttempts, Langs: []string{"en-US"}},
		Firehose:  FirehoseConfig{URL: "wss://jetstream1.us-east.bsky.network/subscribe", Timeout: 2 * time.Minute},
		Scheduler: SchedulerConfig{Cron: "0 12 * * *", Timezone: defaultTimezone},
		Server:    ServerConfig{Port: 3000},
		Log:       LogConfig{Level: "info", Format: "json"},
	}
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(pdsHostEnv); v != "" {
		c.Bluesky.PDSHost = v
	}
	if v := os.Getenv(handleEnv); v != "" {
		c.Bluesky.Handle = v
	}
	if v := os.Getenv(passwordEnv); v != "" {
		c.Bluesky.Password = v
	}
	if v := os.Getenv(stateDBEnv); v != "" {
		c.State.DBPath = v
	}
	if v := os.Getenv(catalogEnv); v != "" {
		c.Catalog.Path = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(logFormatEnv); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv(scheduleEnv); v != "" {
		c.Scheduler.Cron = v
	}
	if p := os.Getenv(portEnv); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

func (c *Config) validate() error {
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("pipeline.maxAttempts must be at least 1, got %d", c.Pipeline.MaxAttempts)
	}
	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}
	if c.State.DBPath == "" {
		return fmt.Errorf("state.dbPath is required")
	}

	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	c.Scheduler.location = loc

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

// RequireCredentials fails unless a handle and password are configured.
func (c *Config) RequireCredentials() error {
	if c.Bluesky.Handle == "" || c.Bluesky.Password == "" {
		return fmt.Errorf("both handle and password are required (set %s and %s)", handleEnv, passwordEnv)
	}
	return nil
}

// DomainFeatures returns the pipeline feature switches.
func (c *Config) DomainFeatures() domain.Features {
	return domain.Features{
		AspectRatio:    c.Features.AspectRatio,
		RichTextFacets: c.Features.RichTextFacets,
		Confirm:        c.Features.Confirm,
	}
}
