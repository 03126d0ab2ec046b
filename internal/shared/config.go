package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Log         LogConfig                   `toml:"log"`
	Priority    PriorityConfig              `toml:"priority"`
	Fetch       FetchConfig                 `toml:"fetch"`
	Retry       RetryConfig                 `toml:"retry"`
	Limits      map[string]LimitConfig      `toml:"limits"`
	Services    ServicesConfig              `toml:"services"`
	Credentials map[string]CredentialConfig `toml:"credentials"`
	Database    DatabaseConfig              `toml:"database"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level string `toml:"level"`
}

// PriorityConfig holds the ordered source-priority list per capability.
type PriorityConfig struct {
	Metadata []string `toml:"metadata"`
	Lyrics   []string `toml:"lyrics"`
	Download []string `toml:"download"`
}

// FetchConfig contains per-call orchestration settings.
type FetchConfig struct {
	Timeout           time.Duration `toml:"timeout"`
	MinCandidateScore float64       `toml:"min_candidate_score"`
}

// RetryConfig contains the bounded retry policy.
type RetryConfig struct {
	MaxAttempts int           `toml:"max_attempts"`
	BaseDelay   time.Duration `toml:"base_delay"`
	MaxDelay    time.Duration `toml:"max_delay"`
	Jitter      float64       `toml:"jitter"` // fraction of the delay randomized, 0..1
}

// LimitConfig contains per-service rate limits.
type LimitConfig struct {
	MaxInFlight       int     `toml:"max_in_flight"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// ServicesConfig contains service-specific, non-secret settings.
type ServicesConfig struct {
	Spotify     SpotifyConfig     `toml:"spotify"`
	MusicBrainz MusicBrainzConfig `toml:"musicbrainz"`
	LRCLib      LRCLibConfig      `toml:"lrclib"`
	Qobuz       QobuzConfig       `toml:"qobuz"`
	LastFM      LastFMConfig      `toml:"lastfm"`
}

// SpotifyConfig contains Spotify client-credentials settings.
type SpotifyConfig struct {
	Enabled      bool   `toml:"enabled"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	Market       string `toml:"market"`
}

// MusicBrainzConfig contains MusicBrainz web service settings.
type MusicBrainzConfig struct {
	Enabled   bool   `toml:"enabled"`
	BaseURL   string `toml:"base_url"`
	UserAgent string `toml:"user_agent"`
}

// LRCLibConfig contains LRCLIB settings.
type LRCLibConfig struct {
	Enabled bool   `toml:"enabled"`
	BaseURL string `toml:"base_url"`
}

// QobuzConfig contains Qobuz application settings. The user token comes from the credential gateway.
type QobuzConfig struct {
	Enabled   bool   `toml:"enabled"`
	BaseURL   string `toml:"base_url"`
	AppID     string `toml:"app_id"`
	AppSecret string `toml:"app_secret"`
	FormatID  int    `toml:"format_id"` // 5 = MP3 320, 6 = FLAC 16/44.1, 7 = 24/96, 27 = 24/192
}

// LastFMConfig contains Last.fm API settings. The API key comes from the credential gateway.
type LastFMConfig struct {
	Enabled bool   `toml:"enabled"`
	Secret  string `toml:"secret"`
}

// CredentialConfig describes where a service's secret comes from.
//
// Env takes precedence over Secret when the variable is set.
type CredentialConfig struct {
	Secret      string `toml:"secret"`
	Env         string `toml:"env"`
	Refreshable bool   `toml:"refreshable"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects values the orchestrator cannot run with.
func (c *Config) Validate() error {
	if c.Fetch.Timeout < 0 {
		return fmt.Errorf("%w: fetch.timeout must not be negative", ErrInvalidConfig)
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("%w: retry.max_attempts must not be negative", ErrInvalidConfig)
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return fmt.Errorf("%w: retry.jitter must be between 0 and 1", ErrInvalidConfig)
	}
	for name, l := range c.Limits {
		if l.MaxInFlight < 0 || l.RequestsPerSecond < 0 || l.Burst < 0 {
			return fmt.Errorf("%w: limits.%s must not be negative", ErrInvalidConfig, name)
		}
	}
	return nil
}

// ResolveSecret resolves the configured secret for a service, preferring the environment variable.
func (c CredentialConfig) ResolveSecret() string {
	if c.Env != "" {
		if v := os.Getenv(c.Env); v != "" {
			return v
		}
	}
	return c.Secret
}
