package orchestrator

import (
	"time"

	"github.com/desertthunder/tunemeld/internal/shared"
)

// Limit bounds the load placed on one service.
type Limit struct {
	MaxInFlight       int
	RequestsPerSecond float64 // 0 disables the rate limiter
	Burst             int
}

// Config is the static orchestration policy.
type Config struct {
	Timeout           time.Duration // per attempt
	MaxAttempts       int           // total attempts per call, including the first
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	Jitter            float64
	MinCandidateScore float64
	Limits            map[string]Limit
	DefaultLimit      Limit
}

// DefaultConfig returns the policy used when no configuration is supplied.
func DefaultConfig() Config {
	return Config{
		Timeout:           10 * time.Second,
		MaxAttempts:       3,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          8 * time.Second,
		Jitter:            0.2,
		MinCandidateScore: 0.6,
		Limits:            map[string]Limit{},
		DefaultLimit:      Limit{MaxInFlight: 4},
	}
}

// ConfigFrom converts the loaded application config, keeping defaults for unset values.
func ConfigFrom(cfg *shared.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	if cfg.Fetch.Timeout > 0 {
		c.Timeout = cfg.Fetch.Timeout
	}
	if cfg.Fetch.MinCandidateScore > 0 {
		c.MinCandidateScore = cfg.Fetch.MinCandidateScore
	}
	if cfg.Retry.MaxAttempts > 0 {
		c.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.BaseDelay > 0 {
		c.BaseDelay = cfg.Retry.BaseDelay
	}
	if cfg.Retry.MaxDelay > 0 {
		c.MaxDelay = cfg.Retry.MaxDelay
	}
	c.Jitter = cfg.Retry.Jitter
	for name, l := range cfg.Limits {
		c.Limits[name] = Limit{MaxInFlight: l.MaxInFlight, RequestsPerSecond: l.RequestsPerSecond, Burst: l.Burst}
	}
	return c
}

func (c Config) limitFor(service string) Limit {
	l, ok := c.Limits[service]
	if !ok {
		l = c.DefaultLimit
	}
	if l.MaxInFlight <= 0 {
		l.MaxInFlight = max(c.DefaultLimit.MaxInFlight, 1)
	}
	if l.Burst <= 0 {
		l.Burst = 1
	}
	return l
}

// backoff returns the wait before attempt n+1 after n failed attempts. r is a uniform sample in [0, 1).
func (c Config) backoff(n int, r float64) time.Duration {
	if c.BaseDelay <= 0 {
		return 0
	}
	d := c.BaseDelay << (n - 1)
	if d <= 0 || (c.MaxDelay > 0 && d > c.MaxDelay) {
		d = c.MaxDelay
	}
	if c.Jitter > 0 {
		d += time.Duration(float64(d) * c.Jitter * (2*r - 1))
	}
	return max(d, 0)
}
