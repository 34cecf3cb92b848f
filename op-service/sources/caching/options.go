package caching

import (
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
)

const (
	// DefaultCacheTTL is how long a successful result stays valid.
	DefaultCacheTTL = time.Minute
	// DefaultErrorTTL is how long a failed result is remembered before a retry is allowed.
	DefaultErrorTTL = 250 * time.Millisecond
	// DefaultMaxCached is the default capacity of a CachedMap.
	DefaultMaxCached = 10_000
	// expirySlop is the minimum delay between two expiry sweeps.
	expirySlop = 50 * time.Millisecond
)

type Metrics interface {
	CacheAdd(label string, cacheSize int, evicted bool)
	CacheGet(label string, hit bool)
}

type noopMetrics struct{}

func (noopMetrics) CacheAdd(label string, cacheSize int, evicted bool) {}
func (noopMetrics) CacheGet(label string, hit bool)                    {}

type config struct {
	clock    mclock.Clock
	metrics  Metrics
	label    string
	errorTTL time.Duration
}

func defaultConfig() config {
	return config{
		clock:    mclock.System{},
		metrics:  noopMetrics{},
		errorTTL: DefaultErrorTTL,
	}
}

func (c *config) apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Option configures a cache primitive.
type Option func(cfg *config)

// WithClock replaces the system clock, e.g. with an mclock.Simulated in tests.
func WithClock(clock mclock.Clock) Option {
	return func(cfg *config) {
		cfg.clock = clock
	}
}

// WithMetrics reports cache activity under the given label.
func WithMetrics(m Metrics, label string) Option {
	return func(cfg *config) {
		if m != nil {
			cfg.metrics = m
		}
		cfg.label = label
	}
}

// WithErrorTTL sets how long a failed producer result is cached.
func WithErrorTTL(ttl time.Duration) Option {
	return func(cfg *config) {
		cfg.errorTTL = ttl
	}
}
