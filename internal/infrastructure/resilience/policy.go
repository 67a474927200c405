package resilience

import "time"

// Config bounds retries and the per-operation circuit breaker. Zero values fall back
// to DefaultConfig, except the two booleans which are taken as given.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	RetryJitter         bool

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

// DefaultConfig suits calls whose slowest dependency is a local model server: a few
// quick retries inside a step, then the run-level replay takes over.
func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:        3,
		RetryInitialBackoff:     100 * time.Millisecond,
		RetryMaxBackoff:         2 * time.Second,
		RetryMultiplier:         2,
		RetryJitter:             true,
		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	c.RetryMaxAttempts = orDefault(c.RetryMaxAttempts, def.RetryMaxAttempts)
	c.RetryInitialBackoff = orDefault(c.RetryInitialBackoff, def.RetryInitialBackoff)
	c.RetryMaxBackoff = max(orDefault(c.RetryMaxBackoff, def.RetryMaxBackoff), c.RetryInitialBackoff)
	if c.RetryMultiplier < 1 {
		c.RetryMultiplier = def.RetryMultiplier
	}

	c.BreakerMinRequests = orDefault(c.BreakerMinRequests, def.BreakerMinRequests)
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		c.BreakerFailureRatio = def.BreakerFailureRatio
	}
	c.BreakerOpenTimeout = orDefault(c.BreakerOpenTimeout, def.BreakerOpenTimeout)
	c.BreakerHalfOpenMaxCalls = orDefault(c.BreakerHalfOpenMaxCalls, def.BreakerHalfOpenMaxCalls)
	return c
}

func orDefault[T int | uint32 | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}
