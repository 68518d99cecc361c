package connection

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// Reconnect delay defaults. An indiserver restarted by its supervisor is
// usually back within a second, so the first retry comes quickly.
const (
	InitialBackoff    = 1 * time.Second
	MaxBackoff        = 60 * time.Second
	BackoffMultiplier = 2.0
	JitterFactor      = 0.25
)

// BackoffConfig describes the reconnect schedule. Zero fields take the
// defaults.
type BackoffConfig struct {
	// Initial is the delay before the first attempt.
	Initial time.Duration `yaml:"initial"`

	// Max caps the delay between attempts.
	Max time.Duration `yaml:"max"`

	// Multiplier grows the delay after every failed attempt.
	Multiplier float64 `yaml:"multiplier"`

	// Jitter adds up to this fraction of the delay at random, so clients
	// of a restarted server do not reconnect in lockstep.
	Jitter float64 `yaml:"jitter"`

	// MaxAttempts gives up after this many failed attempts (0 = never).
	MaxAttempts int `yaml:"max_attempts"`
}

// DefaultBackoffConfig returns the default reconnect schedule.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    InitialBackoff,
		Max:        MaxBackoff,
		Multiplier: BackoffMultiplier,
		Jitter:     JitterFactor,
	}
}

// Validate reports the first inconsistent field. Problems are named by
// their yaml key.
func (c BackoffConfig) Validate() error {
	switch {
	case c.Initial < 0:
		return errors.New("initial must not be negative")
	case c.Max < 0:
		return errors.New("max must not be negative")
	case c.Initial > 0 && c.Max > 0 && c.Initial > c.Max:
		return fmt.Errorf("initial %v exceeds max %v", c.Initial, c.Max)
	case c.Multiplier != 0 && c.Multiplier < 1:
		return fmt.Errorf("multiplier %g is below 1", c.Multiplier)
	case c.Jitter < 0 || c.Jitter > 1:
		return fmt.Errorf("jitter %g is outside [0, 1]", c.Jitter)
	case c.MaxAttempts < 0:
		return errors.New("max_attempts must not be negative")
	}
	return nil
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	d := DefaultBackoffConfig()
	if c.Initial <= 0 {
		c.Initial = d.Initial
	}
	if c.Max <= 0 {
		c.Max = d.Max
	}
	if c.Max < c.Initial {
		c.Max = c.Initial
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	c.Jitter = min(max(c.Jitter, 0), 1)
	c.MaxAttempts = max(c.MaxAttempts, 0)
	return c
}

// Backoff hands out reconnect delays. It is safe for concurrent use.
type Backoff struct {
	mu       sync.Mutex
	cfg      BackoffConfig
	base     time.Duration
	attempts int
}

// NewBackoff creates a schedule from cfg.
func NewBackoff(cfg BackoffConfig) *Backoff {
	cfg = cfg.withDefaults()
	return &Backoff{cfg: cfg, base: cfg.Initial}
}

// Next returns the delay before the next attempt and counts it. ok is
// false once MaxAttempts attempts have been handed out.
func (b *Backoff) Next() (delay time.Duration, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cfg.MaxAttempts > 0 && b.attempts >= b.cfg.MaxAttempts {
		return 0, false
	}
	b.attempts++
	delay = b.base
	if b.cfg.Jitter > 0 {
		delay += time.Duration(float64(delay) * b.cfg.Jitter * rand.Float64())
	}
	b.base = min(time.Duration(float64(b.base)*b.cfg.Multiplier), b.cfg.Max)
	return delay, true
}

// Reset restarts the schedule. The Manager calls it after every
// successful connect.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.base = b.cfg.Initial
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Base returns the delay the next attempt waits, before jitter.
func (b *Backoff) Base() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.base
}
