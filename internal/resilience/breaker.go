// Package resilience protects the engine from a misbehaving persistence
// backend. The central type is [Breaker], a three-state circuit breaker
// (closed → open → half-open); [GuardedStore] wraps an accent store with one
// so that a down database fails fast instead of stalling every match.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrOpen = errors.New("resilience: breaker open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed forwards all calls.
	Closed State = iota

	// Open rejects calls with [ErrOpen] until the cooldown elapses.
	Open

	// HalfOpen lets a limited number of probe calls through to decide
	// whether the backend has recovered.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig tunes a [Breaker]. Zero fields use the defaults.
type BreakerConfig struct {
	// Name labels the breaker in log messages.
	Name string

	// Trip is the consecutive-failure count that opens the breaker.
	// Default: 5.
	Trip int

	// Cooldown is how long the breaker stays open before probing again.
	// Default: 30s.
	Cooldown time.Duration

	// Probes is how many half-open calls must succeed before the breaker
	// closes. Default: 3.
	Probes int
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	name     string
	trip     int
	cooldown time.Duration
	probes   int

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  int
	probeOK  int
}

// NewBreaker creates a [Breaker] from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Trip <= 0 {
		cfg.Trip = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 3
	}
	return &Breaker{
		name:     cfg.Name,
		trip:     cfg.Trip,
		cooldown: cfg.Cooldown,
		probes:   cfg.Probes,
	}
}

// Do runs fn unless the breaker is rejecting calls, and folds fn's result
// into the breaker's failure accounting.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	err = fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probe)
	} else {
		b.onSuccess(probe)
	}
	return err
}

// admit decides whether a call may proceed. It reports whether the call
// counts as a half-open probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if time.Since(b.openedAt) < b.cooldown {
			return false, ErrOpen
		}
		b.state = HalfOpen
		b.probing = 0
		b.probeOK = 0
		slog.Info("breaker probing backend", "name", b.name)
		fallthrough

	case HalfOpen:
		if b.probing >= b.probes {
			return false, ErrOpen
		}
		b.probing++
		return true, nil
	}
	return false, nil
}

func (b *Breaker) onFailure(probe bool) {
	if probe {
		// One failed probe re-opens immediately.
		b.state = Open
		b.openedAt = time.Now()
		b.failures = b.trip
		slog.Warn("breaker re-opened", "name", b.name)
		return
	}
	b.failures++
	if b.state == Closed && b.failures >= b.trip {
		b.state = Open
		b.openedAt = time.Now()
		slog.Warn("breaker opened", "name", b.name, "consecutive_failures", b.failures)
	}
}

func (b *Breaker) onSuccess(probe bool) {
	if probe {
		b.probeOK++
		if b.probeOK >= b.probes {
			b.state = Closed
			b.failures = 0
			slog.Info("breaker closed", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// State returns the breaker's current state. An expired cooldown reports
// [HalfOpen] even before the next [Breaker.Do] performs the transition.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && time.Since(b.openedAt) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker back to [Closed], clearing all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.probing = 0
	b.probeOK = 0
	slog.Info("breaker reset", "name", b.name)
}
