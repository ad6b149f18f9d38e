package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/wicaksana/slidesense/internal/accent"
)

// GuardedStore wraps an [accent.Store] with a [Breaker]. While the backend
// is failing, calls return [ErrOpen] immediately instead of waiting on a
// dead connection; the matcher already treats store errors as a recoverable
// degradation, so matching continues fuzzy-only.
//
// [accent.ErrNoCorrection] is a normal lookup miss and never counts as a
// backend failure.
type GuardedStore struct {
	inner   accent.Store
	breaker *Breaker
}

var _ accent.Store = (*GuardedStore)(nil)

// NewGuardedStore wraps inner with cfg's breaker.
func NewGuardedStore(inner accent.Store, cfg BreakerConfig) *GuardedStore {
	if cfg.Name == "" {
		cfg.Name = "accent-store"
	}
	return &GuardedStore{inner: inner, breaker: NewBreaker(cfg)}
}

// State exposes the underlying breaker state for health reporting.
func (g *GuardedStore) State() State { return g.breaker.State() }

func (g *GuardedStore) Rewrite(ctx context.Context, userID, rawPhrase string) (accent.Correction, error) {
	var c accent.Correction
	err := g.breaker.Do(func() error {
		var err error
		c, err = g.inner.Rewrite(ctx, userID, rawPhrase)
		if errors.Is(err, accent.ErrNoCorrection) {
			// A miss is a healthy answer.
			return nil
		}
		return err
	})
	if err != nil {
		return accent.Correction{}, fmt.Errorf("resilience: rewrite: %w", err)
	}
	if c.CommandID == "" {
		return accent.Correction{}, accent.ErrNoCorrection
	}
	return c, nil
}

func (g *GuardedStore) Reinforce(ctx context.Context, userID, rawPhrase, commandID string) error {
	if err := g.breaker.Do(func() error {
		return g.inner.Reinforce(ctx, userID, rawPhrase, commandID)
	}); err != nil {
		return fmt.Errorf("resilience: reinforce: %w", err)
	}
	return nil
}

func (g *GuardedStore) Decay(ctx context.Context, userID string) error {
	if err := g.breaker.Do(func() error {
		return g.inner.Decay(ctx, userID)
	}); err != nil {
		return fmt.Errorf("resilience: decay: %w", err)
	}
	return nil
}

func (g *GuardedStore) Entries(ctx context.Context, userID string) ([]accent.Entry, error) {
	var entries []accent.Entry
	if err := g.breaker.Do(func() error {
		var err error
		entries, err = g.inner.Entries(ctx, userID)
		return err
	}); err != nil {
		return nil, fmt.Errorf("resilience: entries: %w", err)
	}
	return entries, nil
}
