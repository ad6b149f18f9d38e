package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wicaksana/slidesense/internal/accent"
	"github.com/wicaksana/slidesense/internal/resilience"
)

// flakyStore fails every call while down is set.
type flakyStore struct {
	inner *accent.MemStore
	down  bool
}

var errConn = errors.New("connection refused")

func (f *flakyStore) Rewrite(ctx context.Context, userID, rawPhrase string) (accent.Correction, error) {
	if f.down {
		return accent.Correction{}, errConn
	}
	return f.inner.Rewrite(ctx, userID, rawPhrase)
}

func (f *flakyStore) Reinforce(ctx context.Context, userID, rawPhrase, commandID string) error {
	if f.down {
		return errConn
	}
	return f.inner.Reinforce(ctx, userID, rawPhrase, commandID)
}

func (f *flakyStore) Decay(ctx context.Context, userID string) error {
	if f.down {
		return errConn
	}
	return f.inner.Decay(ctx, userID)
}

func (f *flakyStore) Entries(ctx context.Context, userID string) ([]accent.Entry, error) {
	if f.down {
		return nil, errConn
	}
	return f.inner.Entries(ctx, userID)
}

func TestGuardedStore_MissIsNotAFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := &flakyStore{inner: accent.NewMemStore(accent.DefaultParams())}
	g := resilience.NewGuardedStore(f, resilience.BreakerConfig{Trip: 2})

	// Far more misses than the trip threshold must keep the breaker closed.
	for range 10 {
		if _, err := g.Rewrite(ctx, "alice", "nex"); !errors.Is(err, accent.ErrNoCorrection) {
			t.Fatalf("Rewrite = %v, want ErrNoCorrection", err)
		}
	}
	if g.State() != resilience.Closed {
		t.Errorf("state = %v, want closed", g.State())
	}
}

func TestGuardedStore_HitPassesThrough(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := &flakyStore{inner: accent.NewMemStore(accent.DefaultParams())}
	g := resilience.NewGuardedStore(f, resilience.BreakerConfig{})

	for range 3 {
		if err := g.Reinforce(ctx, "alice", "nex", "next_slide"); err != nil {
			t.Fatalf("Reinforce: %v", err)
		}
	}
	c, err := g.Rewrite(ctx, "alice", "nex")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if c.CommandID != "next_slide" {
		t.Errorf("CommandID = %q, want next_slide", c.CommandID)
	}
}

func TestGuardedStore_FastFailsWhileBackendIsDown(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := &flakyStore{inner: accent.NewMemStore(accent.DefaultParams()), down: true}
	g := resilience.NewGuardedStore(f, resilience.BreakerConfig{Trip: 2, Cooldown: time.Minute})

	for range 2 {
		if _, err := g.Rewrite(ctx, "alice", "nex"); !errors.Is(err, errConn) {
			t.Fatalf("Rewrite = %v, want connection error", err)
		}
	}
	if g.State() != resilience.Open {
		t.Fatalf("state = %v, want open", g.State())
	}
	if err := g.Decay(ctx, "alice"); !errors.Is(err, resilience.ErrOpen) {
		t.Errorf("Decay while open = %v, want ErrOpen", err)
	}
}

func TestGuardedStore_RecoversAfterCooldown(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := &flakyStore{inner: accent.NewMemStore(accent.DefaultParams()), down: true}
	g := resilience.NewGuardedStore(f, resilience.BreakerConfig{
		Trip:     1,
		Cooldown: time.Millisecond,
		Probes:   1,
	})

	_, _ = g.Rewrite(ctx, "alice", "nex")
	if g.State() != resilience.Open {
		t.Fatalf("state = %v, want open", g.State())
	}

	f.down = false
	time.Sleep(5 * time.Millisecond)

	if err := g.Reinforce(ctx, "alice", "nex", "next_slide"); err != nil {
		t.Fatalf("Reinforce after cooldown: %v", err)
	}
	if g.State() != resilience.Closed {
		t.Errorf("state = %v, want closed after probe", g.State())
	}
	entries, err := g.Entries(ctx, "alice")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1", len(entries))
	}
}
