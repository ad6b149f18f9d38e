package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

func failing() error { return errBackend }
func healthy() error { return nil }

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", Trip: 3})

	for range 3 {
		if err := b.Do(failing); !errors.Is(err, errBackend) {
			t.Fatalf("Do = %v, want backend error", err)
		}
	}
	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}
	if err := b.Do(healthy); !errors.Is(err, ErrOpen) {
		t.Errorf("Do while open = %v, want ErrOpen", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Trip: 3})

	for range 2 {
		_ = b.Do(failing)
	}
	if err := b.Do(healthy); err != nil {
		t.Fatalf("Do: %v", err)
	}
	// The counter restarted, so two more failures must not trip it.
	for range 2 {
		_ = b.Do(failing)
	}
	if b.State() != Closed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_ClosesAfterSuccessfulProbes(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Trip: 1, Cooldown: time.Millisecond, Probes: 2})

	_ = b.Do(failing)
	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}

	time.Sleep(5 * time.Millisecond)
	for range 2 {
		if err := b.Do(healthy); err != nil {
			t.Fatalf("probe: %v", err)
		}
	}
	if b.State() != Closed {
		t.Errorf("state = %v, want closed after probes", b.State())
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Trip: 1, Cooldown: 50 * time.Millisecond, Probes: 2})

	_ = b.Do(failing)
	time.Sleep(60 * time.Millisecond)

	if err := b.Do(failing); !errors.Is(err, errBackend) {
		t.Fatalf("probe = %v, want backend error", err)
	}
	if err := b.Do(healthy); !errors.Is(err, ErrOpen) {
		t.Errorf("Do after failed probe = %v, want ErrOpen", err)
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Trip: 1})
	_ = b.Do(failing)
	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}

	b.Reset()
	if b.State() != Closed {
		t.Fatalf("state = %v, want closed after reset", b.State())
	}
	if err := b.Do(healthy); err != nil {
		t.Errorf("Do after reset: %v", err)
	}
}
