package app_test

import (
	"context"
	"path/filepath"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/wicaksana/slidesense/internal/accent"
	"github.com/wicaksana/slidesense/internal/analytics"
	"github.com/wicaksana/slidesense/internal/app"
	"github.com/wicaksana/slidesense/internal/match"
	"github.com/wicaksana/slidesense/internal/observe"
	"github.com/wicaksana/slidesense/internal/score"
	"github.com/wicaksana/slidesense/internal/vocab"
	"github.com/wicaksana/slidesense/pkg/control"
	"github.com/wicaksana/slidesense/pkg/control/mock"
)

func newMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func metricTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s has data type %T", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func slideMatcher(t *testing.T, store accent.Store) *match.Matcher {
	t.Helper()
	v, err := vocab.Load([]vocab.CommandDefinition{
		{ID: "next_slide", Phrase: "next slide", Aliases: []string{"next"}, Action: vocab.ActionSlideNext},
		{ID: "back_slide", Phrase: "back slide", Aliases: []string{"back"}, Action: vocab.ActionSlidePrevious},
	})
	if err != nil {
		t.Fatalf("vocab.Load: %v", err)
	}
	opts := []match.Option{}
	if store != nil {
		opts = append(opts, match.WithAccentStore(store))
	}
	return match.New(vocab.NewHandle(v), score.New(), opts...)
}

func TestSessionManager_SessionsAreLazyPerUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	metrics, reader := newMetrics(t)
	m := app.NewSessionManager(app.SessionManagerConfig{
		Matcher:    slideMatcher(t, nil),
		Automation: &mock.Automation{},
		Metrics:    metrics,
		Cooldown:   -1,
	})

	for _, user := range []string{"alice", "bob", "alice"} {
		if _, err := m.Handle(ctx, user, control.Transcript{Text: "next slide"}); err != nil {
			t.Fatalf("Handle(%s): %v", user, err)
		}
	}

	if users := m.Users(); len(users) != 2 {
		t.Errorf("Users() = %v, want 2 users", users)
	}
	// One session per distinct user, not per utterance.
	if got := metricTotal(t, reader, "slidesense.active_sessions"); got != 2 {
		t.Errorf("active sessions = %d, want 2", got)
	}
	if got := metricTotal(t, reader, "slidesense.match.attempts"); got != 3 {
		t.Errorf("match attempts = %d, want 3", got)
	}
}

func TestSessionManager_SessionStartDecaysAccent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := accent.NewMemStore(accent.DefaultParams())
	for range 3 {
		if err := store.Reinforce(ctx, "alice", "nex", "next_slide"); err != nil {
			t.Fatalf("Reinforce: %v", err)
		}
	}
	if err := store.Decay(ctx, "alice"); err != nil {
		t.Fatalf("Decay: %v", err)
	}
	// Weight is now 0.675; the session-start decay should take it to
	// 0.6075, which proves the sweep ran exactly once.

	m := app.NewSessionManager(app.SessionManagerConfig{
		Matcher:    slideMatcher(t, store),
		Automation: &mock.Automation{},
		Accents:    store,
		Cooldown:   -1,
	})

	if _, err := m.Handle(ctx, "alice", control.Transcript{Text: "next slide"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	entries, err := store.Entries(ctx, "alice")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %+v, want one", entries)
	}
	const want = 0.75 * 0.9 * 0.9
	if diff := entries[0].Weight - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("weight = %f, want %f after session-start decay", entries[0].Weight, want)
	}
}

func TestSessionManager_CorrectFeedsAccentLearning(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := accent.NewMemStore(accent.DefaultParams())
	rec, err := analytics.Open(ctx, filepath.Join(t.TempDir(), "a.db"),
		analytics.WithAccentStore(store))
	if err != nil {
		t.Fatalf("analytics.Open: %v", err)
	}
	t.Cleanup(func() { _ = rec.Close() })

	metrics, reader := newMetrics(t)
	m := app.NewSessionManager(app.SessionManagerConfig{
		Matcher:    slideMatcher(t, store),
		Automation: &mock.Automation{},
		Recorder:   rec,
		Accents:    store,
		Metrics:    metrics,
		Cooldown:   -1,
	})

	if m.Correct(ctx, "alice", "next_slide") {
		t.Fatal("Correct succeeded with no prior decision")
	}

	if _, err := m.Handle(ctx, "alice", control.Transcript{Text: "back"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !m.Correct(ctx, "alice", "next_slide") {
		t.Fatal("Correct failed after a decision")
	}

	entries, err := store.Entries(ctx, "alice")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 || entries[0].CommandID != "next_slide" {
		t.Errorf("entries = %+v, want back -> next_slide", entries)
	}
	if got := metricTotal(t, reader, "slidesense.corrections"); got != 1 {
		t.Errorf("corrections = %d, want 1", got)
	}
}
