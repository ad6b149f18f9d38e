package match_test

import (
	"testing"

	"github.com/wicaksana/slidesense/internal/match"
	"github.com/wicaksana/slidesense/internal/score"
)

func TestAdjuster_NeutralByDefault(t *testing.T) {
	t.Parallel()

	a := match.NewAdjuster(0, 0)
	if got := a.Adjust(0.70, "next_slide"); got != 0.70 {
		t.Fatalf("Adjust with no history = %f, want base 0.70", got)
	}
}

func TestAdjuster_FailureStreakLoosens(t *testing.T) {
	t.Parallel()

	a := match.NewAdjuster(0, 0)
	for range 6 {
		a.RecordFailure(0.6)
	}
	if got := a.Adjust(0.70, "next_slide"); got != 0.65 {
		t.Fatalf("Adjust after failure streak = %f, want 0.65", got)
	}
}

func TestAdjuster_HighScoresTighten(t *testing.T) {
	t.Parallel()

	a := match.NewAdjuster(0, 0)
	for range 5 {
		a.RecordSuccess("next_slide", 0.97)
	}
	if got := a.Adjust(0.70, "back_slide"); got != 0.75 {
		t.Fatalf("Adjust after high-score run = %f, want 0.75", got)
	}
}

func TestAdjuster_FrequencyBonusIsPerCommand(t *testing.T) {
	t.Parallel()

	a := match.NewAdjuster(0, 0)
	// Mid-range scores so the tightening rule stays out of the way.
	for range 12 {
		a.RecordSuccess("next_slide", 0.8)
	}

	if got := a.Adjust(0.70, "next_slide"); got != 0.67 {
		t.Errorf("Adjust for frequent command = %f, want 0.67", got)
	}
	if got := a.Adjust(0.70, "back_slide"); got != 0.70 {
		t.Errorf("Adjust for rare command = %f, want base 0.70", got)
	}
}

func TestAdjuster_ClampsToBand(t *testing.T) {
	t.Parallel()

	a := match.NewAdjuster(0.55, 0.90)

	for range 6 {
		a.RecordFailure(0.5)
	}
	for range 12 {
		a.RecordSuccess("next_slide", 0.8)
	}
	// 0.56 - 0.05 - 0.03 would land below the floor.
	if got := a.Adjust(0.56, "next_slide"); got != 0.55 {
		t.Errorf("Adjust below band = %f, want clamped to 0.55", got)
	}

	b := match.NewAdjuster(0.55, 0.90)
	for range 5 {
		b.RecordSuccess("stop_program", 0.99)
	}
	// 0.88 + 0.05 would land above the ceiling.
	if got := b.Adjust(0.88, "back_slide"); got != 0.90 {
		t.Errorf("Adjust above band = %f, want clamped to 0.90", got)
	}
}

func TestAdjuster_Stats(t *testing.T) {
	t.Parallel()

	a := match.NewAdjuster(0, 0)
	a.RecordSuccess("next_slide", 0.9)
	a.RecordSuccess("back_slide", 0.7)
	a.RecordFailure(0.4)

	s := a.Stats()
	if s.RecentSuccesses != 2 || s.RecentFailures != 1 {
		t.Errorf("Stats counts = %d/%d, want 2/1", s.RecentSuccesses, s.RecentFailures)
	}
	if s.MeanSuccessScore != 0.8 {
		t.Errorf("MeanSuccessScore = %f, want 0.8", s.MeanSuccessScore)
	}
	if s.CommandsSeen != 2 {
		t.Errorf("CommandsSeen = %d, want 2", s.CommandsSeen)
	}
}

func TestAdjuster_WiresIntoMatcher(t *testing.T) {
	t.Parallel()

	// A heavy failure streak loosens thresholds enough that a borderline
	// rendition flips from rejected to accepted.
	a := match.NewAdjuster(0, 0)
	for range 6 {
		a.RecordFailure(0.6)
	}
	// Calibration input scoring between the loosened and default
	// thresholds: "nex slid" against "next slide".
	const input = "nex slid"

	strict := match.New(slideVocab(t), score.New())
	loose := match.New(slideVocab(t), score.New(), match.WithAdjuster(a))

	ds, err := strict.Match(t.Context(), match.Request{Text: input})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	dl, err := loose.Match(t.Context(), match.Request{Text: input})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}

	// Whatever the exact score lands on, the loosened matcher must never
	// be stricter than the default one.
	if ds.Accepted() && !dl.Accepted() {
		t.Errorf("loosened matcher rejected (%f) what the default accepted (%f)",
			dl.Confidence, ds.Confidence)
	}
}
