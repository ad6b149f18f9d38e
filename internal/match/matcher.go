package match

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/wicaksana/slidesense/internal/accent"
	"github.com/wicaksana/slidesense/internal/phonetic"
	"github.com/wicaksana/slidesense/internal/score"
	"github.com/wicaksana/slidesense/internal/vocab"
)

const (
	// DefaultThreshold is the acceptance threshold for commands that do
	// not override it.
	DefaultThreshold = 0.70

	// DefaultMargin is the minimum separation between the top candidate
	// and the runner-up for an unambiguous accept.
	DefaultMargin = 0.08

	// DefaultLowConfidenceWiden is added to the margin when the
	// transcription carries a low per-word confidence hint.
	DefaultLowConfidenceWiden = 0.04

	// lowConfidenceHint is the per-word confidence below which the
	// transcription is considered shaky.
	lowConfidenceHint = 0.5

	// maxAlternates bounds the runner-up list carried on a decision.
	maxAlternates = 3
)

// ErrUserRequired is returned when accent lookup is configured as mandatory
// and a match is attempted without a user id. This is a caller contract
// violation, meant to surface in testing rather than production.
var ErrUserRequired = errors.New("match: user id is required when accent lookup is mandatory")

// Request is one match attempt.
type Request struct {
	// UserID selects the accent profile. Optional unless the matcher was
	// built with [WithMandatoryIdentity].
	UserID string

	// Text is the raw transcribed utterance.
	Text string

	// MinWordConfidence is the lowest per-word confidence the transcriber
	// reported, in (0, 1]. Zero means "no confidence data". A low value
	// widens the ambiguity margin; the matcher works fine without it.
	MinWordConfidence float64
}

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithDefaultThreshold sets the acceptance threshold used for commands
// without a per-command override. Default: 0.70.
func WithDefaultThreshold(t float64) Option {
	return func(m *Matcher) { m.defaultThreshold = t }
}

// WithMargin sets the minimum score separation between the top candidate
// and the runner-up. Default: 0.08.
func WithMargin(margin float64) Option {
	return func(m *Matcher) { m.margin = margin }
}

// WithAccentStore attaches a per-user accent correction store. When nil
// (the default), the accent rewrite stage is skipped entirely.
func WithAccentStore(s accent.Store) Option {
	return func(m *Matcher) { m.accents = s }
}

// WithAdjuster attaches an adaptive threshold [Adjuster]. When nil (the
// default), per-command thresholds are used as configured.
func WithAdjuster(a *Adjuster) Option {
	return func(m *Matcher) { m.adjuster = a }
}

// WithMandatoryIdentity makes a missing [Request.UserID] a contract error
// instead of silently skipping the accent stage.
func WithMandatoryIdentity() Option {
	return func(m *Matcher) { m.requireUser = true }
}

// Matcher classifies utterances against the current vocabulary. Safe for
// concurrent use: it holds no per-attempt state, and its collaborators
// manage their own synchronisation.
type Matcher struct {
	vocabulary *vocab.Handle
	scorer     *score.Scorer
	accents    accent.Store
	adjuster   *Adjuster

	defaultThreshold float64
	margin           float64
	widen            float64
	requireUser      bool
}

// New returns a [Matcher] reading the vocabulary through handle and scoring
// with scorer, configured with the supplied options.
func New(handle *vocab.Handle, scorer *score.Scorer, opts ...Option) *Matcher {
	m := &Matcher{
		vocabulary:       handle,
		scorer:           scorer,
		defaultThreshold: DefaultThreshold,
		margin:           DefaultMargin,
		widen:            DefaultLowConfidenceWiden,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match runs one attempt through the decision pipeline:
// exact check, accent rewrite, fuzzy scan, rank, threshold check.
//
// Ambiguous and rejected results are returned as data, not errors. The only
// error conditions are caller contract violations such as a missing user id
// under [WithMandatoryIdentity]. A temporarily unavailable accent store
// degrades the attempt to fuzzy-only matching and logs the degradation.
func (m *Matcher) Match(ctx context.Context, req Request) (Decision, error) {
	start := time.Now()
	d := Decision{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Input:     req.Text,
		Timestamp: start.UTC(),
	}

	if m.requireUser && req.UserID == "" {
		return Decision{}, ErrUserRequired
	}

	v := m.vocabulary.Current()
	norm := phonetic.Normalize(req.Text)

	// Malformed or empty input rejects before any scoring.
	if norm == "" || v == nil || v.Len() == 0 {
		d.Outcome = OutcomeRejected
		d.Elapsed = time.Since(start)
		return d, nil
	}

	// --- ExactCheck ---
	if def, ok := v.LookupExact(norm); ok {
		d.CommandID = def.ID
		d.Action = def.Action
		d.Confidence = 1.0
		d.Outcome = OutcomeAccepted
		d.Source = SourceExact
		if phonetic.Normalize(def.Phrase) != norm {
			d.Source = SourceAlias
		}
		d.Elapsed = time.Since(start)
		return d, nil
	}

	// --- AccentRewrite ---
	if m.accents != nil && req.UserID != "" {
		c, err := m.accents.Rewrite(ctx, req.UserID, norm)
		switch {
		case err == nil:
			if def, ok := v.ByID(c.CommandID); ok {
				d.CommandID = def.ID
				d.Action = def.Action
				d.Confidence = c.Weight
				d.Outcome = OutcomeAccepted
				d.Source = SourceAccent
				d.Elapsed = time.Since(start)
				return d, nil
			}
			// The stored correction points at a command that a reload
			// removed; fall through to the fuzzy scan.
		case errors.Is(err, accent.ErrNoCorrection):
			// Normal: no active correction for this phrase.
		default:
			// Recoverable: degrade to fuzzy-only matching.
			slog.Warn("accent store unavailable, continuing without rewrites",
				"user_id", req.UserID,
				"error", err,
			)
		}
	}

	// --- FuzzyScan ---
	inputCode := phonetic.Encode(norm)
	candidates := make([]Candidate, 0, v.Len())
	for def := range v.Candidates() {
		best := m.scorer.Score(norm, def.Phrase)
		for _, alias := range def.Aliases {
			if s := m.scorer.Score(norm, alias); s > best {
				best = s
			}
		}
		candidates = append(candidates, Candidate{
			CommandID:     def.ID,
			Score:         best,
			PhoneticMatch: slices.Contains(v.Codes(def.ID), inputCode),
			Source:        SourceFuzzy,
		})
	}

	// --- Rank ---
	rankCandidates(candidates)

	// --- ThresholdCheck ---
	top := candidates[0]
	threshold := m.thresholdFor(v, top.CommandID)

	margin := m.margin
	if req.MinWordConfidence > 0 && req.MinWordConfidence < lowConfidenceHint {
		margin += m.widen
	}

	separation := top.Score
	if len(candidates) > 1 {
		separation = top.Score - candidates[1].Score
	}

	d.Alternates = alternates(candidates)
	d.Confidence = top.Score
	d.Source = SourceFuzzy

	switch {
	case top.Score < threshold:
		d.Outcome = OutcomeRejected
	case separation < margin:
		d.Outcome = OutcomeAmbiguous
		d.CommandID = top.CommandID
		if def, ok := v.ByID(top.CommandID); ok {
			d.Action = def.Action
		}
	default:
		d.Outcome = OutcomeAccepted
		d.CommandID = top.CommandID
		if def, ok := v.ByID(top.CommandID); ok {
			d.Action = def.Action
		}
	}

	d.Elapsed = time.Since(start)
	return d, nil
}

// thresholdFor resolves the effective acceptance threshold for a command:
// the per-command override (or the default), passed through the adaptive
// adjuster when one is attached.
func (m *Matcher) thresholdFor(v *vocab.Vocabulary, commandID string) float64 {
	threshold := m.defaultThreshold
	if def, ok := v.ByID(commandID); ok && def.Threshold > 0 {
		threshold = def.Threshold
	}
	if m.adjuster != nil {
		threshold = m.adjuster.Adjust(threshold, commandID)
	}
	return threshold
}

// rankCandidates sorts candidates by score descending. Equal scores are
// broken in favour of the phonetically-matching candidate; remaining ties
// keep vocabulary load order.
func rankCandidates(candidates []Candidate) {
	slices.SortStableFunc(candidates, func(a, b Candidate) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		case a.PhoneticMatch && !b.PhoneticMatch:
			return -1
		case !a.PhoneticMatch && b.PhoneticMatch:
			return 1
		}
		return 0
	})
}

// alternates returns the runner-up candidates after the top one, bounded.
func alternates(candidates []Candidate) []Candidate {
	if len(candidates) <= 1 {
		return nil
	}
	rest := candidates[1:]
	if len(rest) > maxAlternates {
		rest = rest[:maxAlternates]
	}
	out := make([]Candidate, len(rest))
	copy(out, rest)
	return out
}
