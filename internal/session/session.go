// Package session drives one user's utterance stream through the matcher
// and out to the automation and caption layers. It owns the interaction
// rules the matcher deliberately stays out of: the post-command cooldown,
// holding ambiguous decisions for a spoken confirmation, and feeding every
// resolved outcome back into analytics and the adaptive adjuster.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wicaksana/slidesense/internal/analytics"
	"github.com/wicaksana/slidesense/internal/match"
	"github.com/wicaksana/slidesense/internal/phonetic"
	"github.com/wicaksana/slidesense/pkg/control"
)

// DefaultCooldown is how long utterances are dropped after an executed
// command, so the tail end of one utterance cannot trigger a second.
const DefaultCooldown = 2 * time.Second

// confirmations are the normalized utterances that accept a pending
// ambiguous decision.
var confirmations = map[string]bool{
	"yes":     true,
	"yeah":    true,
	"yep":     true,
	"correct": true,
	"confirm": true,
}

// Result is the session-level outcome of one utterance.
type Result struct {
	// Decision is the match decision this utterance resolved to. For a
	// confirmation utterance it is the previously pending decision.
	Decision match.Decision

	// Executed reports whether an action was dispatched to automation.
	Executed bool

	// AwaitingConfirmation reports whether the decision was held pending
	// a spoken confirmation.
	AwaitingConfirmation bool

	// CoolingDown reports the utterance was dropped inside the cooldown
	// window; Decision is zero in that case.
	CoolingDown bool
}

// Config configures a [Session].
type Config struct {
	// UserID identifies the speaker; passed through to the matcher.
	UserID string

	// Matcher resolves utterances. Required.
	Matcher *match.Matcher

	// Automation receives command actions for executed decisions.
	// Required.
	Automation control.Automation

	// Captioner receives every decision for user feedback. Optional.
	Captioner control.Captioner

	// Recorder receives an analytics event per resolved attempt.
	// Optional.
	Recorder *analytics.Recorder

	// Adjuster learns from resolved outcomes. Optional.
	Adjuster *match.Adjuster

	// Cooldown overrides [DefaultCooldown]. Zero means the default; a
	// negative value disables the cooldown.
	Cooldown time.Duration

	// Logger defaults to [slog.Default].
	Logger *slog.Logger
}

// Session serializes one user's utterances. Safe for concurrent use, though
// utterances normally arrive serially from a single microphone.
type Session struct {
	cfg   Config
	clock func() time.Time

	mu            sync.Mutex
	pending       *match.Decision
	cooldownUntil time.Time
}

// New creates a [Session] from cfg.
func New(cfg Config) *Session {
	if cfg.Cooldown == 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Session{cfg: cfg, clock: time.Now}
}

// Handle resolves one transcript. It returns an error only when the matcher
// reports a contract violation; recognition failures are data in the Result.
func (s *Session) Handle(ctx context.Context, tr control.Transcript) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if now.Before(s.cooldownUntil) {
		s.cfg.Logger.Debug("utterance dropped during cooldown",
			slog.String("user_id", s.cfg.UserID),
			slog.String("text", tr.Text))
		return Result{CoolingDown: true}, nil
	}

	if s.pending != nil {
		if confirmations[phonetic.Normalize(tr.Text)] {
			return s.confirmPending(ctx, now), nil
		}
		s.abandonPending(ctx)
	}

	d, err := s.cfg.Matcher.Match(ctx, match.Request{
		UserID:            s.cfg.UserID,
		Text:              tr.Text,
		MinWordConfidence: tr.MinWordConfidence(),
	})
	if err != nil {
		return Result{}, err
	}
	s.caption(ctx, d)

	switch d.Outcome {
	case match.OutcomeAccepted:
		executed := s.execute(ctx, d, now)
		s.record(ctx, d, analytics.Accepted())
		if s.cfg.Adjuster != nil {
			s.cfg.Adjuster.RecordSuccess(d.CommandID, d.Confidence)
		}
		return Result{Decision: d, Executed: executed}, nil

	case match.OutcomeAmbiguous:
		// Held until the next utterance resolves it; recorded then.
		s.pending = &d
		return Result{Decision: d, AwaitingConfirmation: true}, nil

	default:
		s.record(ctx, d, analytics.Ignored())
		if s.cfg.Adjuster != nil {
			s.cfg.Adjuster.RecordFailure(d.Confidence)
		}
		return Result{Decision: d}, nil
	}
}

// Correct redirects the most recently executed decision to another command.
// The caller supplies the decision being corrected; the correction flows
// through analytics, which reinforces the user's accent mapping.
func (s *Session) Correct(ctx context.Context, d match.Decision, commandID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(ctx, d, analytics.CorrectedTo(commandID))
}

// confirmPending executes the held ambiguous decision. Confirmation is
// recorded as a correction so the user's accent mapping learns the phrase.
func (s *Session) confirmPending(ctx context.Context, now time.Time) Result {
	d := *s.pending
	s.pending = nil

	d.Outcome = match.OutcomeAccepted
	executed := s.execute(ctx, d, now)
	s.record(ctx, d, analytics.CorrectedTo(d.CommandID))
	if s.cfg.Adjuster != nil {
		s.cfg.Adjuster.RecordSuccess(d.CommandID, d.Confidence)
	}
	s.caption(ctx, d)
	return Result{Decision: d, Executed: executed}
}

// abandonPending drops the held decision; the user said something else.
func (s *Session) abandonPending(ctx context.Context) {
	d := *s.pending
	s.pending = nil
	s.record(ctx, d, analytics.Ignored())
	if s.cfg.Adjuster != nil {
		s.cfg.Adjuster.RecordFailure(d.Confidence)
	}
}

func (s *Session) execute(ctx context.Context, d match.Decision, now time.Time) bool {
	if err := s.cfg.Automation.Execute(ctx, d.Action); err != nil {
		s.cfg.Logger.Warn("automation failed",
			slog.String("command_id", d.CommandID),
			slog.String("action", string(d.Action)),
			slog.String("error", err.Error()))
		return false
	}
	if s.cfg.Cooldown > 0 {
		s.cooldownUntil = now.Add(s.cfg.Cooldown)
	}
	return true
}

func (s *Session) record(ctx context.Context, d match.Decision, out analytics.Outcome) {
	if s.cfg.Recorder == nil {
		return
	}
	if err := s.cfg.Recorder.Record(ctx, d, out); err != nil {
		s.cfg.Logger.Warn("analytics append failed",
			slog.String("decision_id", d.ID),
			slog.String("error", err.Error()))
	}
}

func (s *Session) caption(ctx context.Context, d match.Decision) {
	if s.cfg.Captioner != nil {
		s.cfg.Captioner.Show(ctx, d)
	}
}
