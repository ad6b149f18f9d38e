// Package accent maintains per-user accent profiles: mappings from phrases
// the transcriber habitually mis-hears to the command the speaker actually
// meant. Each mapping carries a confidence weight that grows on confirmed
// corrections and decays on disuse, so stale corrections age out when the
// speaker's accent or environment changes.
//
// All mutation is append-then-compact: every change is recorded as an
// [Event] before the compacted profile is updated, so a profile can always
// be rebuilt by replaying its event log. Two [Store] implementations are
// provided: [MemStore] for single-process use and tests, and
// [PostgresStore] for durable multi-session deployments.
package accent

import (
	"context"
	"errors"
	"time"
)

// Default tuning. Three confirmed corrections lift a fresh mapping past the
// activation floor (3 × 0.25 = 0.75 > 0.6), matching the original
// three-repetition accent training flow.
const (
	DefaultReinforceStep   = 0.25
	DefaultConflictPenalty = 0.25
	DefaultActivationFloor = 0.6
	DefaultRemovalFloor    = 0.2
	DefaultDecayFactor     = 0.9
)

// ErrNoCorrection is returned by [Store.Rewrite] when no stored mapping for
// the phrase has reached the activation floor. It is an expected outcome,
// not a failure: the caller proceeds with fuzzy matching.
var ErrNoCorrection = errors.New("accent: no active correction")

// Params holds the tunable weights governing profile evolution.
// The zero value is not usable; start from [DefaultParams].
type Params struct {
	// ReinforceStep is added to a mapping's weight on each confirmation.
	ReinforceStep float64

	// ConflictPenalty is subtracted from every other mapping of the same
	// raw phrase when one mapping is reinforced. Corrections for one
	// phrase are mutually exclusive, so confirming one contradicts the rest.
	ConflictPenalty float64

	// ActivationFloor is the minimum weight a mapping needs before
	// [Store.Rewrite] will return it.
	ActivationFloor float64

	// RemovalFloor is the weight below which a mapping is garbage-collected.
	RemovalFloor float64

	// DecayFactor multiplies every weight on each [Store.Decay] call.
	DecayFactor float64
}

// DefaultParams returns the default tuning.
func DefaultParams() Params {
	return Params{
		ReinforceStep:   DefaultReinforceStep,
		ConflictPenalty: DefaultConflictPenalty,
		ActivationFloor: DefaultActivationFloor,
		RemovalFloor:    DefaultRemovalFloor,
		DecayFactor:     DefaultDecayFactor,
	}
}

// EventKind discriminates profile events.
type EventKind string

const (
	// EventReinforce records a confirmed correction of RawPhrase to CommandID.
	EventReinforce EventKind = "reinforce"

	// EventDecay records a whole-profile decay by Factor.
	EventDecay EventKind = "decay"
)

// Event is one append-only profile mutation. Events are never edited after
// creation; the compacted profile is a pure fold over them.
type Event struct {
	ID        string
	UserID    string
	Kind      EventKind
	RawPhrase string
	CommandID string
	Factor    float64
	At        time.Time
}

// Entry is one compacted profile mapping.
type Entry struct {
	RawPhrase string
	CommandID string
	Weight    float64
	UpdatedAt time.Time
}

// Correction is the result of a successful [Store.Rewrite].
type Correction struct {
	CommandID string
	Weight    float64
}

// Store is the accent profile contract. Implementations must serialise
// writes per user while letting writes for different users proceed
// concurrently, and must keep the event log authoritative: the compacted
// state is always reproducible by replaying it.
type Store interface {
	// Rewrite returns the strongest stored correction for rawPhrase whose
	// weight meets the activation floor, or [ErrNoCorrection].
	Rewrite(ctx context.Context, userID, rawPhrase string) (Correction, error)

	// Reinforce records that rawPhrase was confirmed to mean commandID,
	// raising that mapping's weight (capped at 1.0) and penalising
	// conflicting mappings for the same phrase.
	Reinforce(ctx context.Context, userID, rawPhrase, commandID string) error

	// Decay multiplies all of the user's weights by the decay factor and
	// removes mappings that fall below the removal floor. Called on
	// session start or on a periodic schedule.
	Decay(ctx context.Context, userID string) error

	// Entries returns the user's compacted profile, for inspection and tests.
	Entries(ctx context.Context, userID string) ([]Entry, error)
}

// profile is the compacted state for one user:
// raw phrase → command id → weight.
type profile map[string]map[string]float64

// apply folds one event into the profile. It is the single source of truth
// for profile evolution — both store implementations and log replay use it.
func (p profile) apply(ev Event, prm Params) {
	switch ev.Kind {
	case EventReinforce:
		mappings := p[ev.RawPhrase]
		if mappings == nil {
			mappings = make(map[string]float64)
			p[ev.RawPhrase] = mappings
		}
		for cmd := range mappings {
			if cmd != ev.CommandID {
				mappings[cmd] -= prm.ConflictPenalty
			}
		}
		w := mappings[ev.CommandID] + prm.ReinforceStep
		if w > 1.0 {
			w = 1.0
		}
		mappings[ev.CommandID] = w
		p.compact(ev.RawPhrase, prm)

	case EventDecay:
		for raw, mappings := range p {
			for cmd := range mappings {
				mappings[cmd] *= ev.Factor
			}
			p.compact(raw, prm)
		}
	}
}

// compact removes mappings for raw that fell below the removal floor, and
// the phrase itself once no mappings remain.
func (p profile) compact(raw string, prm Params) {
	mappings := p[raw]
	for cmd, w := range mappings {
		if w < prm.RemovalFloor {
			delete(mappings, cmd)
		}
	}
	if len(mappings) == 0 {
		delete(p, raw)
	}
}

// best returns the strongest mapping for raw, if any.
func (p profile) best(raw string) (string, float64, bool) {
	var (
		bestCmd string
		bestW   float64
		found   bool
	)
	for cmd, w := range p[raw] {
		if !found || w > bestW || (w == bestW && cmd < bestCmd) {
			bestCmd, bestW, found = cmd, w, true
		}
	}
	return bestCmd, bestW, found
}

// replay folds events into a fresh profile.
func replay(events []Event, prm Params) profile {
	p := make(profile)
	for _, ev := range events {
		p.apply(ev, prm)
	}
	return p
}
