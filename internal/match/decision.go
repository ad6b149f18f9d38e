// Package match turns a transcribed utterance into a ranked command
// decision. It is the decision core of the engine: exact and alias lookups
// first, then stored accent corrections, then a fuzzy scan over the whole
// vocabulary, ending in a threshold-and-margin check that yields an
// accepted, ambiguous, or rejected outcome.
package match

import (
	"time"

	"github.com/wicaksana/slidesense/internal/vocab"
)

// Outcome classifies the result of a match attempt. Ambiguous and rejected
// are first-class outcomes, not errors: the caller owns what to do with
// them (ask for confirmation, say "didn't catch that").
type Outcome string

const (
	// OutcomeAccepted means the top candidate met its threshold and beat
	// the runner-up by the separation margin. Safe to execute.
	OutcomeAccepted Outcome = "accepted"

	// OutcomeAmbiguous means the top candidate met its threshold but the
	// runner-up was too close. The caller should confirm, never guess.
	OutcomeAmbiguous Outcome = "ambiguous"

	// OutcomeRejected means no candidate met its threshold.
	OutcomeRejected Outcome = "rejected"
)

// Source records which matching stage produced a candidate.
type Source string

const (
	// SourceExact is a normalized match against a canonical phrase.
	SourceExact Source = "exact"

	// SourceAlias is a normalized match against a command alias.
	SourceAlias Source = "alias"

	// SourceAccent is a stored accent correction for this user.
	SourceAccent Source = "accent-rewrite"

	// SourceFuzzy is a similarity-scored candidate from the full scan.
	SourceFuzzy Source = "fuzzy"
)

// Candidate is one scored command from a match attempt. Candidates are
// transient: produced and consumed within a single [Matcher.Match] call,
// surviving only as the Alternates of the resulting [Decision].
type Candidate struct {
	// CommandID identifies the command.
	CommandID string

	// Score is the raw similarity score in [0, 1].
	Score float64

	// PhoneticMatch reports whether the input's phonetic code equals one
	// of the command's phrase codes. Used only as a ranking tie-break.
	PhoneticMatch bool

	// Source is the stage that produced this candidate.
	Source Source
}

// Decision is the immutable result of one match attempt.
type Decision struct {
	// ID uniquely identifies this decision for analytics correlation.
	ID string

	// UserID is the identity the attempt was made for. May be empty when
	// accent lookup is not configured.
	UserID string

	// Input is the raw transcribed text as received.
	Input string

	// CommandID is the chosen (or, for ambiguous outcomes, suggested)
	// command. Empty when rejected.
	CommandID string

	// Action is the chosen command's side-effect tag, for the automation
	// layer. Empty when rejected.
	Action vocab.ActionTag

	// Confidence is the decision confidence in [0, 1].
	Confidence float64

	// Outcome classifies the attempt.
	Outcome Outcome

	// Source is the stage that produced the chosen candidate.
	Source Source

	// Alternates lists runner-up candidates in rank order.
	Alternates []Candidate

	// Timestamp is when the attempt started.
	Timestamp time.Time

	// Elapsed is how long the attempt took.
	Elapsed time.Duration
}

// Accepted reports whether the decision may be executed.
func (d Decision) Accepted() bool { return d.Outcome == OutcomeAccepted }
