// Package vocab holds the command vocabulary: the closed set of commands the
// engine can recognise, their spoken aliases, and per-command tuning.
//
// A [Vocabulary] is immutable once built. Reload is a full replace through a
// [Handle] so concurrent readers always see a consistent vocabulary, never a
// partially updated one.
package vocab

import "fmt"

// ActionTag names the external action a command triggers. It is opaque to
// the engine — the automation layer interprets it.
type ActionTag string

// Built-in action tags for the stock presentation vocabulary.
const (
	ActionSlideNext     ActionTag = "slide.next"
	ActionSlidePrevious ActionTag = "slide.previous"
	ActionShowOpen      ActionTag = "show.open"
	ActionShowClose     ActionTag = "show.close"
	ActionHelp          ActionTag = "app.help"
	ActionStop          ActionTag = "app.stop"
	ActionCaptionOn     ActionTag = "caption.on"
	ActionCaptionOff    ActionTag = "caption.off"
	ActionStats         ActionTag = "app.stats"
)

// CommandDefinition describes one recognisable command. Immutable once the
// vocabulary is loaded.
type CommandDefinition struct {
	// ID is the stable identifier referenced by accent profiles and
	// analytics. Required, unique.
	ID string `yaml:"id"`

	// Phrase is the canonical spoken form (e.g., "next slide").
	Phrase string `yaml:"phrase"`

	// Aliases are additional spoken forms. Aliases must be globally unique
	// across the vocabulary after normalization.
	Aliases []string `yaml:"aliases,omitempty"`

	// Threshold overrides the matcher's default acceptance threshold for
	// this command. Zero means "use the default".
	Threshold float64 `yaml:"threshold,omitempty"`

	// Action is the side-effect tag handed to the automation layer when
	// this command is accepted.
	Action ActionTag `yaml:"action"`
}

// ValidationError reports a malformed vocabulary. A load that returns a
// ValidationError has loaded nothing — the previous vocabulary, if any,
// stays in effect.
type ValidationError struct {
	err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("vocab: invalid vocabulary: %v", e.err)
}

// Unwrap returns the joined field errors.
func (e *ValidationError) Unwrap() error { return e.err }
