package vocab

import (
	"errors"
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/wicaksana/slidesense/internal/phonetic"
)

// Vocabulary is an immutable, validated registry of [CommandDefinition]s.
// All methods are safe for concurrent use without synchronisation.
type Vocabulary struct {
	defs  []CommandDefinition
	exact map[string]int             // normalized phrase/alias → index into defs
	byID  map[string]int             // command ID → index into defs
	codes map[string][]phonetic.Code // command ID → codes of phrase + aliases
}

// Load validates definitions and builds a [Vocabulary]. It returns a
// [*ValidationError] when any id is empty or duplicated, any phrase is
// empty, or two commands share a phrase or alias after normalization.
// Validation reports every problem found, not just the first.
func Load(definitions []CommandDefinition) (*Vocabulary, error) {
	var errs []error

	v := &Vocabulary{
		defs:  make([]CommandDefinition, len(definitions)),
		exact: make(map[string]int),
		byID:  make(map[string]int, len(definitions)),
		codes: make(map[string][]phonetic.Code, len(definitions)),
	}
	copy(v.defs, definitions)

	seenIDs := make(map[string]int, len(definitions))
	phraseOwner := make(map[string]string) // normalized phrase → command ID

	for i, def := range v.defs {
		prefix := fmt.Sprintf("commands[%d]", i)

		if def.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else if prev, dup := seenIDs[def.ID]; dup {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of commands[%d]", prefix, def.ID, prev))
		} else {
			seenIDs[def.ID] = i
			v.byID[def.ID] = i
		}

		if def.Threshold < 0 || def.Threshold > 1 {
			errs = append(errs, fmt.Errorf("%s.threshold %.2f is out of range [0, 1]", prefix, def.Threshold))
		}

		for _, raw := range append([]string{def.Phrase}, def.Aliases...) {
			norm := phonetic.Normalize(raw)
			if norm == "" {
				errs = append(errs, fmt.Errorf("%s: phrase %q normalizes to nothing", prefix, raw))
				continue
			}
			if owner, taken := phraseOwner[norm]; taken {
				if owner != def.ID {
					errs = append(errs, fmt.Errorf("%s: phrase %q collides with command %q", prefix, raw, owner))
				}
				// Repeating a phrase within one command is harmless.
				continue
			}
			phraseOwner[norm] = def.ID
			v.exact[norm] = i
			v.codes[def.ID] = append(v.codes[def.ID], phonetic.Encode(norm))
		}
	}

	if joined := errors.Join(errs...); joined != nil {
		return nil, &ValidationError{err: joined}
	}
	return v, nil
}

// Len returns the number of commands.
func (v *Vocabulary) Len() int { return len(v.defs) }

// Candidates returns a lazy, restartable sequence over all command
// definitions in load order.
func (v *Vocabulary) Candidates() iter.Seq[CommandDefinition] {
	return func(yield func(CommandDefinition) bool) {
		for _, def := range v.defs {
			if !yield(def) {
				return
			}
		}
	}
}

// LookupExact returns the command whose canonical phrase or alias equals
// phrase after normalization. The second result reports whether a command
// was found.
func (v *Vocabulary) LookupExact(phrase string) (CommandDefinition, bool) {
	i, ok := v.exact[phonetic.Normalize(phrase)]
	if !ok {
		return CommandDefinition{}, false
	}
	return v.defs[i], true
}

// ByID returns the command with the given id, if present.
func (v *Vocabulary) ByID(id string) (CommandDefinition, bool) {
	i, ok := v.byID[id]
	if !ok {
		return CommandDefinition{}, false
	}
	return v.defs[i], true
}

// Codes returns the precomputed phonetic codes for the command's canonical
// phrase and aliases. The returned slice must not be mutated.
func (v *Vocabulary) Codes(id string) []phonetic.Code {
	return v.codes[id]
}

// Handle is a shared reference to the current [Vocabulary]. Readers call
// [Handle.Current]; a reload swaps the whole vocabulary atomically so
// readers observe either the old or the new one, never a mix.
type Handle struct {
	ptr atomic.Pointer[Vocabulary]
}

// NewHandle returns a Handle serving v.
func NewHandle(v *Vocabulary) *Handle {
	h := &Handle{}
	h.ptr.Store(v)
	return h
}

// Current returns the vocabulary in effect right now.
func (h *Handle) Current() *Vocabulary {
	return h.ptr.Load()
}

// Replace atomically installs v as the current vocabulary.
func (h *Handle) Replace(v *Vocabulary) {
	h.ptr.Store(v)
}
