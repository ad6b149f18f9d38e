// Package phonetic maps spoken phrases to compact consonant-skeleton codes
// used as a coarse candidate filter during command matching.
//
// Encoding is Soundex-based: each word in the normalized phrase is reduced to
// its Soundex code and the codes are concatenated into a fixed-length
// [Code]. Two phrases with equal codes sound alike at the resolution the
// matcher cares about; equality is only ever used as a tie-break signal,
// never as the sole match criterion.
package phonetic

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// CodeLength is the fixed length of every [Code]. Codes for long phrases are
// truncated; codes for short phrases are zero-padded.
const CodeLength = 12

// EmptyCode is the sentinel returned for input that normalizes to nothing
// (empty strings, pure punctuation). It never equals the code of any
// pronounceable phrase.
const EmptyCode = Code("000000000000")

// Code is a fixed-length phonetic code for a phrase. Equal phrases always
// yield equal codes.
type Code string

// Encode returns the phonetic code for phrase. It is a pure function:
// deterministic, no error conditions, safe for concurrent use.
//
// The phrase is normalized first (lowercased, punctuation stripped,
// whitespace collapsed), then each word is Soundex-encoded and the codes are
// concatenated, padded or truncated to [CodeLength].
func Encode(phrase string) Code {
	words := Tokenize(phrase)
	if len(words) == 0 {
		return EmptyCode
	}

	var b strings.Builder
	b.Grow(CodeLength)
	for _, w := range words {
		if b.Len() >= CodeLength {
			break
		}
		b.WriteString(matchr.Soundex(w))
	}

	code := b.String()
	if len(code) > CodeLength {
		code = code[:CodeLength]
	}
	for len(code) < CodeLength {
		code += "0"
	}
	return Code(code)
}

// Normalize lowercases phrase, strips punctuation and diacritic-free
// non-letter runes (digits are kept — commands like "f5" are real), and
// collapses runs of whitespace to single spaces. The same normalization is
// applied to vocabulary phrases and to transcribed input so that exact
// lookups and stored accent corrections compare like with like.
func Normalize(phrase string) string {
	return strings.Join(Tokenize(phrase), " ")
}

// Tokenize returns the normalized words of phrase in order. Empty or
// punctuation-only input yields a nil slice.
func Tokenize(phrase string) []string {
	var words []string
	var b strings.Builder

	flush := func() {
		if b.Len() > 0 {
			words = append(words, b.String())
			b.Reset()
		}
	}

	for _, r := range strings.ToLower(phrase) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '\'':
			// Apostrophes are silent: "don't" tokenizes as "dont".
		default:
			flush()
		}
	}
	flush()
	return words
}
