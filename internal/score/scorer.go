// Package score computes normalized string similarity for command matching.
//
// The scorer combines two metrics and returns their weighted maximum:
//
//  1. Jaro-Winkler similarity on the full normalized strings, which rewards
//     matching prefixes and adjacent transpositions — the dominant error
//     shape when a word is mispronounced ("nex slyde" vs "next slide").
//  2. Token overlap, which rewards shared words regardless of order or
//     truncation — the dominant error shape when the speaker shortens a
//     phrase ("next" vs "next slide") or reorders it ("slide next").
//
// Taking the maximum rather than an average lets either metric carry a match
// on its own: a single blended score would dilute a strong prefix match with
// a weak token score and vice versa.
package score

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/wicaksana/slidesense/internal/phonetic"
)

const (
	defaultJaroWinklerWeight  = 1.0
	defaultTokenOverlapWeight = 0.9
)

// Option is a functional option for configuring a [Scorer].
type Option func(*Scorer)

// WithJaroWinklerWeight sets the multiplier applied to the Jaro-Winkler
// metric before the maximum is taken. Must be in (0, 1]. Default: 1.0.
func WithJaroWinklerWeight(w float64) Option {
	return func(s *Scorer) {
		s.jwWeight = w
	}
}

// WithTokenOverlapWeight sets the multiplier applied to the token-overlap
// metric before the maximum is taken. Must be in (0, 1]. Default: 0.9.
func WithTokenOverlapWeight(w float64) Option {
	return func(s *Scorer) {
		s.tokenWeight = w
	}
}

// Scorer computes similarity scores in [0, 1]. It is read-only after
// construction and safe for concurrent use.
type Scorer struct {
	jwWeight    float64
	tokenWeight float64
}

// New returns a [Scorer] configured with the supplied options.
func New(opts ...Option) *Scorer {
	s := &Scorer{
		jwWeight:    defaultJaroWinklerWeight,
		tokenWeight: defaultTokenOverlapWeight,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Score returns the similarity of a and b in [0, 1]. It is symmetric,
// deterministic, and returns exactly 1.0 when the normalized forms are
// equal and non-empty; two inputs that both normalize to empty score 0.
// Both inputs are normalized before comparison, so case, punctuation and
// whitespace differences never affect the score.
func (s *Scorer) Score(a, b string) float64 {
	aTokens := phonetic.Tokenize(a)
	bTokens := phonetic.Tokenize(b)

	aNorm := strings.Join(aTokens, " ")
	bNorm := strings.Join(bTokens, " ")

	if aNorm == bNorm {
		if aNorm == "" {
			return 0
		}
		return 1
	}
	if aNorm == "" || bNorm == "" {
		return 0
	}

	jw := matchr.JaroWinkler(aNorm, bNorm, false) * s.jwWeight

	// Concatenated comparison catches word-boundary drift in the STT output
	// ("slideshow" vs "slide show").
	concat := matchr.JaroWinkler(
		strings.Join(aTokens, ""),
		strings.Join(bTokens, ""),
		false,
	) * s.jwWeight
	if concat > jw {
		jw = concat
	}

	tok := tokenOverlap(aTokens, bTokens) * s.tokenWeight

	if tok > jw {
		return clamp01(tok)
	}
	return clamp01(jw)
}

// tokenOverlap returns a symmetric word-level similarity in [0, 1]. Each
// token is aligned with its best Jaro-Winkler counterpart in the other
// phrase; the two directional means are averaged, so a duplicated token
// cannot inflate one direction, and the result is damped by the length
// ratio so that matching one word out of two keeps most of the score while
// one word out of four does not.
func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	mean := (alignMean(a, b) + alignMean(b, a)) / 2

	short, long := len(a), len(b)
	if short > long {
		short, long = long, short
	}
	ratio := float64(short) / float64(long)
	return mean * (0.6 + 0.4*ratio)
}

// alignMean is the mean best-counterpart similarity of from's tokens in to.
func alignMean(from, to []string) float64 {
	var sum float64
	for _, ft := range from {
		best := 0.0
		for _, tt := range to {
			if v := matchr.JaroWinkler(ft, tt, false); v > best {
				best = v
			}
		}
		sum += best
	}
	return sum / float64(len(from))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
