package score_test

import (
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/wicaksana/slidesense/internal/score"
)

// phraseGen draws short word sequences shaped like spoken commands.
func phraseGen() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-z]{1,8}( [a-z]{1,8}){0,3}`)
}

// phrasePairGen draws two phrases built from one small word pool, so the
// pair is likely to share tokens, repeat them, and have equal token counts.
// Independent random phrases rarely exercise those alignment cases.
func phrasePairGen() *rapid.Generator[[2]string] {
	return rapid.Custom(func(rt *rapid.T) [2]string {
		pool := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,8}`), 2, 4).Draw(rt, "pool")
		phrase := func(label string) string {
			words := rapid.SliceOfN(rapid.SampledFrom(pool), 1, 4).Draw(rt, label)
			return strings.Join(words, " ")
		}
		return [2]string{phrase("a"), phrase("b")}
	})
}

func TestScoreProperty_IdentityIsOne(t *testing.T) {
	t.Parallel()

	s := score.New()
	rapid.Check(t, func(rt *rapid.T) {
		p := phraseGen().Draw(rt, "phrase")
		if got := s.Score(p, p); got != 1.0 {
			rt.Fatalf("Score(%q, %q) = %f, want 1.0", p, p, got)
		}
	})
}

func TestScoreProperty_Symmetric(t *testing.T) {
	t.Parallel()

	s := score.New()
	rapid.Check(t, func(rt *rapid.T) {
		a := phraseGen().Draw(rt, "a")
		b := phraseGen().Draw(rt, "b")
		if ab, ba := s.Score(a, b), s.Score(b, a); ab != ba {
			rt.Fatalf("Score(%q,%q)=%f != Score(%q,%q)=%f", a, b, ab, b, a, ba)
		}
	})
}

func TestScoreProperty_SymmetricOnSharedTokens(t *testing.T) {
	t.Parallel()

	s := score.New()
	rapid.Check(t, func(rt *rapid.T) {
		p := phrasePairGen().Draw(rt, "pair")
		if ab, ba := s.Score(p[0], p[1]), s.Score(p[1], p[0]); ab != ba {
			rt.Fatalf("Score(%q,%q)=%f != Score(%q,%q)=%f", p[0], p[1], ab, p[1], p[0], ba)
		}
	})
}

func TestScoreProperty_InRange(t *testing.T) {
	t.Parallel()

	s := score.New()
	rapid.Check(t, func(rt *rapid.T) {
		a := rapid.String().Draw(rt, "a")
		b := rapid.String().Draw(rt, "b")
		got := s.Score(a, b)
		if got < 0 || got > 1 {
			rt.Fatalf("Score(%q,%q) = %f, out of [0,1]", a, b, got)
		}
	})
}
