// Package control defines the contracts between the recognition engine and
// its collaborators: the transcription provider upstream and the automation
// and caption layers downstream. The engine consumes plain transcripts and
// hands out decisions; everything audio-, GUI- or OS-related lives behind
// these interfaces.
package control

import (
	"context"

	"github.com/wicaksana/slidesense/internal/match"
	"github.com/wicaksana/slidesense/internal/vocab"
)

// WordDetail is one transcribed word with the transcriber's confidence for
// it, in [0, 1].
type WordDetail struct {
	Word       string
	Confidence float64
}

// Transcript is a completed utterance as delivered by the transcription
// provider. Words is optional; providers without per-word confidence leave
// it empty.
type Transcript struct {
	Text  string
	Words []WordDetail
}

// MinWordConfidence returns the lowest per-word confidence in the
// transcript, or 0 when no word detail is available.
func (t Transcript) MinWordConfidence() float64 {
	if len(t.Words) == 0 {
		return 0
	}
	lowest := t.Words[0].Confidence
	for _, w := range t.Words[1:] {
		if w.Confidence < lowest {
			lowest = w.Confidence
		}
	}
	return lowest
}

// Automation executes command actions against the presentation software. It
// is invoked for accepted decisions only and never sees ambiguous or
// rejected state.
type Automation interface {
	Execute(ctx context.Context, action vocab.ActionTag) error
}

// Captioner renders user feedback for every decision, including ambiguous
// and rejected ones, so the caller can prompt for confirmation or show a
// "didn't catch that" message.
type Captioner interface {
	Show(ctx context.Context, decision match.Decision)
}
