package match

import "sync"

// Adaptive tuning defaults, expressed on the [0, 1] confidence scale.
const (
	// adaptiveWindow is the number of recent outcomes considered.
	adaptiveWindow = 10

	// failureLoosen is subtracted from thresholds when more than half of
	// the recent attempts failed — the speaker is struggling, be lenient.
	failureLoosen = 0.05

	// successTighten is added to thresholds when recent accepted scores
	// are very high — headroom to cut false positives.
	successTighten = 0.05

	// successTightenAbove is the mean accepted score that triggers
	// tightening.
	successTightenAbove = 0.9

	// frequencyBonus is subtracted for commands accepted often; the
	// speaker clearly uses them, so lean towards recognising them.
	frequencyBonus = 0.03

	// frequencyAfter is the acceptance count that earns the bonus.
	frequencyAfter = 10

	// DefaultFloorBand and DefaultCeilBand clamp every adjusted threshold.
	DefaultFloorBand = 0.55
	DefaultCeilBand  = 0.90
)

// AdjusterStats is a snapshot of the adjuster's learning state.
type AdjusterStats struct {
	RecentSuccesses  int
	RecentFailures   int
	MeanSuccessScore float64
	CommandsSeen     int
}

// Adjuster tunes acceptance thresholds from recent match outcomes. A run of
// failures loosens thresholds (the vocabulary is there but the speaker is
// not being recognised); consistently high-scoring successes tighten them;
// frequently confirmed commands get a small leniency bonus.
//
// Safe for concurrent use.
type Adjuster struct {
	mu        sync.Mutex
	successes scoreBuffer
	failures  scoreBuffer
	attempts  int
	accepts   map[string]int

	floor float64
	ceil  float64
}

// NewAdjuster returns an [Adjuster] clamping adjusted thresholds to
// [floor, ceil]. Non-positive bounds fall back to the default band.
func NewAdjuster(floor, ceil float64) *Adjuster {
	if floor <= 0 {
		floor = DefaultFloorBand
	}
	if ceil <= 0 {
		ceil = DefaultCeilBand
	}
	return &Adjuster{
		successes: newScoreBuffer(adaptiveWindow),
		failures:  newScoreBuffer(adaptiveWindow),
		accepts:   make(map[string]int),
		floor:     floor,
		ceil:      ceil,
	}
}

// RecordSuccess records an accepted decision for commandID with its score.
func (a *Adjuster) RecordSuccess(commandID string, confidence float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.successes.add(confidence)
	a.attempts++
	a.accepts[commandID]++
}

// RecordFailure records a rejected or abandoned attempt with the best score
// it reached.
func (a *Adjuster) RecordFailure(bestScore float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures.add(bestScore)
	a.attempts++
}

// Adjust returns the effective threshold for commandID given its base
// threshold, clamped to the configured band.
func (a *Adjuster) Adjust(base float64, commandID string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	adjusted := base

	// Recent failure rate: loosen when over half the window failed.
	if a.failures.len() > adaptiveWindow/2 {
		adjusted -= failureLoosen
	}

	// Confidence trend: tighten when accepted scores run very high.
	if mean, ok := a.successes.mean(); ok && mean > successTightenAbove {
		adjusted += successTighten
	}

	// Frequent commands earn leniency.
	if a.accepts[commandID] >= frequencyAfter {
		adjusted -= frequencyBonus
	}

	switch {
	case adjusted < a.floor:
		return a.floor
	case adjusted > a.ceil:
		return a.ceil
	}
	return adjusted
}

// Stats returns a snapshot of the adjuster's state.
func (a *Adjuster) Stats() AdjusterStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := AdjusterStats{
		RecentSuccesses: a.successes.len(),
		RecentFailures:  a.failures.len(),
		CommandsSeen:    len(a.accepts),
	}
	if mean, ok := a.successes.mean(); ok {
		s.MeanSuccessScore = mean
	}
	return s
}

// scoreBuffer is a bounded ring buffer of recent scores.
type scoreBuffer struct {
	data []float64
	pos  int
	full bool
}

func newScoreBuffer(size int) scoreBuffer {
	return scoreBuffer{data: make([]float64, size)}
}

func (b *scoreBuffer) add(v float64) {
	b.data[b.pos] = v
	b.pos++
	if b.pos == len(b.data) {
		b.pos = 0
		b.full = true
	}
}

func (b *scoreBuffer) len() int {
	if b.full {
		return len(b.data)
	}
	return b.pos
}

func (b *scoreBuffer) mean() (float64, bool) {
	n := b.len()
	if n == 0 {
		return 0, false
	}
	var sum float64
	for i := range n {
		sum += b.data[i]
	}
	return sum / float64(n), true
}
