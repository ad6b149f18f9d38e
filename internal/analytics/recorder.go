// Package analytics keeps the append-only log of match attempts and derives
// aggregate statistics from it. The log is the source of truth: every
// aggregate is computed by folding over the events, so the numbers survive a
// crash and can always be recomputed from scratch.
package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wicaksana/slidesense/internal/accent"
	"github.com/wicaksana/slidesense/internal/match"
)

// OutcomeKind classifies what happened after a decision was delivered.
type OutcomeKind string

const (
	// KindAccepted means the decision was executed as-is.
	KindAccepted OutcomeKind = "accepted"

	// KindCorrected means the user corrected the decision to another
	// command. Recording a correction is the sole path through which
	// accent mappings are reinforced.
	KindCorrected OutcomeKind = "corrected-to"

	// KindIgnored means the decision led to no action, either because it
	// was rejected outright or the user abandoned a confirmation prompt.
	KindIgnored OutcomeKind = "ignored"
)

// Outcome is the post-decision verdict attached to an analytics event.
type Outcome struct {
	Kind OutcomeKind

	// CorrectedTo is the command the user actually meant. Set only for
	// [KindCorrected].
	CorrectedTo string
}

// Accepted reports the decision was executed unchanged.
func Accepted() Outcome { return Outcome{Kind: KindAccepted} }

// CorrectedTo reports the user redirected the decision to commandID.
func CorrectedTo(commandID string) Outcome {
	return Outcome{Kind: KindCorrected, CorrectedTo: commandID}
}

// Ignored reports the decision produced no action.
func Ignored() Outcome { return Outcome{Kind: KindIgnored} }

// Event is one recorded match attempt with its verdict.
type Event struct {
	ID          int64
	DecisionID  string
	UserID      string
	Input       string
	CommandID   string
	Confidence  float64
	Source      string
	Decision    string
	Outcome     OutcomeKind
	CorrectedTo string
	Elapsed     time.Duration
	CreatedAt   time.Time
}

// Stats are the folded aggregates for one command, or for the whole log when
// queried without a command id.
type Stats struct {
	Attempts       int
	Accepted       int
	HitRate        float64
	MeanConfidence float64
	MeanLatency    time.Duration
}

// UnrecognizedInput is a rejected utterance grouped by its normalized text,
// useful when deciding which aliases the vocabulary is missing.
type UnrecognizedInput struct {
	Input    string
	Count    int
	LastSeen time.Time
}

// Option configures a [Recorder].
type Option func(*Recorder)

// WithAccentStore wires the store that receives reinforcement when a
// correction is recorded.
func WithAccentStore(store accent.Store) Option {
	return func(r *Recorder) { r.accents = store }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Recorder) { r.log = log }
}

// Recorder is a SQLite-backed append-only analytics log.
//
// Safe for concurrent use; appends serialize on the database connection and
// the statistics cache is guarded independently.
type Recorder struct {
	db      *sql.DB
	log     *slog.Logger
	accents accent.Store
	clock   func() time.Time

	mu    sync.Mutex
	cache map[string]Stats
}

// Open opens (creating if necessary) the analytics log at path.
func Open(ctx context.Context, path string, opts ...Option) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("analytics: create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("analytics: open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("analytics: ping sqlite: %w", err)
	}

	r := &Recorder{
		db:    db,
		log:   slog.Default(),
		clock: time.Now,
		cache: make(map[string]Stats),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Recorder) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS match_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    decision_id TEXT NOT NULL,
    user_id TEXT,
    input TEXT NOT NULL,
    command_id TEXT,
    confidence REAL NOT NULL,
    source TEXT,
    decision TEXT NOT NULL,
    outcome TEXT NOT NULL,
    corrected_to TEXT,
    elapsed_us INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_match_events_command ON match_events(command_id);
CREATE INDEX IF NOT EXISTS idx_match_events_created ON match_events(created_at);
`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("analytics: init schema: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// Record appends one event for the decision with its verdict. A corrected
// verdict additionally reinforces the accent mapping for the decision's user
// and input; reinforcement failure is logged and does not fail the append.
func (r *Recorder) Record(ctx context.Context, d match.Decision, out Outcome) error {
	switch out.Kind {
	case KindAccepted, KindIgnored:
	case KindCorrected:
		if out.CorrectedTo == "" {
			return errors.New("analytics: corrected outcome requires a target command")
		}
	default:
		return fmt.Errorf("analytics: unknown outcome kind %q", out.Kind)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO match_events(decision_id, user_id, input, command_id, confidence,
		    source, decision, outcome, corrected_to, elapsed_us, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.Input, d.CommandID, d.Confidence,
		string(d.Source), string(d.Outcome), string(out.Kind), out.CorrectedTo,
		d.Elapsed.Microseconds(), r.clock().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("analytics: append event: %w", err)
	}

	r.mu.Lock()
	clear(r.cache)
	r.mu.Unlock()

	if out.Kind == KindCorrected && r.accents != nil && d.UserID != "" {
		if err := r.accents.Reinforce(ctx, d.UserID, d.Input, out.CorrectedTo); err != nil {
			r.log.Warn("accent reinforcement failed",
				slog.String("user_id", d.UserID),
				slog.String("command_id", out.CorrectedTo),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// Stats folds the event log into aggregates for commandID, or for every
// event when commandID is empty. Results are cached until the next append.
// An attempt "references" a command when it was either decided as that
// command or later corrected to it.
func (r *Recorder) Stats(ctx context.Context, commandID string) (Stats, error) {
	r.mu.Lock()
	if s, ok := r.cache[commandID]; ok {
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	query := `SELECT command_id, confidence, outcome, corrected_to, elapsed_us FROM match_events`
	args := []any{}
	if commandID != "" {
		query += ` WHERE command_id = ? OR corrected_to = ?`
		args = append(args, commandID, commandID)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Stats{}, fmt.Errorf("analytics: query events: %w", err)
	}
	defer rows.Close()

	var (
		s         Stats
		sumConf   float64
		sumMicros int64
	)
	for rows.Next() {
		var (
			cmd, outcome, corrected string
			conf                    float64
			micros                  int64
		)
		if err := rows.Scan(&cmd, &conf, &outcome, &corrected, &micros); err != nil {
			return Stats{}, fmt.Errorf("analytics: scan event: %w", err)
		}
		s.Attempts++
		sumConf += conf
		sumMicros += micros
		if OutcomeKind(outcome) == KindAccepted && (commandID == "" || cmd == commandID) {
			s.Accepted++
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("analytics: read events: %w", err)
	}

	if s.Attempts > 0 {
		s.HitRate = float64(s.Accepted) / float64(s.Attempts)
		s.MeanConfidence = sumConf / float64(s.Attempts)
		s.MeanLatency = time.Duration(sumMicros/int64(s.Attempts)) * time.Microsecond
	}

	r.mu.Lock()
	r.cache[commandID] = s
	r.mu.Unlock()
	return s, nil
}

// Unrecognized returns the most frequent rejected inputs, newest-first among
// equals, limited to limit entries (default 20).
func (r *Recorder) Unrecognized(ctx context.Context, limit int) ([]UnrecognizedInput, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT input, COUNT(*), MAX(created_at)
		 FROM match_events
		 WHERE decision = ? AND outcome = ?
		 GROUP BY input
		 ORDER BY COUNT(*) DESC, MAX(created_at) DESC
		 LIMIT ?`,
		string(match.OutcomeRejected), string(KindIgnored), limit)
	if err != nil {
		return nil, fmt.Errorf("analytics: query unrecognized: %w", err)
	}
	defer rows.Close()

	var out []UnrecognizedInput
	for rows.Next() {
		var (
			u    UnrecognizedInput
			seen string
		)
		if err := rows.Scan(&u.Input, &u.Count, &seen); err != nil {
			return nil, fmt.Errorf("analytics: scan unrecognized: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, seen); err == nil {
			u.LastSeen = ts
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Events returns up to limit raw events ordered oldest-first, for replay and
// inspection.
func (r *Recorder) Events(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, decision_id, user_id, input, command_id, confidence,
		    source, decision, outcome, corrected_to, elapsed_us, created_at
		 FROM match_events ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("analytics: query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e               Event
			outcome, source string
			decision        string
			micros          int64
			created         string
		)
		if err := rows.Scan(&e.ID, &e.DecisionID, &e.UserID, &e.Input, &e.CommandID,
			&e.Confidence, &source, &decision, &outcome, &e.CorrectedTo, &micros, &created); err != nil {
			return nil, fmt.Errorf("analytics: scan event: %w", err)
		}
		e.Source = source
		e.Decision = decision
		e.Outcome = OutcomeKind(outcome)
		e.Elapsed = time.Duration(micros) * time.Microsecond
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
