package accent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wicaksana/slidesense/internal/phonetic"
)

// Schema is the SQL DDL for the accent tables. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
//
// accent_events is the append-only source of truth; accent_profiles is the
// compacted index the matcher reads. [PostgresStore.RebuildUser] restores
// the index from the events after a crash or a tuning change.
const Schema = `
CREATE TABLE IF NOT EXISTS accent_events (
    id          UUID PRIMARY KEY,
    user_id     TEXT NOT NULL,
    kind        TEXT NOT NULL,
    raw_phrase  TEXT NOT NULL DEFAULT '',
    command_id  TEXT NOT NULL DEFAULT '',
    factor      DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_accent_events_user ON accent_events(user_id, created_at);

CREATE TABLE IF NOT EXISTS accent_profiles (
    user_id     TEXT NOT NULL,
    raw_phrase  TEXT NOT NULL,
    command_id  TEXT NOT NULL,
    weight      DOUBLE PRECISION NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, raw_phrase, command_id)
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore is a [Store] backed by PostgreSQL. Per-user write ordering
// is serialised by row-level locks on the user's profile rows; writes for
// different users proceed concurrently.
type PostgresStore struct {
	db  DB
	prm Params
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] using the given connection or
// pool. The caller is responsible for calling [PostgresStore.Migrate] before
// issuing queries.
func NewPostgresStore(db DB, prm Params) *PostgresStore {
	return &PostgresStore{db: db, prm: prm}
}

// Migrate executes the [Schema] DDL.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("accent: migrate: %w", err)
	}
	return nil
}

// Rewrite implements [Store.Rewrite].
func (s *PostgresStore) Rewrite(ctx context.Context, userID, rawPhrase string) (Correction, error) {
	if userID == "" {
		return Correction{}, fmt.Errorf("accent: rewrite: user id is required")
	}
	raw := phonetic.Normalize(rawPhrase)

	const query = `
		SELECT command_id, weight FROM accent_profiles
		WHERE user_id = $1 AND raw_phrase = $2 AND weight >= $3
		ORDER BY weight DESC, command_id ASC
		LIMIT 1`

	var c Correction
	err := s.db.QueryRow(ctx, query, userID, raw, s.prm.ActivationFloor).
		Scan(&c.CommandID, &c.Weight)
	if errors.Is(err, pgx.ErrNoRows) {
		return Correction{}, ErrNoCorrection
	}
	if err != nil {
		return Correction{}, fmt.Errorf("accent: rewrite: %w", err)
	}
	return c, nil
}

// Reinforce implements [Store.Reinforce]. The event append and the index
// update commit atomically.
func (s *PostgresStore) Reinforce(ctx context.Context, userID, rawPhrase, commandID string) error {
	if userID == "" {
		return fmt.Errorf("accent: reinforce: user id is required")
	}
	if commandID == "" {
		return fmt.Errorf("accent: reinforce: command id is required")
	}
	raw := phonetic.Normalize(rawPhrase)
	if raw == "" {
		return fmt.Errorf("accent: reinforce: phrase %q normalizes to nothing", rawPhrase)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("accent: reinforce: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	if _, err := tx.Exec(ctx,
		`INSERT INTO accent_events (id, user_id, kind, raw_phrase, command_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), userID, string(EventReinforce), raw, commandID, now,
	); err != nil {
		return fmt.Errorf("accent: reinforce: append event: %w", err)
	}

	// Contradicted mappings lose weight first so the upsert below sees the
	// penalised state, mirroring profile.apply.
	if _, err := tx.Exec(ctx,
		`UPDATE accent_profiles SET weight = weight - $4, updated_at = $5
		 WHERE user_id = $1 AND raw_phrase = $2 AND command_id <> $3`,
		userID, raw, commandID, s.prm.ConflictPenalty, now,
	); err != nil {
		return fmt.Errorf("accent: reinforce: penalise conflicts: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO accent_profiles (user_id, raw_phrase, command_id, weight, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, raw_phrase, command_id)
		 DO UPDATE SET weight = LEAST(1.0, accent_profiles.weight + $4), updated_at = $5`,
		userID, raw, commandID, s.prm.ReinforceStep, now,
	); err != nil {
		return fmt.Errorf("accent: reinforce: upsert: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM accent_profiles WHERE user_id = $1 AND weight < $2`,
		userID, s.prm.RemovalFloor,
	); err != nil {
		return fmt.Errorf("accent: reinforce: prune: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("accent: reinforce: commit: %w", err)
	}
	return nil
}

// Decay implements [Store.Decay].
func (s *PostgresStore) Decay(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("accent: decay: user id is required")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("accent: decay: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	if _, err := tx.Exec(ctx,
		`INSERT INTO accent_events (id, user_id, kind, factor, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), userID, string(EventDecay), s.prm.DecayFactor, now,
	); err != nil {
		return fmt.Errorf("accent: decay: append event: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE accent_profiles SET weight = weight * $2, updated_at = $3 WHERE user_id = $1`,
		userID, s.prm.DecayFactor, now,
	); err != nil {
		return fmt.Errorf("accent: decay: apply: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM accent_profiles WHERE user_id = $1 AND weight < $2`,
		userID, s.prm.RemovalFloor,
	); err != nil {
		return fmt.Errorf("accent: decay: prune: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("accent: decay: commit: %w", err)
	}
	return nil
}

// Entries implements [Store.Entries].
func (s *PostgresStore) Entries(ctx context.Context, userID string) ([]Entry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT raw_phrase, command_id, weight, updated_at FROM accent_profiles
		 WHERE user_id = $1 ORDER BY raw_phrase, command_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("accent: entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RawPhrase, &e.CommandID, &e.Weight, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("accent: entries: scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("accent: entries: %w", err)
	}
	return entries, nil
}

// RebuildUser discards the user's compacted profile and reconstructs it by
// replaying the event log. This is the recovery path after a crash or after
// changing the tuning parameters.
func (s *PostgresStore) RebuildUser(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("accent: rebuild: user id is required")
	}

	events, err := s.userEvents(ctx, userID)
	if err != nil {
		return err
	}
	rebuilt := replay(events, s.prm)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("accent: rebuild: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM accent_profiles WHERE user_id = $1`, userID,
	); err != nil {
		return fmt.Errorf("accent: rebuild: clear: %w", err)
	}

	now := time.Now().UTC()
	for raw, mappings := range rebuilt {
		for cmd, w := range mappings {
			if _, err := tx.Exec(ctx,
				`INSERT INTO accent_profiles (user_id, raw_phrase, command_id, weight, updated_at)
				 VALUES ($1, $2, $3, $4, $5)`,
				userID, raw, cmd, w, now,
			); err != nil {
				return fmt.Errorf("accent: rebuild: insert: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("accent: rebuild: commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) userEvents(ctx context.Context, userID string) ([]Event, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, kind, raw_phrase, command_id, factor, created_at
		 FROM accent_events WHERE user_id = $1 ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("accent: load events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev := Event{UserID: userID}
		var kind string
		if err := rows.Scan(&ev.ID, &kind, &ev.RawPhrase, &ev.CommandID, &ev.Factor, &ev.At); err != nil {
			return nil, fmt.Errorf("accent: load events: scan: %w", err)
		}
		ev.Kind = EventKind(kind)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("accent: load events: %w", err)
	}
	return events, nil
}
