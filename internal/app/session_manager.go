package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wicaksana/slidesense/internal/accent"
	"github.com/wicaksana/slidesense/internal/analytics"
	"github.com/wicaksana/slidesense/internal/match"
	"github.com/wicaksana/slidesense/internal/observe"
	"github.com/wicaksana/slidesense/internal/session"
	"github.com/wicaksana/slidesense/pkg/control"
)

// SessionManagerConfig holds the shared collaborators every session uses.
type SessionManagerConfig struct {
	Matcher    *match.Matcher
	Automation control.Automation
	Captioner  control.Captioner
	Recorder   *analytics.Recorder
	Adjuster   *match.Adjuster
	Accents    accent.Store
	Metrics    *observe.Metrics
	Cooldown   time.Duration
}

// SessionManager creates sessions lazily per user and routes transcripts to
// them. All exported methods are safe for concurrent use.
type SessionManager struct {
	cfg SessionManagerConfig

	mu       sync.Mutex
	sessions map[string]*session.Session
	last     map[string]match.Decision
}

// NewSessionManager creates a [SessionManager] from cfg.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	return &SessionManager{
		cfg:      cfg,
		sessions: make(map[string]*session.Session),
		last:     make(map[string]match.Decision),
	}
}

// Handle routes one transcript to userID's session, creating it on first
// use, and records the attempt's metrics.
func (m *SessionManager) Handle(ctx context.Context, userID string, tr control.Transcript) (session.Result, error) {
	s := m.get(ctx, userID)

	res, err := s.Handle(ctx, tr)
	if err != nil {
		return session.Result{}, err
	}
	if !res.CoolingDown {
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.RecordMatch(ctx,
				string(res.Decision.Outcome), string(res.Decision.Source),
				res.Decision.Elapsed)
		}
		m.mu.Lock()
		m.last[userID] = res.Decision
		m.mu.Unlock()
	}
	return res, nil
}

// Correct redirects userID's most recent decision to commandID, feeding the
// correction into analytics and accent learning. Returns false when there is
// no decision to correct.
func (m *SessionManager) Correct(ctx context.Context, userID, commandID string) bool {
	m.mu.Lock()
	d, ok := m.last[userID]
	s := m.sessions[userID]
	m.mu.Unlock()
	if !ok || s == nil {
		return false
	}

	s.Correct(ctx, d, commandID)
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.RecordCorrection(ctx, commandID)
	}
	return true
}

// Users returns the IDs of every user with a live session.
func (m *SessionManager) Users() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		users = append(users, id)
	}
	return users
}

// get returns userID's session, creating it on first use. A new session
// starts with a decay pass so corrections from previous runs fade unless
// re-confirmed.
func (m *SessionManager) get(ctx context.Context, userID string) *session.Session {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if !ok {
		s = session.New(session.Config{
			UserID:     userID,
			Matcher:    m.cfg.Matcher,
			Automation: m.cfg.Automation,
			Captioner:  m.cfg.Captioner,
			Recorder:   m.cfg.Recorder,
			Adjuster:   m.cfg.Adjuster,
			Cooldown:   m.cfg.Cooldown,
		})
		m.sessions[userID] = s
	}
	m.mu.Unlock()
	if ok {
		return s
	}

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.ActiveSessions.Add(ctx, 1)
	}
	if m.cfg.Accents != nil && userID != "" {
		if err := m.cfg.Accents.Decay(ctx, userID); err != nil {
			slog.Warn("session-start accent decay failed", "user_id", userID, "err", err)
		}
	}
	return s
}
