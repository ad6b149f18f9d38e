// Package app wires the SlideSense subsystems into a running service: the
// vocabulary (with optional hot reload), the accent store, the analytics
// log, the matcher, per-user sessions, and the admin HTTP server.
//
// The App struct owns the full lifecycle: New creates and connects the
// subsystems, Run executes the console and server loops, and Close tears
// everything down. For testing, inject collaborators via functional options
// (WithAccentStore, WithAutomation, etc.); when an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/wicaksana/slidesense/internal/accent"
	"github.com/wicaksana/slidesense/internal/analytics"
	"github.com/wicaksana/slidesense/internal/config"
	"github.com/wicaksana/slidesense/internal/health"
	"github.com/wicaksana/slidesense/internal/match"
	"github.com/wicaksana/slidesense/internal/observe"
	"github.com/wicaksana/slidesense/internal/resilience"
	"github.com/wicaksana/slidesense/internal/score"
	"github.com/wicaksana/slidesense/internal/vocab"
	"github.com/wicaksana/slidesense/pkg/control"
	"github.com/wicaksana/slidesense/pkg/control/mock"
)

// Option overrides a collaborator the App would otherwise build from config.
type Option func(*App)

// WithAccentStore injects the accent store, skipping backend construction.
func WithAccentStore(store accent.Store) Option {
	return func(a *App) { a.accents = store }
}

// WithAutomation injects the automation layer the sessions dispatch to.
func WithAutomation(auto control.Automation) Option {
	return func(a *App) { a.automation = auto }
}

// WithCaptioner injects the caption layer.
func WithCaptioner(cap control.Captioner) Option {
	return func(a *App) { a.captioner = cap }
}

// WithMetrics injects the metric instruments; tests use this to avoid the
// global meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithConsole redirects the interactive console's input and output.
func WithConsole(in io.Reader, out io.Writer) Option {
	return func(a *App) {
		a.consoleIn = in
		a.consoleOut = out
	}
}

// App owns the assembled service.
type App struct {
	cfg *config.Config

	vocabulary *vocab.Handle
	watcher    *vocab.Watcher
	accents    accent.Store
	guard      *resilience.GuardedStore
	pool       *pgxpool.Pool
	recorder   *analytics.Recorder
	matcher    *match.Matcher
	adjuster   *match.Adjuster
	metrics    *observe.Metrics
	sessions   *SessionManager
	automation control.Automation
	captioner  control.Captioner

	consoleIn  io.Reader
	consoleOut io.Writer
}

// New assembles an App from cfg. Call [App.Close] when done.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:        cfg,
		consoleIn:  os.Stdin,
		consoleOut: os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.automation == nil {
		a.automation = &mock.Automation{}
	}

	if err := a.buildVocabulary(); err != nil {
		return nil, err
	}
	if err := a.buildAccentStore(ctx); err != nil {
		return nil, err
	}
	if err := a.buildRecorder(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Adaptive.Enabled {
		a.adjuster = match.NewAdjuster(cfg.Adaptive.Floor, cfg.Adaptive.Ceil)
	}

	matchOpts := []match.Option{}
	if cfg.Matcher.DefaultThreshold > 0 {
		matchOpts = append(matchOpts, match.WithDefaultThreshold(cfg.Matcher.DefaultThreshold))
	}
	if cfg.Matcher.Margin > 0 {
		matchOpts = append(matchOpts, match.WithMargin(cfg.Matcher.Margin))
	}
	if a.accents != nil {
		matchOpts = append(matchOpts, match.WithAccentStore(a.accents))
	}
	if a.adjuster != nil {
		matchOpts = append(matchOpts, match.WithAdjuster(a.adjuster))
	}
	if cfg.Matcher.RequireUser {
		matchOpts = append(matchOpts, match.WithMandatoryIdentity())
	}
	a.matcher = match.New(a.vocabulary, score.New(), matchOpts...)

	a.sessions = NewSessionManager(SessionManagerConfig{
		Matcher:    a.matcher,
		Automation: a.automation,
		Captioner:  a.captioner,
		Recorder:   a.recorder,
		Adjuster:   a.adjuster,
		Accents:    a.accents,
		Metrics:    a.metrics,
		Cooldown:   time.Duration(cfg.Session.CooldownMS) * time.Millisecond,
	})

	return a, nil
}

func (a *App) buildVocabulary() error {
	if a.cfg.Vocabulary.Path == "" {
		a.vocabulary = vocab.NewHandle(vocab.Default())
		slog.Info("using built-in vocabulary", "commands", a.vocabulary.Current().Len())
		return nil
	}

	a.vocabulary = vocab.NewHandle(nil)
	if a.cfg.Vocabulary.ReloadIntervalSeconds > 0 {
		w, err := vocab.NewWatcher(a.cfg.Vocabulary.Path, a.vocabulary,
			vocab.WithInterval(time.Duration(a.cfg.Vocabulary.ReloadIntervalSeconds)*time.Second))
		if err != nil {
			return fmt.Errorf("app: vocabulary watcher: %w", err)
		}
		a.watcher = w
	} else {
		v, err := vocab.LoadFile(a.cfg.Vocabulary.Path)
		if err != nil {
			return fmt.Errorf("app: load vocabulary: %w", err)
		}
		a.vocabulary.Replace(v)
	}
	slog.Info("vocabulary loaded",
		"path", a.cfg.Vocabulary.Path,
		"commands", a.vocabulary.Current().Len())
	return nil
}

func (a *App) buildAccentStore(ctx context.Context) error {
	if a.accents != nil {
		return nil
	}

	prm := accent.DefaultParams()
	if v := a.cfg.Accent.ReinforceStep; v > 0 {
		prm.ReinforceStep = v
	}
	if v := a.cfg.Accent.ConflictPenalty; v > 0 {
		prm.ConflictPenalty = v
	}
	if v := a.cfg.Accent.ActivationFloor; v > 0 {
		prm.ActivationFloor = v
	}
	if v := a.cfg.Accent.RemovalFloor; v > 0 {
		prm.RemovalFloor = v
	}
	if v := a.cfg.Accent.DecayFactor; v > 0 {
		prm.DecayFactor = v
	}

	if a.cfg.Accent.Backend != config.AccentPostgres {
		a.accents = accent.NewMemStore(prm)
		return nil
	}

	pool, err := pgxpool.New(ctx, a.cfg.Accent.PostgresDSN)
	if err != nil {
		return fmt.Errorf("app: connect postgres: %w", err)
	}
	store := accent.NewPostgresStore(pool, prm)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("app: migrate accent schema: %w", err)
	}
	a.pool = pool
	// The breaker keeps matching responsive when postgres goes away: calls
	// fail fast and the matcher degrades to fuzzy-only.
	a.guard = resilience.NewGuardedStore(store, resilience.BreakerConfig{Name: "accent-store"})
	a.accents = a.guard
	slog.Info("accent store connected", "backend", "postgres")
	return nil
}

func (a *App) buildRecorder(ctx context.Context) error {
	if a.cfg.Analytics.Path == "" {
		return nil
	}
	rec, err := analytics.Open(ctx, a.cfg.Analytics.Path,
		analytics.WithAccentStore(a.accents))
	if err != nil {
		return fmt.Errorf("app: open analytics: %w", err)
	}
	a.recorder = rec
	slog.Info("analytics log open", "path", a.cfg.Analytics.Path)
	return nil
}

// Sessions returns the session manager; exposed for embedding callers that
// feed transcripts from their own transport.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Run executes the service loops until ctx is cancelled or the console
// closes: the interactive console, the admin HTTP server, and the periodic
// accent decay sweep.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.runConsole(ctx)
		if errors.Is(err, errConsoleClosed) {
			// Normal exit path; cancel the remaining loops.
			return context.Canceled
		}
		return err
	})

	if a.cfg.Server.ListenAddr != "" {
		g.Go(func() error { return a.runAdminServer(ctx) })
	}

	if interval := a.cfg.Accent.DecayIntervalMinutes; interval > 0 && a.accents != nil {
		g.Go(func() error {
			a.runDecaySweep(ctx, time.Duration(interval)*time.Minute)
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runAdminServer serves /metrics, /stats and the health probes until ctx
// is done.
func (a *App) runAdminServer(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/stats", a.handleStats)
	health.NewHandler(a.healthCheckers()...).Register(mux)

	srv := &http.Server{
		Addr:    a.cfg.Server.ListenAddr,
		Handler: observe.Middleware(a.metrics)(mux),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("admin server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("app: admin server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	}
}

// healthCheckers builds the readiness probes for the subsystems this App
// actually runs with.
func (a *App) healthCheckers() []health.Checker {
	checkers := []health.Checker{{
		Name: "vocabulary",
		Check: func(context.Context) error {
			if a.vocabulary.Current().Len() == 0 {
				return errors.New("no commands loaded")
			}
			return nil
		},
	}}
	if a.guard != nil {
		checkers = append(checkers, health.Checker{
			Name: "accent-store",
			Check: func(context.Context) error {
				if s := a.guard.State(); s != resilience.Closed {
					return fmt.Errorf("circuit %s", s)
				}
				return nil
			},
		})
	}
	if a.recorder != nil {
		checkers = append(checkers, health.Checker{
			Name: "analytics",
			Check: func(ctx context.Context) error {
				_, err := a.recorder.Stats(ctx, "")
				return err
			},
		})
	}
	return checkers
}

// handleStats reports folded analytics aggregates, optionally scoped with
// ?command_id=..., plus the adjuster's learning state.
func (a *App) handleStats(w http.ResponseWriter, r *http.Request) {
	payload := struct {
		Command      string                        `json:"command,omitempty"`
		Stats        *analytics.Stats              `json:"stats,omitempty"`
		Unrecognized []analytics.UnrecognizedInput `json:"unrecognized,omitempty"`
		Adaptive     *match.AdjusterStats          `json:"adaptive,omitempty"`
	}{}

	if a.recorder != nil {
		commandID := r.URL.Query().Get("command_id")
		s, err := a.recorder.Stats(r.Context(), commandID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		payload.Command = commandID
		payload.Stats = &s

		if u, err := a.recorder.Unrecognized(r.Context(), 20); err == nil {
			payload.Unrecognized = u
		}
	}
	if a.adjuster != nil {
		s := a.adjuster.Stats()
		payload.Adaptive = &s
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("stats encoding failed", "err", err)
	}
}

// runDecaySweep fades every known user's accent corrections on a fixed
// period, so stale mappings age out even for long-lived sessions.
func (a *App) runDecaySweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, userID := range a.sessions.Users() {
				if err := a.accents.Decay(ctx, userID); err != nil {
					slog.Warn("accent decay failed", "user_id", userID, "err", err)
				}
			}
		}
	}
}

// Close releases every resource the App owns.
func (a *App) Close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			slog.Warn("analytics close failed", "err", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
