// Package config provides the configuration schema and loader for the
// SlideSense recognition service.
package config

// LogLevel controls log verbosity for the service.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// AccentBackend selects where accent profiles are persisted.
type AccentBackend string

const (
	// AccentMemory keeps profiles in process memory only.
	AccentMemory AccentBackend = "memory"

	// AccentPostgres persists profiles and their event log in PostgreSQL.
	AccentPostgres AccentBackend = "postgres"
)

// IsValid reports whether b is a recognised accent backend.
func (b AccentBackend) IsValid() bool {
	return b == AccentMemory || b == AccentPostgres
}

// Config is the root configuration structure, typically loaded from a YAML
// file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Vocabulary VocabularyConfig `yaml:"vocabulary"`
	Matcher    MatcherConfig    `yaml:"matcher"`
	Accent     AccentConfig     `yaml:"accent"`
	Adaptive   AdaptiveConfig   `yaml:"adaptive"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	Session    SessionConfig    `yaml:"session"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the admin/metrics server listens on
	// (e.g., ":9090"). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// VocabularyConfig locates the command vocabulary definition.
type VocabularyConfig struct {
	// Path is the vocabulary YAML file. Empty uses the built-in default
	// vocabulary.
	Path string `yaml:"path"`

	// ReloadIntervalSeconds is how often the file is polled for changes.
	// Zero disables hot reload.
	ReloadIntervalSeconds int `yaml:"reload_interval_seconds"`
}

// MatcherConfig holds the matching tunables.
type MatcherConfig struct {
	// DefaultThreshold is the acceptance threshold for commands without
	// their own. Zero uses the built-in default.
	DefaultThreshold float64 `yaml:"default_threshold"`

	// Margin is the minimum score separation between the top candidate
	// and the runner-up before a match is accepted outright.
	Margin float64 `yaml:"margin"`

	// RequireUser makes a missing user id a hard error instead of
	// skipping accent lookup.
	RequireUser bool `yaml:"require_user"`
}

// AccentConfig holds the accent profile store settings.
type AccentConfig struct {
	// Backend selects the persistence layer.
	Backend AccentBackend `yaml:"backend"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`

	// ReinforceStep, ConflictPenalty, ActivationFloor, RemovalFloor and
	// DecayFactor override the learning parameters. Zero values use the
	// built-in defaults.
	ReinforceStep   float64 `yaml:"reinforce_step"`
	ConflictPenalty float64 `yaml:"conflict_penalty"`
	ActivationFloor float64 `yaml:"activation_floor"`
	RemovalFloor    float64 `yaml:"removal_floor"`
	DecayFactor     float64 `yaml:"decay_factor"`

	// DecayIntervalMinutes is how often per-user decay runs. Zero
	// disables the periodic sweep.
	DecayIntervalMinutes int `yaml:"decay_interval_minutes"`
}

// AdaptiveConfig holds the adaptive threshold adjuster settings.
type AdaptiveConfig struct {
	// Enabled turns adaptive threshold tuning on.
	Enabled bool `yaml:"enabled"`

	// Floor and Ceil bound every adjusted threshold. Zero values use the
	// built-in band.
	Floor float64 `yaml:"floor"`
	Ceil  float64 `yaml:"ceil"`
}

// AnalyticsConfig holds the analytics log settings.
type AnalyticsConfig struct {
	// Path is the SQLite database file. Empty disables analytics.
	Path string `yaml:"path"`
}

// SessionConfig holds per-session interaction settings.
type SessionConfig struct {
	// CooldownMS is the quiet window after an executed command, in
	// milliseconds. Zero uses the built-in default; negative disables it.
	CooldownMS int `yaml:"cooldown_ms"`
}
