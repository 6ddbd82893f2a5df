// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New builds a Config with every default filled in.
// - Load layers .env, an optional YAML file and HACKCAST_ env vars on top.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/okian/hackcast/internal/adapters/repository"
	"github.com/okian/hackcast/internal/domain/model"
	"github.com/okian/hackcast/internal/domain/normalize"
	"github.com/okian/hackcast/internal/domain/playback"
	"github.com/okian/hackcast/internal/domain/scoring"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: json or text.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// EventQueueSize bounds the in-memory change queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of ingest workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize caps the seen-id cache before the oldest half is evicted.
	DedupeSize int `koanf:"dedupe_size"`

	// DedupeBucket is the time bucket folded into synthetic event ids.
	DedupeBucket time.Duration `koanf:"dedupe_bucket"`

	// DefaultHackathon is aired first. Empty picks the first live hackathon.
	DefaultHackathon string `koanf:"default_hackathon"`

	// SeedDemo inserts the demo dataset on start.
	SeedDemo bool `koanf:"seed_demo"`

	Thresholds normalize.Thresholds `koanf:"thresholds"`
	Scoring    Scoring              `koanf:"scoring"`
	Timings    playback.Timings     `koanf:"timings"`
	Narration  Narration            `koanf:"narration"`
	AutoPause  AutoPause            `koanf:"auto_pause"`
	Database   repository.Config    `koanf:"db"`
	Redis      Redis                `koanf:"redis"`
	LLM        LLM                  `koanf:"llm"`
}

// Scoring tunes the hotness model.
type Scoring struct {
	// Weights maps priority names to the score an event adds.
	Weights         map[string]float64 `koanf:"weights"`
	HalfLife        time.Duration      `koanf:"half_life"`
	ActivationFloor float64            `koanf:"activation_floor"`
	// SwitchCadence is the number of completed scenes between switch checks.
	SwitchCadence int `koanf:"switch_cadence"`
}

// Narration tunes content generation.
type Narration struct {
	Timeout        time.Duration `koanf:"timeout"`
	MinLines       int           `koanf:"min_lines"`
	MaxLines       int           `koanf:"max_lines"`
	TickerLimit    int           `koanf:"ticker_limit"`
	WordsPerSecond float64       `koanf:"words_per_second"`
	MinLineSeconds float64       `koanf:"min_line_seconds"`
}

// AutoPause tunes the viewer-presence gate.
type AutoPause struct {
	Enabled            bool          `koanf:"enabled"`
	ZeroViewerDebounce time.Duration `koanf:"zero_viewer_debounce"`
}

// Redis configures the change feed. An empty Addr disables it.
type Redis struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Pattern  string `koanf:"pattern"`
}

// LLM configures the narrator. An empty APIKey means scripted commentary only.
type LLM struct {
	BaseURL     string  `koanf:"base_url"`
	APIKey      string  `koanf:"api_key"`
	Model       string  `koanf:"model"`
	MaxTokens   int     `koanf:"max_tokens"`
	Temperature float64 `koanf:"temperature"`
}

// New creates a Config with defaults.
func New() *Config {
	weights := make(map[string]float64)
	for p, w := range scoring.DefaultWeights() {
		weights[string(p)] = w
	}

	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		Addr:           ":9080",
		EventQueueSize: 10_000,
		WorkerCount:    runtime.NumCPU(),
		DedupeSize:     100,
		DedupeBucket:   5 * time.Second,
		SeedDemo:       false,
		Thresholds:     normalize.DefaultThresholds(),
		Scoring: Scoring{
			Weights:         weights,
			HalfLife:        2 * time.Minute,
			ActivationFloor: 20,
			SwitchCadence:   2,
		},
		Timings: playback.DefaultTimings(),
		Narration: Narration{
			Timeout:        8 * time.Second,
			MinLines:       3,
			MaxLines:       5,
			TickerLimit:    8,
			WordsPerSecond: 2.5,
			MinLineSeconds: 4,
		},
		AutoPause: AutoPause{
			Enabled:            true,
			ZeroViewerDebounce: 30 * time.Second,
		},
		Database: repository.Config{
			Driver: "sqlite",
			DSN:    "hackcast.db",
		},
		Redis: Redis{
			Pattern: "changes:*",
		},
		LLM: LLM{
			Model:       "gpt-4o-mini",
			MaxTokens:   80,
			Temperature: 0.8,
		},
	}
}

// PriorityWeights returns the scoring weights keyed by priority.
func (c *Config) PriorityWeights() map[model.Priority]float64 {
	out := make(map[model.Priority]float64, len(c.Scoring.Weights))
	for k, w := range c.Scoring.Weights {
		out[model.Priority(k)] = w
	}
	return out
}

// Validate checks the values that would otherwise fail at runtime.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.EventQueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.DedupeBucket <= 0:
		return fmt.Errorf("%w: dedupe_bucket must be positive", ErrInvalidConfig)
	case c.Scoring.HalfLife <= 0:
		return fmt.Errorf("%w: scoring.half_life must be positive", ErrInvalidConfig)
	case c.Scoring.SwitchCadence <= 0:
		return fmt.Errorf("%w: scoring.switch_cadence must be positive", ErrInvalidConfig)
	case c.Narration.MinLines <= 0 || c.Narration.MaxLines < c.Narration.MinLines:
		return fmt.Errorf("%w: narration line range %d..%d", ErrInvalidConfig, c.Narration.MinLines, c.Narration.MaxLines)
	case c.Database.Driver != "postgres" && c.Database.Driver != "sqlite":
		return fmt.Errorf("%w: db.driver must be postgres or sqlite, got %q", ErrInvalidConfig, c.Database.Driver)
	case c.Database.DSN == "":
		return fmt.Errorf("%w: db.dsn must not be empty", ErrInvalidConfig)
	}
	for k, w := range c.Scoring.Weights {
		if !model.Priority(k).Valid() {
			return fmt.Errorf("%w: unknown priority %q in scoring.weights", ErrInvalidConfig, k)
		}
		if w <= 0 {
			return fmt.Errorf("%w: scoring.weights.%s must be positive", ErrInvalidConfig, k)
		}
	}
	return nil
}
