// Package config loads server configuration in layers: built-in defaults,
// an optional YAML file, then VYUHA_* environment variables. Command-line
// flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/vyuha/vyuha-lens/internal/ai"
)

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	History   HistoryConfig   `yaml:"history"`
	Paths     PathsConfig     `yaml:"paths"`
	Placement PlacementConfig `yaml:"placement"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Persist   PersistConfig   `yaml:"persistence"`
	AI        AIConfig        `yaml:"ai"`
	Feed      FeedConfig      `yaml:"feed"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

type ServerConfig struct {
	Port           int      `yaml:"port" validate:"min=1,max=65535"`
	LogLevel       string   `yaml:"log_level" validate:"oneof=debug info warn error"`
	StaticDir      string   `yaml:"static_dir"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

type StorageConfig struct {
	DBPath string `yaml:"db_path" validate:"required"`
}

type HistoryConfig struct {
	MaxDepth int `yaml:"max_depth" validate:"min=1,max=10000"`
}

type PathsConfig struct {
	MaxDepth         int `yaml:"max_depth" validate:"min=1,max=12"`
	BFSEdgeThreshold int `yaml:"bfs_edge_threshold" validate:"min=0"`
}

type PlacementConfig struct {
	Radius float64 `yaml:"radius" validate:"gt=0"`
}

type ReconcileConfig struct {
	// PositionedRatio is the share of positioned nodes above which a
	// snapshot keeps its layout.
	PositionedRatio float64 `yaml:"positioned_ratio" validate:"gt=0,lte=1"`
}

type PersistConfig struct {
	SaveDebounce time.Duration `yaml:"save_debounce" validate:"gte=0"`
	// RestoreOnStart reloads persisted sessions at startup.
	RestoreOnStart bool `yaml:"restore_on_start"`
}

type AIConfig struct {
	Provider  ai.ProviderConfig `yaml:",inline"`
	Workers   int               `yaml:"workers" validate:"min=1,max=32"`
	QueueSize int               `yaml:"queue_size" validate:"min=1"`
	Timeout   time.Duration     `yaml:"timeout" validate:"gt=0"`
}

type FeedConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`
}

type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second" validate:"gte=0"`
	Burst     int     `yaml:"burst" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			LogLevel:        "info",
			ShutdownTimeout: 10 * time.Second,
		},
		Storage:   StorageConfig{DBPath: "./vyuha-lens.db"},
		History:   HistoryConfig{MaxDepth: 50},
		Paths:     PathsConfig{MaxDepth: 3, BFSEdgeThreshold: 1000},
		Placement: PlacementConfig{Radius: 200},
		Reconcile: ReconcileConfig{PositionedRatio: 0.8},
		Persist:   PersistConfig{SaveDebounce: 2 * time.Second, RestoreOnStart: true},
		AI: AIConfig{
			Provider: ai.ProviderConfig{
				Kind:      ai.ProviderNone,
				Region:    "us-east-1",
				OllamaURL: "http://localhost:11434",
			},
			Workers:   2,
			QueueSize: 64,
			Timeout:   2 * time.Minute,
		},
		Feed:      FeedConfig{PollInterval: time.Second},
		RateLimit: RateLimitConfig{PerSecond: 50, Burst: 200},
	}
}

// Load returns the defaults overlaid with the YAML file at path (if path is
// non-empty) and then with the environment. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ---------------------------------------------------------------------------
// Environment
// ---------------------------------------------------------------------------

type lookupFunc func(string) (string, bool)

// applyEnv overrides fields from VYUHA_* variables. Empty values are
// ignored.
func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	integer("VYUHA_PORT", &c.Server.Port)
	str("VYUHA_LOG_LEVEL", &c.Server.LogLevel)
	str("VYUHA_STATIC_DIR", &c.Server.StaticDir)
	if v, ok := lookup("VYUHA_ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
	str("VYUHA_DB_PATH", &c.Storage.DBPath)
	integer("VYUHA_HISTORY_DEPTH", &c.History.MaxDepth)
	integer("VYUHA_PATH_MAX_DEPTH", &c.Paths.MaxDepth)
	integer("VYUHA_BFS_EDGE_THRESHOLD", &c.Paths.BFSEdgeThreshold)
	float("VYUHA_PLACEMENT_RADIUS", &c.Placement.Radius)
	float("VYUHA_POSITIONED_RATIO", &c.Reconcile.PositionedRatio)
	duration("VYUHA_SAVE_DEBOUNCE", &c.Persist.SaveDebounce)
	boolean("VYUHA_RESTORE_ON_START", &c.Persist.RestoreOnStart)

	var kind string
	str("VYUHA_AI_PROVIDER", &kind)
	if kind != "" {
		c.AI.Provider.Kind = ai.ProviderKind(kind)
	}
	str("VYUHA_AI_REGION", &c.AI.Provider.Region)
	str("VYUHA_AI_MODEL", &c.AI.Provider.Model)
	str("VYUHA_OLLAMA_URL", &c.AI.Provider.OllamaURL)
	integer("VYUHA_AI_WORKERS", &c.AI.Workers)

	duration("VYUHA_FEED_POLL_INTERVAL", &c.Feed.PollInterval)
	float("VYUHA_RATE_LIMIT", &c.RateLimit.PerSecond)
	integer("VYUHA_RATE_BURST", &c.RateLimit.Burst)

	return errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

var validate = validator.New()

// Validate checks field ranges and the AI provider settings.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
		return fmt.Errorf("config: invalid:\n  - %s", strings.Join(msgs, "\n  - "))
	}
	if err := c.AI.Provider.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
