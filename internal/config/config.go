// Package config loads the nostrstore YAML configuration file.
//
// A file has three optional sections:
//
//	engine:
//	  map_size: 34359738368
//	  ingester_threads: 3
//	  commit_batch_size: 256
//	  subscription_queue_size: 4096
//	  subscription_overflow: drop-oldest
//	logging:
//	  level: info
//	  format: json
//	feed:
//	  max_line_bytes: 1048576
//	  from_start: true
//	  rescan_interval: 1s
//
// Omitted fields keep their defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/nostrstore/nostrstore/internal/engine"
)

// Config is the complete configuration of a nostrstore process.
type Config struct {
	Engine  engine.Config `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
	Feed    FeedConfig    `yaml:"feed"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | console
}

// FeedConfig holds settings for reading and following JSONL event files.
type FeedConfig struct {
	// MaxLineBytes bounds a single event line.
	MaxLineBytes int `yaml:"max_line_bytes"`

	// FromStart replays a followed file's existing lines before tailing.
	FromStart bool `yaml:"from_start"`

	// RescanInterval is how often a followed file is checked for
	// truncation or replacement when no change notification arrives.
	RescanInterval time.Duration `yaml:"rescan_interval"`
}

// Defaults.
const (
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	DefaultMaxLineBytes   = 1 << 20
	DefaultRescanInterval = time.Second
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		Engine: engine.DefaultConfig(),
		Feed:   FeedConfig{FromStart: true},
	}
	setDefaults(cfg)
	return cfg
}

// Load reads path on top of Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	setDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.Engine.SetDefaults()
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
	if cfg.Feed.MaxLineBytes == 0 {
		cfg.Feed.MaxLineBytes = DefaultMaxLineBytes
	}
	if cfg.Feed.RescanInterval == 0 {
		cfg.Feed.RescanInterval = DefaultRescanInterval
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging: unknown format %q", c.Logging.Format)
	}
	if c.Feed.MaxLineBytes < 1024 {
		return fmt.Errorf("feed: max_line_bytes must be at least 1024, got %d", c.Feed.MaxLineBytes)
	}
	if c.Feed.RescanInterval < 0 {
		return fmt.Errorf("feed: rescan_interval must not be negative")
	}
	return nil
}

func parseLevel(s string) (zapcore.Level, error) {
	switch s {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown level %q", s)
	}
}

// NewLogger builds the process logger. Logs go to stderr so that command
// output on stdout stays machine-readable. verbose forces debug level.
func (l LoggingConfig) NewLogger(verbose bool) (*zap.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = zapcore.DebugLevel
	}

	var zc zap.Config
	if l.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
