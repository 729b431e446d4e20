package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nostrstore/nostrstore/internal/engine"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, engine.DefaultConfig(), cfg.Engine)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, DefaultMaxLineBytes, cfg.Feed.MaxLineBytes)
	assert.True(t, cfg.Feed.FromStart)
	assert.Equal(t, time.Second, cfg.Feed.RescanInterval)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nostrstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  map_size: 1073741824
  ingester_threads: 2
  subscription_overflow: drop-newest
logging:
  level: debug
  format: console
feed:
  from_start: false
  rescan_interval: 250ms
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(1<<30), cfg.Engine.MapSize)
	assert.Equal(t, 2, cfg.Engine.IngesterThreads)
	assert.Equal(t, engine.DefaultCommitBatchSize, cfg.Engine.CommitBatchSize)
	assert.Equal(t, engine.DefaultSubscriptionQueueSize, cfg.Engine.SubscriptionQueueSize)
	assert.Equal(t, engine.OverflowDropNewest, cfg.Engine.SubscriptionOverflow)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.False(t, cfg.Feed.FromStart)
	assert.Equal(t, 250*time.Millisecond, cfg.Feed.RescanInterval)
	assert.Equal(t, DefaultMaxLineBytes, cfg.Feed.MaxLineBytes)
}

func TestParse_UnboundedQueue(t *testing.T) {
	cfg, err := Parse([]byte("engine:\n  subscription_queue_size: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Engine.SubscriptionQueueSize)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{"not yaml", "engine: [", "parse config"},
		{"engine", "engine:\n  map_size: 10\n", "engine: map_size"},
		{"level", "logging:\n  level: loud\n", "unknown level"},
		{"format", "logging:\n  format: xml\n", "unknown format"},
		{"line size", "feed:\n  max_line_bytes: 10\n", "max_line_bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewLogger(t *testing.T) {
	logger, err := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(false)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1))
	assert.True(t, logger.Core().Enabled(1))

	logger, err = LoggingConfig{Level: "warn", Format: "console"}.NewLogger(true)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1), "verbose enables debug")

	_, err = LoggingConfig{Level: "nope"}.NewLogger(false)
	assert.Error(t, err)
}
