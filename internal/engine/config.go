package engine

import (
	"fmt"
	"runtime"
)

// Overflow policies for a full subscription queue.
const (
	// OverflowDropOldest discards the oldest pending key to make room.
	OverflowDropOldest = "drop-oldest"

	// OverflowDropNewest discards the incoming key.
	OverflowDropNewest = "drop-newest"

	// OverflowGrow ignores the bound. Memory is then the caller's problem:
	// a subscription that is never polled grows without limit.
	OverflowGrow = "grow"
)

// Defaults applied to zero-valued Config fields.
const (
	DefaultMapSize               int64 = 32 << 30
	DefaultCommitBatchSize             = 256
	DefaultSubscriptionQueueSize       = 4096
	DefaultQueryLimit                  = 500

	// MinMapSize is the smallest accepted map size.
	MinMapSize int64 = 1 << 20
)

// Config holds engine configuration.
type Config struct {
	// MapSize is the maximum size in bytes the database may grow to.
	MapSize int64 `yaml:"map_size"`

	// IngesterThreads is the number of concurrent ingestion workers.
	IngesterThreads int `yaml:"ingester_threads"`

	// CommitBatchSize caps the records written per transaction.
	CommitBatchSize int `yaml:"commit_batch_size"`

	// SubscriptionQueueSize bounds each subscription's pending queue.
	// 0 means unbounded.
	SubscriptionQueueSize int `yaml:"subscription_queue_size"`

	// SubscriptionOverflow is one of the Overflow* policies.
	SubscriptionOverflow string `yaml:"subscription_overflow"`

	// SkipSignatureCheck disables Schnorr verification. Ids are still
	// checked.
	SkipSignatureCheck bool `yaml:"skip_signature_check"`
}

// DefaultConfig returns a configuration with every default applied.
// Callers should start from it and override fields: SubscriptionQueueSize
// is the one field whose zero value (unbounded) is not filled in by
// SetDefaults.
func DefaultConfig() Config {
	cfg := Config{SubscriptionQueueSize: DefaultSubscriptionQueueSize}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.MapSize == 0 {
		c.MapSize = DefaultMapSize
	}
	if c.IngesterThreads == 0 {
		c.IngesterThreads = max(runtime.GOMAXPROCS(0)-1, 1)
	}
	if c.CommitBatchSize == 0 {
		c.CommitBatchSize = DefaultCommitBatchSize
	}
	if c.SubscriptionOverflow == "" {
		c.SubscriptionOverflow = OverflowDropOldest
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MapSize < MinMapSize {
		return fmt.Errorf("map_size must be at least %d bytes, got %d", MinMapSize, c.MapSize)
	}
	if c.IngesterThreads < 1 {
		return fmt.Errorf("ingester_threads must be at least 1, got %d", c.IngesterThreads)
	}
	if c.CommitBatchSize < 1 {
		return fmt.Errorf("commit_batch_size must be at least 1, got %d", c.CommitBatchSize)
	}
	if c.SubscriptionQueueSize < 0 {
		return fmt.Errorf("subscription_queue_size must not be negative, got %d", c.SubscriptionQueueSize)
	}
	switch c.SubscriptionOverflow {
	case OverflowDropOldest, OverflowDropNewest, OverflowGrow:
	default:
		return fmt.Errorf("unknown subscription_overflow %q", c.SubscriptionOverflow)
	}
	return nil
}
