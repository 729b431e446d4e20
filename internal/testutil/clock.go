package testutil

import "sync"

// DefaultEpoch is the first timestamp a fresh TimestampClock hands out.
const DefaultEpoch uint64 = 1_700_000_000

// TimestampClock hands out strictly increasing created_at values for tests.
//
// Events built from the same clock sort in creation order, which keeps
// newest-first assertions readable.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type TimestampClock struct {
	mu    sync.Mutex
	epoch uint64
	next  uint64
}

// NewTimestampClock creates a clock whose first Next() returns epoch.
// An epoch of 0 uses DefaultEpoch.
func NewTimestampClock(epoch uint64) *TimestampClock {
	if epoch == 0 {
		epoch = DefaultEpoch
	}
	return &TimestampClock{epoch: epoch, next: epoch}
}

// Next returns the current timestamp and advances by one second.
func (c *TimestampClock) Next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.next
	c.next++
	return ts
}

// Current returns the timestamp the next call to Next() will return.
func (c *TimestampClock) Current() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Reset rewinds the clock to its epoch.
func (c *TimestampClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = c.epoch
}
