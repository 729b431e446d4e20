package engine

import "sync/atomic"

// KeyClock hands out record keys.
//
// Keys are strictly increasing and never reused, so key order is ingestion
// order. The committer resumes the clock from the store's last key on Open
// and rewinds it when a write transaction rolls back, so a failed batch
// leaves no gap.
//
// Thread-safety: KeyClock is safe for concurrent use (atomic operations).
// Only the committer goroutine calls Next and Rewind.
type KeyClock struct {
	last atomic.Uint64
}

// NewKeyClock creates a clock whose first Next returns 1.
func NewKeyClock() *KeyClock {
	return &KeyClock{}
}

// NewKeyClockAt creates a clock resuming after key last.
func NewKeyClockAt(last uint64) *KeyClock {
	c := &KeyClock{}
	c.last.Store(last)
	return c
}

// Next returns the next key.
func (c *KeyClock) Next() uint64 {
	return c.last.Add(1)
}

// Current returns the last key handed out, 0 if none.
func (c *KeyClock) Current() uint64 {
	return c.last.Load()
}

// Rewind resets the clock so the next key is last+1.
func (c *KeyClock) Rewind(last uint64) {
	c.last.Store(last)
}
