package engine

import (
	"sync"

	"github.com/nostrstore/nostrstore/internal/filter"
	"github.com/nostrstore/nostrstore/internal/note"
)

// SubscriptionInfo describes a live subscription.
type SubscriptionInfo struct {
	ID      uint64 `json:"id"`
	Pending int    `json:"pending"`
	Dropped uint64 `json:"dropped"`
}

// matchQueue holds the keys a subscription has not polled yet, oldest
// first.
type matchQueue struct {
	mu      sync.Mutex
	keys    []uint64
	limit   int // 0 = unbounded
	policy  string
	dropped uint64
}

func newMatchQueue(limit int, policy string) *matchQueue {
	return &matchQueue{limit: limit, policy: policy}
}

// Push appends key and reports whether a key was dropped to respect the
// bound.
func (q *matchQueue) Push(key uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.limit == 0 || len(q.keys) < q.limit || q.policy == OverflowGrow {
		q.keys = append(q.keys, key)
		return false
	}

	q.dropped++
	if q.policy == OverflowDropNewest {
		return true
	}
	copy(q.keys, q.keys[1:])
	q.keys[len(q.keys)-1] = key
	return true
}

// Pop removes up to max keys from the front. max <= 0 takes everything.
func (q *matchQueue) Pop(max int) []uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.keys)
	if max > 0 && max < n {
		n = max
	}
	out := make([]uint64, n)
	copy(out, q.keys[:n])

	if n == len(q.keys) {
		q.keys = q.keys[:0]
	} else {
		q.keys = append(q.keys[:0], q.keys[n:]...)
	}
	return out
}

func (q *matchQueue) info() (pending int, dropped uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.keys), q.dropped
}

type subscription struct {
	id      uint64
	filters []*filter.Filter
	queue   *matchQueue
}

// subscriptions is the registry of live subscriptions.
//
// Thread-safety: the registry map is guarded by mu; each queue has its own
// mutex so polling one subscription never blocks matching for another.
type subscriptions struct {
	mu     sync.RWMutex
	nextID uint64
	byID   map[uint64]*subscription
	limit  int
	policy string
}

func newSubscriptions(limit int, policy string) *subscriptions {
	return &subscriptions{byID: make(map[uint64]*subscription), limit: limit, policy: policy}
}

func (s *subscriptions) add(filters []*filter.Filter) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.byID[s.nextID] = &subscription{
		id:      s.nextID,
		filters: filters,
		queue:   newMatchQueue(s.limit, s.policy),
	}
	return s.nextID
}

func (s *subscriptions) get(id uint64) (*subscription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.byID[id]
	return sub, ok
}

func (s *subscriptions) remove(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	return true
}

func (s *subscriptions) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// match queues key on every subscription with a filter matching n. It
// returns how many subscriptions matched and how many keys were dropped.
func (s *subscriptions) match(key uint64, n note.Note) (matched, dropped int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.byID {
		if !filter.MatchesAny(sub.filters, n) {
			continue
		}
		matched++
		if sub.queue.Push(key) {
			dropped++
		}
	}
	return matched, dropped
}
