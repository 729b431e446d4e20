package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nostrstore/nostrstore/internal/bloom"
	"github.com/nostrstore/nostrstore/internal/event"
	"github.com/nostrstore/nostrstore/internal/filter"
	"github.com/nostrstore/nostrstore/internal/metrics"
	"github.com/nostrstore/nostrstore/internal/note"
	"github.com/nostrstore/nostrstore/internal/store"
)

// bloomFPR is the target false positive rate of the id prefilter.
const bloomFPR = 0.01

// minBloomCapacity is the smallest number of ids the prefilter is sized
// for.
const minBloomCapacity = 1 << 16

// Engine is an open event store.
//
// Thread-safety model:
//   - Submit, SubmitAsync, BeginSnapshot, Subscribe, Poll, Unsubscribe and
//     Stats are safe from any goroutine.
//   - A Snapshot must not be used from multiple goroutines at once.
//   - Exactly one committer goroutine writes to the store.
type Engine struct {
	path    string
	id      string
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	store    *store.Store
	verifier event.Verifier
	seen     atomic.Pointer[bloom.Filter]
	keys     *KeyClock

	queue    *submitQueue
	prepared chan *prepared
	workers  *errgroup.Group
	done     chan struct{} // closed when the committer exits

	subs *subscriptions

	// lifecycle serializes Close against operations that start using the
	// store, so Close never tears the store down under a new snapshot.
	lifecycle sync.RWMutex
	closed    bool
	snapshots atomic.Int64

	refs int // guarded by registry.mu
}

// registry shares engines opened on the same directory within a process.
var registry = struct {
	mu      sync.Mutex
	engines map[string]*Engine
}{engines: make(map[string]*Engine)}

// Open opens or creates the store at directory path.
//
// Concurrent opens of the same path return the same *Engine and take a
// reference; each Close releases one. cfg and opts only apply to the
// first open.
func Open(path string, cfg Config, opts ...Option) (*Engine, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, newError(CodeConfiguration, err, "invalid configuration")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, newError(CodeOpenFailed, err, "resolve path %q", path)
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if e, ok := registry.engines[abs]; ok {
		e.refs++
		return e, nil
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	e, err := open(abs, cfg, o)
	if err != nil {
		return nil, err
	}
	e.refs = 1
	registry.engines[abs] = e
	return e, nil
}

func open(path string, cfg Config, o options) (*Engine, error) {
	ctx := context.Background()
	id := uuid.Must(uuid.NewV7()).String()
	logger := o.logger.With(zap.String("engine_id", id), zap.String("path", path))

	st, err := store.Open(ctx, path, store.Options{MapSize: cfg.MapSize, Logger: logger})
	if err != nil {
		return nil, newError(CodeOpenFailed, err, "open store at %s", path)
	}

	queue := newSubmitQueue()
	e := &Engine{
		path:     path,
		id:       id,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics.New(o.registerer, id, func() float64 { return float64(queue.Len()) }),
		store:    st,
		queue:    queue,
		prepared: make(chan *prepared, cfg.CommitBatchSize),
		done:     make(chan struct{}),
		subs:     newSubscriptions(cfg.SubscriptionQueueSize, cfg.SubscriptionOverflow),
	}
	if !cfg.SkipSignatureCheck {
		e.verifier = o.verifier
	}

	if err := e.recover(ctx); err != nil {
		st.Close()
		return nil, newError(CodeOpenFailed, err, "recover state from %s", path)
	}

	e.start()
	logger.Info("engine opened",
		zap.Uint64("last_key", e.keys.Current()),
		zap.Int("ingester_threads", cfg.IngesterThreads),
		zap.Int64("map_size", cfg.MapSize),
	)
	return e, nil
}

// recover rebuilds in-memory state from the store: the key clock and the
// id prefilter.
func (e *Engine) recover(ctx context.Context) error {
	last, err := e.store.LastKey(ctx)
	if err != nil {
		return err
	}
	e.keys = NewKeyClockAt(last)

	n, err := e.store.CountNotes(ctx)
	if err != nil {
		return err
	}
	seen := bloom.NewWithEstimates(max(int(n)*2, minBloomCapacity), bloomFPR)
	if err := e.store.ScanIDs(ctx, func(id [32]byte, _ uint64) error {
		seen.Add(id)
		return nil
	}); err != nil {
		return err
	}
	e.seen.Store(seen)

	prev, err := e.store.Meta(ctx, store.MetaEngineID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return err
	default:
		e.logger.Info("store reopened", zap.String("previous_engine_id", prev), zap.Uint64("notes", n))
	}
	return e.store.SetMeta(ctx, store.MetaEngineID, e.id)
}

// start launches the ingestion workers and the committer.
func (e *Engine) start() {
	e.workers = &errgroup.Group{}
	for i := 0; i < e.cfg.IngesterThreads; i++ {
		e.workers.Go(func() error {
			e.runWorker()
			return nil
		})
	}
	go e.runCommitter()
}

// ID returns the engine instance id used in logs and metrics.
func (e *Engine) ID() string { return e.id }

// Path returns the absolute environment directory.
func (e *Engine) Path() string { return e.path }

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Close releases one reference to the engine.
//
// Closing the last reference fails with CodeBusy while snapshots are open;
// the engine stays usable and Close may be retried after they end.
// Otherwise it stops accepting submissions, finishes every submission
// already accepted, and closes the store.
func (e *Engine) Close() error {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if e.refs == 0 {
		return newError(CodeClosed, nil, "engine already closed")
	}
	if e.refs > 1 {
		e.refs--
		return nil
	}

	e.lifecycle.Lock()
	if n := e.snapshots.Load(); n > 0 {
		e.lifecycle.Unlock()
		return newError(CodeBusy, nil, "%d snapshots still open", n)
	}
	e.closed = true
	e.lifecycle.Unlock()

	e.refs = 0
	delete(registry.engines, e.path)

	e.queue.Close()
	_ = e.workers.Wait()
	close(e.prepared)
	<-e.done

	if err := e.store.Close(); err != nil {
		e.logger.Warn("close store", zap.Error(err))
	}
	e.logger.Info("engine closed", zap.Uint64("last_key", e.keys.Current()))
	return nil
}

// acquire marks the start of an operation that uses the store.
// release must be called when it finishes.
func (e *Engine) acquire() error {
	e.lifecycle.RLock()
	if e.closed {
		e.lifecycle.RUnlock()
		return newError(CodeClosed, nil, "engine is closed")
	}
	return nil
}

func (e *Engine) release() {
	e.lifecycle.RUnlock()
}

// Subscribe registers filters and returns the subscription id. A record
// matches the subscription if it matches any filter. Every filter must be
// finalized; they are copied, so the caller may release them afterwards.
func (e *Engine) Subscribe(filters ...*filter.Filter) (uint64, error) {
	if err := e.acquire(); err != nil {
		return 0, err
	}
	defer e.release()

	if len(filters) == 0 {
		return 0, newError(CodeInvalidFilter, nil, "subscription needs at least one filter")
	}
	owned := make([]*filter.Filter, len(filters))
	for i, f := range filters {
		if f == nil || !f.Finalized() {
			return 0, newError(CodeInvalidFilter, filter.ErrInvalidFilter, "filter %d is not finalized", i)
		}
		owned[i] = f.Clone()
	}

	id := e.subs.add(owned)
	e.metrics.ActiveSubscriptions.Set(float64(e.subs.len()))
	e.logger.Debug("subscription added", zap.Uint64("subscription", id), zap.Int("filters", len(owned)))
	return id, nil
}

// Poll removes and returns up to max pending keys for subscription id,
// oldest first. max <= 0 returns every pending key. Polled keys are never
// delivered again.
func (e *Engine) Poll(id uint64, max int) ([]uint64, error) {
	sub, ok := e.subs.get(id)
	if !ok {
		return nil, newError(CodeUnknownSubscription, nil, "subscription %d", id)
	}
	return sub.queue.Pop(max), nil
}

// Unsubscribe cancels subscription id and discards its pending keys.
func (e *Engine) Unsubscribe(id uint64) error {
	if !e.subs.remove(id) {
		return newError(CodeUnknownSubscription, nil, "subscription %d", id)
	}
	e.metrics.ActiveSubscriptions.Set(float64(e.subs.len()))
	return nil
}

// Subscription reports the state of subscription id.
func (e *Engine) Subscription(id uint64) (SubscriptionInfo, error) {
	sub, ok := e.subs.get(id)
	if !ok {
		return SubscriptionInfo{}, newError(CodeUnknownSubscription, nil, "subscription %d", id)
	}
	pending, dropped := sub.queue.info()
	return SubscriptionInfo{ID: id, Pending: pending, Dropped: dropped}, nil
}

// Stats computes table and kind statistics in a read transaction of its
// own. It reflects every submission whose Submit has returned.
func (e *Engine) Stats(ctx context.Context) (store.Stats, error) {
	if err := e.acquire(); err != nil {
		return store.Stats{}, err
	}
	defer e.release()

	r, err := e.store.BeginRead(ctx)
	if err != nil {
		return store.Stats{}, fmt.Errorf("stats: %w", err)
	}
	defer r.End()

	st, err := r.Stats(ctx)
	if err != nil {
		return store.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

func hexID(id [32]byte) string {
	return hex.EncodeToString(id[:])
}

// wrapStoreErr maps store-level errors onto engine codes.
func wrapStoreErr(err error, format string, args ...any) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return newError(CodeNotFound, nil, format, args...)
	case errors.Is(err, filter.ErrInvalidFilter):
		return newError(CodeInvalidFilter, err, format, args...)
	case errors.Is(err, note.ErrCorruptRecord):
		return newError(CodeCorruptRecord, err, format, args...)
	default:
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
	}
}
