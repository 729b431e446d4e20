package engine

import (
	"bytes"
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nostrstore/nostrstore/internal/bloom"
	"github.com/nostrstore/nostrstore/internal/event"
	"github.com/nostrstore/nostrstore/internal/note"
	"github.com/nostrstore/nostrstore/internal/profile"
)

// Status is the outcome of an accepted submission.
type Status string

const (
	// StatusStored means the event was committed under Receipt.Key.
	StatusStored Status = "stored"

	// StatusDuplicate means an event with the same id was already stored
	// under Receipt.Key. Nothing was written.
	StatusDuplicate Status = "duplicate"
)

// Receipt reports where an accepted event lives.
type Receipt struct {
	Key    uint64 `json:"key"`
	Status Status `json:"status"`
}

// prepared is a validated, encoded event on its way to the committer.
type prepared struct {
	sub     *submission
	note    note.Note
	profile *profile.Profile // set for kind 0 events with valid content
}

// committed is the committer's result for one prepared event.
type committed struct {
	key            uint64
	status         Status
	profileUpdated bool
}

// Submit ingests one raw event and waits until it is committed or refused.
//
// raw is a JSON event object or a ["EVENT", ...] envelope. Rejections
// return an *Error with CodeRejected and a Reason. If ctx ends first, Submit
// returns ctx.Err() but the event may still be stored.
func (e *Engine) Submit(ctx context.Context, raw []byte) (Receipt, error) {
	s := &submission{raw: bytes.Clone(raw), done: make(chan outcome, 1)}
	if !e.queue.Enqueue(s) {
		return Receipt{}, newError(CodeClosed, nil, "engine is closed")
	}
	e.metrics.SubmittedTotal.Inc()

	select {
	case out := <-s.done:
		return out.receipt, out.err
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	}
}

// SubmitAsync queues raw for ingestion and returns immediately. It fails
// only when the engine is closed; outcomes are logged and counted.
func (e *Engine) SubmitAsync(raw []byte) error {
	if !e.queue.Enqueue(&submission{raw: bytes.Clone(raw)}) {
		return newError(CodeClosed, nil, "engine is closed")
	}
	e.metrics.SubmittedTotal.Inc()
	return nil
}

// runWorker prepares submissions until the queue is closed and drained.
func (e *Engine) runWorker() {
	for {
		if s, ok := e.queue.TryDequeue(); ok {
			e.prepare(s)
			continue
		}
		<-e.queue.Wait()
		if e.queue.Drained() {
			return
		}
	}
}

// prepare parses, validates and encodes one submission, answering it
// directly when it is refused or a known duplicate.
func (e *Engine) prepare(s *submission) {
	ctx := context.Background()

	ev, err := event.Parse(s.raw)
	if err != nil {
		e.reject(s, err)
		return
	}
	if err := event.Validate(ev, e.verifier); err != nil {
		e.reject(s, err)
		return
	}

	if e.prefilter().MayContain(ev.ID) {
		key, ok, err := e.store.HasID(ctx, ev.ID)
		switch {
		case err != nil:
			// The committer checks again inside its transaction.
			e.logger.Warn("duplicate lookup failed", zap.Error(err))
		case ok:
			e.duplicate(s, key)
			return
		}
	} else {
		e.metrics.BloomSkipsTotal.Inc()
	}

	buf, err := note.Encode(ev)
	if err != nil {
		e.reject(s, &event.RejectError{Reason: event.ReasonParseError, Message: "event does not fit a record", Err: err})
		return
	}
	n, err := note.Parse(buf)
	if err != nil {
		e.reject(s, &event.RejectError{Reason: event.ReasonParseError, Message: "encoded record is invalid", Err: err})
		return
	}

	p := &prepared{sub: s, note: n}
	if ev.Kind == event.KindProfile {
		if meta, err := profile.Parse(ev.Content); err == nil {
			p.profile = &meta
		} else {
			e.logger.Debug("profile content ignored",
				zap.String("id", hexID(n.ID())), zap.Error(err))
		}
	}
	e.prepared <- p
}

func (e *Engine) reject(s *submission, err error) {
	rerr := rejected(err)
	e.metrics.RejectedTotal.WithLabelValues(string(rerr.Reason)).Inc()
	e.logger.Debug("event rejected", zap.String("reason", string(rerr.Reason)), zap.Error(err))
	s.answer(Receipt{}, rerr)
}

func (e *Engine) duplicate(s *submission, key uint64) {
	e.metrics.DuplicatesTotal.Inc()
	s.answer(Receipt{Key: key, Status: StatusDuplicate}, nil)
}

// runCommitter is the only writer. It batches prepared events into write
// transactions until the prepared channel is closed.
func (e *Engine) runCommitter() {
	defer close(e.done)

	batch := make([]*prepared, 0, e.cfg.CommitBatchSize)
	for p := range e.prepared {
		batch = append(batch[:0], p)
	fill:
		for len(batch) < e.cfg.CommitBatchSize {
			select {
			case next, ok := <-e.prepared:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}
		e.commit(batch)
		clear(batch)
	}
}

// commit writes batch in one transaction. If the transaction fails, each
// event is retried alone so one bad event only fails itself.
func (e *Engine) commit(batch []*prepared) {
	results, err := e.writeBatch(batch)
	if err == nil {
		e.publish(batch, results)
		return
	}

	if len(batch) == 1 {
		p := batch[0]
		e.logger.Warn("commit failed", zap.String("id", hexID(p.note.ID())), zap.Error(err))
		e.reject(p.sub, &event.RejectError{Reason: event.ReasonStoreFailed, Message: "commit failed", Err: err})
		return
	}

	e.metrics.CommitRetriesTotal.Inc()
	e.logger.Warn("batch commit failed, retrying one by one", zap.Int("batch", len(batch)), zap.Error(err))
	for _, p := range batch {
		e.commit([]*prepared{p})
	}
}

func (e *Engine) writeBatch(batch []*prepared) (results []committed, err error) {
	ctx := context.Background()
	start := time.Now()
	base := e.keys.Current()
	defer func() {
		if err != nil {
			e.keys.Rewind(base)
		}
	}()

	w, err := e.store.BeginWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer w.Rollback()

	results = make([]committed, len(batch))
	for i, p := range batch {
		id := p.note.ID()
		if key, ok, err := w.LookupID(ctx, id); err != nil {
			return nil, err
		} else if ok {
			results[i] = committed{key: key, status: StatusDuplicate}
			continue
		}

		key := e.keys.Next()
		if err := w.InsertNote(ctx, key, p.note); err != nil {
			return nil, err
		}
		res := committed{key: key, status: StatusStored}
		if p.profile != nil {
			res.profileUpdated, err = w.UpsertProfile(ctx, p.note.PubKey(), key, p.note.CreatedAt(), *p.profile)
			if err != nil {
				return nil, err
			}
		}
		results[i] = res
	}

	if err := w.Commit(); err != nil {
		return nil, err
	}

	e.metrics.CommitBatchesTotal.Inc()
	e.metrics.CommitBatchSize.Observe(float64(len(batch)))
	e.metrics.CommitDuration.Observe(time.Since(start).Seconds())
	return results, nil
}

// publish runs after a commit: prefilter, subscriptions, waiters, in key
// order.
func (e *Engine) publish(batch []*prepared, results []committed) {
	seen := e.prefilter()
	for i, p := range batch {
		r := results[i]
		if r.status == StatusDuplicate {
			e.duplicate(p.sub, r.key)
			continue
		}

		seen.Add(p.note.ID())
		e.metrics.StoredTotal.Inc()
		if r.profileUpdated {
			e.metrics.ProfileUpdatesTotal.Inc()
		}
		if matched, dropped := e.subs.match(r.key, p.note); matched > 0 {
			e.metrics.SubscriptionMatched.Add(float64(matched))
			e.metrics.SubscriptionDropped.Add(float64(dropped))
		}
		p.sub.answer(Receipt{Key: r.key, Status: StatusStored}, nil)
	}

	if seen.FalsePositiveRate() > 4*bloomFPR {
		e.growPrefilter(seen)
	}
}

func (e *Engine) prefilter() *bloom.Filter {
	return e.seen.Load()
}

// growPrefilter rebuilds the id prefilter with room for twice the current
// ids. Only the committer adds ids, so no commit can be missed while the
// new filter is filled.
func (e *Engine) growPrefilter(old *bloom.Filter) {
	ctx := context.Background()
	f := bloom.NewWithEstimates(max(int(old.Count())*2, minBloomCapacity), bloomFPR)
	err := e.store.ScanIDs(ctx, func(id [32]byte, _ uint64) error {
		f.Add(id)
		return nil
	})
	if err != nil {
		e.logger.Warn("prefilter rebuild failed", zap.Error(err))
		return
	}
	e.seen.Store(f)
	e.logger.Info("prefilter rebuilt", zap.Uint64("ids", f.Count()), zap.Int("bits", f.NumBits()))
}
