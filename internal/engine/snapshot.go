package engine

import (
	"context"

	"github.com/nostrstore/nostrstore/internal/filter"
	"github.com/nostrstore/nostrstore/internal/note"
	"github.com/nostrstore/nostrstore/internal/profile"
	"github.com/nostrstore/nostrstore/internal/store"
)

// Snapshot is a consistent read-only view of the store.
//
// It observes exactly the records committed before BeginSnapshot returned,
// however much is ingested afterwards. Notes it returns stay valid after
// End. A Snapshot must not be used from multiple goroutines at once.
type Snapshot struct {
	e     *Engine
	tx    *store.ReadTx
	ended bool
}

// QueryResult holds query matches newest first.
type QueryResult = store.QueryResult

// BeginSnapshot opens a snapshot. It never waits for ingestion.
func (e *Engine) BeginSnapshot(ctx context.Context) (*Snapshot, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	defer e.release()

	tx, err := e.store.BeginRead(ctx)
	if err != nil {
		return nil, wrapStoreErr(err, "begin snapshot")
	}
	e.snapshots.Add(1)
	e.metrics.OpenSnapshots.Inc()
	return &Snapshot{e: e, tx: tx}, nil
}

// End releases the snapshot. Ending twice fails with CodeSnapshotClosed.
func (s *Snapshot) End() error {
	if s.ended {
		return newError(CodeSnapshotClosed, nil, "snapshot already ended")
	}
	s.ended = true
	s.e.snapshots.Add(-1)
	s.e.metrics.OpenSnapshots.Dec()
	return wrapStoreErr(s.tx.End(), "end snapshot")
}

func (s *Snapshot) check() error {
	if s.ended {
		return newError(CodeSnapshotClosed, nil, "snapshot has ended")
	}
	return nil
}

// GetByID returns the record with id and its key.
func (s *Snapshot) GetByID(ctx context.Context, id [32]byte) (note.Note, uint64, error) {
	if err := s.check(); err != nil {
		return note.Note{}, 0, err
	}
	n, key, err := s.tx.NoteByID(ctx, id)
	if err != nil {
		return note.Note{}, 0, wrapStoreErr(err, "note %s", hexID(id))
	}
	return n, key, nil
}

// GetByKey returns the record stored under key.
func (s *Snapshot) GetByKey(ctx context.Context, key uint64) (note.Note, error) {
	if err := s.check(); err != nil {
		return note.Note{}, err
	}
	n, err := s.tx.NoteByKey(ctx, key)
	if err != nil {
		return note.Note{}, wrapStoreErr(err, "note key %d", key)
	}
	return n, nil
}

// Query returns the most recent records matching f, newest first, ties
// broken by descending key.
//
// The effective limit is the smaller of limit and the filter's own limit;
// a limit <= 0 defers to the filter's limit, or DefaultQueryLimit. When
// more records match, the result holds the most recent ones and Truncated
// is set.
func (s *Snapshot) Query(ctx context.Context, f *filter.Filter, limit int) (QueryResult, error) {
	if err := s.check(); err != nil {
		return QueryResult{}, err
	}
	if f == nil || !f.Finalized() {
		return QueryResult{}, newError(CodeInvalidFilter, filter.ErrInvalidFilter, "filter is not finalized")
	}
	res, err := s.tx.Query(ctx, f, EffectiveLimit(f, limit))
	if err != nil {
		return QueryResult{}, wrapStoreErr(err, "query")
	}
	return res, nil
}

// EffectiveLimit combines a caller limit with the filter's limit field.
func EffectiveLimit(f *filter.Filter, limit int) int {
	fl, ok := f.Limit()
	switch {
	case limit <= 0 && ok:
		return clampLimit(fl)
	case limit <= 0:
		return DefaultQueryLimit
	case ok && fl < uint64(limit):
		return int(fl)
	default:
		return limit
	}
}

func clampLimit(v uint64) int {
	const maxLimit = 1<<31 - 1
	if v > maxLimit {
		return maxLimit
	}
	return int(v)
}

// Count returns how many records match f, ignoring any limit.
func (s *Snapshot) Count(ctx context.Context, f *filter.Filter) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	if f == nil || !f.Finalized() {
		return 0, newError(CodeInvalidFilter, filter.ErrInvalidFilter, "filter is not finalized")
	}
	n, err := s.tx.Count(ctx, f)
	if err != nil {
		return 0, wrapStoreErr(err, "count")
	}
	return n, nil
}

// Profile returns the cached profile of pubkey.
func (s *Snapshot) Profile(ctx context.Context, pubkey [32]byte) (profile.Record, error) {
	if err := s.check(); err != nil {
		return profile.Record{}, err
	}
	rec, err := s.tx.Profile(ctx, pubkey)
	if err != nil {
		return profile.Record{}, wrapStoreErr(err, "profile %s", hexID(pubkey))
	}
	return rec, nil
}

// SearchProfiles returns up to limit cached profiles whose name or display
// name starts with prefix, compared case-folded and NFKC-normalized.
func (s *Snapshot) SearchProfiles(ctx context.Context, prefix string, limit int) ([]profile.Record, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	recs, err := s.tx.SearchProfiles(ctx, prefix, limit)
	if err != nil {
		return nil, wrapStoreErr(err, "search profiles")
	}
	return recs, nil
}
