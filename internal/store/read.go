package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nostrstore/nostrstore/internal/filter"
	"github.com/nostrstore/nostrstore/internal/note"
	"github.com/nostrstore/nostrstore/internal/profile"
	"github.com/nostrstore/nostrstore/internal/querysql"
)

// ReadTx is a read transaction pinned to one WAL snapshot.
//
// It sees exactly the state committed before BeginRead returned and holds
// one reader connection until End. A ReadTx is not safe for concurrent use.
type ReadTx struct {
	tx     *sql.Tx
	logger *zap.Logger
}

// BeginRead starts a read transaction.
//
// SQLite read transactions are deferred: the snapshot is taken at the first
// read, not at BEGIN. BeginRead performs that read before returning so the
// snapshot cannot drift to a later commit. The transaction outlives ctx;
// only End releases it.
func (s *Store) BeginRead(ctx context.Context) (*ReadTx, error) {
	tx, err := s.reader.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return nil, fmt.Errorf("begin read: %w", err)
	}
	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM engine_meta").Scan(&n); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("pin snapshot: %w", err)
	}
	return &ReadTx{tx: tx, logger: s.logger}, nil
}

// End releases the snapshot and its connection.
func (r *ReadTx) End() error {
	if err := r.tx.Rollback(); err != nil {
		return fmt.Errorf("end read: %w", err)
	}
	return nil
}

// NoteByID returns the record with id and its key.
// Returns ErrNotFound if absent and note.ErrCorruptRecord if the stored
// buffer fails validation.
func (r *ReadTx) NoteByID(ctx context.Context, id [32]byte) (note.Note, uint64, error) {
	var (
		key int64
		raw []byte
	)
	err := r.tx.QueryRowContext(ctx, `
		SELECT n.key, n.record
		FROM note_ids i
		JOIN notes n ON n.key = i.key
		WHERE i.id = ?
	`, id[:]).Scan(&key, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return note.Note{}, 0, ErrNotFound
	}
	if err != nil {
		return note.Note{}, 0, fmt.Errorf("read note by id: %w", err)
	}
	n, err := parseRecord(scanKey(key), raw)
	if err != nil {
		return note.Note{}, 0, err
	}
	return n, scanKey(key), nil
}

// NoteByKey returns the record stored under key.
func (r *ReadTx) NoteByKey(ctx context.Context, key uint64) (note.Note, error) {
	var raw []byte
	err := r.tx.QueryRowContext(ctx, "SELECT record FROM notes WHERE key = ?", keyParam(key)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return note.Note{}, ErrNotFound
	}
	if err != nil {
		return note.Note{}, fmt.Errorf("read note by key: %w", err)
	}
	return parseRecord(key, raw)
}

// QueryResult holds query matches newest first.
type QueryResult struct {
	Keys  []uint64
	Notes []note.Note

	// Truncated is set when more matches exist beyond the limit.
	Truncated bool
}

// Query returns up to limit records matching f, ordered by created_at
// descending then key descending.
//
// Corrupt records are skipped and logged. Fields the driving index does not
// cover are checked against each decoded record.
func (r *ReadTx) Query(ctx context.Context, f *filter.Filter, limit int) (QueryResult, error) {
	plan, err := querysql.Compile(f, limit)
	if err != nil {
		return QueryResult{}, err
	}

	rows, err := r.tx.QueryContext(ctx, plan.SQL, plan.Params...)
	if err != nil {
		return QueryResult{}, fmt.Errorf("query %s: %w", plan.Driver, err)
	}
	defer rows.Close()

	res := QueryResult{Keys: []uint64{}, Notes: []note.Note{}}
	for rows.Next() {
		n, key, ok, err := r.scanMatch(rows, f, plan.Exact)
		if err != nil {
			return QueryResult{}, err
		}
		if !ok {
			continue
		}
		if len(res.Keys) == limit {
			res.Truncated = true
			break
		}
		res.Keys = append(res.Keys, key)
		res.Notes = append(res.Notes, n)
	}
	if err := rows.Err(); err != nil {
		return QueryResult{}, fmt.Errorf("iterate %s: %w", plan.Driver, err)
	}
	return res, nil
}

// Count returns the number of records matching f, ignoring its limit.
func (r *ReadTx) Count(ctx context.Context, f *filter.Filter) (int, error) {
	query, params, ok, err := querysql.CompileCount(f)
	if err != nil {
		return 0, err
	}
	if ok {
		var n int
		if err := r.tx.QueryRowContext(ctx, query, params...).Scan(&n); err != nil {
			return 0, fmt.Errorf("count: %w", err)
		}
		return n, nil
	}

	plan, err := querysql.Compile(f, 0)
	if err != nil {
		return 0, err
	}
	rows, err := r.tx.QueryContext(ctx, plan.SQL, plan.Params...)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", plan.Driver, err)
	}
	defer rows.Close()

	var n int
	for rows.Next() {
		_, _, ok, err := r.scanMatch(rows, f, false)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate %s: %w", plan.Driver, err)
	}
	return n, nil
}

// scanMatch decodes one (key, record) row. ok is false for corrupt records
// and for records that fail the residual filter check.
func (r *ReadTx) scanMatch(rows *sql.Rows, f *filter.Filter, exact bool) (note.Note, uint64, bool, error) {
	var (
		k   int64
		raw []byte
	)
	if err := rows.Scan(&k, &raw); err != nil {
		return note.Note{}, 0, false, fmt.Errorf("scan record: %w", err)
	}
	key := scanKey(k)
	n, err := parseRecord(key, raw)
	if err != nil {
		r.logger.Warn("skipping corrupt record", zap.Uint64("key", key), zap.Error(err))
		return note.Note{}, 0, false, nil
	}
	if !exact && !f.Matches(n) {
		return note.Note{}, 0, false, nil
	}
	return n, key, true, nil
}

const profileColumns = `p.pubkey, p.note_key, p.created_at, p.name, p.display_name, p.about,
	p.picture, p.banner, p.nip05, p.lud16, p.lud06, p.website`

// Profile returns the cached profile for pubkey, or ErrNotFound.
func (r *ReadTx) Profile(ctx context.Context, pubkey [32]byte) (profile.Record, error) {
	row := r.tx.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM profiles p WHERE p.pubkey = ?", pubkey[:])
	rec, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.Record{}, ErrNotFound
	}
	if err != nil {
		return profile.Record{}, fmt.Errorf("read profile: %w", err)
	}
	return rec, nil
}

// SearchProfiles returns cached profiles whose name or display name starts
// with prefix after normalization. Results are ordered by the best matching
// search key, then pubkey.
func (r *ReadTx) SearchProfiles(ctx context.Context, prefix string, limit int) ([]profile.Record, error) {
	key := profile.NormalizeSearch(prefix)
	if key == "" || limit <= 0 {
		return []profile.Record{}, nil
	}

	rows, err := r.tx.QueryContext(ctx, `
		SELECT `+profileColumns+`
		FROM (
			SELECT pubkey, MIN(search_key) AS best
			FROM profile_search
			WHERE search_key >= ? AND search_key < ?
			GROUP BY pubkey
		) s
		JOIN profiles p ON p.pubkey = s.pubkey
		ORDER BY s.best, s.pubkey
		LIMIT ?
	`, key, prefixEnd(key), limit)
	if err != nil {
		return nil, fmt.Errorf("search profiles: %w", err)
	}
	defer rows.Close()

	out := []profile.Record{}
	for rows.Next() {
		rec, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return out, nil
}

// prefixEnd returns the smallest string greater than every string with
// prefix p. Normalized keys are valid UTF-8, which never contains 0xff.
func prefixEnd(p string) string {
	return p + "\xff"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (profile.Record, error) {
	var (
		pk        []byte
		noteKey   int64
		createdAt int64
		fields    [9]sql.NullString
	)
	dest := []any{&pk, &noteKey, &createdAt}
	for i := range fields {
		dest = append(dest, &fields[i])
	}
	if err := row.Scan(dest...); err != nil {
		return profile.Record{}, err
	}

	rec := profile.Record{
		NoteKey:   scanKey(noteKey),
		CreatedAt: scanTime(createdAt),
		Profile: profile.Profile{
			Name:        fields[0].String,
			DisplayName: fields[1].String,
			About:       fields[2].String,
			Picture:     fields[3].String,
			Banner:      fields[4].String,
			NIP05:       fields[5].String,
			LUD16:       fields[6].String,
			LUD06:       fields[7].String,
			Website:     fields[8].String,
		},
	}
	if len(pk) != len(rec.PubKey) {
		return profile.Record{}, fmt.Errorf("profile pubkey has %d bytes", len(pk))
	}
	copy(rec.PubKey[:], pk)
	return rec, nil
}
