package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nostrstore/nostrstore/internal/note"
	"github.com/nostrstore/nostrstore/internal/profile"
)

// WriteTx is one write transaction on the pinned writer connection.
//
// Only one WriteTx may be open at a time; the caller (the engine's
// committer) serializes them. Nothing written is visible to readers until
// Commit.
type WriteTx struct {
	tx *sql.Tx

	insertNote    *sql.Stmt
	insertID      *sql.Stmt
	insertPubkey  *sql.Stmt
	insertKind    *sql.Stmt
	insertPubKind *sql.Stmt
	insertTag     *sql.Stmt
	insertCreated *sql.Stmt
}

// BeginWrite starts a write transaction.
func (s *Store) BeginWrite(ctx context.Context) (*WriteTx, error) {
	tx, err := s.wconn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin write: %w", err)
	}
	w := &WriteTx{tx: tx}
	if err := w.prepare(ctx); err != nil {
		w.Rollback()
		return nil, err
	}
	return w, nil
}

func (w *WriteTx) prepare(ctx context.Context) error {
	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&w.insertNote, "INSERT INTO notes (key, record) VALUES (?, ?)"},
		{&w.insertID, "INSERT INTO note_ids (id, key, created_at) VALUES (?, ?, ?)"},
		{&w.insertPubkey, "INSERT INTO note_pubkeys (pubkey, created_at, key) VALUES (?, ?, ?)"},
		{&w.insertKind, "INSERT INTO note_kinds (kind, created_at, key) VALUES (?, ?, ?)"},
		{&w.insertPubKind, "INSERT INTO note_pubkey_kinds (pubkey, kind, created_at, key) VALUES (?, ?, ?, ?)"},
		// Two tags sharing name and first value index the note once.
		{&w.insertTag, "INSERT OR IGNORE INTO note_tags (name, value, created_at, key) VALUES (?, ?, ?, ?)"},
		{&w.insertCreated, "INSERT INTO note_created (created_at, key) VALUES (?, ?)"},
	}
	for _, st := range stmts {
		stmt, err := w.tx.PrepareContext(ctx, st.query)
		if err != nil {
			return fmt.Errorf("prepare %q: %w", st.query, err)
		}
		*st.dst = stmt
	}
	return nil
}

// LookupID returns the key stored for id, seeing this transaction's own
// uncommitted inserts.
func (w *WriteTx) LookupID(ctx context.Context, id [32]byte) (uint64, bool, error) {
	var key int64
	err := w.tx.QueryRowContext(ctx, "SELECT key FROM note_ids WHERE id = ?", id[:]).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup id: %w", err)
	}
	return scanKey(key), true, nil
}

// InsertNote writes n under key into the primary table and every index.
//
// The caller must have checked that n's id is not stored yet; a duplicate
// id fails the whole transaction with a constraint error.
func (w *WriteTx) InsertNote(ctx context.Context, key uint64, n note.Note) error {
	k := keyParam(key)
	ts := timeParam(n.CreatedAt())
	id := n.ID()
	pk := n.PubKey()
	kind := int64(n.Kind())

	if _, err := w.insertNote.ExecContext(ctx, k, n.Bytes()); err != nil {
		return fmt.Errorf("insert note %d: %w", key, err)
	}
	if _, err := w.insertID.ExecContext(ctx, id[:], k, ts); err != nil {
		return fmt.Errorf("insert note %d id: %w", key, err)
	}
	if _, err := w.insertPubkey.ExecContext(ctx, pk[:], ts, k); err != nil {
		return fmt.Errorf("insert note %d pubkey: %w", key, err)
	}
	if _, err := w.insertKind.ExecContext(ctx, kind, ts, k); err != nil {
		return fmt.Errorf("insert note %d kind: %w", key, err)
	}
	if _, err := w.insertPubKind.ExecContext(ctx, pk[:], kind, ts, k); err != nil {
		return fmt.Errorf("insert note %d pubkey kind: %w", key, err)
	}
	for _, tag := range indexedTags(n) {
		if _, err := w.insertTag.ExecContext(ctx, tag.name, tag.value, ts, k); err != nil {
			return fmt.Errorf("insert note %d tag %q: %w", key, tag.name, err)
		}
	}
	if _, err := w.insertCreated.ExecContext(ctx, ts, k); err != nil {
		return fmt.Errorf("insert note %d created: %w", key, err)
	}
	return nil
}

// UpsertProfile records p as pubkey's profile if createdAt is strictly
// newer than the cached entry. Ties keep the existing entry. It reports
// whether the cache changed.
func (w *WriteTx) UpsertProfile(ctx context.Context, pubkey [32]byte, noteKey, createdAt uint64, p profile.Profile) (bool, error) {
	var current int64
	err := w.tx.QueryRowContext(ctx,
		"SELECT created_at FROM profiles WHERE pubkey = ?", pubkey[:]).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, fmt.Errorf("read profile: %w", err)
	case scanTime(current) >= createdAt:
		return false, nil
	}

	_, err = w.tx.ExecContext(ctx, `
		INSERT INTO profiles
		(pubkey, note_key, created_at, name, display_name, about, picture, banner, nip05, lud16, lud06, website)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pubkey) DO UPDATE SET
			note_key = excluded.note_key,
			created_at = excluded.created_at,
			name = excluded.name,
			display_name = excluded.display_name,
			about = excluded.about,
			picture = excluded.picture,
			banner = excluded.banner,
			nip05 = excluded.nip05,
			lud16 = excluded.lud16,
			lud06 = excluded.lud06,
			website = excluded.website
	`,
		pubkey[:], keyParam(noteKey), timeParam(createdAt),
		nullString(p.Name), nullString(p.DisplayName), nullString(p.About),
		nullString(p.Picture), nullString(p.Banner), nullString(p.NIP05),
		nullString(p.LUD16), nullString(p.LUD06), nullString(p.Website),
	)
	if err != nil {
		return false, fmt.Errorf("upsert profile: %w", err)
	}

	if _, err := w.tx.ExecContext(ctx, "DELETE FROM profile_search WHERE pubkey = ?", pubkey[:]); err != nil {
		return false, fmt.Errorf("clear profile search: %w", err)
	}
	for _, key := range profile.SearchKeys(p) {
		_, err := w.tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO profile_search (search_key, pubkey) VALUES (?, ?)", key, pubkey[:])
		if err != nil {
			return false, fmt.Errorf("insert profile search: %w", err)
		}
	}
	return true, nil
}

// Commit makes every write in the transaction visible atomically.
func (w *WriteTx) Commit() error {
	w.closeStmts()
	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback discards the transaction. Calling it after Commit is a no-op.
func (w *WriteTx) Rollback() {
	w.closeStmts()
	_ = w.tx.Rollback()
}

func (w *WriteTx) closeStmts() {
	for _, stmt := range []*sql.Stmt{
		w.insertNote, w.insertID, w.insertPubkey, w.insertKind,
		w.insertPubKind, w.insertTag, w.insertCreated,
	} {
		if stmt != nil {
			stmt.Close()
		}
	}
}
