package store

import (
	"context"
	"fmt"
)

// ScanIDs calls fn for every stored note id in key order.
//
// The engine uses it on Open to replay committed ids into its duplicate
// prefilter. Iteration stops at the first error returned by fn.
func (s *Store) ScanIDs(ctx context.Context, fn func(id [32]byte, key uint64) error) error {
	rows, err := s.reader.QueryContext(ctx, "SELECT id, key FROM note_ids ORDER BY key ASC")
	if err != nil {
		return fmt.Errorf("scan ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			raw []byte
			key int64
		)
		if err := rows.Scan(&raw, &key); err != nil {
			return fmt.Errorf("scan id row: %w", err)
		}
		var id [32]byte
		if len(raw) != len(id) {
			return fmt.Errorf("note id for key %d has %d bytes", key, len(raw))
		}
		copy(id[:], raw)
		if err := fn(id, scanKey(key)); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate ids: %w", err)
	}
	return nil
}

// CountNotes returns the number of stored notes, read outside any snapshot.
func (s *Store) CountNotes(ctx context.Context) (uint64, error) {
	var n int64
	if err := s.reader.QueryRowContext(ctx, "SELECT COUNT(*) FROM notes").Scan(&n); err != nil {
		return 0, fmt.Errorf("count notes: %w", err)
	}
	return uint64(n), nil
}
