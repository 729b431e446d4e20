package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nostrstore/nostrstore/internal/event"
	"github.com/nostrstore/nostrstore/internal/filter"
	"github.com/nostrstore/nostrstore/internal/note"
	"github.com/nostrstore/nostrstore/internal/profile"
	"github.com/nostrstore/nostrstore/internal/testutil"
)

// createTestStore opens a store in a fresh temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func encode(t *testing.T, ev *event.Event) note.Note {
	t.Helper()
	buf, err := note.Encode(ev)
	require.NoError(t, err)
	n, err := note.Parse(buf)
	require.NoError(t, err)
	return n
}

// insertEvents writes evs in one transaction with keys continuing from the
// store's last key, and returns the assigned keys.
func insertEvents(t *testing.T, s *Store, evs ...*event.Event) []uint64 {
	t.Helper()
	ctx := context.Background()

	last, err := s.LastKey(ctx)
	require.NoError(t, err)

	w, err := s.BeginWrite(ctx)
	require.NoError(t, err)
	defer w.Rollback()

	keys := make([]uint64, 0, len(evs))
	for _, ev := range evs {
		last++
		n := encode(t, ev)
		require.NoError(t, w.InsertNote(ctx, last, n))
		if ev.Kind == event.KindProfile {
			if p, err := profile.Parse(ev.Content); err == nil {
				_, err := w.UpsertProfile(ctx, ev.PubKey, last, ev.CreatedAt, p)
				require.NoError(t, err)
			}
		}
		keys = append(keys, last)
	}
	require.NoError(t, w.Commit())
	return keys
}

func beginRead(t *testing.T, s *Store) *ReadTx {
	t.Helper()
	r, err := s.BeginRead(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { r.End() })
	return r
}

func mustFilter(t *testing.T, js string) *filter.Filter {
	t.Helper()
	f, err := filter.ParseJSON([]byte(js))
	require.NoError(t, err)
	return f
}

var (
	alice = testutil.NewSigner("alice")
	bob   = testutil.NewSigner("bob")
)
