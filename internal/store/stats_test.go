package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats_Empty(t *testing.T) {
	s := createTestStore(t)
	r := beginRead(t, s)

	st, err := r.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.Tables[TableNotes].Count)
	assert.Equal(t, uint64(2), st.Tables[TableEngineMeta].Count, "seeded meta rows")
	assert.Len(t, st.Flatten(), (TableCount+CommonKindCount+1)*3)
}

func TestStats_CountsByTableAndKind(t *testing.T) {
	s := createTestStore(t)
	evs := insertEventsWithSizes(t, s)
	r := beginRead(t, s)

	st, err := r.Stats(context.Background())
	require.NoError(t, err)

	var total uint64
	for _, size := range evs {
		total += size
	}
	notes := st.Tables[TableNotes]
	assert.Equal(t, uint64(4), notes.Count)
	assert.Equal(t, uint64(4*8), notes.KeyBytes)
	assert.Equal(t, total, notes.ValueBytes)

	assert.Equal(t, uint64(4), st.Tables[TableNoteIDs].Count)
	assert.Equal(t, uint64(1), st.Tables[TableNoteTags].Count)
	assert.Equal(t, uint64(1), st.Tables[TableProfiles].Count)
	assert.Equal(t, uint64(1), st.Tables[TableProfileSearch].Count)

	assert.Equal(t, uint64(1), st.Kinds[0].Count, "profile")
	assert.Equal(t, uint64(2), st.Kinds[1].Count, "text")
	assert.Equal(t, uint64(1), st.Other.Count)
	assert.Equal(t, uint64(8), st.Other.KeyBytes)

	var kindValues uint64
	for _, k := range st.Kinds {
		kindValues += k.ValueBytes
	}
	assert.Equal(t, total, kindValues+st.Other.ValueBytes)
}

func insertEventsWithSizes(t *testing.T, s *Store) []uint64 {
	t.Helper()
	evs := []struct {
		kind    uint32
		content string
		tags    [][]string
	}{
		{0, `{"name":"alice"}`, nil},
		{1, "one", [][]string{{"t", "x"}}},
		{1, "two", nil},
		{12345, "custom", nil},
	}
	var sizes []uint64
	for i, e := range evs {
		ev := alice.Event(e.kind, uint64(i+1), e.content, e.tags...)
		insertEvents(t, s, ev)
		sizes = append(sizes, uint64(encode(t, ev).Size()))
	}
	return sizes
}

func TestNames(t *testing.T) {
	assert.Equal(t, "notes", TableName(TableNotes))
	assert.Equal(t, "engine_meta", TableName(TableEngineMeta))
	assert.Empty(t, TableName(TableCount))
	assert.Empty(t, TableName(-1))

	assert.Equal(t, "profile", CommonKindName(0))
	assert.Equal(t, "zap", CommonKindName(7))
	assert.Equal(t, "zap_request", CommonKindName(8))
	assert.Empty(t, CommonKindName(CommonKindCount))

	kind, ok := CommonKind(CommonKindCount - 1)
	assert.True(t, ok)
	assert.Equal(t, uint32(30315), kind)
}

func TestScanIDs(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	a := alice.Event(1, 1, "a")
	b := bob.Event(1, 1, "b")
	insertEvents(t, s, a, b)

	var ids [][32]byte
	var keys []uint64
	err := s.ScanIDs(ctx, func(id [32]byte, key uint64) error {
		ids = append(ids, id)
		keys = append(keys, key)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][32]byte{a.ID, b.ID}, ids)
	assert.Equal(t, []uint64{1, 2}, keys)

	stop := errors.New("stop")
	calls := 0
	err = s.ScanIDs(ctx, func([32]byte, uint64) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)

	n, err := s.CountNotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	key, ok, err := s.HasID(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(2), key)
}
