package store

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nostrstore/nostrstore/internal/note"
)

func TestOpen_CreatesDirectoryAndFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "db")

	s, err := Open(context.Background(), dir, Options{})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, filepath.Join(dir, FileName), s.Path())
	_, err = os.Stat(s.Path())
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, dir, Options{})
	require.NoError(t, err)
	insertEvents(t, s, alice.Event(1, 100, "hello"))
	require.NoError(t, s.Close())

	for i := 0; i < 3; i++ {
		s, err := Open(ctx, dir, Options{})
		require.NoError(t, err, "open %d", i)
		last, err := s.LastKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), last)
		require.NoError(t, s.Close())
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := Open(context.Background(), filepath.Join(file, "db"), Options{})
	assert.Error(t, err)
}

func TestOpen_MapSizeExceeded(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, dir, Options{})
	require.NoError(t, err)
	insertEvents(t, s, alice.Event(1, 100, "hello"))
	require.NoError(t, s.Close())

	_, err = Open(ctx, dir, Options{MapSize: 1024})
	assert.ErrorIs(t, err, ErrMapSizeExceeded)
}

func TestOpen_MapSizeCapsGrowth(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, t.TempDir(), Options{MapSize: 1 << 20})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.verifyPragma("max_page_count", strconv.FormatInt((1<<20)/s.pageSize, 10)))
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, dir, Options{})
	require.NoError(t, err)
	_, err = s.wconn.ExecContext(ctx, "PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(ctx, dir, Options{})
	assert.ErrorIs(t, err, ErrIncompatible)
}

func TestOpen_RejectsUnknownRecordVersion(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, dir, Options{})
	require.NoError(t, err)
	require.NoError(t, s.SetMeta(ctx, MetaRecordVersion, "42"))
	require.NoError(t, s.Close())

	_, err = Open(ctx, dir, Options{})
	assert.ErrorIs(t, err, ErrIncompatible)
}

func TestClose_MultipleCalls(t *testing.T) {
	s, err := Open(context.Background(), t.TempDir(), Options{})
	require.NoError(t, err)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
}

func TestSchema_Tables(t *testing.T) {
	s := createTestStore(t)

	for i := 0; i < TableCount; i++ {
		var name string
		err := s.wconn.QueryRowContext(context.Background(),
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", TableName(i)).Scan(&name)
		assert.NoError(t, err, "table %q", TableName(i))
	}
}

func TestMigration_SeedsMeta(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	require.NoError(t, s.verifyPragma("user_version", strconv.Itoa(currentSchemaVersion)))

	v, err := s.Meta(ctx, MetaRecordVersion)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(note.Version), v)

	v, err = s.Meta(ctx, MetaSchemaVersion)
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	_, err = s.Meta(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetMeta_Overwrites(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	require.NoError(t, s.SetMeta(ctx, MetaEngineID, "a"))
	require.NoError(t, s.SetMeta(ctx, MetaEngineID, "b"))

	v, err := s.Meta(ctx, MetaEngineID)
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestLastKey(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	last, err := s.LastKey(ctx)
	require.NoError(t, err)
	assert.Zero(t, last)

	insertEvents(t, s, alice.Event(1, 1, "a"), alice.Event(1, 2, "b"))
	last, err = s.LastKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), last)
}
