package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/nostrstore/nostrstore/internal/note"
)

//go:embed schema.sql
var schemaSQL string

// FileName is the database file created inside the store directory.
const FileName = "data.sqlite"

// Schema version tracking:
// 0 - empty database
// 1 - initial tables, engine_meta seeded with the record layout version
const currentSchemaVersion = 1

// Meta keys kept in engine_meta.
const (
	MetaSchemaVersion = "schema_version"
	MetaRecordVersion = "record_version"
	MetaEngineID      = "engine_id"
)

var (
	// ErrNotFound is returned by point lookups that find nothing.
	ErrNotFound = errors.New("not found")

	// ErrMapSizeExceeded is returned by Open when the existing database is
	// already larger than the configured map size.
	ErrMapSizeExceeded = errors.New("database larger than map size")

	// ErrIncompatible is returned by Open for databases written by a newer
	// schema or an unknown record layout.
	ErrIncompatible = errors.New("incompatible database")
)

// Options configure Open.
type Options struct {
	// MapSize caps the database size in bytes. 0 means unlimited.
	MapSize int64

	// Logger receives warnings about skipped corrupt records.
	Logger *zap.Logger
}

// Store owns the database file and its connection pools.
type Store struct {
	path   string
	writer *sql.DB
	wconn  *sql.Conn
	reader *sql.DB
	logger *zap.Logger

	pageSize int64
	maxPages int64
}

// Open creates or opens the store in directory dir.
//
// The directory is created if absent. Open applies pragmas, checks the
// database against opts.MapSize, and applies schema migrations. It is
// idempotent: opening an existing store leaves its data untouched.
func Open(ctx context.Context, dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	path := filepath.Join(dir, FileName)

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{path: path, logger: logger}
	if err := s.open(ctx, opts); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) open(ctx context.Context, opts Options) error {
	writer, err := sql.Open("sqlite3", writerDSN(s.path))
	if err != nil {
		return fmt.Errorf("open writer: %w", err)
	}
	s.writer = writer

	// SQLite allows one writer; pin the pool to a single long-lived
	// connection so per-connection pragmas stick.
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)
	writer.SetConnMaxLifetime(0)

	wconn, err := writer.Conn(ctx)
	if err != nil {
		return fmt.Errorf("connect writer: %w", err)
	}
	s.wconn = wconn

	if err := s.applyPragmas(ctx); err != nil {
		return fmt.Errorf("apply pragmas: %w", err)
	}
	if err := s.applyMapSize(ctx, opts.MapSize); err != nil {
		return err
	}
	if err := s.applySchema(ctx); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	reader, err := sql.Open("sqlite3", readerDSN(s.path))
	if err != nil {
		return fmt.Errorf("open reader: %w", err)
	}
	s.reader = reader
	reader.SetMaxIdleConns(4)
	if err := reader.PingContext(ctx); err != nil {
		return fmt.Errorf("connect reader: %w", err)
	}
	return nil
}

func writerDSN(path string) string {
	return "file:" + path +
		"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate"
}

func readerDSN(path string) string {
	return "file:" + path + "?_busy_timeout=5000&_query_only=true"
}

// Close closes both pools. Safe to call more than once.
func (s *Store) Close() error {
	var errs []error
	if s.wconn != nil {
		errs = append(errs, s.wconn.Close())
		s.wconn = nil
	}
	if s.writer != nil {
		errs = append(errs, s.writer.Close())
		s.writer = nil
	}
	if s.reader != nil {
		errs = append(errs, s.reader.Close())
		s.reader = nil
	}
	return errors.Join(errs...)
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// applyPragmas sets configuration the DSN does not cover.
func (s *Store) applyPragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := s.wconn.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applyMapSize refuses databases already larger than mapSize and caps
// growth at mapSize bytes.
func (s *Store) applyMapSize(ctx context.Context, mapSize int64) error {
	if err := s.wconn.QueryRowContext(ctx, "PRAGMA page_size").Scan(&s.pageSize); err != nil {
		return fmt.Errorf("read page_size: %w", err)
	}
	var pageCount int64
	if err := s.wconn.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return fmt.Errorf("read page_count: %w", err)
	}
	if mapSize <= 0 {
		return nil
	}

	size := pageCount * s.pageSize
	if size > mapSize {
		return fmt.Errorf("%w: %d bytes on disk, map size %d", ErrMapSizeExceeded, size, mapSize)
	}

	s.maxPages = mapSize / s.pageSize
	pragma := "PRAGMA max_page_count = " + strconv.FormatInt(s.maxPages, 10)
	if _, err := s.wconn.ExecContext(ctx, pragma); err != nil {
		return fmt.Errorf("set max_page_count: %w", err)
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func (s *Store) applySchema(ctx context.Context) error {
	var version int
	if err := s.wconn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("%w: schema version %d is newer than supported %d",
			ErrIncompatible, version, currentSchemaVersion)
	}

	if _, err := s.wconn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	if version < 1 {
		if err := s.migrateToV1(ctx); err != nil {
			return err
		}
	}

	if _, err := s.wconn.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return s.checkRecordVersion(ctx)
}

// migrateToV1 seeds engine_meta for a fresh database.
func (s *Store) migrateToV1(ctx context.Context) error {
	_, err := s.wconn.ExecContext(ctx, `
		INSERT INTO engine_meta (name, value) VALUES (?, ?), (?, ?)
		ON CONFLICT(name) DO NOTHING
	`,
		MetaSchemaVersion, strconv.Itoa(1),
		MetaRecordVersion, strconv.Itoa(note.Version),
	)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

func (s *Store) checkRecordVersion(ctx context.Context) error {
	var v string
	err := s.wconn.QueryRowContext(ctx,
		"SELECT value FROM engine_meta WHERE name = ?", MetaRecordVersion).Scan(&v)
	if err != nil {
		return fmt.Errorf("read record version: %w", err)
	}
	if v != strconv.Itoa(note.Version) {
		return fmt.Errorf("%w: record layout version %s, supported %d", ErrIncompatible, v, note.Version)
	}
	return nil
}

// LastKey returns the largest assigned record key, 0 for an empty store.
func (s *Store) LastKey(ctx context.Context) (uint64, error) {
	var key int64
	if err := s.wconn.QueryRowContext(ctx, "SELECT COALESCE(MAX(key), 0) FROM notes").Scan(&key); err != nil {
		return 0, fmt.Errorf("last key: %w", err)
	}
	return uint64(key), nil
}

// Meta reads an engine_meta value.
func (s *Store) Meta(ctx context.Context, name string) (string, error) {
	var v string
	err := s.reader.QueryRowContext(ctx, "SELECT value FROM engine_meta WHERE name = ?", name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("meta %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("meta %q: %w", name, err)
	}
	return v, nil
}

// SetMeta writes an engine_meta value outside any batch.
func (s *Store) SetMeta(ctx context.Context, name, value string) error {
	_, err := s.wconn.ExecContext(ctx, `
		INSERT INTO engine_meta (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`, name, value)
	if err != nil {
		return fmt.Errorf("set meta %q: %w", name, err)
	}
	return nil
}

// HasID reports whether a record with id is committed, reading outside any
// snapshot.
func (s *Store) HasID(ctx context.Context, id [32]byte) (uint64, bool, error) {
	var key int64
	err := s.reader.QueryRowContext(ctx, "SELECT key FROM note_ids WHERE id = ?", id[:]).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup id: %w", err)
	}
	return uint64(key), true, nil
}

// verifyPragma checks that a pragma is set to the expected value on the
// writer connection.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.wconn.QueryRowContext(context.Background(), "PRAGMA "+name).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
