package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nostrstore/nostrstore/internal/filter"
	"github.com/nostrstore/nostrstore/internal/testutil"
)

var (
	alice = testutil.NewSigner("alice")
	bob   = testutil.NewSigner("bob")
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MapSize = 64 << 20
	cfg.IngesterThreads = 2
	return cfg
}

// openTestEngine opens an engine in a fresh temp directory.
func openTestEngine(t *testing.T, cfg Config, opts ...Option) *Engine {
	t.Helper()
	e, err := Open(t.TempDir(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func mustSubmit(t *testing.T, e *Engine, raw []byte) Receipt {
	t.Helper()
	r, err := e.Submit(context.Background(), raw)
	require.NoError(t, err)
	return r
}

func mustSnapshot(t *testing.T, e *Engine) *Snapshot {
	t.Helper()
	s, err := e.BeginSnapshot(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { s.End() })
	return s
}

// matchAll matches every note. An empty filter is not valid.
const matchAll = `{"since":0}`

func mustFilter(t *testing.T, js string) *filter.Filter {
	t.Helper()
	f, err := filter.ParseJSON([]byte(js))
	require.NoError(t, err)
	return f
}
