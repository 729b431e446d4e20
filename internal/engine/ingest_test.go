package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nostrstore/nostrstore/internal/event"
	"github.com/nostrstore/nostrstore/internal/store"
	"github.com/nostrstore/nostrstore/internal/testutil"
)

func TestSubmit_RoundTrip(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t, testConfig())
	ev := alice.Event(1, 1700000123, "hello \"nostr\"\n",
		[]string{"e", testutil.HexID([32]byte{9}), "wss://relay.example"},
		[]string{"p", alice.PubKeyHex()},
		[]string{"t", "go"},
		[]string{"client", "test", "extra"},
	)

	r := mustSubmit(t, e, testutil.MustJSON(ev))
	assert.Equal(t, StatusStored, r.Status)
	assert.Equal(t, uint64(1), r.Key)

	s := mustSnapshot(t, e)
	n, key, err := s.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Key, key)
	assert.Equal(t, ev.ID, n.ID())
	assert.Equal(t, ev.PubKey, n.PubKey())
	assert.Equal(t, ev.Sig, n.Sig())
	assert.Equal(t, ev.CreatedAt, n.CreatedAt())
	assert.Equal(t, ev.Kind, n.Kind())
	assert.Equal(t, ev.Content, n.Content())
	assert.Equal(t, ev.Tags, n.Strings())

	byKey, err := s.GetByKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, n.Bytes(), byKey.Bytes())
}

func TestSubmit_Envelope(t *testing.T) {
	e := openTestEngine(t, testConfig())
	raw := alice.JSON(1, 1, "wrapped")

	r := mustSubmit(t, e, []byte(`["EVENT",`+string(raw)+`]`))
	assert.Equal(t, StatusStored, r.Status)

	r2 := mustSubmit(t, e, []byte(`["EVENT","sub-1",`+string(raw)+`]`))
	assert.Equal(t, Receipt{Key: r.Key, Status: StatusDuplicate}, r2)
}

func TestSubmit_Rejections(t *testing.T) {
	e := openTestEngine(t, testConfig())

	badID := alice.Event(1, 1, "x")
	badID.ID[0] ^= 0xff

	badSig := alice.Event(1, 1, "y")
	badSig.Sig[10] ^= 0xff

	tests := []struct {
		name   string
		raw    []byte
		reason event.Reason
	}{
		{"not json", []byte("{"), event.ReasonParseError},
		{"missing fields", []byte(`{"id":"00"}`), event.ReasonParseError},
		{"tag not array", []byte(fmt.Sprintf(
			`{"id":"%s","pubkey":"%s","created_at":1,"kind":1,"tags":["x"],"content":"","sig":"%s"}`,
			testutil.HexID([32]byte{}), alice.PubKeyHex(), testutil.HexID([32]byte{})+testutil.HexID([32]byte{}))),
			event.ReasonMalformedTag},
		{"id mismatch", testutil.MustJSON(badID), event.ReasonIDMismatch},
		{"bad signature", testutil.MustJSON(badSig), event.ReasonSignatureInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Submit(context.Background(), tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrRejected)
			assert.True(t, IsRejected(err))
			assert.Equal(t, tt.reason, ReasonOf(err))
		})
	}

	// Rejections never stop the workers.
	r := mustSubmit(t, e, alice.JSON(1, 2, "fine"))
	assert.Equal(t, StatusStored, r.Status)
}

func TestSubmit_Idempotent(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t, testConfig())
	raw := alice.JSON(1, 1, "once", []string{"t", "dup"})

	r1 := mustSubmit(t, e, raw)
	r2 := mustSubmit(t, e, raw)
	assert.Equal(t, StatusStored, r1.Status)
	assert.Equal(t, Receipt{Key: r1.Key, Status: StatusDuplicate}, r2)

	st, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.Tables[store.TableNotes].Count)
	assert.Equal(t, uint64(1), st.Tables[store.TableNoteTags].Count, "tag index written once")
}

func TestSubmit_ConcurrentDuplicatesGetOneKey(t *testing.T) {
	cfg := testConfig()
	cfg.IngesterThreads = 4
	e := openTestEngine(t, cfg)
	raw := alice.JSON(1, 1, "race")

	const n = 20
	receipts := make([]Receipt, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := e.Submit(context.Background(), raw)
			assert.NoError(t, err)
			receipts[i] = r
		}()
	}
	wg.Wait()

	stored := 0
	for _, r := range receipts {
		assert.Equal(t, receipts[0].Key, r.Key)
		if r.Status == StatusStored {
			stored++
		}
	}
	assert.Equal(t, 1, stored)
}

func TestSubmit_ConcurrentDistinctKeys(t *testing.T) {
	cfg := testConfig()
	cfg.IngesterThreads = 4
	cfg.CommitBatchSize = 8
	e := openTestEngine(t, cfg)

	const writers, perWriter = 4, 25
	var mu sync.Mutex
	keys := map[uint64]bool{}
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		signer := testutil.NewSigner(fmt.Sprintf("writer-%d", w))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				r, err := e.Submit(context.Background(), signer.JSON(1, uint64(i+1), "c"))
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				keys[r.Key] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, keys, writers*perWriter)
	for k := uint64(1); k <= writers*perWriter; k++ {
		assert.True(t, keys[k], "key %d missing", k)
	}
}

func TestProfile_AliceScenario(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.MapSize = 1 << 30
	cfg.IngesterThreads = 2
	e := openTestEngine(t, cfg)

	mustSubmit(t, e, alice.JSON(0, 100, `{"name":"alice"}`))
	s := mustSnapshot(t, e)
	rec, err := s.Profile(ctx, alice.PubKey())
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Name)

	mustSubmit(t, e, alice.JSON(0, 200, `{"name":"alice2"}`))
	s2 := mustSnapshot(t, e)
	rec, err = s2.Profile(ctx, alice.PubKey())
	require.NoError(t, err)
	assert.Equal(t, "alice2", rec.Name)

	rec, err = s.Profile(ctx, alice.PubKey())
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Name, "older snapshot keeps its view")
}

func TestProfile_FreshnessEitherOrder(t *testing.T) {
	ctx := context.Background()
	older := alice.JSON(0, 10, `{"name":"t1"}`)
	newer := alice.JSON(0, 20, `{"name":"t2","about":"latest"}`)

	for name, order := range map[string][][]byte{
		"older first": {older, newer},
		"newer first": {newer, older},
	} {
		t.Run(name, func(t *testing.T) {
			e := openTestEngine(t, testConfig())
			for _, raw := range order {
				mustSubmit(t, e, raw)
			}
			s := mustSnapshot(t, e)
			rec, err := s.Profile(ctx, alice.PubKey())
			require.NoError(t, err)
			assert.Equal(t, "t2", rec.Name)
			assert.Equal(t, "latest", rec.About)
			assert.Equal(t, uint64(20), rec.CreatedAt)
		})
	}
}

func TestProfile_InvalidContentStillStored(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t, testConfig())
	ev := alice.Event(0, 1, "not json")
	r := mustSubmit(t, e, testutil.MustJSON(ev))
	assert.Equal(t, StatusStored, r.Status)

	s := mustSnapshot(t, e)
	_, err := s.Profile(ctx, alice.PubKey())
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = s.GetByID(ctx, ev.ID)
	assert.NoError(t, err)
}
