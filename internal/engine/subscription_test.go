package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nostrstore/nostrstore/internal/filter"
)

func TestSubscribe_DeliversMatchesInOrder(t *testing.T) {
	e := openTestEngine(t, testConfig())
	sub, err := e.Subscribe(mustFilter(t, `{"kinds":[1]}`))
	require.NoError(t, err)

	var want []uint64
	for i := 0; i < 6; i++ {
		r := mustSubmit(t, e, alice.JSON(1, uint64(i+1), fmt.Sprintf("n%d", i)))
		want = append(want, r.Key)
		mustSubmit(t, e, alice.JSON(7, uint64(i+1), "+"))
	}

	var got []uint64
	for {
		keys, err := e.Poll(sub, 4)
		require.NoError(t, err)
		if len(keys) == 0 {
			break
		}
		got = append(got, keys...)
	}
	assert.Equal(t, want, got)

	keys, err := e.Poll(sub, 0)
	require.NoError(t, err)
	assert.Empty(t, keys, "polled keys are never delivered twice")
}

func TestSubscribe_AnyFilterMatches(t *testing.T) {
	e := openTestEngine(t, testConfig())
	sub, err := e.Subscribe(
		mustFilter(t, fmt.Sprintf(`{"authors":[%q]}`, bob.PubKeyHex())),
		mustFilter(t, `{"kinds":[7]}`),
	)
	require.NoError(t, err)

	r1 := mustSubmit(t, e, bob.JSON(1, 1, "by bob"))
	r2 := mustSubmit(t, e, alice.JSON(7, 1, "+"))
	mustSubmit(t, e, alice.JSON(1, 1, "neither"))

	keys, err := e.Poll(sub, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{r1.Key, r2.Key}, keys)
}

func TestSubscribe_DuplicatesNotRedelivered(t *testing.T) {
	e := openTestEngine(t, testConfig())
	sub, err := e.Subscribe(mustFilter(t, matchAll))
	require.NoError(t, err)

	raw := alice.JSON(1, 1, "once")
	mustSubmit(t, e, raw)
	mustSubmit(t, e, raw)

	keys, err := e.Poll(sub, 0)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestSubscribe_Validation(t *testing.T) {
	e := openTestEngine(t, testConfig())

	_, err := e.Subscribe()
	assert.ErrorIs(t, err, ErrInvalidFilter)

	_, err = e.Subscribe(filter.New())
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestSubscribe_CallerMayReleaseFilter(t *testing.T) {
	e := openTestEngine(t, testConfig())
	f := mustFilter(t, `{"kinds":[1]}`)
	sub, err := e.Subscribe(f)
	require.NoError(t, err)
	require.NoError(t, f.Release())

	r := mustSubmit(t, e, alice.JSON(1, 1, "x"))
	keys, err := e.Poll(sub, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{r.Key}, keys)
}

func TestUnsubscribe(t *testing.T) {
	e := openTestEngine(t, testConfig())
	sub, err := e.Subscribe(mustFilter(t, matchAll))
	require.NoError(t, err)
	mustSubmit(t, e, alice.JSON(1, 1, "pending"))

	require.NoError(t, e.Unsubscribe(sub))

	_, err = e.Poll(sub, 0)
	assert.ErrorIs(t, err, ErrUnknownSubscription)
	assert.ErrorIs(t, e.Unsubscribe(sub), ErrUnknownSubscription)
	_, err = e.Subscription(sub)
	assert.ErrorIs(t, err, ErrUnknownSubscription)
	_, err = e.Poll(12345, 1)
	assert.ErrorIs(t, err, ErrUnknownSubscription)
}

func TestSubscription_OverflowPolicies(t *testing.T) {
	tests := []struct {
		policy      string
		wantContent []string
		wantDropped uint64
	}{
		{OverflowDropOldest, []string{"c", "d"}, 2},
		{OverflowDropNewest, []string{"a", "b"}, 2},
		{OverflowGrow, []string{"a", "b", "c", "d"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			ctx := context.Background()
			cfg := testConfig()
			cfg.SubscriptionQueueSize = 2
			cfg.SubscriptionOverflow = tt.policy
			e := openTestEngine(t, cfg)

			sub, err := e.Subscribe(mustFilter(t, matchAll))
			require.NoError(t, err)
			for i, c := range []string{"a", "b", "c", "d"} {
				mustSubmit(t, e, alice.JSON(1, uint64(i+1), c))
			}

			info, err := e.Subscription(sub)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDropped, info.Dropped)
			assert.Equal(t, len(tt.wantContent), info.Pending)

			keys, err := e.Poll(sub, 0)
			require.NoError(t, err)
			s := mustSnapshot(t, e)
			var got []string
			for _, k := range keys {
				n, err := s.GetByKey(ctx, k)
				require.NoError(t, err)
				got = append(got, n.Content())
			}
			assert.Equal(t, tt.wantContent, got)
		})
	}
}

func TestMatchQueue_PopBatchesPreserveOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("any poll batch size yields every key once in order", prop.ForAll(
		func(n, batch int) bool {
			q := newMatchQueue(0, OverflowDropOldest)
			for k := 1; k <= n; k++ {
				q.Push(uint64(k))
			}
			var got []uint64
			for {
				keys := q.Pop(batch)
				if len(keys) == 0 {
					break
				}
				got = append(got, keys...)
			}
			if len(got) != n {
				return false
			}
			for i, k := range got {
				if k != uint64(i+1) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 300),
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}
