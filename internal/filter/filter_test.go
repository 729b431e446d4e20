package filter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nostrstore/nostrstore/internal/event"
	"github.com/nostrstore/nostrstore/internal/note"
	"github.com/nostrstore/nostrstore/internal/testutil"
)

func mustNote(t *testing.T, ev *event.Event) note.Note {
	t.Helper()
	buf, err := note.Encode(ev)
	require.NoError(t, err)
	n, err := note.Parse(buf)
	require.NoError(t, err)
	return n
}

func kindsFilter(t *testing.T, kinds ...uint64) *Filter {
	t.Helper()
	f := New()
	require.NoError(t, f.StartField(FieldKinds))
	for _, k := range kinds {
		require.NoError(t, f.AddIntElement(k))
	}
	require.NoError(t, f.EndField())
	require.NoError(t, f.Finalize())
	return f
}

func TestBuilder_Basic(t *testing.T) {
	f := kindsFilter(t, 7, 1, 1, 3)
	assert.True(t, f.Finalized())
	assert.Equal(t, []uint32{1, 3, 7}, f.Kinds(), "sorted and de-duplicated")
	assert.Nil(t, f.Authors())
	_, ok := f.Limit()
	assert.False(t, ok)
}

func TestBuilder_LimitOnly(t *testing.T) {
	f := New()
	require.NoError(t, f.StartField(FieldLimit))
	require.NoError(t, f.AddIntElement(10))
	require.NoError(t, f.EndField())
	require.NoError(t, f.Finalize())

	limit, ok := f.Limit()
	assert.True(t, ok)
	assert.Equal(t, uint64(10), limit)
}

func TestBuilder_TagPacksHex(t *testing.T) {
	hexID := strings.Repeat("ab", 32)

	f := New()
	require.NoError(t, f.StartTagField('e'))
	require.NoError(t, f.AddStrElement(hexID))
	require.NoError(t, f.AddStrElement("plain"))
	require.NoError(t, f.AddStrElement("plain"))
	require.NoError(t, f.EndField())
	require.NoError(t, f.Finalize())

	require.Len(t, f.Tags(), 1)
	tf := f.Tags()[0]
	assert.Equal(t, byte('e'), tf.Name)
	require.Len(t, tf.IDs, 1)
	assert.Equal(t, byte(0xab), tf.IDs[0][0])
	assert.Equal(t, []string{"plain"}, tf.Strs)
}

func TestBuilder_Errors(t *testing.T) {
	tests := []struct {
		name  string
		build func(f *Filter) error
	}{
		{"start while open", func(f *Filter) error {
			_ = f.StartField(FieldKinds)
			return f.StartField(FieldAuthors)
		}},
		{"duplicate field", func(f *Filter) error {
			_ = f.StartField(FieldKinds)
			_ = f.AddIntElement(1)
			_ = f.EndField()
			return f.StartField(FieldKinds)
		}},
		{"duplicate tag field", func(f *Filter) error {
			_ = f.StartTagField('t')
			_ = f.AddStrElement("x")
			_ = f.EndField()
			return f.StartTagField('t')
		}},
		{"tag via StartField", func(f *Filter) error { return f.StartField(FieldTag) }},
		{"unknown field type", func(f *Filter) error { return f.StartField(FieldType(99)) }},
		{"int into authors", func(f *Filter) error {
			_ = f.StartField(FieldAuthors)
			return f.AddIntElement(1)
		}},
		{"id into kinds", func(f *Filter) error {
			_ = f.StartField(FieldKinds)
			return f.AddIDElement([32]byte{1})
		}},
		{"string into ids", func(f *Filter) error {
			_ = f.StartField(FieldIDs)
			return f.AddStrElement("x")
		}},
		{"kind out of range", func(f *Filter) error {
			_ = f.StartField(FieldKinds)
			return f.AddIntElement(1 << 32)
		}},
		{"element without field", func(f *Filter) error { return f.AddIntElement(1) }},
		{"end without field", func(f *Filter) error { return f.EndField() }},
		{"empty field", func(f *Filter) error {
			_ = f.StartField(FieldKinds)
			return f.EndField()
		}},
		{"two since elements", func(f *Filter) error {
			_ = f.StartField(FieldSince)
			_ = f.AddIntElement(1)
			return f.AddIntElement(2)
		}},
		{"empty limit", func(f *Filter) error {
			_ = f.StartField(FieldLimit)
			return f.EndField()
		}},
		{"finalize open", func(f *Filter) error {
			_ = f.StartField(FieldKinds)
			_ = f.AddIntElement(1)
			return f.Finalize()
		}},
		{"finalize empty", func(f *Filter) error { return f.Finalize() }},
		{"mutate after finalize", func(f *Filter) error {
			_ = f.StartField(FieldKinds)
			_ = f.AddIntElement(1)
			_ = f.EndField()
			_ = f.Finalize()
			return f.StartField(FieldAuthors)
		}},
		{"finalize twice", func(f *Filter) error {
			_ = f.StartField(FieldKinds)
			_ = f.AddIntElement(1)
			_ = f.EndField()
			_ = f.Finalize()
			return f.Finalize()
		}},
		{"use after release", func(f *Filter) error {
			_ = f.Release()
			return f.StartField(FieldKinds)
		}},
		{"release twice", func(f *Filter) error {
			_ = f.Release()
			return f.Release()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build(New())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidFilter)
		})
	}
}

func TestRelease_FinalizedFilterStopsMatching(t *testing.T) {
	f := kindsFilter(t, 1)
	n := mustNote(t, testutil.NewSigner("a").Event(1, 10, "x"))
	require.True(t, f.Matches(n))

	require.NoError(t, f.Release())
	assert.False(t, f.Finalized())
	assert.False(t, f.Matches(n))
}

func TestMatches(t *testing.T) {
	alice := testutil.NewSigner("alice")
	bob := testutil.NewSigner("bob")
	target := alice.Event(1, 500, "root")

	n := mustNote(t, alice.Event(1, 1000, "hello",
		[]string{"e", testutil.HexID(target.ID)},
		[]string{"t", "nostr"},
		[]string{"x"},
	))

	tests := []struct {
		name string
		json string
		want bool
	}{
		{"kind match", `{"kinds":[0,1]}`, true},
		{"kind miss", `{"kinds":[7]}`, false},
		{"author match", `{"authors":["` + alice.PubKeyHex() + `"]}`, true},
		{"author miss", `{"authors":["` + bob.PubKeyHex() + `"]}`, false},
		{"id match", `{"ids":["` + testutil.HexID(n.ID()) + `"]}`, true},
		{"since inclusive", `{"since":1000}`, true},
		{"since excludes", `{"since":1001}`, false},
		{"until inclusive", `{"until":1000}`, true},
		{"until excludes", `{"until":999}`, false},
		{"tag id", `{"#e":["` + testutil.HexID(target.ID) + `"]}`, true},
		{"tag string", `{"#t":["go","nostr"]}`, true},
		{"tag miss", `{"#t":["go"]}`, false},
		{"single-element tag never indexed", `{"#x":["x"]}`, false},
		{"and across fields", `{"kinds":[1],"authors":["` + bob.PubKeyHex() + `"]}`, false},
		{"limit ignored", `{"limit":0}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseJSON([]byte(tt.json))
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Matches(n))
		})
	}
}

func TestMatchesAny(t *testing.T) {
	n := mustNote(t, testutil.NewSigner("a").Event(3, 10, ""))
	assert.True(t, MatchesAny([]*Filter{kindsFilter(t, 1), kindsFilter(t, 3)}, n))
	assert.False(t, MatchesAny([]*Filter{kindsFilter(t, 1)}, n))
	assert.False(t, MatchesAny(nil, n))
}

func TestParseJSON_Errors(t *testing.T) {
	for _, raw := range []string{
		``,
		`null`,
		`[]`,
		`{}`,
		`{"kinds":[]}`,
		`{"kinds":[-1]}`,
		`{"ids":["abc"]}`,
		`{"#ab":["x"]}`,
		`{"search":"x"}`,
		`{"limit":1.5}`,
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseJSON([]byte(raw))
			assert.ErrorIs(t, err, ErrInvalidFilter)
		})
	}
}

func TestMarshalJSON_RoundTrip(t *testing.T) {
	in := `{"authors":["` + strings.Repeat("01", 32) + `"],"kinds":[1,7],"#e":["` + strings.Repeat("cd", 32) + `","x"],"since":5,"until":9,"limit":3}`
	f, err := ParseJSON([]byte(in))
	require.NoError(t, err)

	out, err := f.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, in, string(out))
}

func TestClone_Independent(t *testing.T) {
	f := kindsFilter(t, 1)
	c := f.Clone()
	require.NoError(t, f.Release())

	assert.True(t, c.Finalized())
	assert.Equal(t, []uint32{1}, c.Kinds())
}
