package note

import (
	"errors"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/nostrstore/nostrstore/internal/event"
)

// TestProperty_EncodeParseRoundTrip checks that every encodable event decodes
// back to the same field values.
func TestProperty_EncodeParseRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.MaxSize = 32
	properties := gopter.NewProperties(parameters)

	properties.Property("decoded fields equal encoded fields", prop.ForAll(
		func(createdAt uint64, kind uint32, content string, tags [][]string) bool {
			ev := &event.Event{CreatedAt: createdAt, Kind: kind, Content: content, Tags: tags}
			ev.ID[0], ev.PubKey[31], ev.Sig[63] = byte(kind), byte(createdAt), 0x5a

			buf, err := Encode(ev)
			if err != nil {
				return false
			}
			n, err := Parse(buf)
			if err != nil {
				return false
			}
			return n.ID() == ev.ID &&
				n.PubKey() == ev.PubKey &&
				n.Sig() == ev.Sig &&
				n.CreatedAt() == createdAt &&
				n.Kind() == kind &&
				n.Content() == content &&
				n.TagCount() == len(tags) &&
				reflect.DeepEqual(n.Strings(), normalizeTags(tags))
		},
		gen.UInt64(),
		gen.UInt32(),
		gen.AnyString(),
		genTags(6, 4),
	))

	properties.TestingRun(t)
}

// TestProperty_ParseNeverPanics mutates valid records and checks Parse either
// rejects them with ErrCorruptRecord or yields a Note whose accessors are
// safe to call.
func TestProperty_ParseNeverPanics(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	valid, err := Encode(fixedEvent())
	if err != nil {
		t.Fatal(err)
	}

	properties.Property("mutated records are rejected or fully readable", prop.ForAll(
		func(pos int, val uint8, cut int) bool {
			buf := append([]byte(nil), valid...)
			buf[pos%len(buf)] = val
			buf = buf[:len(buf)-cut%len(buf)]

			n, err := Parse(buf)
			if err != nil {
				return errors.Is(err, ErrCorruptRecord)
			}
			_ = n.RenderJSON()
			for tag := range n.Tags() {
				for e := range tag.Elems() {
					_ = e.String()
				}
			}
			return true
		},
		gen.IntRange(0, 1<<20),
		gen.UInt8(),
		gen.IntRange(0, 1<<20),
	))

	properties.TestingRun(t)
}

// genTags generates up to maxTags tags of up to maxElems elements each,
// mixing plain strings with packable hex ids.
func genTags(maxTags, maxElems int) gopter.Gen {
	elem := gen.OneGenOf(
		gen.AlphaString(),
		gen.Const("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"),
	)
	tag := gen.IntRange(0, maxElems).FlatMap(func(v any) gopter.Gen {
		return gen.SliceOfN(v.(int), elem, reflect.TypeOf(""))
	}, reflect.TypeOf([]string{}))
	return gen.IntRange(0, maxTags).FlatMap(func(v any) gopter.Gen {
		return gen.SliceOfN(v.(int), tag, reflect.TypeOf([]string{}))
	}, reflect.TypeOf([][]string{}))
}

func normalizeTags(tags [][]string) [][]string {
	out := make([][]string, len(tags))
	for i, tag := range tags {
		out[i] = append([]string{}, tag...)
	}
	return out
}
