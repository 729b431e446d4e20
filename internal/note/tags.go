package note

import (
	"encoding/binary"
	"encoding/hex"
	"iter"

	"github.com/nostrstore/nostrstore/internal/event"
)

// ElemKind distinguishes the two tag element encodings.
type ElemKind uint8

const (
	// ElemString is a UTF-8 string element.
	ElemString ElemKind = iota
	// ElemID is a 32-byte id packed from 64 lowercase hex characters.
	ElemID
)

// Elem is one tag element.
type Elem struct {
	kind ElemKind
	data []byte
}

// Kind reports the element encoding.
func (e Elem) Kind() ElemKind { return e.kind }

// IsID reports whether the element is a packed id.
func (e Elem) IsID() bool { return e.kind == ElemID }

// Bytes returns the raw element payload: string bytes, or the 32 id bytes.
func (e Elem) Bytes() []byte { return e.data }

// ID returns the packed id. The result is zero for string elements.
func (e Elem) ID() (id [32]byte) {
	if e.kind == ElemID {
		copy(id[:], e.data)
	}
	return id
}

// String renders the element as text. Ids become lowercase hex.
func (e Elem) String() string {
	if e.kind == ElemID {
		return hex.EncodeToString(e.data)
	}
	return string(e.data)
}

// appendTo renders the element into buf.
func (e Elem) appendTo(buf []byte) []byte {
	if e.kind == ElemID {
		return event.AppendHex(buf, e.data)
	}
	return append(buf, e.data...)
}

// Tag is one tag of a note.
type Tag struct {
	buf []byte
	off int // first element
	n   int
}

// Len returns the number of elements.
func (t Tag) Len() int { return t.n }

// Elems iterates over the elements in order.
func (t Tag) Elems() iter.Seq[Elem] {
	return func(yield func(Elem) bool) {
		off := t.off
		for i := 0; i < t.n; i++ {
			var e Elem
			e, off = readElem(t.buf, off)
			if !yield(e) {
				return
			}
		}
	}
}

// Elem returns element i.
func (t Tag) Elem(i int) (Elem, bool) {
	if i < 0 || i >= t.n {
		return Elem{}, false
	}
	off := t.off
	var e Elem
	for j := 0; j <= i; j++ {
		e, off = readElem(t.buf, off)
	}
	return e, true
}

// Name returns the first element as text, or "" for an empty tag.
func (t Tag) Name() string {
	e, ok := t.Elem(0)
	if !ok {
		return ""
	}
	return e.String()
}

// Strings renders every element.
func (t Tag) Strings() []string {
	out := make([]string, 0, t.n)
	for e := range t.Elems() {
		out = append(out, e.String())
	}
	return out
}

// readElem decodes the element at off. The buffer was validated by Parse.
func readElem(buf []byte, off int) (Elem, int) {
	if buf[off] == tagElemID {
		start := off + 1
		return Elem{kind: ElemID, data: buf[start : start+32]}, start + 32
	}
	l := int(binary.LittleEndian.Uint32(buf[off+1:]))
	start := off + elemStringHeader
	return Elem{kind: ElemString, data: buf[start : start+l]}, start + l
}

// skipTag returns the offset just past the tag starting at off.
func skipTag(buf []byte, off int) (Tag, int) {
	n := int(binary.LittleEndian.Uint16(buf[off:]))
	t := Tag{buf: buf, off: off + tagHeader, n: n}
	off += tagHeader
	for i := 0; i < n; i++ {
		_, off = readElem(buf, off)
	}
	return t, off
}

// Tags iterates over the tags lazily. The sequence may be ranged over any
// number of times.
func (n Note) Tags() iter.Seq[Tag] {
	return func(yield func(Tag) bool) {
		count := n.TagCount()
		off := n.tagsOff
		for i := 0; i < count; i++ {
			var t Tag
			t, off = skipTag(n.buf, off)
			if !yield(t) {
				return
			}
		}
	}
}

// Strings renders all tags as string arrays, ids as hex.
func (n Note) Strings() [][]string {
	out := make([][]string, 0, n.TagCount())
	for t := range n.Tags() {
		out = append(out, t.Strings())
	}
	return out
}
