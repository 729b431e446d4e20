package note

import (
	"strconv"

	"github.com/nostrstore/nostrstore/internal/event"
)

// AppendJSON appends the NIP-01 JSON object for n to buf.
func (n Note) AppendJSON(buf []byte) []byte {
	id, pk, sig := n.ID(), n.PubKey(), n.Sig()

	buf = append(buf, `{"id":"`...)
	buf = event.AppendHex(buf, id[:])
	buf = append(buf, `","pubkey":"`...)
	buf = event.AppendHex(buf, pk[:])
	buf = append(buf, `","created_at":`...)
	buf = strconv.AppendUint(buf, n.CreatedAt(), 10)
	buf = append(buf, `,"kind":`...)
	buf = strconv.AppendUint(buf, uint64(n.Kind()), 10)
	buf = append(buf, `,"tags":[`...)

	first := true
	var scratch []byte
	for t := range n.Tags() {
		if !first {
			buf = append(buf, ',')
		}
		first = false

		buf = append(buf, '[')
		i := 0
		for e := range t.Elems() {
			if i > 0 {
				buf = append(buf, ',')
			}
			i++
			scratch = e.appendTo(scratch[:0])
			buf = event.AppendJSONString(buf, string(scratch))
		}
		buf = append(buf, ']')
	}

	buf = append(buf, `],"content":`...)
	buf = event.AppendJSONString(buf, n.Content())
	buf = append(buf, `,"sig":"`...)
	buf = event.AppendHex(buf, sig[:])
	return append(buf, `"}`...)
}

// RenderJSON returns the NIP-01 JSON object for n.
func (n Note) RenderJSON() []byte {
	return n.AppendJSON(make([]byte, 0, 2*n.Size()+64))
}

// MarshalJSON implements json.Marshaler.
func (n Note) MarshalJSON() ([]byte, error) {
	return n.RenderJSON(), nil
}
