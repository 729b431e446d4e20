package note

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// Note is a read-only view over a validated record buffer.
//
// The zero Note has no fields; accessors return zero values. A Note holds a
// reference to its buffer and never copies it, so the caller must not
// mutate the buffer while the Note is in use.
type Note struct {
	buf     []byte
	tagsOff int
}

// Parse validates buf and returns a view over it.
//
// Every bound is checked here: version, declared length, content length
// and UTF-8, and each tag and element. All failures wrap ErrCorruptRecord.
// Parse never reads past len(buf).
func Parse(buf []byte) (Note, error) {
	if len(buf) < HeaderSize {
		return Note{}, corrupt("buffer of %d bytes is shorter than header", len(buf))
	}
	if buf[offVersion] != Version {
		return Note{}, corrupt("unsupported version %d", buf[offVersion])
	}
	if buf[offFlags] != 0 {
		return Note{}, corrupt("unknown flags 0x%02x", buf[offFlags])
	}

	le := binary.LittleEndian
	total := le.Uint32(buf[offTotalLen:])
	if uint64(total) != uint64(len(buf)) {
		return Note{}, corrupt("declared length %d, buffer length %d", total, len(buf))
	}

	contentLen := uint64(le.Uint32(buf[offContentLen:]))
	if contentLen > uint64(len(buf)-HeaderSize) {
		return Note{}, corrupt("content length %d exceeds buffer", contentLen)
	}
	tagsOff := HeaderSize + int(contentLen)
	if !utf8.Valid(buf[HeaderSize:tagsOff]) {
		return Note{}, corrupt("content is not valid UTF-8")
	}

	tagCount := int(le.Uint16(buf[offTagCount:]))
	off := tagsOff
	for i := 0; i < tagCount; i++ {
		next, err := validateTag(buf, off)
		if err != nil {
			return Note{}, fmt.Errorf("tag %d: %w", i, err)
		}
		off = next
	}
	if off != len(buf) {
		return Note{}, corrupt("%d trailing bytes after tags", len(buf)-off)
	}

	return Note{buf: buf, tagsOff: tagsOff}, nil
}

func validateTag(buf []byte, off int) (int, error) {
	if len(buf)-off < tagHeader {
		return 0, corrupt("tag header at %d exceeds buffer", off)
	}
	n := int(binary.LittleEndian.Uint16(buf[off:]))
	off += tagHeader

	for j := 0; j < n; j++ {
		if off >= len(buf) {
			return 0, corrupt("element %d at %d exceeds buffer", j, off)
		}
		switch buf[off] {
		case tagElemID:
			if len(buf)-off < elemIDSize {
				return 0, corrupt("id element %d exceeds buffer", j)
			}
			off += elemIDSize
		case tagElemString:
			if len(buf)-off < elemStringHeader {
				return 0, corrupt("string element %d header exceeds buffer", j)
			}
			l := uint64(binary.LittleEndian.Uint32(buf[off+1:]))
			start := off + elemStringHeader
			if l > uint64(len(buf)-start) {
				return 0, corrupt("string element %d of %d bytes exceeds buffer", j, l)
			}
			end := start + int(l)
			if !utf8.Valid(buf[start:end]) {
				return 0, corrupt("string element %d is not valid UTF-8", j)
			}
			off = end
		default:
			return 0, corrupt("element %d has unknown type 0x%02x", j, buf[off])
		}
	}
	return off, nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptRecord, fmt.Sprintf(format, args...))
}

// Bytes returns the underlying record buffer.
func (n Note) Bytes() []byte { return n.buf }

// Size returns the record length in bytes.
func (n Note) Size() int { return len(n.buf) }

// ID returns the event id.
func (n Note) ID() (id [32]byte) {
	if n.buf != nil {
		copy(id[:], n.buf[offID:])
	}
	return id
}

// PubKey returns the author public key.
func (n Note) PubKey() (pk [32]byte) {
	if n.buf != nil {
		copy(pk[:], n.buf[offPubKey:])
	}
	return pk
}

// Sig returns the signature.
func (n Note) Sig() (sig [64]byte) {
	if n.buf != nil {
		copy(sig[:], n.buf[offSig:])
	}
	return sig
}

// CreatedAt returns the author-claimed creation time in Unix seconds.
func (n Note) CreatedAt() uint64 {
	if n.buf == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(n.buf[offCreatedAt:])
}

// Kind returns the event kind.
func (n Note) Kind() uint32 {
	if n.buf == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(n.buf[offKind:])
}

// ContentBytes returns the content without copying.
func (n Note) ContentBytes() []byte {
	if n.buf == nil {
		return nil
	}
	return n.buf[HeaderSize:n.tagsOff]
}

// Content returns the content as a string.
func (n Note) Content() string {
	return string(n.ContentBytes())
}

// TagCount returns the number of tags.
func (n Note) TagCount() int {
	if n.buf == nil {
		return 0
	}
	return int(binary.LittleEndian.Uint16(n.buf[offTagCount:]))
}
