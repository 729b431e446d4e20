package note

import (
	"encoding/binary"
	"fmt"

	"github.com/nostrstore/nostrstore/internal/event"
)

// Encode packs ev into a new record buffer.
//
// The final size is computed first and the buffer is allocated once; no
// field is patched after it is written. Tag strings that are exactly 64
// lowercase hex characters are stored as packed 32-byte ids.
func Encode(ev *event.Event) ([]byte, error) {
	return AppendEncode(nil, ev)
}

// AppendEncode appends the record for ev to dst, growing it at most once.
func AppendEncode(dst []byte, ev *event.Event) ([]byte, error) {
	size, err := encodedSize(ev)
	if err != nil {
		return dst, err
	}
	if cap(dst)-len(dst) < size {
		grown := make([]byte, len(dst), len(dst)+size)
		copy(grown, dst)
		dst = grown
	}
	return appendRecord(dst, ev, size), nil
}

func encodedSize(ev *event.Event) (int, error) {
	if len(ev.Tags) > MaxTags {
		return 0, fmt.Errorf("%w: %d tags", ErrTooLarge, len(ev.Tags))
	}
	if uint64(len(ev.Content)) > MaxRecordLength {
		return 0, fmt.Errorf("%w: content of %d bytes", ErrTooLarge, len(ev.Content))
	}

	size := uint64(HeaderSize) + uint64(len(ev.Content))
	for i, tag := range ev.Tags {
		if len(tag) > MaxTagElements {
			return 0, fmt.Errorf("%w: tag %d has %d elements", ErrTooLarge, i, len(tag))
		}
		size += tagHeader
		for _, elem := range tag {
			size += uint64(elemSize(elem))
		}
	}
	if size > MaxRecordLength {
		return 0, fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}
	return int(size), nil
}

func elemSize(s string) int {
	if event.IsHexID(s) {
		return elemIDSize
	}
	return elemStringHeader + len(s)
}

func appendRecord(buf []byte, ev *event.Event, size int) []byte {
	le := binary.LittleEndian

	buf = append(buf, Version, 0)
	buf = le.AppendUint16(buf, uint16(len(ev.Tags)))
	buf = le.AppendUint32(buf, uint32(size))
	buf = append(buf, ev.ID[:]...)
	buf = append(buf, ev.PubKey[:]...)
	buf = append(buf, ev.Sig[:]...)
	buf = le.AppendUint64(buf, ev.CreatedAt)
	buf = le.AppendUint32(buf, ev.Kind)
	buf = le.AppendUint32(buf, uint32(len(ev.Content)))
	buf = append(buf, ev.Content...)

	for _, tag := range ev.Tags {
		buf = le.AppendUint16(buf, uint16(len(tag)))
		for _, elem := range tag {
			if event.IsHexID(elem) {
				buf = append(buf, tagElemID)
				buf = appendDecodedID(buf, elem)
				continue
			}
			buf = append(buf, tagElemString)
			buf = le.AppendUint32(buf, uint32(len(elem)))
			buf = append(buf, elem...)
		}
	}
	return buf
}

// appendDecodedID appends the 32 bytes of a string already known to satisfy
// event.IsHexID.
func appendDecodedID(buf []byte, s string) []byte {
	for i := 0; i < len(s); i += 2 {
		buf = append(buf, unhex(s[i])<<4|unhex(s[i+1]))
	}
	return buf
}

func unhex(c byte) byte {
	if c <= '9' {
		return c - '0'
	}
	return c - 'a' + 10
}
