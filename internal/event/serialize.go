package event

import (
	"crypto/sha256"
	"strconv"
)

const hexDigits = "0123456789abcdef"

// Serialize produces the canonical commitment array for ev:
//
//	[0,"<pubkey hex>",<created_at>,<kind>,<tags>,"<content>"]
//
// CRITICAL: this is the ONLY serialization used for id computation. It must
// not go through encoding/json, which escapes <, >, & and U+2028/U+2029.
func Serialize(ev *Event) []byte {
	buf := make([]byte, 0, 128+len(ev.Content)+tagsSizeHint(ev.Tags))

	buf = append(buf, `[0,"`...)
	buf = appendHex(buf, ev.PubKey[:])
	buf = append(buf, `",`...)
	buf = strconv.AppendUint(buf, ev.CreatedAt, 10)
	buf = append(buf, ',')
	buf = strconv.AppendUint(buf, uint64(ev.Kind), 10)
	buf = append(buf, ',')
	buf = AppendTags(buf, ev.Tags)
	buf = append(buf, ',')
	buf = AppendJSONString(buf, ev.Content)
	buf = append(buf, ']')

	return buf
}

// ComputeID returns sha256(Serialize(ev)).
func ComputeID(ev *Event) [32]byte {
	return sha256.Sum256(Serialize(ev))
}

// AppendTags appends tags as a JSON array of string arrays.
func AppendTags(buf []byte, tags [][]string) []byte {
	buf = append(buf, '[')
	for i, tag := range tags {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '[')
		for j, elem := range tag {
			if j > 0 {
				buf = append(buf, ',')
			}
			buf = AppendJSONString(buf, elem)
		}
		buf = append(buf, ']')
	}
	return append(buf, ']')
}

// AppendJSONString appends s as a quoted JSON string using NIP-01 escaping:
// quote, backslash, \b \t \n \f \r get short escapes, other control
// characters become \u00xx, every other byte is copied raw.
func AppendJSONString(buf []byte, s string) []byte {
	buf = append(buf, '"')
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x20 && c != '"' && c != '\\' {
			continue
		}
		buf = append(buf, s[start:i]...)
		switch c {
		case '"':
			buf = append(buf, '\\', '"')
		case '\\':
			buf = append(buf, '\\', '\\')
		case '\b':
			buf = append(buf, '\\', 'b')
		case '\t':
			buf = append(buf, '\\', 't')
		case '\n':
			buf = append(buf, '\\', 'n')
		case '\f':
			buf = append(buf, '\\', 'f')
		case '\r':
			buf = append(buf, '\\', 'r')
		default:
			buf = append(buf, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
		}
		start = i + 1
	}
	buf = append(buf, s[start:]...)
	return append(buf, '"')
}

// AppendHex appends the lowercase hex form of b.
func AppendHex(buf []byte, b []byte) []byte {
	return appendHex(buf, b)
}

func appendHex(buf []byte, b []byte) []byte {
	for _, c := range b {
		buf = append(buf, hexDigits[c>>4], hexDigits[c&0xf])
	}
	return buf
}

func tagsSizeHint(tags [][]string) int {
	n := 2
	for _, tag := range tags {
		n += 3
		for _, elem := range tag {
			n += len(elem) + 3
		}
	}
	return n
}

// MarshalJSON renders ev as a NIP-01 event object with fields in the
// conventional order.
func (ev *Event) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 320+len(ev.Content)+tagsSizeHint(ev.Tags))
	buf = append(buf, `{"id":"`...)
	buf = appendHex(buf, ev.ID[:])
	buf = append(buf, `","pubkey":"`...)
	buf = appendHex(buf, ev.PubKey[:])
	buf = append(buf, `","created_at":`...)
	buf = strconv.AppendUint(buf, ev.CreatedAt, 10)
	buf = append(buf, `,"kind":`...)
	buf = strconv.AppendUint(buf, uint64(ev.Kind), 10)
	buf = append(buf, `,"tags":`...)
	buf = AppendTags(buf, ev.Tags)
	buf = append(buf, `,"content":`...)
	buf = AppendJSONString(buf, ev.Content)
	buf = append(buf, `,"sig":"`...)
	buf = appendHex(buf, ev.Sig[:])
	buf = append(buf, `"}`...)
	return buf, nil
}
