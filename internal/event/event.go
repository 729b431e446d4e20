package event

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
)

// Well-known kinds.
const (
	KindProfile     uint32 = 0
	KindText        uint32 = 1
	KindContacts    uint32 = 3
	KindDM          uint32 = 4
	KindDelete      uint32 = 5
	KindRepost      uint32 = 6
	KindReaction    uint32 = 7
	KindZapRequest  uint32 = 9734
	KindZap         uint32 = 9735
	KindNWCRequest  uint32 = 23194
	KindNWCResponse uint32 = 23195
	KindHTTPAuth    uint32 = 27235
	KindList        uint32 = 30000
	KindLongForm    uint32 = 30023
	KindStatus      uint32 = 30315
)

// Event is a parsed, not yet stored, signed event.
type Event struct {
	ID        [32]byte
	PubKey    [32]byte
	Sig       [64]byte
	CreatedAt uint64
	Kind      uint32
	Content   string
	Tags      [][]string
}

// rawEvent mirrors the wire object. Pointers distinguish absent from zero.
type rawEvent struct {
	ID        *string         `json:"id"`
	PubKey    *string         `json:"pubkey"`
	CreatedAt *json.Number    `json:"created_at"`
	Kind      *json.Number    `json:"kind"`
	Tags      json.RawMessage `json:"tags"`
	Content   *string         `json:"content"`
	Sig       *string         `json:"sig"`
}

// Parse decodes raw event text. It checks structure only; use Validate for
// identity and signature.
func Parse(raw []byte) (*Event, error) {
	body := bytes.TrimSpace(raw)
	if len(body) == 0 {
		return nil, reject(ReasonParseError, "empty input")
	}

	switch body[0] {
	case '{':
		return parseObject(body)
	case '[':
		obj, err := unwrapEnvelope(body)
		if err != nil {
			return nil, err
		}
		return parseObject(obj)
	default:
		return nil, reject(ReasonParseError, "expected object or EVENT envelope")
	}
}

// unwrapEnvelope extracts the event object from ["EVENT", subid, {…}] or
// ["EVENT", {…}].
func unwrapEnvelope(body []byte) ([]byte, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil {
		return nil, rejectWrap(ReasonParseError, err, "decode envelope")
	}
	if len(parts) < 2 || len(parts) > 3 {
		return nil, reject(ReasonParseError, "envelope has %d elements", len(parts))
	}

	var label string
	if err := json.Unmarshal(parts[0], &label); err != nil || label != "EVENT" {
		return nil, reject(ReasonParseError, "envelope label must be \"EVENT\"")
	}

	if len(parts) == 3 {
		var subID string
		if err := json.Unmarshal(parts[1], &subID); err != nil {
			return nil, rejectWrap(ReasonParseError, err, "envelope subscription id")
		}
	}

	return parts[len(parts)-1], nil
}

func parseObject(body []byte) (*Event, error) {
	var r rawEvent
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, rejectWrap(ReasonParseError, err, "decode event")
	}

	if r.ID == nil || r.PubKey == nil || r.Sig == nil || r.Content == nil ||
		r.CreatedAt == nil || r.Kind == nil {
		return nil, reject(ReasonParseError, "missing required field")
	}

	ev := &Event{Content: *r.Content}

	if err := decodeHex(ev.ID[:], *r.ID); err != nil {
		return nil, rejectWrap(ReasonParseError, err, "id")
	}
	if err := decodeHex(ev.PubKey[:], *r.PubKey); err != nil {
		return nil, rejectWrap(ReasonParseError, err, "pubkey")
	}
	if err := decodeHex(ev.Sig[:], *r.Sig); err != nil {
		return nil, rejectWrap(ReasonParseError, err, "sig")
	}

	createdAt, err := strconv.ParseUint(r.CreatedAt.String(), 10, 64)
	if err != nil {
		return nil, rejectWrap(ReasonParseError, err, "created_at")
	}
	ev.CreatedAt = createdAt

	kind, err := strconv.ParseUint(r.Kind.String(), 10, 32)
	if err != nil {
		return nil, rejectWrap(ReasonParseError, err, "kind")
	}
	ev.Kind = uint32(kind)

	tags, err := parseTags(r.Tags)
	if err != nil {
		return nil, err
	}
	ev.Tags = tags

	return ev, nil
}

// parseTags decodes tags element by element so that null or non-string
// elements are refused instead of silently becoming "".
func parseTags(raw json.RawMessage) ([][]string, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return [][]string{}, nil
	}

	var outer []json.RawMessage
	if err := json.Unmarshal(raw, &outer); err != nil {
		return nil, rejectWrap(ReasonMalformedTag, err, "tags must be an array")
	}

	tags := make([][]string, 0, len(outer))
	for i, rawTag := range outer {
		var elems []json.RawMessage
		if err := json.Unmarshal(rawTag, &elems); err != nil || elems == nil {
			return nil, reject(ReasonMalformedTag, "tag %d is not an array", i)
		}
		if len(elems) == 0 {
			return nil, reject(ReasonMalformedTag, "tag %d is empty", i)
		}

		tag := make([]string, len(elems))
		for j, rawElem := range elems {
			if len(rawElem) == 0 || rawElem[0] != '"' {
				return nil, reject(ReasonMalformedTag, "tag %d element %d is not a string", i, j)
			}
			if err := json.Unmarshal(rawElem, &tag[j]); err != nil {
				return nil, rejectWrap(ReasonMalformedTag, err, "tag %d element %d", i, j)
			}
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func decodeHex(dst []byte, s string) error {
	if len(s) != hex.EncodedLen(len(dst)) {
		return fmt.Errorf("want %d hex characters, got %d", hex.EncodedLen(len(dst)), len(s))
	}
	if _, err := hex.Decode(dst, []byte(s)); err != nil {
		return err
	}
	return nil
}

// ParseID decodes a 64-character hex id or pubkey.
func ParseID(s string) ([32]byte, error) {
	var id [32]byte
	if err := decodeHex(id[:], s); err != nil {
		return id, fmt.Errorf("parse id %q: %w", s, err)
	}
	return id, nil
}

// IsHexID reports whether s is exactly 64 lowercase hex characters.
// Such tag values are stored packed.
func IsHexID(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
