// Package note implements the packed binary record that every stored event
// is kept as.
//
// A Note is a read-only view over one buffer. Accessors decode fields in
// place; nothing is copied except on explicit rendering. Parse validates
// the whole buffer once, so every later accessor can trust the bounds.
//
// Layout v1, little-endian:
//
//	off  size  field
//	0    1     version (=1)
//	1    1     flags (reserved, must be 0)
//	2    2     tag count
//	4    4     total length of buffer
//	8    32    id
//	40   32    pubkey
//	72   64    sig
//	136  8     created_at
//	144  4     kind
//	148  4     content length
//	152  n     content bytes (UTF-8)
//	...        tags: u16 element count, then per element
//	             0x00 u32 len + bytes   string
//	             0x01 32 bytes          packed id
package note

import "errors"

// Version is the layout version written by Encode.
const Version = 1

const (
	offVersion    = 0
	offFlags      = 1
	offTagCount   = 2
	offTotalLen   = 4
	offID         = 8
	offPubKey     = 40
	offSig        = 72
	offCreatedAt  = 136
	offKind       = 144
	offContentLen = 148

	// HeaderSize is the fixed prefix before content bytes.
	HeaderSize = 152
)

const (
	tagElemString byte = 0x00
	tagElemID     byte = 0x01

	elemStringHeader = 1 + 4
	elemIDSize       = 1 + 32
	tagHeader        = 2
)

// Limits imposed by the field widths.
const (
	MaxTags         = 1<<16 - 1
	MaxTagElements  = 1<<16 - 1
	MaxRecordLength = 1<<32 - 1
)

// ErrCorruptRecord is wrapped by every Parse failure.
var ErrCorruptRecord = errors.New("corrupt record")

// ErrTooLarge is returned by Encode when an event does not fit the layout.
var ErrTooLarge = errors.New("event exceeds record limits")
