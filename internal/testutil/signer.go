// Package testutil builds signed events for tests.
package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/nostrstore/nostrstore/internal/event"
)

// Signer produces validly signed events for one deterministic key.
//
// The key is derived from a seed string, so NewSigner("alice") yields the
// same pubkey in every test run. Signatures use RFC 6979 nonces and are
// therefore byte-stable too.
type Signer struct {
	priv   *btcec.PrivateKey
	pubkey [32]byte
}

// NewSigner derives a key from sha256(seed).
func NewSigner(seed string) *Signer {
	sum := sha256.Sum256([]byte(seed))
	priv, pub := btcec.PrivKeyFromBytes(sum[:])

	s := &Signer{priv: priv}
	copy(s.pubkey[:], schnorr.SerializePubKey(pub))
	return s
}

// PubKey returns the x-only public key.
func (s *Signer) PubKey() [32]byte {
	return s.pubkey
}

// PubKeyHex returns the public key as lowercase hex.
func (s *Signer) PubKeyHex() string {
	return hex.EncodeToString(s.pubkey[:])
}

// Sign fills PubKey, ID and Sig of ev in place.
func (s *Signer) Sign(ev *event.Event) {
	ev.PubKey = s.pubkey
	if ev.Tags == nil {
		ev.Tags = [][]string{}
	}
	ev.ID = event.ComputeID(ev)

	sig, err := schnorr.Sign(s.priv, ev.ID[:])
	if err != nil {
		panic(fmt.Sprintf("testutil: schnorr sign: %v", err))
	}
	copy(ev.Sig[:], sig.Serialize())
}

// Event builds and signs an event.
func (s *Signer) Event(kind uint32, createdAt uint64, content string, tags ...[]string) *event.Event {
	ev := &event.Event{
		CreatedAt: createdAt,
		Kind:      kind,
		Content:   content,
		Tags:      tags,
	}
	s.Sign(ev)
	return ev
}

// JSON builds, signs and marshals an event.
func (s *Signer) JSON(kind uint32, createdAt uint64, content string, tags ...[]string) []byte {
	return MustJSON(s.Event(kind, createdAt, content, tags...))
}

// MustJSON marshals ev as a NIP-01 event object.
func MustJSON(ev *event.Event) []byte {
	data, err := ev.MarshalJSON()
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal event: %v", err))
	}
	return data
}

// HexID returns the lowercase hex of a 32-byte id.
func HexID(id [32]byte) string {
	return hex.EncodeToString(id[:])
}
