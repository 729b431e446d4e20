package event

import (
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Verifier checks a signature over an event id.
type Verifier interface {
	Verify(id, pubkey [32]byte, sig [64]byte) bool
}

// SchnorrVerifier verifies BIP-340 signatures over secp256k1.
type SchnorrVerifier struct{}

// Verify implements Verifier.
func (SchnorrVerifier) Verify(id, pubkey [32]byte, sig [64]byte) bool {
	pk, err := schnorr.ParsePubKey(pubkey[:])
	if err != nil {
		return false
	}
	s, err := schnorr.ParseSignature(sig[:])
	if err != nil {
		return false
	}
	return s.Verify(id[:], pk)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(id, pubkey [32]byte, sig [64]byte) bool

// Verify implements Verifier.
func (f VerifierFunc) Verify(id, pubkey [32]byte, sig [64]byte) bool {
	return f(id, pubkey, sig)
}

// Validate recomputes the id of ev and, when v is non-nil, checks the
// signature. A nil verifier skips the signature check.
func Validate(ev *Event, v Verifier) error {
	if ComputeID(ev) != ev.ID {
		return reject(ReasonIDMismatch, "declared id does not match content hash")
	}
	if v != nil && !v.Verify(ev.ID, ev.PubKey, ev.Sig) {
		return reject(ReasonSignatureInvalid, "signature does not verify")
	}
	return nil
}
