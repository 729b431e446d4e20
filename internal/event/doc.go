// Package event turns submitted event text into validated Event values.
//
// This package is the ingestion boundary: it owns the accepted input shapes,
// the canonical serialization used for content-addressed identity, and the
// signature check. It imports nothing internal.
//
// # Accepted input
//
// Three shapes are accepted:
//
//	{"id":…,"pubkey":…,"created_at":…,"kind":…,"tags":…,"content":…,"sig":…}
//	["EVENT","<subscription id>",{…}]   (relay form)
//	["EVENT",{…}]                       (client form)
//
// # Identity
//
// The event id is SHA-256 over the canonical array
//
//	[0,"<pubkey hex>",<created_at>,<kind>,<tags>,"<content>"]
//
// with strings escaped per NIP-01: quote, backslash, \b \t \n \f \r and other
// control characters as \u00xx; everything else is emitted raw.
//
// # Rejections
//
// Every failure is a *RejectError carrying a Reason so callers can report
// why an event was refused without string matching.
package event
