// Package profile extracts author metadata from profile (kind 0) content
// and derives the search keys the cache is indexed by.
package profile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalidContent is returned when profile content is not a JSON object.
var ErrInvalidContent = errors.New("invalid profile content")

// Profile is the metadata carried by a profile event. Empty fields were
// absent or not strings.
type Profile struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	About       string `json:"about,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Banner      string `json:"banner,omitempty"`
	NIP05       string `json:"nip05,omitempty"`
	LUD16       string `json:"lud16,omitempty"`
	LUD06       string `json:"lud06,omitempty"`
	Website     string `json:"website,omitempty"`
}

// Record is a cached profile together with the note it came from.
type Record struct {
	PubKey    [32]byte `json:"-"`
	NoteKey   uint64   `json:"note_key"`
	CreatedAt uint64   `json:"created_at"`
	Profile
}

// Parse reads profile fields from event content.
//
// Unknown keys and values that are not strings are ignored. "displayName"
// is accepted when "display_name" is missing.
func Parse(content string) (Profile, error) {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(strings.NewReader(content))
	if err := dec.Decode(&raw); err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	if raw == nil {
		return Profile{}, fmt.Errorf("%w: not an object", ErrInvalidContent)
	}

	var p Profile
	fields := []struct {
		key string
		dst *string
	}{
		{"name", &p.Name},
		{"display_name", &p.DisplayName},
		{"about", &p.About},
		{"picture", &p.Picture},
		{"banner", &p.Banner},
		{"nip05", &p.NIP05},
		{"lud16", &p.LUD16},
		{"lud06", &p.LUD06},
		{"website", &p.Website},
	}
	for _, f := range fields {
		*f.dst = stringField(raw[f.key])
	}
	if p.DisplayName == "" {
		p.DisplayName = stringField(raw["displayName"])
	}
	return p, nil
}

func stringField(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// NormalizeSearch folds s into the form search keys are stored in:
// NFKC-normalized, case-folded, surrounding space trimmed.
func NormalizeSearch(s string) string {
	s = strings.TrimSpace(norm.NFKC.String(s))
	return cases.Fold().String(s)
}

// SearchKeys returns the distinct, non-empty search keys for p.
func SearchKeys(p Profile) []string {
	var keys []string
	for _, s := range []string{p.Name, p.DisplayName} {
		k := NormalizeSearch(s)
		if k == "" {
			continue
		}
		if len(keys) == 1 && keys[0] == k {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}
