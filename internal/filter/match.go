package filter

import (
	"bytes"
	"slices"

	"github.com/nostrstore/nostrstore/internal/note"
)

// Matches reports whether n satisfies every field of f. Limit is not a
// constraint on individual records and is ignored here.
func (f *Filter) Matches(n note.Note) bool {
	if f == nil || f.state != stateFinalized {
		return false
	}

	if f.idSet != nil && !containsID(f.idSet, n.ID()) {
		return false
	}
	if f.authors != nil && !containsID(f.authors, n.PubKey()) {
		return false
	}
	if f.kinds != nil {
		if _, ok := slices.BinarySearch(f.kinds, n.Kind()); !ok {
			return false
		}
	}

	createdAt := n.CreatedAt()
	if f.since != nil && createdAt < *f.since {
		return false
	}
	if f.until != nil && createdAt > *f.until {
		return false
	}

	for i := range f.tags {
		if !matchTag(&f.tags[i], n) {
			return false
		}
	}
	return true
}

// MatchesAny reports whether n satisfies at least one of filters.
func MatchesAny(filters []*Filter, n note.Note) bool {
	for _, f := range filters {
		if f.Matches(n) {
			return true
		}
	}
	return false
}

func containsID(sorted [][32]byte, id [32]byte) bool {
	_, ok := slices.BinarySearchFunc(sorted, id, func(a, b [32]byte) int {
		return bytes.Compare(a[:], b[:])
	})
	return ok
}

// matchTag reports whether n has a tag named tf.Name whose second element
// is in tf's value set.
func matchTag(tf *TagField, n note.Note) bool {
	for tag := range n.Tags() {
		if tag.Len() < 2 {
			continue
		}
		name, _ := tag.Elem(0)
		if name.IsID() || len(name.Bytes()) != 1 || name.Bytes()[0] != tf.Name {
			continue
		}

		val, _ := tag.Elem(1)
		if val.IsID() {
			if containsID(tf.IDs, val.ID()) {
				return true
			}
			continue
		}
		if _, ok := slices.BinarySearch(tf.Strs, string(val.Bytes())); ok {
			return true
		}
	}
	return false
}
