package store

import (
	"fmt"

	"github.com/nostrstore/nostrstore/internal/note"
	"github.com/nostrstore/nostrstore/internal/querysql"
)

// Column encodings shared by the write and read paths.
//
// Keys and kinds fit int64 directly. created_at uses querysql.SortableTime
// so ORDER BY created_at matches unsigned order.

func keyParam(key uint64) int64 {
	return int64(key)
}

func timeParam(createdAt uint64) int64 {
	return querysql.SortableTime(createdAt)
}

func scanKey(v int64) uint64 {
	return uint64(v)
}

func scanTime(v int64) uint64 {
	return querysql.FromSortableTime(v)
}

// tagRow is one note_tags row derived from a record tag.
type tagRow struct {
	name  string
	value any
}

// indexedTags returns the note_tags rows for n. Only tags with a
// single-letter name and at least one value are indexed, keyed by their
// first value. Packed id values bind as BLOB and strings as TEXT, so
// the two never compare equal.
func indexedTags(n note.Note) []tagRow {
	var rows []tagRow
	for tag := range n.Tags() {
		if tag.Len() < 2 {
			continue
		}
		name, _ := tag.Elem(0)
		if name.IsID() || len(name.Bytes()) != 1 {
			continue
		}
		value, _ := tag.Elem(1)
		rows = append(rows, tagRow{name: string(name.Bytes()), value: elemParam(value)})
	}
	return rows
}

func elemParam(e note.Elem) any {
	if e.IsID() {
		return append([]byte(nil), e.Bytes()...)
	}
	return string(e.Bytes())
}

// parseRecord validates a scanned record. raw must be owned by the caller;
// scanning into *[]byte already copies.
func parseRecord(key uint64, raw []byte) (note.Note, error) {
	n, err := note.Parse(raw)
	if err != nil {
		return note.Note{}, fmt.Errorf("record %d: %w", key, err)
	}
	return n, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
