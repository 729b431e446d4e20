package store

import (
	"context"
	"fmt"
)

// Table indices into Stats.Tables.
const (
	TableNotes = iota
	TableNoteIDs
	TableNotePubkeys
	TableNoteKinds
	TableNotePubkeyKinds
	TableNoteTags
	TableNoteCreated
	TableProfiles
	TableProfileSearch
	TableEngineMeta

	// TableCount is the number of physical tables.
	TableCount
)

var tableNames = [TableCount]string{
	"notes",
	"note_ids",
	"note_pubkeys",
	"note_kinds",
	"note_pubkey_kinds",
	"note_tags",
	"note_created",
	"profiles",
	"profile_search",
	"engine_meta",
}

// tableSizeSQL computes (count, key bytes, value bytes) per table. Integer
// columns count as 8 bytes.
var tableSizeSQL = [TableCount]string{
	"SELECT COUNT(*), COUNT(*) * 8, COALESCE(SUM(LENGTH(record)), 0) FROM notes",
	"SELECT COUNT(*), COUNT(*) * 32, COUNT(*) * 16 FROM note_ids",
	"SELECT COUNT(*), COUNT(*) * 48, 0 FROM note_pubkeys",
	"SELECT COUNT(*), COUNT(*) * 20, 0 FROM note_kinds",
	"SELECT COUNT(*), COUNT(*) * 52, 0 FROM note_pubkey_kinds",
	"SELECT COUNT(*), COALESCE(SUM(LENGTH(name) + LENGTH(CAST(value AS BLOB)) + 16), 0), 0 FROM note_tags",
	"SELECT COUNT(*), COUNT(*) * 16, 0 FROM note_created",
	`SELECT COUNT(*), COUNT(*) * 32, COALESCE(SUM(16
		+ COALESCE(LENGTH(name), 0) + COALESCE(LENGTH(display_name), 0)
		+ COALESCE(LENGTH(about), 0) + COALESCE(LENGTH(picture), 0)
		+ COALESCE(LENGTH(banner), 0) + COALESCE(LENGTH(nip05), 0)
		+ COALESCE(LENGTH(lud16), 0) + COALESCE(LENGTH(lud06), 0)
		+ COALESCE(LENGTH(website), 0)), 0) FROM profiles`,
	"SELECT COUNT(*), COALESCE(SUM(LENGTH(CAST(search_key AS BLOB)) + 32), 0), 0 FROM profile_search",
	"SELECT COUNT(*), COALESCE(SUM(LENGTH(name)), 0), COALESCE(SUM(LENGTH(value)), 0) FROM engine_meta",
}

// Well-known kinds with their own Stats entry.
var commonKinds = [...]struct {
	kind uint32
	name string
}{
	{0, "profile"},
	{1, "text"},
	{3, "contacts"},
	{4, "dm"},
	{5, "delete"},
	{6, "repost"},
	{7, "reaction"},
	{9735, "zap"},
	{9734, "zap_request"},
	{23194, "nwc_request"},
	{23195, "nwc_response"},
	{27235, "http_auth"},
	{30000, "list"},
	{30023, "longform"},
	{30315, "status"},
}

// CommonKindCount is the number of well-known kinds.
const CommonKindCount = len(commonKinds)

// Stat is one row of the statistics table.
type Stat struct {
	Count      uint64 `json:"count"`
	KeyBytes   uint64 `json:"key_bytes"`
	ValueBytes uint64 `json:"value_bytes"`
}

// Stats is a fixed-shape size report. Counts for notes under a kind not
// listed in commonKinds go to Other.
type Stats struct {
	Tables [TableCount]Stat      `json:"tables"`
	Kinds  [CommonKindCount]Stat `json:"kinds"`
	Other  Stat                  `json:"other"`
}

// TableName returns the name of table i, or "" when out of range.
func TableName(i int) string {
	if i < 0 || i >= TableCount {
		return ""
	}
	return tableNames[i]
}

// CommonKindName returns the name of well-known kind i, or "" when out of
// range.
func CommonKindName(i int) string {
	if i < 0 || i >= CommonKindCount {
		return ""
	}
	return commonKinds[i].name
}

// CommonKind returns the kind number of well-known kind i.
func CommonKind(i int) (uint32, bool) {
	if i < 0 || i >= CommonKindCount {
		return 0, false
	}
	return commonKinds[i].kind, true
}

func commonKindIndex(kind uint32) int {
	for i, k := range commonKinds {
		if k.kind == kind {
			return i
		}
	}
	return -1
}

// Flatten returns the table as count, key bytes, value bytes triples:
// tables first, then kinds, then Other.
func (s Stats) Flatten() []uint64 {
	out := make([]uint64, 0, (TableCount+CommonKindCount+1)*3)
	add := func(st Stat) {
		out = append(out, st.Count, st.KeyBytes, st.ValueBytes)
	}
	for _, st := range s.Tables {
		add(st)
	}
	for _, st := range s.Kinds {
		add(st)
	}
	add(s.Other)
	return out
}

// Stats computes table and kind statistics within the read transaction.
func (r *ReadTx) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	for i, query := range tableSizeSQL {
		var count, keyBytes, valueBytes int64
		if err := r.tx.QueryRowContext(ctx, query).Scan(&count, &keyBytes, &valueBytes); err != nil {
			return Stats{}, fmt.Errorf("stats %s: %w", tableNames[i], err)
		}
		st.Tables[i] = Stat{Count: uint64(count), KeyBytes: uint64(keyBytes), ValueBytes: uint64(valueBytes)}
	}

	rows, err := r.tx.QueryContext(ctx, `
		SELECT k.kind, COUNT(*), COALESCE(SUM(LENGTH(n.record)), 0)
		FROM note_kinds k
		JOIN notes n ON n.key = k.key
		GROUP BY k.kind
	`)
	if err != nil {
		return Stats{}, fmt.Errorf("stats kinds: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, count, valueBytes int64
		if err := rows.Scan(&kind, &count, &valueBytes); err != nil {
			return Stats{}, fmt.Errorf("scan kind stats: %w", err)
		}
		dst := &st.Other
		if i := commonKindIndex(uint32(kind)); i >= 0 {
			dst = &st.Kinds[i]
		}
		dst.Count += uint64(count)
		dst.KeyBytes += uint64(count) * 8
		dst.ValueBytes += uint64(valueBytes)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate kind stats: %w", err)
	}
	return st, nil
}
