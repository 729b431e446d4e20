// Package querysql plans filters into parameterized SQLite queries over the
// index tables.
//
// CRITICAL: every plan orders by (created_at DESC, key DESC) so results are
// newest first with ingestion order breaking ties.
// CRITICAL: all values are parameterized, never interpolated.
package querysql

import (
	"fmt"
	"strings"

	"github.com/nostrstore/nostrstore/internal/filter"
)

// Driver names the index a plan scans.
type Driver int

const (
	DriverIDs Driver = iota
	DriverPubKeyKind
	DriverPubKey
	DriverTag
	DriverKind
	DriverCreated
)

// String returns the index table the driver scans.
func (d Driver) String() string {
	switch d {
	case DriverIDs:
		return "note_ids"
	case DriverPubKeyKind:
		return "note_pubkey_kinds"
	case DriverPubKey:
		return "note_pubkeys"
	case DriverTag:
		return "note_tags"
	case DriverKind:
		return "note_kinds"
	case DriverCreated:
		return "note_created"
	default:
		return fmt.Sprintf("driver(%d)", int(d))
	}
}

// Plan is a compiled query.
//
// Rows yield (key, record). When Exact is false the SQL returns a superset
// and the caller must check every row with filter.Matches.
type Plan struct {
	Driver Driver
	SQL    string
	Params []any
	Exact  bool

	// Limit is the SQL LIMIT applied, 0 when none. It is limit+1 so the
	// caller can detect truncation.
	Limit int
}

// SortableTime maps created_at onto SQLite's signed 64-bit integers while
// preserving order across the whole uint64 range.
func SortableTime(v uint64) int64 {
	return int64(v ^ (1 << 63))
}

// FromSortableTime inverts SortableTime.
func FromSortableTime(v int64) uint64 {
	return uint64(v) ^ (1 << 63)
}

// Compile plans f for a result of at most limit records. limit must already
// be the effective limit; it is not re-derived from the filter.
func Compile(f *filter.Filter, limit int) (Plan, error) {
	if limit < 0 {
		return Plan{}, fmt.Errorf("compile: negative limit %d", limit)
	}
	p, b, err := plan(f)
	if err != nil {
		return Plan{}, err
	}
	if p.Exact {
		p.Limit = limit + 1
	}
	p.SQL, p.Params = b.build(p.Limit)
	return p, nil
}

// CompileCount plans a COUNT over the records matching f. ok is false when
// the driver cannot evaluate f alone and rows must be checked in Go.
func CompileCount(f *filter.Filter) (sql string, params []any, ok bool, err error) {
	p, b, err := plan(f)
	if err != nil {
		return "", nil, false, err
	}
	if !p.Exact {
		return "", nil, false, nil
	}
	return "SELECT COUNT(*) FROM (" + b.keysSQL() + ")", b.params, true, nil
}

func plan(f *filter.Filter) (Plan, *builder, error) {
	if !f.Finalized() {
		return Plan{}, nil, fmt.Errorf("compile: %w: filter is not finalized", filter.ErrInvalidFilter)
	}

	b := &builder{}
	p := Plan{}

	ids, authors, kinds, tags := f.IDs(), f.Authors(), f.Kinds(), f.Tags()

	switch {
	case ids != nil:
		p.Driver = DriverIDs
		b.from("note_ids")
		b.in("d.id", idParams(ids))
		p.Exact = authors == nil && kinds == nil && len(tags) == 0

	case authors != nil && kinds != nil:
		p.Driver = DriverPubKeyKind
		b.from("note_pubkey_kinds")
		b.in("d.pubkey", idParams(authors))
		b.in("d.kind", kindParams(kinds))
		p.Exact = len(tags) == 0

	case authors != nil:
		p.Driver = DriverPubKey
		b.from("note_pubkeys")
		b.in("d.pubkey", idParams(authors))
		p.Exact = len(tags) == 0

	case len(tags) > 0:
		p.Driver = DriverTag
		tf := tags[0]
		b.from("note_tags")
		b.distinct = true
		b.where("d.name = ?", string(tf.Name))
		b.in("d.value", tagParams(tf))
		p.Exact = len(tags) == 1 && kinds == nil

	case kinds != nil:
		p.Driver = DriverKind
		b.from("note_kinds")
		b.in("d.kind", kindParams(kinds))
		p.Exact = true

	default:
		p.Driver = DriverCreated
		b.from("note_created")
		p.Exact = true
	}

	if since, ok := f.Since(); ok {
		b.where("d.created_at >= ?", SortableTime(since))
	}
	if until, ok := f.Until(); ok {
		b.where("d.created_at <= ?", SortableTime(until))
	}
	return p, b, nil
}

type builder struct {
	table    string
	distinct bool
	conds    []string
	params   []any
}

func (b *builder) from(table string) { b.table = table }

func (b *builder) where(cond string, args ...any) {
	b.conds = append(b.conds, cond)
	b.params = append(b.params, args...)
}

func (b *builder) in(col string, args []any) {
	if len(args) == 1 {
		b.where(col+" = ?", args...)
		return
	}
	ph := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	b.where(col+" IN ("+ph+")", args...)
}

func (b *builder) keysSQL() string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if b.distinct {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString("d.created_at, d.key FROM ")
	sb.WriteString(b.table)
	sb.WriteString(" d")
	if len(b.conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.conds, " AND "))
	}
	return sb.String()
}

func (b *builder) build(limit int) (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT n.key, n.record FROM (")
	sb.WriteString(b.keysSQL())
	sb.WriteString(") d JOIN notes n ON n.key = d.key ORDER BY d.created_at DESC, d.key DESC")
	params := append([]any(nil), b.params...)
	if limit > 0 {
		sb.WriteString(" LIMIT ?")
		params = append(params, limit)
	}
	return sb.String(), params
}

func idParams(ids [][32]byte) []any {
	out := make([]any, len(ids))
	for i := range ids {
		out[i] = ids[i][:]
	}
	return out
}

func kindParams(kinds []uint32) []any {
	out := make([]any, len(kinds))
	for i, k := range kinds {
		out[i] = int64(k)
	}
	return out
}

// tagParams binds id values as BLOBs and string values as TEXT, matching
// how the committer stores them.
func tagParams(tf filter.TagField) []any {
	out := make([]any, 0, len(tf.IDs)+len(tf.Strs))
	for i := range tf.IDs {
		out = append(out, tf.IDs[i][:])
	}
	for _, s := range tf.Strs {
		out = append(out, s)
	}
	return out
}
