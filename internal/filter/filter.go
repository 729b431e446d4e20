// Package filter builds and evaluates record filters.
//
// A Filter is assembled field by field with a small state machine:
//
//	f := filter.New()
//	f.StartField(filter.FieldKinds)
//	f.AddIntElement(1)
//	f.EndField()
//	f.Finalize()
//
// Each field is a set: elements are de-duplicated and sorted when the field
// is ended. A record matches a filter when it satisfies every field (AND);
// it satisfies a field when it matches any element of it (OR). Since, until
// and limit hold exactly one element.
//
// Every misuse returns an error wrapping ErrInvalidFilter. A finalized
// filter is immutable; a released filter rejects every call.
package filter

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/nostrstore/nostrstore/internal/event"
)

// ErrInvalidFilter is wrapped by every builder misuse.
var ErrInvalidFilter = errors.New("invalid filter")

// FieldType identifies a filter field. Values are stable and part of the
// external interface.
type FieldType int

const (
	FieldIDs     FieldType = 1
	FieldAuthors FieldType = 2
	FieldKinds   FieldType = 3
	FieldTag     FieldType = 4
	FieldSince   FieldType = 5
	FieldUntil   FieldType = 6
	FieldLimit   FieldType = 7
)

// String returns the NIP-01 key for the field type.
func (t FieldType) String() string {
	switch t {
	case FieldIDs:
		return "ids"
	case FieldAuthors:
		return "authors"
	case FieldKinds:
		return "kinds"
	case FieldTag:
		return "tag"
	case FieldSince:
		return "since"
	case FieldUntil:
		return "until"
	case FieldLimit:
		return "limit"
	default:
		return fmt.Sprintf("field(%d)", int(t))
	}
}

func (t FieldType) valid() bool {
	return t >= FieldIDs && t <= FieldLimit
}

func (t FieldType) scalar() bool {
	return t == FieldSince || t == FieldUntil || t == FieldLimit
}

// TagField is the value set of one "#x" field.
type TagField struct {
	Name byte
	IDs  [][32]byte
	Strs []string
}

type state int

const (
	stateBuilding state = iota
	stateFinalized
	stateReleased
)

// Filter is a set of field constraints on records.
//
// Thread-safety: a Filter under construction must not be shared. After
// Finalize it is read-only and safe for concurrent Matches.
type Filter struct {
	state state

	// open field
	open    bool
	openTyp FieldType
	openTag byte
	ids     [][32]byte
	ints    []uint64
	strs    []string

	present map[fieldKey]bool

	idSet     [][32]byte
	authors   [][32]byte
	kinds     []uint32
	tags      []TagField
	since     *uint64
	until     *uint64
	limit     *uint64
	numFields int
}

type fieldKey struct {
	typ FieldType
	tag byte
}

// New returns an empty filter under construction.
func New() *Filter {
	return &Filter{present: make(map[fieldKey]bool)}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidFilter, fmt.Sprintf(format, args...))
}

func (f *Filter) mutable() error {
	switch f.state {
	case stateFinalized:
		return invalid("filter is finalized")
	case stateReleased:
		return invalid("filter is released")
	}
	return nil
}

// StartField opens a field of type t. Use StartTagField for tag fields.
func (f *Filter) StartField(t FieldType) error {
	if t == FieldTag {
		return invalid("tag fields need a name; use StartTagField")
	}
	return f.start(t, 0)
}

// StartTagField opens the "#name" tag field.
func (f *Filter) StartTagField(name byte) error {
	return f.start(FieldTag, name)
}

func (f *Filter) start(t FieldType, tag byte) error {
	if err := f.mutable(); err != nil {
		return err
	}
	if !t.valid() {
		return invalid("unknown field type %d", int(t))
	}
	if f.open {
		return invalid("field %s is still open", f.openTyp)
	}
	if f.present[fieldKey{t, tag}] {
		if t == FieldTag {
			return invalid("duplicate field #%c", tag)
		}
		return invalid("duplicate field %s", t)
	}

	f.open = true
	f.openTyp = t
	f.openTag = tag
	f.ids, f.ints, f.strs = nil, nil, nil
	return nil
}

func (f *Filter) element() error {
	if err := f.mutable(); err != nil {
		return err
	}
	if !f.open {
		return invalid("no open field")
	}
	return nil
}

// AddIDElement adds a 32-byte id to an ids, authors or tag field.
func (f *Filter) AddIDElement(id [32]byte) error {
	if err := f.element(); err != nil {
		return err
	}
	switch f.openTyp {
	case FieldIDs, FieldAuthors, FieldTag:
		f.ids = append(f.ids, id)
		return nil
	}
	return invalid("field %s does not take id elements", f.openTyp)
}

// AddIntElement adds an integer to a kinds, since, until or limit field.
func (f *Filter) AddIntElement(v uint64) error {
	if err := f.element(); err != nil {
		return err
	}
	switch f.openTyp {
	case FieldKinds:
		if v > math.MaxUint32 {
			return invalid("kind %d out of range", v)
		}
	case FieldSince, FieldUntil, FieldLimit:
	default:
		return invalid("field %s does not take int elements", f.openTyp)
	}
	if f.openTyp.scalar() && len(f.ints) == 1 {
		return invalid("field %s takes exactly one element", f.openTyp)
	}
	f.ints = append(f.ints, v)
	return nil
}

// AddStrElement adds a string to a tag field. Strings of exactly 64
// lowercase hex characters are stored as ids.
func (f *Filter) AddStrElement(s string) error {
	if err := f.element(); err != nil {
		return err
	}
	if f.openTyp != FieldTag {
		return invalid("field %s does not take string elements", f.openTyp)
	}
	f.strs = append(f.strs, s)
	return nil
}

// EndField closes the open field, de-duplicating and sorting its elements.
func (f *Filter) EndField() error {
	if err := f.element(); err != nil {
		return err
	}
	t := f.openTyp

	n := len(f.ids) + len(f.ints) + len(f.strs)
	if n == 0 {
		return invalid("field %s is empty", t)
	}
	if t.scalar() && n != 1 {
		return invalid("field %s takes exactly one element", t)
	}

	switch t {
	case FieldIDs:
		f.idSet = sortIDs(f.ids)
	case FieldAuthors:
		f.authors = sortIDs(f.ids)
	case FieldKinds:
		kinds := make([]uint32, len(f.ints))
		for i, v := range f.ints {
			kinds[i] = uint32(v)
		}
		slices.Sort(kinds)
		f.kinds = slices.Compact(kinds)
	case FieldTag:
		tf := TagField{Name: f.openTag}
		ids := f.ids
		for _, s := range f.strs {
			if event.IsHexID(s) {
				id, _ := event.ParseID(s)
				ids = append(ids, id)
				continue
			}
			tf.Strs = append(tf.Strs, s)
		}
		if len(ids) > 0 {
			tf.IDs = sortIDs(ids)
		}
		if len(tf.Strs) > 0 {
			slices.Sort(tf.Strs)
			tf.Strs = slices.Compact(tf.Strs)
		}
		f.tags = append(f.tags, tf)
		slices.SortFunc(f.tags, func(a, b TagField) int { return int(a.Name) - int(b.Name) })
	case FieldSince:
		v := f.ints[0]
		f.since = &v
	case FieldUntil:
		v := f.ints[0]
		f.until = &v
	case FieldLimit:
		v := f.ints[0]
		f.limit = &v
	}

	f.present[fieldKey{t, f.openTag}] = true
	f.numFields++
	f.open = false
	f.ids, f.ints, f.strs = nil, nil, nil
	return nil
}

func sortIDs(ids [][32]byte) [][32]byte {
	out := slices.Clone(ids)
	slices.SortFunc(out, func(a, b [32]byte) int { return bytes.Compare(a[:], b[:]) })
	return slices.Compact(out)
}

// Finalize freezes the filter. It fails if a field is open or no field was
// added.
func (f *Filter) Finalize() error {
	if err := f.mutable(); err != nil {
		return err
	}
	if f.open {
		return invalid("field %s is still open", f.openTyp)
	}
	if f.numFields == 0 {
		return invalid("filter has no fields")
	}
	f.state = stateFinalized
	return nil
}

// Release discards the filter's contents. Every later call fails.
func (f *Filter) Release() error {
	if f.state == stateReleased {
		return invalid("filter is released")
	}
	*f = Filter{state: stateReleased}
	return nil
}

// Finalized reports whether Finalize succeeded and Release was not called.
func (f *Filter) Finalized() bool {
	return f != nil && f.state == stateFinalized
}

// Clone returns an independent copy of a finalized filter.
func (f *Filter) Clone() *Filter {
	c := &Filter{
		state:     f.state,
		present:   make(map[fieldKey]bool, len(f.present)),
		idSet:     slices.Clone(f.idSet),
		authors:   slices.Clone(f.authors),
		kinds:     slices.Clone(f.kinds),
		since:     clonePtr(f.since),
		until:     clonePtr(f.until),
		limit:     clonePtr(f.limit),
		numFields: f.numFields,
	}
	for k, v := range f.present {
		c.present[k] = v
	}
	for _, t := range f.tags {
		c.tags = append(c.tags, TagField{Name: t.Name, IDs: slices.Clone(t.IDs), Strs: slices.Clone(t.Strs)})
	}
	return c
}

func clonePtr(p *uint64) *uint64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// IDs returns the sorted ids field, or nil if absent.
func (f *Filter) IDs() [][32]byte { return f.idSet }

// Authors returns the sorted authors field, or nil if absent.
func (f *Filter) Authors() [][32]byte { return f.authors }

// Kinds returns the sorted kinds field, or nil if absent.
func (f *Filter) Kinds() []uint32 { return f.kinds }

// Tags returns the tag fields ordered by name.
func (f *Filter) Tags() []TagField { return f.tags }

// Since returns the lower created_at bound.
func (f *Filter) Since() (uint64, bool) { return deref(f.since) }

// Until returns the upper created_at bound.
func (f *Filter) Until() (uint64, bool) { return deref(f.until) }

// Limit returns the filter's result limit.
func (f *Filter) Limit() (uint64, bool) { return deref(f.limit) }

func deref(p *uint64) (uint64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}
