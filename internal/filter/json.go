package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/nostrstore/nostrstore/internal/event"
)

// ParseJSON builds a finalized filter from a NIP-01 filter object:
//
//	{"ids":[…],"authors":[…],"kinds":[…],"#e":[…],"since":n,"until":n,"limit":n}
//
// Unknown keys are rejected.
func ParseJSON(data []byte) (*Filter, error) {
	var obj map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidFilter, err)
	}
	if obj == nil {
		return nil, invalid("filter must be a JSON object")
	}

	// Deterministic field order keeps error messages stable.
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	f := New()
	for _, k := range keys {
		if err := addJSONField(f, k, obj[k]); err != nil {
			return nil, err
		}
	}
	if err := f.Finalize(); err != nil {
		return nil, err
	}
	return f, nil
}

func addJSONField(f *Filter, key string, raw json.RawMessage) error {
	switch key {
	case "ids":
		return addHexList(f, FieldIDs, raw)
	case "authors":
		return addHexList(f, FieldAuthors, raw)
	case "kinds":
		return addIntList(f, FieldKinds, raw)
	case "since":
		return addScalar(f, FieldSince, raw)
	case "until":
		return addScalar(f, FieldUntil, raw)
	case "limit":
		return addScalar(f, FieldLimit, raw)
	}

	if len(key) == 2 && key[0] == '#' {
		var vals []string
		if err := json.Unmarshal(raw, &vals); err != nil {
			return invalid("%s must be an array of strings", key)
		}
		if err := f.StartTagField(key[1]); err != nil {
			return err
		}
		for _, v := range vals {
			if err := f.AddStrElement(v); err != nil {
				return err
			}
		}
		return f.EndField()
	}

	return invalid("unknown key %q", key)
}

func addHexList(f *Filter, t FieldType, raw json.RawMessage) error {
	var vals []string
	if err := json.Unmarshal(raw, &vals); err != nil {
		return invalid("%s must be an array of strings", t)
	}
	if err := f.StartField(t); err != nil {
		return err
	}
	for _, v := range vals {
		id, err := event.ParseID(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidFilter, t, err)
		}
		if err := f.AddIDElement(id); err != nil {
			return err
		}
	}
	return f.EndField()
}

func addIntList(f *Filter, t FieldType, raw json.RawMessage) error {
	var vals []json.Number
	if err := json.Unmarshal(raw, &vals); err != nil {
		return invalid("%s must be an array of integers", t)
	}
	if err := f.StartField(t); err != nil {
		return err
	}
	for _, v := range vals {
		n, err := strconv.ParseUint(v.String(), 10, 64)
		if err != nil {
			return invalid("%s: %q is not a non-negative integer", t, v)
		}
		if err := f.AddIntElement(n); err != nil {
			return err
		}
	}
	return f.EndField()
}

func addScalar(f *Filter, t FieldType, raw json.RawMessage) error {
	var v json.Number
	if err := json.Unmarshal(raw, &v); err != nil {
		return invalid("%s must be an integer", t)
	}
	n, err := strconv.ParseUint(v.String(), 10, 64)
	if err != nil {
		return invalid("%s: %q is not a non-negative integer", t, v)
	}
	if err := f.StartField(t); err != nil {
		return err
	}
	if err := f.AddIntElement(n); err != nil {
		return err
	}
	return f.EndField()
}

// MarshalJSON renders the filter as a NIP-01 filter object.
func (f *Filter) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	first := true
	key := func(k string) {
		if !first {
			buf = append(buf, ',')
		}
		first = false
		buf = event.AppendJSONString(buf, k)
		buf = append(buf, ':')
	}
	hexList := func(ids [][32]byte) {
		buf = append(buf, '[')
		for i, id := range ids {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = append(buf, '"')
			buf = event.AppendHex(buf, id[:])
			buf = append(buf, '"')
		}
		buf = append(buf, ']')
	}

	if f.idSet != nil {
		key("ids")
		hexList(f.idSet)
	}
	if f.authors != nil {
		key("authors")
		hexList(f.authors)
	}
	if f.kinds != nil {
		key("kinds")
		buf = append(buf, '[')
		for i, k := range f.kinds {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = strconv.AppendUint(buf, uint64(k), 10)
		}
		buf = append(buf, ']')
	}
	for _, t := range f.tags {
		key("#" + string(t.Name))
		vals := make([]string, 0, len(t.IDs)+len(t.Strs))
		for _, id := range t.IDs {
			vals = append(vals, string(event.AppendHex(nil, id[:])))
		}
		vals = append(vals, t.Strs...)
		sort.Strings(vals)
		buf = append(buf, '[')
		for i, v := range vals {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = event.AppendJSONString(buf, v)
		}
		buf = append(buf, ']')
	}
	for _, s := range []struct {
		name string
		v    *uint64
	}{{"since", f.since}, {"until", f.until}, {"limit", f.limit}} {
		if s.v != nil {
			key(s.name)
			buf = strconv.AppendUint(buf, *s.v, 10)
		}
	}
	return append(buf, '}'), nil
}
