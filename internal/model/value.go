package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ValueKind tags the shape held by a Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindText
	KindList
	// KindMalformed holds JSON that fits neither shape (nested lists,
	// objects with non-numeric keys). It grades as incorrect.
	KindMalformed
)

// Value is an answer or response. Scalars become text; arrays and
// index-keyed objects ({"0": "a", "1": "b"}) become ordered lists.
type Value struct {
	kind  ValueKind
	text  string
	items []string
	raw   json.RawMessage
}

// Text builds a text value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// List builds a list value.
func List(items ...string) Value {
	return Value{kind: KindList, items: append([]string(nil), items...)}
}

// Kind returns the shape of v.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether no response was given.
func (v Value) IsNull() bool { return v.kind == KindNull }

// String renders v as a single string: text as is, lists joined with ", ".
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindList:
		return strings.Join(v.items, ", ")
	case KindMalformed:
		return string(v.raw)
	}
	return ""
}

// Items returns v as an ordered list. Text is a one-element list.
// ok is false for malformed values.
func (v Value) Items() (items []string, ok bool) {
	switch v.kind {
	case KindNull:
		return nil, true
	case KindText:
		return []string{v.text}, true
	case KindList:
		return append([]string(nil), v.items...), true
	}
	return nil, false
}

// SplitItems is like Items but splits text on commas, the shape canonical
// multi and cloze answers take when generated as a single string.
func (v Value) SplitItems() (items []string, ok bool) {
	if v.kind != KindText {
		return v.Items()
	}
	for _, p := range strings.Split(v.text, ",") {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	return items, true
}

// MarshalJSON encodes text as a JSON string and lists as arrays.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindText:
		return json.Marshal(v.text)
	case KindList:
		if v.items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.items)
	case KindMalformed:
		return v.raw, nil
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts null, strings, numbers, booleans, arrays of
// scalars and objects keyed by integers. Anything else is kept as
// KindMalformed rather than rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}

	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}

	switch t := raw.(type) {
	case []any:
		items, ok := scalarList(t)
		if !ok {
			*v = malformed(data)
			return nil
		}
		*v = Value{kind: KindList, items: items}
	case map[string]any:
		items, ok := indexedList(t)
		if !ok {
			*v = malformed(data)
			return nil
		}
		*v = Value{kind: KindList, items: items}
	default:
		s, _ := scalarString(t)
		*v = Value{kind: KindText, text: s}
	}
	return nil
}

func malformed(data []byte) Value {
	return Value{kind: KindMalformed, raw: append(json.RawMessage(nil), data...)}
}

func scalarString(x any) (string, bool) {
	switch t := x.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

func scalarList(xs []any) ([]string, bool) {
	items := make([]string, 0, len(xs))
	for _, x := range xs {
		s, ok := scalarString(x)
		if !ok {
			return nil, false
		}
		items = append(items, s)
	}
	return items, true
}

// indexedList orders an index-keyed object by numeric key.
func indexedList(m map[string]any) ([]string, bool) {
	type entry struct {
		idx int
		val string
	}
	entries := make([]entry, 0, len(m))
	for k, x := range m {
		idx, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, false
		}
		s, ok := scalarString(x)
		if !ok {
			return nil, false
		}
		entries = append(entries, entry{idx, s})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].idx < entries[j].idx })
	items := make([]string, len(entries))
	for i, e := range entries {
		items[i] = e.val
	}
	return items, true
}
