// Package mi implements the machine-interface text protocol spoken by the
// debugger backends: parsing of Result ("^"), Notify ("=") and Exec ("*")
// records into structured values, and formatting structured values back
// into the same grammar for re-emission to the user.
package mi

// Value is the sum type carried by record payloads: a string, a list of
// Values, or a dict of string-keyed Values. Exactly one of the three
// fields is meaningful, selected by Kind.
type Value struct {
	Kind ValueKind
	Str  string
	List []Value
	Dict *Dict
}

// ValueKind discriminates the three shapes a Value may take.
type ValueKind int

const (
	KindString ValueKind = iota
	KindList
	KindDict
)

// String constructs a string-kind Value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// List constructs a list-kind Value.
func List(vs []Value) Value { return Value{Kind: KindList, List: vs} }

// DictValue constructs a dict-kind Value.
func DictValue(d *Dict) Value { return Value{Kind: KindDict, Dict: d} }

// Dict is an insertion-ordered string-keyed map of Values.
//
// The backend has a documented misbehavior: a record may contain the same
// key twice. Rather than overwrite, duplicate keys are collapsed into a
// list in insertion order (see DESIGN.md open question (i)); Dict
// preserves this by tracking key order explicitly instead of using a bare
// Go map.
type Dict struct {
	keys   []string
	values map[string][]Value
}

// NewDict returns an empty Dict ready for use.
func NewDict() *Dict {
	return &Dict{values: make(map[string][]Value)}
}

// Set appends a value under key, preserving any prior value(s) under the
// same key rather than overwriting (see the duplicate-key quirk above).
func (d *Dict) Set(key string, v Value) {
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = append(d.values[key], v)
}

// Get returns the value(s) recorded under key, collapsed per the
// duplicate-key rule: a single occurrence returns that Value directly; two
// or more occurrences return a KindList Value containing all of them, in
// insertion order.
func (d *Dict) Get(key string) (Value, bool) {
	vs, ok := d.values[key]
	if !ok || len(vs) == 0 {
		return Value{}, false
	}
	if len(vs) == 1 {
		return vs[0], true
	}
	return List(vs), true
}

// Keys returns the dict's keys in insertion order.
func (d *Dict) Keys() []string {
	return append([]string(nil), d.keys...)
}

// Len reports the number of distinct keys.
func (d *Dict) Len() int {
	return len(d.keys)
}

// GetString is a convenience accessor expecting a KindString value.
func (d *Dict) GetString(key string) (string, bool) {
	v, ok := d.Get(key)
	if !ok || v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

// GetDict is a convenience accessor expecting a KindDict value.
func (d *Dict) GetDict(key string) (*Dict, bool) {
	v, ok := d.Get(key)
	if !ok || v.Kind != KindDict {
		return nil, false
	}
	return v.Dict, true
}

// GetList is a convenience accessor expecting a KindList value.
func (d *Dict) GetList(key string) ([]Value, bool) {
	v, ok := d.Get(key)
	if !ok || v.Kind != KindList {
		return nil, false
	}
	return v.List, true
}

// Raw returns every value recorded under key in insertion order, without
// collapsing repeats into a list. Used when copying a Dict verbatim.
func (d *Dict) Raw(key string) []Value {
	return d.values[key]
}

// SetRaw appends every value in vs under key, in order, without
// collapsing. Used when copying a Dict verbatim.
func (d *Dict) SetRaw(key string, vs []Value) {
	for _, v := range vs {
		d.Set(key, v)
	}
}
