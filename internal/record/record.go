// Package record defines the identity-keyed rows that flow through every crawl,
// batch, and merge stage.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// IndField is the column that carries a row's stable identity.
const IndField = "ind"

// SuccessField marks whether the fetch backing a row succeeded.
const SuccessField = "success"

// ErrNoIdentity is returned when a record has no usable ind value.
var ErrNoIdentity = errors.New("record has no identity")

// Value is either a scalar string or an ordered list of strings.
type Value struct {
	scalar string
	list   []string
	isList bool
}

// String builds a scalar value.
func String(s string) Value {
	return Value{scalar: s}
}

// Int builds a scalar value from an integer.
func Int(n int) Value {
	return Value{scalar: strconv.Itoa(n)}
}

// Bool builds a scalar value from a boolean.
func Bool(b bool) Value {
	return Value{scalar: strconv.FormatBool(b)}
}

// List builds a list value. A nil slice is stored as an empty list.
func List(items []string) Value {
	cp := make([]string, len(items))
	copy(cp, items)
	return Value{list: cp, isList: true}
}

// IsList reports whether v holds a list.
func (v Value) IsList() bool {
	return v.isList
}

// Items returns the list items, or nil for a scalar.
func (v Value) Items() []string {
	if !v.isList {
		return nil
	}
	cp := make([]string, len(v.list))
	copy(cp, v.list)
	return cp
}

// String returns the scalar text, or the JSON encoding for a list.
func (v Value) String() string {
	if !v.isList {
		return v.scalar
	}
	return encodeList(v.list)
}

// IsEmpty reports whether the value carries no data.
func (v Value) IsEmpty() bool {
	if v.isList {
		return len(v.list) == 0
	}
	return v.scalar == ""
}

// Equal compares two values by kind and content.
func (v Value) Equal(o Value) bool {
	if v.isList != o.isList {
		return false
	}
	if !v.isList {
		return v.scalar == o.scalar
	}
	if len(v.list) != len(o.list) {
		return false
	}
	for i := range v.list {
		if v.list[i] != o.list[i] {
			return false
		}
	}
	return true
}

func encodeList(items []string) string {
	if items == nil {
		items = []string{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		// []string always marshals.
		return "[]"
	}
	return string(payload)
}

// ParseCell decodes a tabular cell. Cells holding a JSON array of strings
// become lists; anything else stays scalar.
func ParseCell(cell string) Value {
	trimmed := strings.TrimSpace(cell)
	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		var items []string
		if err := json.Unmarshal([]byte(trimmed), &items); err == nil {
			return List(items)
		}
	}
	return String(cell)
}

// Record is an ordered mapping of field name to value.
type Record struct {
	keys   []string
	values map[string]Value
}

// New returns an empty record.
func New() Record {
	return Record{values: map[string]Value{}}
}

// WithInd returns an empty record carrying the given identity.
func WithInd(ind int) Record {
	r := New()
	r.Set(IndField, Int(ind))
	return r
}

// Set stores a value, keeping first-insertion order for keys.
func (r *Record) Set(key string, v Value) {
	if r.values == nil {
		r.values = map[string]Value{}
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// SetString is shorthand for Set(key, String(s)).
func (r *Record) SetString(key, s string) {
	r.Set(key, String(s))
}

// Get returns the value for key.
func (r Record) Get(key string) (Value, bool) {
	v, ok := r.values[key]
	return v, ok
}

// GetString returns the string form of key, or "" when missing.
func (r Record) GetString(key string) string {
	v, ok := r.values[key]
	if !ok {
		return ""
	}
	return v.String()
}

// Has reports whether key is present.
func (r Record) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Delete removes key from the record.
func (r *Record) Delete(key string) {
	if _, ok := r.values[key]; !ok {
		return
	}
	delete(r.values, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Keys returns field names in insertion order.
func (r Record) Keys() []string {
	cp := make([]string, len(r.keys))
	copy(cp, r.keys)
	return cp
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.keys)
}

// Ind returns the record's stable identity.
func (r Record) Ind() (int, error) {
	v, ok := r.values[IndField]
	if !ok || v.IsList() {
		return 0, ErrNoIdentity
	}
	ind, err := strconv.Atoi(strings.TrimSpace(v.String()))
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", IndField, v.String(), ErrNoIdentity)
	}
	return ind, nil
}

// Merge copies every field of other into r, overwriting existing keys.
func (r *Record) Merge(other Record) {
	for _, k := range other.keys {
		r.Set(k, other.values[k])
	}
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	out := New()
	for _, k := range r.keys {
		v := r.values[k]
		if v.IsList() {
			v = List(v.list)
		}
		out.Set(k, v)
	}
	return out
}

// Equal reports whether both records hold the same fields and values,
// ignoring key order.
func (r Record) Equal(o Record) bool {
	if len(r.keys) != len(o.keys) {
		return false
	}
	for k, v := range r.values {
		ov, ok := o.values[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}
