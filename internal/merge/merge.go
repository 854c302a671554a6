// Package merge joins per-stage artifacts into denormalized tables.
package merge

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/JakeFAU/artharvest/internal/record"
)

// PartitionField is the provenance column stamped on merged rows.
const PartitionField = "partition"

// RightSuffix is appended to right-side columns that collide with the left.
const RightSuffix = "_right"

// ErrDuplicateKey is returned when a join key that must be unique repeats.
var ErrDuplicateKey = errors.New("duplicate join key")

// ErrMissingKey is returned when a row has no value for the join key.
var ErrMissingKey = errors.New("missing join key")

// IndexJoin inner-joins left and right on ind, keeping left order. Both
// sides must have unique inds.
func IndexJoin(left, right *record.Table) (*record.Table, error) {
	if _, err := indexBy(left, record.IndField); err != nil {
		return nil, fmt.Errorf("index join left: %w", err)
	}
	byInd, err := indexBy(right, record.IndField)
	if err != nil {
		return nil, fmt.Errorf("index join right: %w", err)
	}
	out := record.NewTable(append(left.Columns(), rightColumns(left, right, record.IndField)...)...)
	for _, l := range left.Rows() {
		ind, _ := l.Ind()
		r, ok := byInd[keyOf(ind)]
		if !ok {
			continue
		}
		row := l.Clone()
		mergeRight(&row, r, left, record.IndField)
		out.Append(row)
	}
	return out, nil
}

// LeftJoin joins right onto every left row by key. Left rows without a match
// are kept with empty right-side fields. Right keys must be unique.
func LeftJoin(left, right *record.Table, key string) (*record.Table, error) {
	byKey, err := indexBy(right, key)
	if err != nil {
		return nil, fmt.Errorf("left join right: %w", err)
	}
	rightCols := rightColumns(left, right, key)

	out := record.NewTable(append(left.Columns(), rightCols...)...)
	for _, l := range left.Rows() {
		row := l.Clone()
		if r, ok := byKey[l.GetString(key)]; ok {
			mergeRight(&row, r, left, key)
		} else {
			for _, c := range rightCols {
				row.Set(c, record.String(""))
			}
		}
		out.Append(row)
	}
	return out, nil
}

// StampPartition returns a copy of t with the partition column set on every
// row.
func StampPartition(t *record.Table, label string) *record.Table {
	out := record.NewTable(t.Columns()...)
	for _, r := range t.Rows() {
		row := r.Clone()
		row.SetString(PartitionField, label)
		out.Append(row)
	}
	return out
}

// Union concatenates tables, taking the union of their columns. Rows are
// not deduplicated.
func Union(tables ...*record.Table) *record.Table {
	var cols []string
	seen := map[string]struct{}{}
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, c := range t.Columns() {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				cols = append(cols, c)
			}
		}
	}
	out := record.NewTable(cols...)
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, r := range t.Rows() {
			out.Append(r.Clone())
		}
	}
	return out
}

// Project keeps only the named columns, in the given order. Missing fields
// become empty.
func Project(t *record.Table, cols ...string) *record.Table {
	out := record.NewTable(cols...)
	for _, r := range t.Rows() {
		row := record.New()
		for _, c := range cols {
			v, ok := r.Get(c)
			if !ok {
				v = record.String("")
			}
			row.Set(c, v)
		}
		out.Append(row)
	}
	return out
}

// PartitionLabel derives a partition name from a source URL: its last
// non-empty path segment, or the host when the path is empty.
func PartitionLabel(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return sanitizeLabel(raw)
	}
	seg := path.Base(strings.TrimRight(u.Path, "/"))
	if seg == "." || seg == "/" || seg == "" {
		return sanitizeLabel(u.Hostname())
	}
	return sanitizeLabel(seg)
}

func sanitizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}

func keyOf(ind int) string {
	return fmt.Sprint(ind)
}

func indexBy(t *record.Table, key string) (map[string]record.Record, error) {
	out := make(map[string]record.Record, t.Len())
	for i, r := range t.Rows() {
		var k string
		if key == record.IndField {
			ind, err := r.Ind()
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			k = keyOf(ind)
		} else {
			v, ok := r.Get(key)
			if !ok {
				return nil, fmt.Errorf("%w: %s in row %d", ErrMissingKey, key, i)
			}
			k = v.String()
		}
		if _, dup := out[k]; dup {
			return nil, fmt.Errorf("%w: %s=%s", ErrDuplicateKey, key, k)
		}
		out[k] = r
	}
	return out, nil
}

func rightColumns(left, right *record.Table, key string) []string {
	var out []string
	for _, c := range right.Columns() {
		if c == key {
			continue
		}
		if left.HasColumn(c) {
			c += RightSuffix
		}
		out = append(out, c)
	}
	return out
}

func mergeRight(row *record.Record, right record.Record, left *record.Table, key string) {
	for _, c := range right.Keys() {
		if c == key {
			continue
		}
		v, _ := right.Get(c)
		name := c
		if left.HasColumn(c) {
			name += RightSuffix
		}
		row.Set(name, v)
	}
}
