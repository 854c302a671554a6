package record

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Table is an ordered set of rows sharing a column layout.
type Table struct {
	columns []string
	seen    map[string]struct{}
	rows    []Record
}

// NewTable returns a table with the given leading columns.
func NewTable(columns ...string) *Table {
	t := &Table{seen: map[string]struct{}{}}
	for _, c := range columns {
		t.addColumn(c)
	}
	return t
}

func (t *Table) addColumn(c string) {
	if t.seen == nil {
		t.seen = map[string]struct{}{}
	}
	if _, ok := t.seen[c]; ok {
		return
	}
	t.seen[c] = struct{}{}
	t.columns = append(t.columns, c)
}

// Append adds rows, extending the column list with any new field names.
func (t *Table) Append(rows ...Record) {
	for _, r := range rows {
		for _, k := range r.keys {
			t.addColumn(k)
		}
		t.rows = append(t.rows, r)
	}
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	cp := make([]string, len(t.columns))
	copy(cp, t.columns)
	return cp
}

// HasColumn reports whether the column is present.
func (t *Table) HasColumn(c string) bool {
	_, ok := t.seen[c]
	return ok
}

// Rows returns the rows. The slice is shared; callers must not mutate it.
func (t *Table) Rows() []Record {
	return t.rows
}

// Len returns the row count.
func (t *Table) Len() int {
	return len(t.rows)
}

// SortByInd orders rows by identity, keeping rows without one at the end.
func (t *Table) SortByInd() {
	sort.SliceStable(t.rows, func(i, j int) bool {
		a, aErr := t.rows[i].Ind()
		b, bErr := t.rows[j].Ind()
		switch {
		case aErr != nil:
			return false
		case bErr != nil:
			return true
		default:
			return a < b
		}
	})
}

// Inds returns the identity of every row. Rows without one fail the call.
func (t *Table) Inds() ([]int, error) {
	out := make([]int, 0, len(t.rows))
	for i, r := range t.rows {
		ind, err := r.Ind()
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, ind)
	}
	return out, nil
}

// ReadCSV loads a table from a CSV file with a header row. Paths ending in
// ".gz" are decompressed transparently.
func ReadCSV(path string) (*Table, error) {
	// #nosec G304 -- artifact paths are built from configuration.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var src io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip %s: %w", path, err)
		}
		defer func() { _ = gz.Close() }()
		src = gz
	}
	t, err := DecodeCSV(src)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

// DecodeCSV parses CSV with a header row from r.
func DecodeCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return NewTable(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	t := NewTable(header...)
	for {
		line, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", t.Len()+1, err)
		}
		rec := New()
		for i, col := range header {
			cell := ""
			if i < len(line) {
				cell = line[i]
			}
			rec.Set(col, ParseCell(cell))
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

// EncodeCSV writes the table with a header row to w.
func (t *Table) EncodeCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	line := make([]string, len(t.columns))
	for _, r := range t.rows {
		for i, c := range t.columns {
			line[i] = r.GetString(c)
		}
		if err := writer.Write(line); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteCSV writes the table to path atomically: the data goes to a temp file
// in the same directory which is then renamed into place. Paths ending in
// ".gz" are gzip-compressed.
func (t *Table) WriteCSV(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	var encodeErr error
	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(tmp)
		encodeErr = t.EncodeCSV(gz)
		if closeErr := gz.Close(); encodeErr == nil && closeErr != nil {
			encodeErr = fmt.Errorf("close gzip: %w", closeErr)
		}
	} else {
		encodeErr = t.EncodeCSV(tmp)
	}
	if closeErr := tmp.Close(); encodeErr == nil && closeErr != nil {
		encodeErr = fmt.Errorf("close temp: %w", closeErr)
	}
	if encodeErr != nil {
		cleanup()
		return fmt.Errorf("write %s: %w", path, encodeErr)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
