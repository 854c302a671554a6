package batch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/artharvest/internal/record"
)

// ErrDuplicateIdentity is returned when two batch files carry the same ind.
var ErrDuplicateIdentity = errors.New("duplicate identity across batches")

// IdentitySet is the set of ind values already collected.
type IdentitySet map[int]struct{}

// Has reports whether ind is covered.
func (s IdentitySet) Has(ind int) bool {
	_, ok := s[ind]
	return ok
}

// Collection is the union of every batch file in a directory.
type Collection struct {
	Table   *record.Table
	Covered IdentitySet
	Files   []string
}

// Collector reads batch directories.
type Collector struct {
	// Overwrite lets a later batch replace an earlier row with the same ind
	// instead of failing.
	Overwrite bool
	logger    *zap.Logger
}

// NewCollector builds a Collector.
func NewCollector(overwrite bool, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{Overwrite: overwrite, logger: logger}
}

// Collect concatenates every batch file in dir, in file-name order, and
// reports the identities they cover. A missing dir is created and yields an
// empty collection. Source files are left in place.
func (c *Collector) Collect(dir string) (*Collection, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create batch dir %s: %w", dir, err)
	}
	files, err := batchFiles(dir)
	if err != nil {
		return nil, err
	}

	out := &Collection{Table: record.NewTable(record.IndField), Covered: IdentitySet{}, Files: files}
	rows := []record.Record{}
	position := map[int]int{}
	for _, path := range files {
		tbl, err := record.ReadCSV(path)
		if err != nil {
			return nil, fmt.Errorf("collect batch: %w", err)
		}
		for i, row := range tbl.Rows() {
			ind, err := row.Ind()
			if err != nil {
				return nil, fmt.Errorf("collect %s row %d: %w", path, i, err)
			}
			if at, seen := position[ind]; seen {
				if !c.Overwrite {
					return nil, fmt.Errorf("%w: ind %d in %s", ErrDuplicateIdentity, ind, path)
				}
				c.logger.Warn("batch row overwritten", zap.Int("ind", ind), zap.String("path", path))
				rows[at] = row
				continue
			}
			position[ind] = len(rows)
			rows = append(rows, row)
			out.Covered[ind] = struct{}{}
		}
	}
	out.Table.Append(rows...)
	c.logger.Info("batches collected",
		zap.String("dir", dir),
		zap.Int("files", len(files)),
		zap.Int("records", len(rows)),
	)
	return out, nil
}

// Vacuum consolidates dir into one canonical artifact at output, sorted by
// ind, then deletes the superseded batch files. It returns the written table.
// When keep is non-nil, rows whose ind is not in keep are dropped with a
// warning; a nil keep retains every row.
func (c *Collector) Vacuum(dir, output string, keep IdentitySet) (*record.Table, error) {
	col, err := c.Collect(dir)
	if err != nil {
		return nil, err
	}
	if keep != nil {
		col.Table = c.retain(col.Table, keep, dir)
	}
	col.Table.SortByInd()
	if err := col.Table.WriteCSV(output); err != nil {
		return nil, fmt.Errorf("vacuum %s: %w", dir, err)
	}
	for _, f := range col.Files {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove batch %s: %w", f, err)
		}
		c.logger.Debug("batch removed", zap.String("path", f))
	}
	c.logger.Info("batches vacuumed",
		zap.String("output", output),
		zap.Int("records", col.Table.Len()),
		zap.Int("files_removed", len(col.Files)),
	)
	return col.Table, nil
}

func (c *Collector) retain(tbl *record.Table, keep IdentitySet, dir string) *record.Table {
	out := record.NewTable(tbl.Columns()...)
	dropped := 0
	for _, row := range tbl.Rows() {
		ind, err := row.Ind()
		if err == nil && keep.Has(ind) {
			out.Append(row)
			continue
		}
		dropped++
	}
	if dropped > 0 {
		c.logger.Warn("batch rows outside current inputs dropped",
			zap.String("dir", dir),
			zap.Int("dropped", dropped),
		)
	}
	return out
}

func batchFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list batch dir %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, batchExt) {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}
