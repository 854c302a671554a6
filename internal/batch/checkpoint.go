// Package batch checkpoints crawl output in fixed-size batch files and
// consolidates them back into one dataset on resume.
package batch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/artharvest/internal/metrics"
	"github.com/JakeFAU/artharvest/internal/record"
)

// DefaultSize is the default number of records per batch file.
const DefaultSize = 30

const batchExt = ".csv"

// FileName returns the batch file name for a sequence number.
func FileName(prefix string, seq int) string {
	return fmt.Sprintf("%s_%06d%s", prefix, seq, batchExt)
}

// ParseSequence extracts the sequence number from a batch file name written
// with the same prefix.
func ParseSequence(prefix, name string) (int, bool) {
	if !strings.HasPrefix(name, prefix+"_") || !strings.HasSuffix(name, batchExt) {
		return 0, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, prefix+"_"), batchExt)
	seq, err := strconv.Atoi(raw)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

// Checkpointer accumulates records and writes a batch file each time the
// open chunk reaches its size. Close flushes the tail chunk.
type Checkpointer struct {
	dir     string
	prefix  string
	size    int
	columns []string
	crawl   string
	logger  *zap.Logger

	seq     int
	chunk   []record.Record
	written []string
}

// CheckpointerConfig describes where and how batches are written.
type CheckpointerConfig struct {
	Dir    string
	Prefix string
	Size   int
	// Columns fixes the leading column order of every batch file.
	Columns []string
	// Crawl labels metrics and logs.
	Crawl string
}

// NewCheckpointer creates the batch directory if needed and positions the
// sequence counter after the highest batch already present, so a resumed run
// never overwrites files from an earlier one.
func NewCheckpointer(cfg CheckpointerConfig, logger *zap.Logger) (*Checkpointer, error) {
	if cfg.Dir == "" || cfg.Prefix == "" {
		return nil, errors.New("batch dir and prefix are required")
	}
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create batch dir %s: %w", cfg.Dir, err)
	}
	next, err := nextSequence(cfg.Dir, cfg.Prefix)
	if err != nil {
		return nil, err
	}
	return &Checkpointer{
		dir:     cfg.Dir,
		prefix:  cfg.Prefix,
		size:    cfg.Size,
		columns: cfg.Columns,
		crawl:   cfg.Crawl,
		logger:  logger,
		seq:     next,
	}, nil
}

func nextSequence(dir, prefix string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("list batch dir %s: %w", dir, err)
	}
	next := 0
	for _, e := range entries {
		if seq, ok := ParseSequence(prefix, e.Name()); ok && seq >= next {
			next = seq + 1
		}
	}
	return next, nil
}

// Accept adds a record to the open chunk, flushing when it fills.
func (c *Checkpointer) Accept(rec record.Record) error {
	c.chunk = append(c.chunk, rec)
	if len(c.chunk) >= c.size {
		return c.Flush()
	}
	return nil
}

// Flush writes the open chunk, if any, as the next batch file.
func (c *Checkpointer) Flush() error {
	if len(c.chunk) == 0 {
		return nil
	}
	tbl := record.NewTable(c.columns...)
	tbl.Append(c.chunk...)
	path := filepath.Join(c.dir, FileName(c.prefix, c.seq))
	if err := tbl.WriteCSV(path); err != nil {
		return fmt.Errorf("flush batch %d: %w", c.seq, err)
	}
	c.logger.Info("batch flushed",
		zap.String("crawl", c.crawl),
		zap.String("path", path),
		zap.Int("seq", c.seq),
		zap.Int("records", len(c.chunk)),
	)
	metrics.ObserveBatch(c.crawl)
	c.written = append(c.written, path)
	c.chunk = nil
	c.seq++
	return nil
}

// Close flushes the tail chunk that never reached the batch size.
func (c *Checkpointer) Close() error {
	return c.Flush()
}

// Pending returns the number of records not yet flushed.
func (c *Checkpointer) Pending() int {
	return len(c.chunk)
}

// Sequence returns the number the next batch file will carry.
func (c *Checkpointer) Sequence() int {
	return c.seq
}

// Written returns the batch files produced by this checkpointer.
func (c *Checkpointer) Written() []string {
	cp := make([]string, len(c.written))
	copy(cp, c.written)
	return cp
}
