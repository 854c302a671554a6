// Package crawl drives resumable, batch-checkpointed crawls over a fixed
// input enumeration.
//
// A crawl is complete when its output artifact exists. The driver then does
// no work at all, even if the upstream site has changed, unless Force is set.
// Otherwise it resumes from whatever batch files earlier runs left behind,
// fetching only identities that are not yet covered.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/artharvest/internal/artifact"
	"github.com/JakeFAU/artharvest/internal/batch"
	"github.com/JakeFAU/artharvest/internal/metrics"
	"github.com/JakeFAU/artharvest/internal/record"
)

// DefaultProgressEvery is how often, in items, progress is logged.
const DefaultProgressEvery = 500

// ErrDuplicateInput is returned when a source enumerates the same ind twice.
var ErrDuplicateInput = errors.New("duplicate input identity")

// Source is one concrete crawl: a fixed input enumeration plus the per-item
// fetch and parse step.
type Source interface {
	// Name is the logical artifact name, without version prefix or extension.
	Name() string
	// Columns fixes the leading column order of the output.
	Columns() []string
	// Inputs enumerates the items to crawl. Every item carries an ind.
	Inputs(ctx context.Context) ([]record.Record, error)
	// Crawl fetches and parses one item. It never fails: unreachable pages
	// or missing markup yield a record with success=false.
	Crawl(ctx context.Context, in record.Record) record.Record
}

// Clock supplies timestamps for the status marker.
type Clock interface {
	Now() time.Time
}

// IDGenerator issues run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Options tune a Driver.
type Options struct {
	BatchSize     int
	ProgressEvery int
	// Force reruns a crawl whose output artifact already exists.
	Force bool
	// OverwriteBatches lets a later batch replace an earlier one carrying the
	// same ind instead of failing the collection.
	OverwriteBatches bool
}

// Result summarizes one Run.
type Result struct {
	RunID   string
	State   State
	Output  string
	Total   int
	Fetched int
	Skipped int
	Failed  int
}

// Driver runs Sources against an artifact store.
type Driver struct {
	store  *artifact.Store
	clock  Clock
	ids    IDGenerator
	opts   Options
	logger *zap.Logger
}

// NewDriver wires a Driver.
func NewDriver(store *artifact.Store, clock Clock, ids IDGenerator, opts Options, logger *zap.Logger) (*Driver, error) {
	if store == nil || clock == nil || ids == nil {
		return nil, errors.New("crawl driver requires store, clock and id generator")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = batch.DefaultSize
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{store: store, clock: clock, ids: ids, opts: opts, logger: logger}, nil
}

// OutputName returns the logical output artifact of a source.
func OutputName(src Source) string {
	return src.Name() + ".csv"
}

func statusName(src Source) string {
	return src.Name() + ".status.json"
}

// State reports where a source stands without doing any work.
func (d *Driver) State(src Source) (State, error) {
	done, err := d.store.Exists(OutputName(src))
	if err != nil {
		return "", err
	}
	if done {
		return StateComplete, nil
	}
	path, err := d.store.Path(statusName(src))
	if err != nil {
		return "", err
	}
	st, err := ReadStatus(path)
	if err != nil {
		return "", err
	}
	if st.State == StateComplete {
		// Output was removed by hand; the crawl has to run again.
		return StateNotStarted, nil
	}
	return st.State, nil
}

// Run crawls src to completion, resuming from existing batches.
func (d *Driver) Run(ctx context.Context, src Source) (Result, error) {
	name := src.Name()
	logger := d.logger.With(zap.String("crawl", name))
	output, err := d.store.Path(OutputName(src))
	if err != nil {
		return Result{}, err
	}
	statusPath, err := d.store.Path(statusName(src))
	if err != nil {
		return Result{}, err
	}

	state, err := d.State(src)
	if err != nil {
		return Result{}, err
	}
	if state == StateComplete {
		if !d.opts.Force {
			logger.Info("crawl output already exists; skipping", zap.String("output", output))
			prev, err := ReadStatus(statusPath)
			if err != nil {
				return Result{}, err
			}
			return Result{RunID: prev.RunID, State: StateComplete, Output: output}, nil
		}
		logger.Warn("forcing crawl over existing output", zap.String("output", output))
		if err := os.Remove(output); err != nil {
			return Result{}, fmt.Errorf("remove output %s: %w", output, err)
		}
	}

	batchDir, err := d.store.BatchDir(name)
	if err != nil {
		return Result{}, err
	}
	collector := batch.NewCollector(d.opts.OverwriteBatches, logger)
	resumed, err := collector.Collect(batchDir)
	if err != nil {
		return Result{}, fmt.Errorf("resume %s: %w", name, err)
	}

	inputs, err := src.Inputs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("enumerate %s inputs: %w", name, err)
	}
	if err := checkUnique(inputs); err != nil {
		return Result{}, fmt.Errorf("enumerate %s inputs: %w", name, err)
	}

	runID, err := d.ids.NewID()
	if err != nil {
		return Result{}, err
	}
	now := d.clock.Now()
	st := Status{RunID: runID, Crawl: name, State: StateRunning, StartedAt: now, UpdatedAt: now, Total: len(inputs)}
	if err := WriteStatus(statusPath, st); err != nil {
		return Result{}, err
	}
	logger.Info("crawl started",
		zap.String("run_id", runID),
		zap.Int("inputs", len(inputs)),
		zap.Int("already_collected", len(resumed.Covered)),
	)

	columns := append([]string{record.IndField}, src.Columns()...)
	columns = append(columns, record.SuccessField)
	cp, err := batch.NewCheckpointer(batch.CheckpointerConfig{
		Dir:     batchDir,
		Prefix:  d.store.FileName(name),
		Size:    d.opts.BatchSize,
		Columns: columns,
		Crawl:   name,
	}, logger)
	if err != nil {
		return Result{}, err
	}

	res := Result{RunID: runID, State: StateRunning, Output: output, Total: len(inputs)}
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return d.stop(res, st, statusPath, cp, logger, err)
		}
		ind, _ := in.Ind()
		if resumed.Covered.Has(ind) {
			res.Skipped++
			metrics.ObserveSkip(name)
		} else {
			rec := normalize(ind, src.Crawl(ctx, in))
			// A fetch cut short by cancellation is not a result; leave the
			// ind uncovered so the next run fetches it again.
			if err := ctx.Err(); err != nil {
				return d.stop(res, st, statusPath, cp, logger, err)
			}
			ok := succeeded(rec)
			if !ok {
				res.Failed++
				logger.Warn("item crawled without success", zap.Int("ind", ind))
			}
			metrics.ObserveRecord(name, ok)
			res.Fetched++
			if err := cp.Accept(rec); err != nil {
				return res, err
			}
		}
		if (i+1)%d.opts.ProgressEvery == 0 {
			logger.Info("crawl progress",
				zap.Int("done", i+1),
				zap.Int("total", len(inputs)),
				zap.Int("fetched", res.Fetched),
				zap.Int("skipped", res.Skipped),
			)
		}
	}
	if err := cp.Close(); err != nil {
		return res, err
	}
	keep := make(batch.IdentitySet, len(inputs))
	for _, in := range inputs {
		ind, _ := in.Ind()
		keep[ind] = struct{}{}
	}
	if _, err := collector.Vacuum(batchDir, output, keep); err != nil {
		return res, err
	}

	finished := d.clock.Now()
	st.State = StateComplete
	st.UpdatedAt = finished
	st.FinishedAt = &finished
	st.Fetched, st.Skipped, st.Failed = res.Fetched, res.Skipped, res.Failed
	if err := WriteStatus(statusPath, st); err != nil {
		return res, err
	}
	res.State = StateComplete
	logger.Info("crawl complete",
		zap.String("output", output),
		zap.Int("fetched", res.Fetched),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// stop flushes what has been crawled so far and leaves the marker RUNNING so
// the next invocation resumes.
func (d *Driver) stop(res Result, st Status, statusPath string, cp *batch.Checkpointer, logger *zap.Logger, cause error) (Result, error) {
	if err := cp.Close(); err != nil {
		return res, errors.Join(cause, err)
	}
	st.UpdatedAt = d.clock.Now()
	st.Fetched, st.Skipped, st.Failed = res.Fetched, res.Skipped, res.Failed
	if err := WriteStatus(statusPath, st); err != nil {
		return res, errors.Join(cause, err)
	}
	logger.Warn("crawl stopped; resume by running again", zap.Int("fetched", res.Fetched), zap.Error(cause))
	return res, fmt.Errorf("crawl %s stopped: %w", st.Crawl, cause)
}

func normalize(ind int, rec record.Record) record.Record {
	out := record.WithInd(ind)
	rec.Delete(record.IndField)
	out.Merge(rec)
	if !out.Has(record.SuccessField) {
		out.Set(record.SuccessField, record.Bool(true))
	}
	return out
}

func succeeded(rec record.Record) bool {
	return rec.GetString(record.SuccessField) != "false"
}

func checkUnique(inputs []record.Record) error {
	seen := make(map[int]struct{}, len(inputs))
	for i, in := range inputs {
		ind, err := in.Ind()
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		if _, dup := seen[ind]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateInput, ind)
		}
		seen[ind] = struct{}{}
	}
	return nil
}
