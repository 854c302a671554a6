package crawl

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/artharvest/internal/artifact"
	"github.com/JakeFAU/artharvest/internal/fetch"
	"github.com/JakeFAU/artharvest/internal/record"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

type seqIDs struct{ n int }

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("run-%d", g.n), nil
}

type fakeSource struct {
	n       int
	calls   []int
	failing map[int]bool
	// onCrawl runs after each item is crawled.
	onCrawl func(ind int)
	inputs  []record.Record
}

func (s *fakeSource) Name() string      { return "artworks" }
func (s *fakeSource) Columns() []string { return []string{"artist_name", "artworks"} }

func (s *fakeSource) Inputs(context.Context) ([]record.Record, error) {
	if s.inputs != nil {
		return s.inputs, nil
	}
	out := make([]record.Record, 0, s.n)
	for i := 0; i < s.n; i++ {
		r := record.WithInd(i)
		r.SetString("artist_name", fmt.Sprintf("artist-%d", i))
		out = append(out, r)
	}
	return out, nil
}

func (s *fakeSource) Crawl(_ context.Context, in record.Record) record.Record {
	ind, _ := in.Ind()
	s.calls = append(s.calls, ind)
	rec := record.New()
	rec.SetString("artist_name", in.GetString("artist_name"))
	if s.failing[ind] {
		rec.Set("artworks", record.List(nil))
		rec.Set(record.SuccessField, record.Bool(false))
	} else {
		rec.Set("artworks", record.List([]string{fmt.Sprintf("https://img/%d.jpg", ind)}))
	}
	if s.onCrawl != nil {
		s.onCrawl(ind)
	}
	return rec
}

func newDriver(t *testing.T, root string, opts Options) *Driver {
	t.Helper()
	store, err := artifact.New(artifact.Config{RootDir: root, Version: "06"})
	require.NoError(t, err)
	d, err := NewDriver(store, &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}, &seqIDs{}, opts, nil)
	require.NoError(t, err)
	return d
}

func readOutput(t *testing.T, path string) *record.Table {
	t.Helper()
	tbl, err := record.ReadCSV(path)
	require.NoError(t, err)
	return tbl
}

func TestRunCompletesAndVacuums(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	d := newDriver(t, root, Options{BatchSize: 30})
	src := &fakeSource{n: 95, failing: map[int]bool{4: true}}

	res, err := d.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, res.State)
	assert.Equal(t, 95, res.Fetched)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "run-1", res.RunID)

	out := readOutput(t, res.Output)
	inds, err := out.Inds()
	require.NoError(t, err)
	require.Len(t, inds, 95)
	for i, ind := range inds {
		assert.Equal(t, i, ind)
	}
	assert.Equal(t, []string{record.IndField, "artist_name", "artworks", record.SuccessField}, out.Columns())
	assert.Equal(t, "false", out.Rows()[4].GetString(record.SuccessField))
	assert.Equal(t, "true", out.Rows()[5].GetString(record.SuccessField))

	batchDir, err := d.store.BatchDir("artworks")
	require.NoError(t, err)
	entries, err := os.ReadDir(batchDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	st, err := ReadStatus(d.store.MustPath("artworks.status.json"))
	require.NoError(t, err)
	assert.Equal(t, StateComplete, st.State)
	assert.Equal(t, 95, st.Total)
	require.NotNil(t, st.FinishedAt)
}

func TestRunSkipsWhenOutputExists(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	d := newDriver(t, root, Options{BatchSize: 10})
	src := &fakeSource{n: 12}
	_, err := d.Run(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, src.calls, 12)

	again := &fakeSource{n: 12}
	res, err := d.Run(context.Background(), again)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, res.State)
	assert.Empty(t, again.calls)
	assert.Equal(t, "run-1", res.RunID)
}

func TestRunForceRecrawls(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	_, err := newDriver(t, root, Options{BatchSize: 10}).Run(context.Background(), &fakeSource{n: 5})
	require.NoError(t, err)

	src := &fakeSource{n: 5}
	res, err := newDriver(t, root, Options{BatchSize: 10, Force: true}).Run(context.Background(), src)
	require.NoError(t, err)
	assert.Len(t, src.calls, 5)
	assert.Equal(t, 5, readOutput(t, res.Output).Len())
}

func TestInterruptedCrawlResumesWithoutRefetching(t *testing.T) {
	t.Parallel()

	for _, k := range []int{0, 29, 30, 47, 94} {
		t.Run(fmt.Sprintf("stop_after_%d", k), func(t *testing.T) {
			t.Parallel()

			ref, err := newDriver(t, t.TempDir(), Options{BatchSize: 30}).Run(context.Background(), &fakeSource{n: 95})
			require.NoError(t, err)
			want := readOutput(t, ref.Output)

			root := t.TempDir()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			first := &fakeSource{n: 95, onCrawl: func(ind int) {
				if ind == k {
					cancel()
				}
			}}
			d := newDriver(t, root, Options{BatchSize: 30})
			_, err = d.Run(ctx, first)
			require.ErrorIs(t, err, context.Canceled)
			state, err := d.State(first)
			require.NoError(t, err)
			assert.Equal(t, StateRunning, state)

			second := &fakeSource{n: 95}
			res, err := newDriver(t, root, Options{BatchSize: 30}).Run(context.Background(), second)
			require.NoError(t, err)
			// The item in flight at cancellation is fetched again.
			assert.Len(t, append(first.calls, second.calls...), 96)
			assert.Equal(t, k, second.calls[0])

			got := readOutput(t, res.Output)
			require.Equal(t, want.Len(), got.Len())
			for i := range want.Rows() {
				assert.True(t, want.Rows()[i].Equal(got.Rows()[i]), "row %d differs", i)
			}
		})
	}
}

// cancellingTransport serves every page but cancels the run the first time
// cancelOn is requested, returning the context error for that page.
type cancellingTransport struct {
	cancelOn string
	cancel   context.CancelFunc
	fired    bool
}

func (c *cancellingTransport) Get(ctx context.Context, url string) (fetch.Response, error) {
	if url == c.cancelOn && !c.fired {
		c.fired = true
		c.cancel()
		return fetch.Response{}, ctx.Err()
	}
	return fetch.Response{URL: url, StatusCode: 200, Body: []byte("<html><body>" + url + "</body></html>")}, nil
}

// pageSource fetches one page per input and records success from the fetch.
type pageSource struct {
	fetcher fetch.DocumentFetcher
	calls   []int
}

func (s *pageSource) Name() string      { return "artworks" }
func (s *pageSource) Columns() []string { return []string{"page"} }

func (s *pageSource) Inputs(context.Context) ([]record.Record, error) {
	out := make([]record.Record, 0, 4)
	for i := 0; i < 4; i++ {
		out = append(out, record.WithInd(i))
	}
	return out, nil
}

func (s *pageSource) Crawl(ctx context.Context, in record.Record) record.Record {
	ind, _ := in.Ind()
	s.calls = append(s.calls, ind)
	rec := record.New()
	doc, ok := s.fetcher.Fetch(ctx, fmt.Sprintf("u%d", ind))
	if !ok {
		rec.Set(record.SuccessField, record.Bool(false))
		return rec
	}
	rec.SetString("page", doc.Find("body").Text())
	return rec
}

func TestCancelledFetchIsRefetchedOnResume(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	transport := &cancellingTransport{cancelOn: "u2", cancel: cancel}
	policy := fetch.FixedBackoff{Attempts: 1}

	first := &pageSource{fetcher: fetch.NewRetrying(transport, policy, nil, nil)}
	res, err := newDriver(t, root, Options{BatchSize: 1}).Run(ctx, first)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, res.Fetched)
	assert.Zero(t, res.Failed)

	second := &pageSource{fetcher: fetch.NewRetrying(transport, policy, nil, nil)}
	res, err = newDriver(t, root, Options{BatchSize: 1}).Run(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, second.calls)

	got := readOutput(t, res.Output)
	require.Equal(t, 4, got.Len())
	row := got.Rows()[2]
	assert.Equal(t, "true", row.GetString(record.SuccessField))
	assert.Equal(t, "u2", row.GetString("page"))
}

func TestRunDropsBatchRowsOutsideCurrentInputs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := &fakeSource{n: 6, onCrawl: func(ind int) {
		if ind == 5 {
			cancel()
		}
	}}
	_, err := newDriver(t, root, Options{BatchSize: 2}).Run(ctx, first)
	require.ErrorIs(t, err, context.Canceled)

	// Inputs 4 and 5 disappeared between runs; the batch holding ind 4
	// must not leak into the output.
	second := &fakeSource{n: 4}
	res, err := newDriver(t, root, Options{BatchSize: 2}).Run(context.Background(), second)
	require.NoError(t, err)
	assert.Empty(t, second.calls)

	inds, err := readOutput(t, res.Output).Inds()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, inds)
}

func TestRunRejectsDuplicateInputs(t *testing.T) {
	t.Parallel()

	src := &fakeSource{inputs: []record.Record{record.WithInd(1), record.WithInd(2), record.WithInd(1)}}
	_, err := newDriver(t, t.TempDir(), Options{}).Run(context.Background(), src)
	require.ErrorIs(t, err, ErrDuplicateInput)
	assert.Empty(t, src.calls)
}

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	d := newDriver(t, t.TempDir(), Options{BatchSize: 2})
	src := &fakeSource{n: 3}
	state, err := d.State(src)
	require.NoError(t, err)
	assert.Equal(t, StateNotStarted, state)

	_, err = d.Run(context.Background(), src)
	require.NoError(t, err)
	state, err = d.State(src)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, state)

	require.NoError(t, os.Remove(d.store.MustPath(OutputName(src))))
	state, err = d.State(src)
	require.NoError(t, err)
	assert.Equal(t, StateNotStarted, state)
}
