// Package pipeline composes crawls, merges and tag normalization into the
// named pipelines the CLI runs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/artharvest/internal/artifact"
	"github.com/JakeFAU/artharvest/internal/crawl"
	"github.com/JakeFAU/artharvest/internal/fetch"
	"github.com/JakeFAU/artharvest/internal/record"
)

// Pipeline names.
const (
	Wikidata  = "wikidata"
	Galleries = "galleries"
)

// ErrUnknownPipeline is returned for a name no pipeline answers to.
var ErrUnknownPipeline = errors.New("unknown pipeline")

// Runner executes one pipeline end to end.
type Runner interface {
	Run(ctx context.Context) error
}

// Settings are the pipeline-level knobs.
type Settings struct {
	WikiartURL     string
	ArtworksLimit  int
	GalleriesPages []string
}

// Deps are the collaborators shared by every pipeline.
type Deps struct {
	Store    *artifact.Store
	Driver   *crawl.Driver
	Fetcher  fetch.DocumentFetcher
	Settings Settings
	Logger   *zap.Logger
}

// Names lists the known pipelines.
func Names() []string {
	names := []string{Wikidata, Galleries}
	sort.Strings(names)
	return names
}

// New returns the pipeline registered under name.
func New(name string, deps Deps) (Runner, error) {
	if deps.Store == nil || deps.Driver == nil || deps.Fetcher == nil {
		return nil, errors.New("pipeline requires store, driver and fetcher")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	switch name {
	case Wikidata:
		return &wikidataPipeline{deps: deps, logger: deps.Logger.Named(Wikidata)}, nil
	case Galleries:
		return &galleriesPipeline{deps: deps, logger: deps.Logger.Named(Galleries)}, nil
	default:
		return nil, fmt.Errorf("%w %q (expected one of %v)", ErrUnknownPipeline, name, Names())
	}
}

// runCrawl drives src to completion and loads its output.
func runCrawl(ctx context.Context, driver *crawl.Driver, src crawl.Source) (*record.Table, error) {
	res, err := driver.Run(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("crawl %s: %w", src.Name(), err)
	}
	tbl, err := record.ReadCSV(res.Output)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", src.Name(), err)
	}
	return tbl, nil
}
