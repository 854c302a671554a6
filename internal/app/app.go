// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/artharvest/internal/api"
	"github.com/JakeFAU/artharvest/internal/artifact"
	"github.com/JakeFAU/artharvest/internal/clock/system"
	"github.com/JakeFAU/artharvest/internal/config"
	"github.com/JakeFAU/artharvest/internal/crawl"
	"github.com/JakeFAU/artharvest/internal/fetch"
	"github.com/JakeFAU/artharvest/internal/hash/sha256"
	"github.com/JakeFAU/artharvest/internal/id/uuid"
	"github.com/JakeFAU/artharvest/internal/pipeline"
	"github.com/JakeFAU/artharvest/internal/publish"
	"github.com/JakeFAU/artharvest/internal/recommend"
	"github.com/JakeFAU/artharvest/internal/record"
	"github.com/JakeFAU/artharvest/internal/tags"
	"github.com/JakeFAU/artharvest/internal/wikiart"
)

// App holds the shared services for one command invocation.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	store   *artifact.Store
	clock   *system.Clock
	closers []io.Closer
}

// New creates the artifact store and validates the data root.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := artifact.New(artifact.Config{RootDir: cfg.RootDataDir, Version: cfg.DataVersion})
	if err != nil {
		return nil, fmt.Errorf("init artifact store: %w", err)
	}
	logger.Info("Application services initialized",
		zap.String("root", store.Root()),
		zap.String("data_version", store.Version()))
	return &App{cfg: cfg, logger: logger, store: store, clock: system.New()}, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store returns the artifact store.
func (a *App) Store() *artifact.Store {
	return a.store
}

// Fetcher builds the retrying colly-backed fetcher.
func (a *App) Fetcher() *fetch.Retrying {
	transport := fetch.NewCollyTransport(fetch.CollyConfig{
		UserAgent:     a.cfg.HTTP.UserAgent,
		Timeout:       a.cfg.RequestTimeout(),
		RatePerSecond: a.cfg.HTTP.RateLimitPerSecond,
		RespectRobots: a.cfg.HTTP.RespectRobots,
	})
	policy := fetch.FixedBackoff{Attempts: a.cfg.HTTP.MaxAttempts, Interval: a.cfg.Backoff()}
	return fetch.NewRetrying(transport, policy, a.clock, a.logger)
}

// Pipeline builds the named crawl pipeline.
func (a *App) Pipeline(name string, force bool) (pipeline.Runner, error) {
	driver, err := crawl.NewDriver(a.store, a.clock, uuid.New(), crawl.Options{
		BatchSize:     a.cfg.Crawl.BatchSize,
		ProgressEvery: a.cfg.Crawl.ProgressEvery,
		Force:         force,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init crawl driver: %w", err)
	}
	return pipeline.New(name, pipeline.Deps{
		Store:   a.store,
		Driver:  driver,
		Fetcher: a.Fetcher(),
		Settings: pipeline.Settings{
			WikiartURL:     a.cfg.Crawl.WikiartURL,
			ArtworksLimit:  a.cfg.Crawl.ArtworksLimit,
			GalleriesPages: a.cfg.GalleriesPages,
		},
		Logger: a.logger,
	})
}

// Publisher builds the service-data publisher. GCS upload and Pub/Sub
// notification are wired only when configured.
func (a *App) Publisher(ctx context.Context) (*publish.Publisher, error) {
	pc := a.cfg.Publish
	var opts []publish.Option
	if pc.GCSBucket != "" {
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.closers = append(a.closers, client)
		uploader, err := publish.NewGCSUploader(client, pc.GCSBucket)
		if err != nil {
			return nil, err
		}
		a.logger.Info("Using GCS upload", zap.String("bucket", pc.GCSBucket))
		opts = append(opts, publish.WithUploader(uploader))
	}
	if pc.PubSubTopic != "" {
		client, err := pubsub.NewClient(ctx, pc.PubSubProject)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		a.closers = append(a.closers, client)
		notifier := publish.NewPubSubNotifier(client.Topic(pc.PubSubTopic))
		a.closers = append(a.closers, closerFunc(func() error {
			notifier.Close()
			return nil
		}))
		a.logger.Info("Using Pub/Sub notification", zap.String("topic", pc.PubSubTopic))
		opts = append(opts, publish.WithNotifier(notifier))
	}
	return publish.New(a.store, sha256.New(), a.clock, publish.Config{
		Artifacts: pc.Artifacts,
		Prefix:    pc.Prefix,
	}, a.logger, opts...)
}

// Server loads the recommendation index from the wiki texts artifact and,
// when present, the tag table from the tags db.
func (a *App) Server() (*api.Server, error) {
	texts, err := a.store.Read(wikiart.WikiTextsName)
	if err != nil {
		return nil, fmt.Errorf("load wiki texts: %w", err)
	}
	index := recommend.FromTable(texts, wikiart.FieldArtistName, wikiart.FieldWikiText)

	var tagTable *tags.Table
	exists, err := a.store.Exists(pipeline.TagsDBName)
	if err != nil {
		return nil, err
	}
	if exists {
		var tbl *record.Table
		if tbl, err = a.store.Read(pipeline.TagsDBName); err != nil {
			return nil, fmt.Errorf("load tags db: %w", err)
		}
		tagTable = tags.FromRecords(tbl)
	} else {
		a.logger.Warn("Tags db not found, tag routes disabled")
	}
	a.logger.Info("Recommendation index loaded",
		zap.Int("documents", index.Len()),
		zap.Int("vocabulary", index.VocabularySize()))
	return api.NewServer(index, tagTable, api.Config{
		MaxResults: a.cfg.Server.MaxResults,
		Timeout:    a.cfg.RequestTimeout(),
	}, a.logger), nil
}

// Track registers c to be closed by Close.
func (a *App) Track(c io.Closer) {
	a.closers = append(a.closers, c)
}

// Close releases tracked clients in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("Error closing service", zap.Error(err))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
