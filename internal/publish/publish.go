// Package publish assembles the service-data bundle consumed by the
// recommendation service: it copies the final artifacts into service_data/,
// keeps superseded copies under a hash-prefixed name, packs everything into
// a tar.gz and optionally ships the bundle to GCS and announces it on
// Pub/Sub.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/artharvest/internal/artifact"
)

// ArchiveName is the bundle written next to the service_data directory.
const ArchiveName = "service_data.tar.gz"

// ManifestName is the bundle index stored inside service_data/.
const ManifestName = "manifest.json"

// hashPrefixLen is how much of the old digest is kept in a superseded name.
const hashPrefixLen = 12

// ErrMissingArtifact is returned when a configured artifact was never built.
var ErrMissingArtifact = errors.New("artifact missing")

// Hasher digests files on disk.
type Hasher interface {
	HashFile(path string) (string, error)
}

// Uploader stores the bundle remotely and returns its URI.
type Uploader interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Notifier announces a published bundle.
type Notifier interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// Clock supplies manifest timestamps.
type Clock interface {
	Now() time.Time
}

// Config captures the publisher's inputs.
type Config struct {
	// Artifacts are logical artifact names resolved through the store.
	Artifacts []string
	// Prefix is the object prefix used for the remote upload.
	Prefix string
}

// File describes one artifact inside the bundle.
type File struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
	Bytes  int64  `json:"bytes"`
	// Superseded names the hash-prefixed copy kept when the content changed.
	Superseded string `json:"superseded,omitempty"`
}

// Manifest summarizes one publication.
type Manifest struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Files     []File    `json:"files"`
	Archive   string    `json:"archive"`
	Location  string    `json:"location,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
}

// Publisher copies artifacts into the service directory and bundles them.
type Publisher struct {
	store    *artifact.Store
	hasher   Hasher
	clock    Clock
	cfg      Config
	uploader Uploader
	notifier Notifier
	logger   *zap.Logger
}

// Option configures optional publisher collaborators.
type Option func(*Publisher)

// WithUploader ships the archive through u after packaging.
func WithUploader(u Uploader) Option {
	return func(p *Publisher) { p.uploader = u }
}

// WithNotifier announces the manifest through n after upload.
func WithNotifier(n Notifier) Option {
	return func(p *Publisher) { p.notifier = n }
}

// New creates a Publisher.
func New(store *artifact.Store, hasher Hasher, clock Clock, cfg Config, logger *zap.Logger, opts ...Option) (*Publisher, error) {
	if store == nil {
		return nil, fmt.Errorf("artifact store is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if len(cfg.Artifacts) == 0 {
		return nil, fmt.Errorf("at least one artifact is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Publisher{
		store:  store,
		hasher: hasher,
		clock:  clock,
		cfg:    cfg,
		logger: logger.Named("publish"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Publish refreshes service_data/, writes the archive and runs the optional
// upload and notification steps.
func (p *Publisher) Publish(ctx context.Context) (Manifest, error) {
	dir := p.store.ServiceDir()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Manifest{}, fmt.Errorf("create service dir: %w", err)
	}

	manifest := Manifest{
		Version:   p.store.Version(),
		CreatedAt: p.clock.Now().UTC(),
		Archive:   filepath.Join(p.store.Root(), ArchiveName),
	}
	for _, name := range p.cfg.Artifacts {
		if err := ctx.Err(); err != nil {
			return Manifest{}, fmt.Errorf("publish interrupted: %w", err)
		}
		f, err := p.refresh(dir, name)
		if err != nil {
			return Manifest{}, err
		}
		manifest.Files = append(manifest.Files, f)
	}
	sort.Slice(manifest.Files, func(i, j int) bool { return manifest.Files[i].Name < manifest.Files[j].Name })

	if err := writeManifest(filepath.Join(dir, ManifestName), manifest); err != nil {
		return Manifest{}, err
	}
	if err := writeArchive(manifest.Archive, dir); err != nil {
		return Manifest{}, err
	}
	p.logger.Info("Service data packaged",
		zap.String("archive", manifest.Archive),
		zap.Int("files", len(manifest.Files)))

	if p.uploader != nil {
		location, err := p.upload(ctx, manifest.Archive)
		if err != nil {
			return Manifest{}, err
		}
		manifest.Location = location
		p.logger.Info("Service data uploaded", zap.String("location", location))
	}
	if p.notifier != nil {
		id, err := p.notifier.Publish(ctx, manifest)
		if err != nil {
			return Manifest{}, fmt.Errorf("notify: %w", err)
		}
		manifest.MessageID = id
		p.logger.Info("Service data announced", zap.String("message_id", id))
	}
	return manifest, nil
}

// refresh copies one artifact into dir. An existing copy with identical
// content is left alone; a differing one is renamed "{sha[:12]}_{name}".
func (p *Publisher) refresh(dir, name string) (File, error) {
	src, err := p.store.Path(name)
	if err != nil {
		return File{}, err
	}
	info, err := os.Stat(src)
	if errors.Is(err, os.ErrNotExist) {
		return File{}, fmt.Errorf("%w: %s", ErrMissingArtifact, p.store.FileName(name))
	}
	if err != nil {
		return File{}, fmt.Errorf("stat %s: %w", src, err)
	}
	sum, err := p.hasher.HashFile(src)
	if err != nil {
		return File{}, err
	}
	f := File{Name: name, SHA256: sum, Bytes: info.Size()}

	dst := filepath.Join(dir, name)
	if _, err := os.Stat(dst); err == nil {
		old, err := p.hasher.HashFile(dst)
		if err != nil {
			return File{}, err
		}
		if old == sum {
			p.logger.Debug("Service artifact unchanged", zap.String("artifact", name))
			return f, nil
		}
		f.Superseded = old[:hashPrefixLen] + "_" + name
		if err := os.Rename(dst, filepath.Join(dir, f.Superseded)); err != nil {
			return File{}, fmt.Errorf("keep superseded %s: %w", name, err)
		}
		p.logger.Info("Superseded service artifact kept",
			zap.String("artifact", name),
			zap.String("kept_as", f.Superseded))
	} else if !errors.Is(err, os.ErrNotExist) {
		return File{}, fmt.Errorf("stat %s: %w", dst, err)
	}

	if err := copyFile(src, dst); err != nil {
		return File{}, err
	}
	return f, nil
}

func (p *Publisher) upload(ctx context.Context, archive string) (string, error) {
	// #nosec G304 -- archive path is derived from the store root.
	f, err := os.Open(archive)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = f.Close() }()
	object := ArchiveName
	if p.cfg.Prefix != "" {
		object = p.cfg.Prefix + "/" + p.store.Version() + "/" + ArchiveName
	}
	location, err := p.uploader.PutObject(ctx, object, "application/gzip", f)
	if err != nil {
		return "", fmt.Errorf("upload archive: %w", err)
	}
	return location, nil
}
