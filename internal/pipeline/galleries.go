package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/artharvest/internal/galleries"
	"github.com/JakeFAU/artharvest/internal/merge"
	"github.com/JakeFAU/artharvest/internal/record"
)

// ExhibitionsDBName is the consolidated exhibitions artifact.
const ExhibitionsDBName = "exhibitions_db.csv.gz"

type galleriesPipeline struct {
	deps   Deps
	logger *zap.Logger
}

// Run crawls every configured listing page as its own partition. A partition
// that fails is logged and left out; the remaining ones are still merged and
// the failures are returned together afterwards.
func (p *galleriesPipeline) Run(ctx context.Context) error {
	pages := p.deps.Settings.GalleriesPages
	if len(pages) == 0 {
		return errors.New("no galleries_pages configured")
	}
	var (
		merged []*record.Table
		failed []error
	)
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		tbl, err := p.partition(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			p.logger.Error("gallery partition failed", zap.String("url", page), zap.Error(err))
			failed = append(failed, err)
			continue
		}
		merged = append(merged, tbl)
	}
	if len(merged) > 0 {
		all := merge.Union(merged...)
		path, err := p.deps.Store.Write(ExhibitionsDBName, all)
		if err != nil {
			return fmt.Errorf("write exhibitions db: %w", err)
		}
		p.logger.Info("exhibitions db saved",
			zap.String("path", path),
			zap.Int("rows", all.Len()),
			zap.Int("partitions", len(merged)),
		)
	}
	return errors.Join(failed...)
}

// partition crawls one listing page and left-joins gallery images onto its
// exhibitions.
func (p *galleriesPipeline) partition(ctx context.Context, page string) (*record.Table, error) {
	label := merge.PartitionLabel(page)
	catalog := galleries.NewCatalog(p.deps.Fetcher, page, label, p.deps.Store, p.logger)

	exhibitions, err := runCrawl(ctx, p.deps.Driver, galleries.NewExhibitionSource(catalog, p.deps.Fetcher))
	if err != nil {
		return nil, err
	}
	images, err := runCrawl(ctx, p.deps.Driver, galleries.NewImageSource(catalog, p.deps.Fetcher, p.logger))
	if err != nil {
		return nil, err
	}
	right := merge.Project(images, galleries.FieldGalleryName, galleries.FieldGalleryLink, galleries.FieldGalleryImages)
	joined, err := merge.LeftJoin(exhibitions, right, galleries.FieldGalleryName)
	if err != nil {
		return nil, fmt.Errorf("join %s galleries: %w", label, err)
	}
	return merge.StampPartition(joined, label), nil
}
