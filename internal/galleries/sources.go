package galleries

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/artharvest/internal/fetch"
	"github.com/JakeFAU/artharvest/internal/record"
)

// Field names written by the gallery crawls. The spellings are the
// established column names of the exhibitions dataset.
const (
	FieldGalleryName    = "galery_name"
	FieldGalleryLink    = "gallery_link"
	FieldGalleryImages  = "gallery_imgs"
	FieldExhibitionLink = "exhibition_link"
	FieldExhibitionName = "exhibition_name"
	FieldAddress        = "galery_adress"
	FieldOpenHours      = "open hours"
	FieldArtistName     = "artist_name"
	FieldArtistLink     = "artist_link"
	FieldDescription    = "exhibition_description"
)

// ExhibitionsName is the crawl name for a partition's exhibitions.
func ExhibitionsName(partition string) string { return "exhibitions_" + partition }

// ImagesName is the crawl name for a partition's gallery images.
func ImagesName(partition string) string { return "galleries_" + partition }

// ExhibitionSource crawls each exhibition advertised on a listing page. An
// exhibition's ind is its entry's ind in the catalog.
type ExhibitionSource struct {
	catalog *Catalog
	fetcher fetch.DocumentFetcher
}

// NewExhibitionSource builds an ExhibitionSource.
func NewExhibitionSource(catalog *Catalog, fetcher fetch.DocumentFetcher) *ExhibitionSource {
	return &ExhibitionSource{catalog: catalog, fetcher: fetcher}
}

// Name implements crawl.Source.
func (s *ExhibitionSource) Name() string { return ExhibitionsName(s.catalog.Partition()) }

// Columns implements crawl.Source.
func (s *ExhibitionSource) Columns() []string {
	return []string{
		FieldGalleryName, FieldExhibitionLink, FieldExhibitionName,
		FieldArtistName, FieldArtistLink, FieldDescription,
		FieldAddress, FieldOpenHours,
	}
}

// Inputs implements crawl.Source. Entries without an exhibition link are not
// crawlable and are left out.
func (s *ExhibitionSource) Inputs(ctx context.Context) ([]record.Record, error) {
	entries, err := s.catalog.Entries(ctx)
	if err != nil {
		return nil, err
	}
	var out []record.Record
	for _, l := range entries {
		if l.ExhibitionLink == "" {
			continue
		}
		r := record.WithInd(l.Ind)
		r.SetString(FieldGalleryName, l.GalleryName)
		r.SetString(FieldExhibitionLink, resolve(s.catalog.URL(), l.ExhibitionLink))
		r.SetString(FieldExhibitionName, l.ExhibitionName)
		r.SetString(FieldAddress, l.Address)
		r.SetString(FieldOpenHours, l.OpenHours)
		out = append(out, r)
	}
	return out, nil
}

// Crawl implements crawl.Source.
func (s *ExhibitionSource) Crawl(ctx context.Context, in record.Record) record.Record {
	rec := in.Clone()
	rec.Delete(record.IndField)
	link := in.GetString(FieldExhibitionLink)
	doc, ok := s.fetcher.Fetch(ctx, link)
	if !ok {
		rec.SetString(FieldArtistName, "")
		rec.SetString(FieldArtistLink, "")
		rec.SetString(FieldDescription, "")
		rec.Set(record.SuccessField, record.Bool(false))
		return rec
	}
	details := ParseExhibition(doc, link)
	rec.SetString(FieldArtistName, details.ArtistName)
	rec.SetString(FieldArtistLink, details.ArtistLink)
	rec.SetString(FieldDescription, details.Description)
	rec.Set(record.SuccessField, record.Bool(true))
	return rec
}

// ImageSource crawls the image carousel of every distinct gallery on a
// listing page. A gallery's ind is the lowest ind among its catalog entries.
type ImageSource struct {
	catalog *Catalog
	fetcher fetch.DocumentFetcher
	logger  *zap.Logger
}

// NewImageSource builds an ImageSource.
func NewImageSource(catalog *Catalog, fetcher fetch.DocumentFetcher, logger *zap.Logger) *ImageSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageSource{catalog: catalog, fetcher: fetcher, logger: logger}
}

// Name implements crawl.Source.
func (s *ImageSource) Name() string { return ImagesName(s.catalog.Partition()) }

// Columns implements crawl.Source.
func (s *ImageSource) Columns() []string {
	return []string{FieldGalleryName, FieldGalleryLink, FieldGalleryImages}
}

// Inputs implements crawl.Source.
func (s *ImageSource) Inputs(ctx context.Context) ([]record.Record, error) {
	entries, err := s.catalog.Entries(ctx)
	if err != nil {
		return nil, err
	}
	first := map[string]int{}
	for _, l := range entries {
		if at, ok := first[l.GalleryName]; !ok || l.Ind < at {
			first[l.GalleryName] = l.Ind
		}
	}
	seen := map[string]struct{}{}
	var out []record.Record
	for _, l := range entries {
		if _, dup := seen[l.GalleryName]; dup {
			continue
		}
		seen[l.GalleryName] = struct{}{}
		r := record.WithInd(first[l.GalleryName])
		r.SetString(FieldGalleryName, l.GalleryName)
		link := ""
		if l.GalleryLink != "" {
			link = resolve(s.catalog.URL(), l.GalleryLink)
		}
		r.SetString(FieldGalleryLink, link)
		out = append(out, r)
	}
	return out, nil
}

// Crawl implements crawl.Source.
func (s *ImageSource) Crawl(ctx context.Context, in record.Record) record.Record {
	rec := record.New()
	rec.SetString(FieldGalleryName, in.GetString(FieldGalleryName))
	link := in.GetString(FieldGalleryLink)
	rec.SetString(FieldGalleryLink, link)
	rec.Set(FieldGalleryImages, record.List(nil))
	if link == "" {
		s.logger.Debug("gallery has no page", zap.String("gallery", in.GetString(FieldGalleryName)))
		rec.Set(record.SuccessField, record.Bool(false))
		return rec
	}
	doc, ok := s.fetcher.Fetch(ctx, link)
	if !ok {
		rec.Set(record.SuccessField, record.Bool(false))
		return rec
	}
	rec.Set(FieldGalleryImages, record.List(ParseGalleryImages(doc)))
	rec.Set(record.SuccessField, record.Bool(true))
	return rec
}
