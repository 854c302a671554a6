package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/artharvest/internal/artifact"
	"github.com/JakeFAU/artharvest/internal/merge"
	"github.com/JakeFAU/artharvest/internal/record"
	"github.com/JakeFAU/artharvest/internal/tags"
	"github.com/JakeFAU/artharvest/internal/wikiart"
)

// Artifacts written by the wikidata pipeline besides the crawl outputs.
const (
	ContentDBName = "content_db.csv.gz"
	TagsDBName    = "tags_db.csv.gz"
)

// Content columns.
const (
	FieldMovement       = "art movement"
	FieldNationality    = "nationality"
	FieldField          = "field"
	FieldWikipedia      = "wikipedia"
	FieldArtistField    = "artist_field"
	FieldArtistMovement = "artist_movement"
	FieldArtTags        = "art_tags"
)

type wikidataPipeline struct {
	deps   Deps
	logger *zap.Logger
}

func (p *wikidataPipeline) Run(ctx context.Context) error {
	d := p.deps
	base := d.Settings.WikiartURL

	pages, err := runCrawl(ctx, d.Driver, wikiart.NewAlphabetSource(d.Fetcher, base))
	if err != nil {
		return err
	}
	artists, err := p.artists(pages)
	if err != nil {
		return err
	}

	info, err := runCrawl(ctx, d.Driver, wikiart.NewInfoSource(d.Fetcher, base, artists, p.logger))
	if err != nil {
		return err
	}
	if _, err := d.Store.Write(wikiart.WikiTextsName, wikiart.WikiTexts(info)); err != nil {
		return fmt.Errorf("write wiki texts: %w", err)
	}

	artworks, err := runCrawl(ctx, d.Driver, wikiart.NewArtworksSource(d.Fetcher, base, artists, d.Settings.ArtworksLimit, p.logger))
	if err != nil {
		return err
	}

	content, tagTable, err := BuildContent(info, artworks)
	if err != nil {
		return err
	}
	if _, err := d.Store.Write(ContentDBName, content); err != nil {
		return fmt.Errorf("write content db: %w", err)
	}
	if _, err := d.Store.Write(TagsDBName, tagTable.Records(tags.MinKnownCount)); err != nil {
		return fmt.Errorf("write tags db: %w", err)
	}
	p.logger.Info("wikidata pipeline complete",
		zap.Int("artists", artists.Len()),
		zap.Int("content_rows", content.Len()),
		zap.Int("tags", tagTable.Len()),
	)
	return nil
}

// artists returns the master artist list, writing it only once so that an
// artist's ind never changes between runs.
func (p *wikidataPipeline) artists(pages *record.Table) (*record.Table, error) {
	store := p.deps.Store
	exists, err := store.Exists(wikiart.ArtistsName)
	if err != nil {
		return nil, err
	}
	if exists {
		return store.Read(wikiart.ArtistsName)
	}
	artists := wikiart.Artists(pages)
	path, err := store.Write(wikiart.ArtistsName, artists)
	if err != nil {
		return nil, fmt.Errorf("write artists list: %w", err)
	}
	p.logger.Info("artists list saved", zap.String("path", path), zap.Int("rows", artists.Len()))
	return artists, nil
}

// BuildContent joins artist info with artwork links on ind and derives the
// canonical field, movement and tag columns. The tag table is resolved
// against the whole corpus.
func BuildContent(info, artworks *record.Table) (*record.Table, *tags.Table, error) {
	core := merge.Project(info,
		record.IndField, wikiart.FieldArtistName, FieldMovement, FieldNationality,
		FieldField, wikiart.FieldArtistPic, FieldWikipedia, wikiart.FieldArtistURL,
	)
	links := merge.Project(artworks,
		record.IndField, wikiart.FieldArtistName, wikiart.FieldArtworksURL, wikiart.FieldArtworks,
	)
	joined, err := merge.IndexJoin(core, links)
	if err != nil {
		return nil, nil, fmt.Errorf("join artist info with artworks: %w", err)
	}

	rows := joined.Rows()
	movements := make([]string, len(rows))
	for i, r := range rows {
		movements[i] = r.GetString(FieldMovement)
	}
	artTags, table := tags.Normalize(movements)

	out := record.NewTable(joined.Columns()...)
	for i, r := range rows {
		row := r.Clone()
		row.SetString(FieldArtistField, tags.ProcessField(r.GetString(FieldField)))
		row.SetString(FieldArtistMovement, tags.ProcessMovement(r.GetString(FieldMovement)))
		row.SetString(FieldArtTags, artTags[i])
		out.Append(row)
	}
	return out, table, nil
}

// RebuildTags recomputes the tag table from the stored content db and
// rewrites the tags db.
func RebuildTags(store *artifact.Store) (*tags.Table, error) {
	content, err := store.Read(ContentDBName)
	if err != nil {
		return nil, fmt.Errorf("read content db: %w", err)
	}
	if !content.HasColumn(FieldMovement) {
		return nil, fmt.Errorf("content db has no %q column", FieldMovement)
	}
	movements := make([]string, 0, content.Len())
	for _, r := range content.Rows() {
		movements = append(movements, r.GetString(FieldMovement))
	}
	_, table := tags.Normalize(movements)
	if _, err := store.Write(TagsDBName, table.Records(tags.MinKnownCount)); err != nil {
		return nil, fmt.Errorf("write tags db: %w", err)
	}
	return table, nil
}
