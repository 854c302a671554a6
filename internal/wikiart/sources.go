package wikiart

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/artharvest/internal/fetch"
	"github.com/JakeFAU/artharvest/internal/record"
)

// Crawl and artifact names.
const (
	AlphabetCrawl  = "alphabet_pages"
	ArtistsName    = "alphabet_artists_pages.csv"
	InfoCrawl      = "artists_info"
	WikiTextsName  = "artists_wiki_texts.csv"
	ArtworksCrawl  = "artists_artworks"
	DefaultBaseURL = "https://www.wikiart.org"

	artworksPostfix = "all-works/text-list"
)

// Field names shared by the wikiart stages.
const (
	FieldLetter      = "letter"
	FieldPageURL     = "page_url"
	FieldNames       = "artist_names"
	FieldLinks       = "artist_links"
	FieldArtistName  = "artist_name"
	FieldArtistLink  = "artist_link"
	FieldArtistURL   = "artist_url"
	FieldArtistPic   = "artist_pic"
	FieldWikiText    = "wiki_text"
	FieldArtworksURL = "artworks_url"
	FieldArtworks    = "artworks"
)

// Letters returns the index pages a..z in order.
func Letters() []string {
	out := make([]string, 0, 26)
	for c := 'a'; c <= 'z'; c++ {
		out = append(out, string(c))
	}
	return out
}

// AlphabetSource crawls the 26 alphabet index pages.
type AlphabetSource struct {
	fetcher fetch.DocumentFetcher
	baseURL string
}

// NewAlphabetSource builds an AlphabetSource.
func NewAlphabetSource(fetcher fetch.DocumentFetcher, baseURL string) *AlphabetSource {
	return &AlphabetSource{fetcher: fetcher, baseURL: baseOrDefault(baseURL)}
}

// Name implements crawl.Source.
func (s *AlphabetSource) Name() string { return AlphabetCrawl }

// Columns implements crawl.Source.
func (s *AlphabetSource) Columns() []string {
	return []string{FieldLetter, FieldPageURL, FieldNames, FieldLinks}
}

// Inputs implements crawl.Source.
func (s *AlphabetSource) Inputs(context.Context) ([]record.Record, error) {
	letters := Letters()
	out := make([]record.Record, 0, len(letters))
	for i, l := range letters {
		r := record.WithInd(i)
		r.SetString(FieldLetter, l)
		r.SetString(FieldPageURL, Resolve(s.baseURL, fmt.Sprintf("/en/Alphabet/%s/text-list", l)))
		out = append(out, r)
	}
	return out, nil
}

// Crawl implements crawl.Source.
func (s *AlphabetSource) Crawl(ctx context.Context, in record.Record) record.Record {
	page := in.GetString(FieldPageURL)
	rec := record.New()
	rec.SetString(FieldLetter, in.GetString(FieldLetter))
	rec.SetString(FieldPageURL, page)
	doc, ok := s.fetcher.Fetch(ctx, page)
	if !ok {
		rec.Set(FieldNames, record.List(nil))
		rec.Set(FieldLinks, record.List(nil))
		rec.Set(record.SuccessField, record.Bool(false))
		return rec
	}
	artists := ParseAlphabetPage(doc)
	names := make([]string, 0, len(artists))
	links := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
		links = append(links, a.Link)
	}
	rec.Set(FieldNames, record.List(names))
	rec.Set(FieldLinks, record.List(links))
	rec.Set(record.SuccessField, record.Bool(len(artists) > 0))
	return rec
}

// Artists flattens crawled alphabet pages into the master artist list. Each
// artist's ind is its row number, in page then listing order.
func Artists(pages *record.Table) *record.Table {
	out := record.NewTable(record.IndField, FieldArtistName, FieldArtistLink)
	ind := 0
	for _, page := range pages.Rows() {
		names, _ := page.Get(FieldNames)
		links, _ := page.Get(FieldLinks)
		ns, ls := names.Items(), links.Items()
		for i := range ls {
			r := record.WithInd(ind)
			name := ""
			if i < len(ns) {
				name = ns[i]
			}
			r.SetString(FieldArtistName, name)
			r.SetString(FieldArtistLink, ls[i])
			out.Append(r)
			ind++
		}
	}
	return out
}

// artistInputs turns the master artist list into crawl inputs.
func artistInputs(artists *record.Table, baseURL string) []record.Record {
	out := make([]record.Record, 0, artists.Len())
	for _, row := range artists.Rows() {
		ind, err := row.Ind()
		if err != nil {
			continue
		}
		r := record.WithInd(ind)
		r.SetString(FieldArtistName, row.GetString(FieldArtistName))
		r.SetString(FieldArtistURL, Resolve(baseURL, row.GetString(FieldArtistLink)))
		out = append(out, r)
	}
	return out
}

// InfoSource crawls each artist's page for the info box and wiki text.
type InfoSource struct {
	fetcher fetch.DocumentFetcher
	baseURL string
	artists *record.Table
	logger  *zap.Logger
}

// NewInfoSource builds an InfoSource over the master artist list.
func NewInfoSource(fetcher fetch.DocumentFetcher, baseURL string, artists *record.Table, logger *zap.Logger) *InfoSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InfoSource{fetcher: fetcher, baseURL: baseOrDefault(baseURL), artists: artists, logger: logger}
}

// Name implements crawl.Source.
func (s *InfoSource) Name() string { return InfoCrawl }

// Columns implements crawl.Source. Info box properties follow as they appear.
func (s *InfoSource) Columns() []string {
	return []string{FieldArtistName, FieldArtistURL, FieldArtistPic, FieldWikiText}
}

// Inputs implements crawl.Source.
func (s *InfoSource) Inputs(context.Context) ([]record.Record, error) {
	return artistInputs(s.artists, s.baseURL), nil
}

// Crawl implements crawl.Source.
func (s *InfoSource) Crawl(ctx context.Context, in record.Record) record.Record {
	page := in.GetString(FieldArtistURL)
	rec := record.New()
	rec.SetString(FieldArtistName, in.GetString(FieldArtistName))
	rec.SetString(FieldArtistURL, page)
	rec.SetString(FieldArtistPic, "")
	rec.SetString(FieldWikiText, "")
	doc, ok := s.fetcher.Fetch(ctx, page)
	if !ok {
		rec.Set(record.SuccessField, record.Bool(false))
		return rec
	}
	rec.SetString(FieldWikiText, ParseWikiText(doc))
	props, pic, found := ParseArtistInfo(doc)
	if !found {
		s.logger.Warn("artist info box missing", zap.String("url", page))
	}
	rec.SetString(FieldArtistPic, pic)
	for _, p := range props {
		if p.Name == record.IndField || p.Name == record.SuccessField {
			continue
		}
		rec.SetString(p.Name, p.Value)
	}
	rec.Set(record.SuccessField, record.Bool(found))
	return rec
}

// WikiTexts projects the info artifact onto the corpus used for
// recommendations.
func WikiTexts(info *record.Table) *record.Table {
	out := record.NewTable(record.IndField, FieldArtistName, FieldWikiText)
	for _, row := range info.Rows() {
		ind, err := row.Ind()
		if err != nil {
			continue
		}
		r := record.WithInd(ind)
		r.SetString(FieldArtistName, row.GetString(FieldArtistName))
		r.SetString(FieldWikiText, row.GetString(FieldWikiText))
		out.Append(r)
	}
	return out
}

// ArtworksSource crawls each artist's works list and resolves up to limit
// artwork image URLs.
type ArtworksSource struct {
	fetcher fetch.DocumentFetcher
	baseURL string
	artists *record.Table
	limit   int
	logger  *zap.Logger
}

// NewArtworksSource builds an ArtworksSource over the master artist list.
func NewArtworksSource(fetcher fetch.DocumentFetcher, baseURL string, artists *record.Table, limit int, logger *zap.Logger) *ArtworksSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArtworksSource{fetcher: fetcher, baseURL: baseOrDefault(baseURL), artists: artists, limit: limit, logger: logger}
}

// Name implements crawl.Source.
func (s *ArtworksSource) Name() string { return ArtworksCrawl }

// Columns implements crawl.Source.
func (s *ArtworksSource) Columns() []string {
	return []string{FieldArtistName, FieldArtworksURL, FieldArtworks}
}

// Inputs implements crawl.Source.
func (s *ArtworksSource) Inputs(context.Context) ([]record.Record, error) {
	return artistInputs(s.artists, s.baseURL), nil
}

// Crawl implements crawl.Source.
func (s *ArtworksSource) Crawl(ctx context.Context, in record.Record) record.Record {
	listURL := strings.TrimSuffix(in.GetString(FieldArtistURL), "/") + "/" + artworksPostfix
	rec := record.New()
	rec.SetString(FieldArtistName, in.GetString(FieldArtistName))
	rec.SetString(FieldArtworksURL, listURL)
	doc, ok := s.fetcher.Fetch(ctx, listURL)
	if !ok {
		rec.Set(FieldArtworks, record.List(nil))
		rec.Set(record.SuccessField, record.Bool(false))
		return rec
	}

	images := []string{}
	reported := false
	for _, link := range ParseArtworkLinks(doc) {
		if s.limit > 0 && len(images) >= s.limit {
			break
		}
		pageURL := Resolve(s.baseURL, link)
		page, ok := s.fetcher.Fetch(ctx, pageURL)
		var img string
		if ok {
			img, ok = ParseArtworkImage(page)
		}
		if !ok {
			if !reported {
				s.logger.Warn("artwork image unavailable", zap.String("list_url", listURL), zap.String("url", pageURL))
				reported = true
			}
			continue
		}
		images = append(images, img)
	}
	if len(images) == 0 {
		s.logger.Warn("empty artwork list", zap.String("url", listURL))
	}
	rec.Set(FieldArtworks, record.List(images))
	rec.Set(record.SuccessField, record.Bool(true))
	return rec
}

func baseOrDefault(base string) string {
	if strings.TrimSpace(base) == "" {
		return DefaultBaseURL
	}
	return base
}
