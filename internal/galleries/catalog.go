package galleries

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/artharvest/internal/fetch"
	"github.com/JakeFAU/artharvest/internal/record"
)

// ErrListingUnavailable is returned when a listing page cannot be fetched.
var ErrListingUnavailable = errors.New("gallery listing unavailable")

// ListingStore persists a partition's catalog between runs.
// *artifact.Store satisfies it.
type ListingStore interface {
	Exists(logical string) (bool, error)
	Read(logical string) (*record.Table, error)
	Write(logical string, t *record.Table) (string, error)
}

// ListingName is the logical artifact holding a partition's catalog.
func ListingName(partition string) string { return "listing_" + partition + ".csv" }

var listingColumns = []string{
	record.IndField, FieldGalleryName, FieldGalleryLink, FieldExhibitionLink,
	FieldExhibitionName, FieldAddress, FieldOpenHours,
}

// Entry is a listing entry with the ind it keeps for the life of the
// partition.
type Entry struct {
	Listing
	Ind int
}

// Catalog is one listing page, fetched once and shared by the exhibition and
// gallery-image crawls of the same partition.
//
// With a store, every entry ever seen is kept in the persisted catalog under
// the ind it was first given. An entry that reappears keeps that ind and a
// new entry is appended after the highest ind, so a changed listing never
// moves an entry onto an ind another entry already holds. Without a store an
// entry's ind is its position on the page.
type Catalog struct {
	fetcher   fetch.DocumentFetcher
	pageURL   string
	partition string
	store     ListingStore
	logger    *zap.Logger
	entries   []Entry
	loaded    bool
}

// NewCatalog builds a Catalog for one listing URL. store may be nil.
func NewCatalog(fetcher fetch.DocumentFetcher, pageURL, partition string, store ListingStore, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{fetcher: fetcher, pageURL: pageURL, partition: partition, store: store, logger: logger}
}

// Partition returns the partition label.
func (c *Catalog) Partition() string { return c.partition }

// URL returns the listing page URL.
func (c *Catalog) URL() string { return c.pageURL }

// Entries fetches the listing page on first use and returns the entries
// currently on it, in page order, with their persisted inds.
func (c *Catalog) Entries(ctx context.Context) ([]Entry, error) {
	if c.loaded {
		return c.entries, nil
	}
	doc, ok := c.fetcher.Fetch(ctx, c.pageURL)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrListingUnavailable, c.pageURL)
	}
	live := ParseListing(doc)
	if c.store == nil {
		c.entries = make([]Entry, len(live))
		for i, l := range live {
			c.entries[i] = Entry{Listing: l, Ind: i}
		}
		c.loaded = true
		return c.entries, nil
	}

	known, err := c.load()
	if err != nil {
		return nil, err
	}
	entries, added := reconcile(known, live)
	if added > 0 || len(known) == 0 {
		if err := c.save(known, entries); err != nil {
			return nil, err
		}
	}
	c.logger.Info("gallery catalog loaded",
		zap.String("partition", c.partition),
		zap.Int("entries", len(entries)),
		zap.Int("new", added),
		zap.Int("retired", len(known)+added-len(entries)),
	)
	c.entries = entries
	c.loaded = true
	return c.entries, nil
}

func (c *Catalog) load() ([]Entry, error) {
	name := ListingName(c.partition)
	exists, err := c.store.Exists(name)
	if err != nil || !exists {
		return nil, err
	}
	tbl, err := c.store.Read(name)
	if err != nil {
		return nil, fmt.Errorf("read %s catalog: %w", c.partition, err)
	}
	out := make([]Entry, 0, tbl.Len())
	for i, row := range tbl.Rows() {
		ind, err := row.Ind()
		if err != nil {
			return nil, fmt.Errorf("read %s catalog row %d: %w", c.partition, i, err)
		}
		out = append(out, Entry{Ind: ind, Listing: Listing{
			GalleryName:    row.GetString(FieldGalleryName),
			GalleryLink:    row.GetString(FieldGalleryLink),
			ExhibitionLink: row.GetString(FieldExhibitionLink),
			ExhibitionName: row.GetString(FieldExhibitionName),
			Address:        row.GetString(FieldAddress),
			OpenHours:      row.GetString(FieldOpenHours),
		}})
	}
	return out, nil
}

// save writes the known entries followed by any the live page introduced.
func (c *Catalog) save(known, current []Entry) error {
	all := append([]Entry(nil), known...)
	have := make(map[int]struct{}, len(known))
	for _, e := range known {
		have[e.Ind] = struct{}{}
	}
	for _, e := range current {
		if _, ok := have[e.Ind]; !ok {
			all = append(all, e)
		}
	}
	tbl := record.NewTable(listingColumns...)
	for _, e := range all {
		r := record.WithInd(e.Ind)
		r.SetString(FieldGalleryName, e.GalleryName)
		r.SetString(FieldGalleryLink, e.GalleryLink)
		r.SetString(FieldExhibitionLink, e.ExhibitionLink)
		r.SetString(FieldExhibitionName, e.ExhibitionName)
		r.SetString(FieldAddress, e.Address)
		r.SetString(FieldOpenHours, e.OpenHours)
		tbl.Append(r)
	}
	path, err := c.store.Write(ListingName(c.partition), tbl)
	if err != nil {
		return fmt.Errorf("write %s catalog: %w", c.partition, err)
	}
	c.logger.Debug("gallery catalog saved", zap.String("path", path), zap.Int("rows", tbl.Len()))
	return nil
}

// reconcile gives every live entry its known ind, or the next free one when
// it has never been seen. Entries are matched on gallery name and exhibition
// link; repeats of the same pair are told apart by their occurrence count.
func reconcile(known []Entry, live []Listing) ([]Entry, int) {
	byKey := make(map[string]int, len(known))
	next := 0
	occurrences := map[string]int{}
	for _, e := range known {
		byKey[entryKey(e.Listing, occurrences)] = e.Ind
		if e.Ind >= next {
			next = e.Ind + 1
		}
	}
	out := make([]Entry, 0, len(live))
	added := 0
	occurrences = map[string]int{}
	for _, l := range live {
		key := entryKey(l, occurrences)
		ind, ok := byKey[key]
		if !ok {
			ind = next
			next++
			added++
		}
		out = append(out, Entry{Listing: l, Ind: ind})
	}
	return out, added
}

func entryKey(l Listing, occurrences map[string]int) string {
	base := l.GalleryName + "\x00" + l.ExhibitionLink
	n := occurrences[base]
	occurrences[base] = n + 1
	return base + "\x00" + strconv.Itoa(n)
}
