// Package galleries crawls galleriesnow.net listing pages: the exhibitions
// they advertise and the image carousel of each gallery.
package galleries

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// descriptionMinLen is the paragraph length below which text is treated as
// boilerplate rather than an exhibition description.
const descriptionMinLen = 150

var styleURL = regexp.MustCompile(`url\('(\S+)'\)`)

// Listing is one entry of a gallery listing page.
type Listing struct {
	GalleryName    string
	GalleryLink    string
	ExhibitionLink string
	ExhibitionName string
	Address        string
	OpenHours      string
}

// ExhibitionDetails is what an exhibition page adds to its listing.
type ExhibitionDetails struct {
	ArtistName  string
	ArtistLink  string
	Description string
}

// ParseListing reads every gallery entry of a listing page in order.
func ParseListing(doc *goquery.Document) []Listing {
	var out []Listing
	doc.Find("ul.contentul li[data-gallery-name]").Each(func(_ int, li *goquery.Selection) {
		name, _ := li.Attr("data-gallery-name")
		entry := Listing{GalleryName: strings.TrimSpace(name)}
		entry.GalleryLink, _ = li.Find(".panel-heading a").First().Attr("href")

		body := li.Find("div.panel-body").First()
		entry.ExhibitionLink, _ = body.Find("a").First().Attr("href")
		block := body.Find("div.extb-1").First()
		if block.Length() > 0 {
			entry.ExhibitionName = strings.TrimSpace(block.Find("a").First().Text())
			entry.Address = strings.TrimSpace(block.Find("div.space_address").First().Text())
			entry.OpenHours = strings.TrimSpace(block.Find("div.d-block").First().Text())
		}
		out = append(out, entry)
	})
	return out
}

// ParseExhibition extracts the artist credit and long-form description of an
// exhibition page. Relative artist links resolve against pageURL.
func ParseExhibition(doc *goquery.Document, pageURL string) ExhibitionDetails {
	var out ExhibitionDetails
	doc.Find("div.col-md-8 p").Each(func(_ int, p *goquery.Selection) {
		if !strings.Contains(p.Text(), "Artist") {
			return
		}
		a := p.Find("a").First()
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		out.ArtistName = strings.TrimSpace(a.Text())
		out.ArtistLink = resolve(pageURL, href)
	})

	var parts []string
	doc.Find("div.row").Each(func(_ int, row *goquery.Selection) {
		text := row.Find("p").First().Text()
		if len(text) <= descriptionMinLen {
			return
		}
		var lines []string
		for _, line := range strings.Split(text, "\n") {
			if line != "" {
				lines = append(lines, line)
			}
		}
		parts = append(parts, strings.Join(lines, ""))
	})
	out.Description = strings.Join(parts, " ")
	return out
}

// ParseGalleryImages returns the carousel image URLs of a gallery page.
func ParseGalleryImages(doc *goquery.Document) []string {
	var out []string
	doc.Find(".slick-image-slide").Each(func(_ int, slide *goquery.Selection) {
		style, ok := slide.Find(".ex_fullimg").First().Attr("style")
		if !ok {
			return
		}
		if m := styleURL.FindStringSubmatch(style); m != nil {
			out = append(out, m[1])
		}
	})
	return out
}

func resolve(base, link string) string {
	b, err := url.Parse(base)
	if err != nil {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	return b.ResolveReference(ref).String()
}
