// Package wikiart crawls the wikiart.org artist index, artist pages and
// artwork pages.
package wikiart

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Artist is one entry of an alphabet index page.
type Artist struct {
	Name string
	Link string
}

// Property is one labelled row of an artist's info box.
type Property struct {
	Name  string
	Value string
}

// ParseAlphabetPage lists the artists on an alphabet text-list page.
func ParseAlphabetPage(doc *goquery.Document) []Artist {
	var out []Artist
	doc.Find("div.masonry-text-view.masonry-text-view-all li").Each(func(_ int, li *goquery.Selection) {
		a := li.Find("a").First()
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		out = append(out, Artist{Name: strings.TrimSpace(a.Text()), Link: strings.TrimSpace(href)})
	})
	return out
}

// ParseArtistInfo extracts the info box properties and the portrait URL.
// It reports false when the page has no info box.
func ParseArtistInfo(doc *goquery.Document) ([]Property, string, bool) {
	box := doc.Find("div.wiki-layout-artist-info").First()
	if box.Length() == 0 {
		return nil, "", false
	}
	var props []Property
	box.Find("li").Each(func(_ int, li *goquery.Selection) {
		label := li.Find("s").First()
		if label.Length() == 0 {
			return
		}
		name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(label.Text())), ":", "")
		if name == "" || name == "share" {
			return
		}
		var values []string
		seen := map[string]struct{}{}
		li.Find("span, a").Each(func(_ int, v *goquery.Selection) {
			text := strings.ReplaceAll(strings.TrimSpace(v.Text()), "\n", " ")
			if _, dup := seen[text]; dup {
				return
			}
			seen[text] = struct{}{}
			values = append(values, text)
		})
		props = append(props, Property{Name: name, Value: strings.Join(values, " ")})
	})
	pic, _ := doc.Find("div.wiki-layout-artist-image-wrapper img").First().Attr("src")
	return props, pic, true
}

// ParseWikiText returns the Wikipedia article tab text, or "".
func ParseWikiText(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("#info-tab-wikipediaArticle").First().Text())
}

// ParseArtworkLinks lists artwork page links from an all-works text list.
func ParseArtworkLinks(doc *goquery.Document) []string {
	var out []string
	doc.Find("ul.painting-list-text li").Each(func(_ int, li *goquery.Selection) {
		if href, ok := li.Find("a").First().Attr("href"); ok && href != "" {
			out = append(out, href)
		}
	})
	return out
}

// ParseArtworkImage returns the main image URL of an artwork page.
func ParseArtworkImage(doc *goquery.Document) (string, bool) {
	src, ok := doc.Find("div.wiki-layout-artist-image-wrapper img").First().Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return "", false
	}
	return strings.TrimSpace(src), true
}

// Resolve joins a site-relative link onto base.
func Resolve(base, link string) string {
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
