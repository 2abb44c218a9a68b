package scaruffi

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/sydlexius/scruffy/internal/catalog"
)

var (
	ratingPattern = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)/10`)
	yearPattern   = regexp.MustCompile(`([0-9]{4})\)`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

// ParseArtistPage extracts an artist's name, biography, rated albums, and
// related artists from an artist page. pageURL must be the site-relative
// path of the page; non-artist paths return nil with no error, matching the
// site's habit of linking stray pages from its indexes.
func ParseArtistPage(r io.Reader, pageURL string) (*catalog.Artist, error) {
	pageURL = strings.TrimPrefix(pageURL, "/")
	if !artistURLPattern.MatchString(pageURL) {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing artist page %s: %w", pageURL, err)
	}

	return &catalog.Artist{
		URL:            pageURL,
		Name:           parseName(doc),
		Bio:            parseBio(doc),
		Albums:         parseAlbums(doc),
		RelatedArtists: parseRelatedArtists(doc, pageURL),
	}, nil
}

func parseName(doc *goquery.Document) string {
	if h := doc.Find("center h1"); h.Length() > 0 {
		return strings.TrimSpace(h.Text())
	}
	return strings.TrimSpace(doc.Find("center font").First().Text())
}

// parseBio walks the biography table's cells. English pages alternate with
// translations cell by cell, so only every other cell is read. <br> becomes
// a newline and <p> a paragraph break.
func parseBio(doc *goquery.Document) string {
	if doc.Find("table").Length() <= 1 {
		return ""
	}

	var b strings.Builder
	cells := doc.Find("table:nth-of-type(2) [bgcolor]")
	for k := 0; k < cells.Length(); k += 2 {
		cell := cells.Eq(k)
		for node := cell.Get(0).FirstChild; node != nil; node = node.NextSibling {
			switch {
			case node.Type == html.ElementNode && node.Data == "br":
				b.WriteString("\n")
			case node.Type == html.ElementNode && node.Data == "p":
				b.WriteString("\n\n\n")
				b.WriteString(collapseSpace(nodeText(node)))
			default:
				b.WriteString(" ")
				b.WriteString(collapseSpace(nodeText(node)))
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// parseAlbums scans the discography cell for lines of the form
// "Album Name (Label, 1969), 9/10" and extracts name, year, and rating.
func parseAlbums(doc *goquery.Document) []catalog.Album {
	if doc.Find("table").Length() == 0 {
		return nil
	}

	text := doc.Find("table").First().Find("td").First().Text()

	var albums []catalog.Album
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		ratingMatch := ratingPattern.FindStringSubmatch(line)
		if ratingMatch == nil {
			continue
		}
		rating, err := strconv.ParseFloat(ratingMatch[1], 64)
		if err != nil || rating > 10 {
			continue
		}

		name := albumName(line)
		if name == "" {
			continue
		}

		album := catalog.Album{
			Name:              name,
			Rating:            rating,
			RatedOnArtistPage: true,
		}
		if ym := yearPattern.FindStringSubmatch(line); ym != nil {
			album.Year, _ = strconv.Atoi(ym[1])
		}
		albums = append(albums, album)
	}
	return albums
}

// albumName takes the text before the parenthesized label/year group, or
// before the first comma when there is no such group.
func albumName(line string) string {
	if open := strings.Index(line, "("); open > 0 && strings.Contains(line[open:], ")") {
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line[:open]), ","))
	}
	if comma := strings.Index(line, ","); comma > 0 {
		return strings.TrimSpace(line[:comma])
	}
	return ""
}

func parseRelatedArtists(doc *goquery.Document, pageURL string) []string {
	if doc.Find("table").Length() <= 1 {
		return nil
	}

	seen := make(map[string]bool)
	var related []string
	doc.Find("table [bgcolor] a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		path := normalizeArtistURL(href, pageURL)
		if path == "" || path == pageURL || seen[path] {
			return
		}
		seen[path] = true
		related = append(related, path)
	})
	return related
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
	}
	return b.String()
}

func collapseSpace(s string) string {
	return spacePattern.ReplaceAllString(strings.TrimSpace(s), " ")
}
