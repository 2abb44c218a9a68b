package scaruffi

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sydlexius/scruffy/internal/catalog"
)

// NewRatingsPath is the page listing recently reviewed albums.
const NewRatingsPath = "cdreview/new.html"

// YearRatingsPath returns the ratings page path for a given year.
func YearRatingsPath(year int) string {
	return fmt.Sprintf("cdreview/%d.html", year)
}

// RatingsPage holds the artists and album rows found on an aggregated
// ratings page.
type RatingsPage struct {
	// Artists maps site-relative artist URL to name for every artist
	// linked from the page.
	Artists map[string]string
	Albums  []catalog.AlbumRow
}

// ParseRatingsPage extracts album rows from a ratings page (new.html or a
// yearly page). Each table row links an artist and names an album with its
// rating; rows that don't fit the shape are skipped. year applies to every
// album on a yearly page and is 0 for new.html, where release years are
// unknown.
func ParseRatingsPage(r io.Reader, pagePath string, year int) (*RatingsPage, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing ratings page %s: %w", pagePath, err)
	}

	page := &RatingsPage{Artists: make(map[string]string)}

	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		anchor := row.Find("a[href]").First()
		if anchor.Length() == 0 {
			return
		}
		href, _ := anchor.Attr("href")
		artistURL := normalizeArtistURL(href, pagePath)
		if artistURL == "" {
			return
		}

		artistName := strings.TrimSpace(anchor.Text())
		if artistName != "" {
			page.Artists[artistURL] = artistName
		}

		rowText := row.Text()
		ratingMatch := ratingPattern.FindStringSubmatch(rowText)
		if ratingMatch == nil {
			return
		}
		rating := parseRating(ratingMatch[1])
		if rating == 0 {
			return
		}

		albumName := albumNameFromRow(row, anchor)
		if albumName == "" {
			return
		}

		page.Albums = append(page.Albums, catalog.AlbumRow{
			ArtistURL:  artistURL,
			ArtistName: artistName,
			Name:       albumName,
			Year:       year,
			Rating:     rating,
		})
	})

	return page, nil
}

// albumNameFromRow takes the first cell's text after the artist anchor,
// stripping the "Artist: Album" separator.
func albumNameFromRow(row, anchor *goquery.Selection) string {
	cell := row.Find("td").First()
	if cell.Length() == 0 {
		return ""
	}

	text := collapseSpace(cell.Text())
	name := text
	if artist := collapseSpace(anchor.Text()); artist != "" {
		if idx := strings.Index(text, artist); idx >= 0 {
			name = text[idx+len(artist):]
		}
	}
	name = strings.TrimLeft(name, ": -")

	// Drop a trailing "(label, year)" group or rating
	if m := ratingPattern.FindStringIndex(name); m != nil {
		name = name[:m[0]]
	}
	if open := strings.LastIndex(name, "("); open > 0 && strings.Contains(name[open:], ")") {
		name = name[:open]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(name), ","))
}

func parseRating(s string) float64 {
	var rating float64
	if _, err := fmt.Sscanf(s, "%f", &rating); err != nil {
		return 0
	}
	if rating > 10 {
		return 0
	}
	return rating
}
