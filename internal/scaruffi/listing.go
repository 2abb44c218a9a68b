package scaruffi

import (
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// artistURLPattern matches site-relative artist page paths.
var artistURLPattern = regexp.MustCompile(`(avant|jazz|vol).*\.html$`)

// siteBase anchors relative href resolution. Parsers are pure; the hostname
// only serves to detect and reject off-site links.
const siteBase = "https://scaruffi.com/"

// RockListingPath is the index of every reviewed rock artist.
const RockListingPath = "music/groups.html"

// JazzListingPath is the index of every reviewed jazz musician.
const JazzListingPath = "jazz/musician.html"

// VolumeListingPath returns the index path for volumes 1 through 8.
func VolumeListingPath(vol int) string {
	return fmt.Sprintf("vol%d/", vol)
}

// ParseRockListing extracts artists from the rock index page. The third
// table on the page holds the artist anchors. Returns a map of
// site-relative artist URL to artist name.
func ParseRockListing(r io.Reader) (map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing rock listing: %w", err)
	}
	return collectArtistAnchors(doc.Find("table:nth-of-type(3) a"), RockListingPath), nil
}

// ParseJazzListing extracts artists from the jazz index page, whose artist
// anchors live under the fixed-width content cell.
func ParseJazzListing(r io.Reader) (map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing jazz listing: %w", err)
	}
	return collectArtistAnchors(doc.Find(`[width="400"] a`), JazzListingPath), nil
}

// ParseVolumeListing extracts artists from a volume index page. Volume pages
// use select dropdowns; each option's value is the artist path and its text
// the name. The first option of each select is a placeholder.
func ParseVolumeListing(vol int, r io.Reader) (map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing volume %d listing: %w", vol, err)
	}

	base := VolumeListingPath(vol)
	artists := make(map[string]string)
	doc.Find("select").Each(func(_ int, sel *goquery.Selection) {
		opts := sel.Children().Filter("option")
		if opts.Length() < 2 {
			return
		}
		// The first option is the "select an artist" placeholder
		opts.Slice(1, goquery.ToEnd).Each(func(_ int, opt *goquery.Selection) {
			href, ok := opt.Attr("value")
			if !ok {
				return
			}
			path := normalizeArtistURL(href, base)
			if path == "" {
				return
			}
			if name := strings.TrimSpace(opt.Text()); name != "" {
				artists[path] = name
			}
		})
	})
	return artists, nil
}

func collectArtistAnchors(sel *goquery.Selection, basePath string) map[string]string {
	artists := make(map[string]string)
	sel.Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		path := normalizeArtistURL(href, basePath)
		if path == "" {
			return
		}
		if name := strings.TrimSpace(a.Text()); name != "" {
			artists[path] = name
		}
	})
	return artists
}

// normalizeArtistURL resolves href against the page it appeared on and
// returns the site-relative artist path, or "" when the href is off-site or
// not an artist page.
func normalizeArtistURL(href, basePath string) string {
	base, err := url.Parse(siteBase + strings.TrimPrefix(basePath, "/"))
	if err != nil {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Host != base.Host {
		return ""
	}
	path := strings.TrimPrefix(resolved.Path, "/")
	if !artistURLPattern.MatchString(path) {
		return ""
	}
	return path
}
