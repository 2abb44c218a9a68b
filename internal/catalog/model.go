package catalog

import "time"

// Page is a crawled page's ledger entry. Hash is the MD5 of the last body
// seen; CheckedAt advances on every fetch even when the body is unchanged.
type Page struct {
	URL          string    `json:"url"`
	Hash         string    `json:"hash"`
	LastModified time.Time `json:"last_modified"`
	CheckedAt    time.Time `json:"checked_at"`
}

// Album is a rated album. Year 0 and Rating 0 mean unknown; unknown values
// never replace stored ones.
type Album struct {
	Name     string  `json:"name"`
	Year     int     `json:"year,omitempty"`
	Rating   float64 `json:"rating,omitempty"`
	CoverURL string  `json:"cover_url,omitempty"`
	// RatedOnArtistPage marks the rating as coming from the artist's own
	// page, which takes precedence over the aggregated ratings pages.
	RatedOnArtistPage bool `json:"-"`
}

// Artist is a crawled artist keyed by its site-relative page URL.
type Artist struct {
	URL            string   `json:"url"`
	Name           string   `json:"name"`
	Bio            string   `json:"bio,omitempty"`
	ImageURL       string   `json:"image_url,omitempty"`
	RelatedArtists []string `json:"related_artists,omitempty"`
	Albums         []Album  `json:"albums,omitempty"`
}

// AlbumRow is one entry parsed from an aggregated ratings page. The artist
// may not have been crawled yet; a stub row is created for it on save.
type AlbumRow struct {
	ArtistURL  string  `json:"artist_url"`
	ArtistName string  `json:"artist_name"`
	Name       string  `json:"name"`
	Year       int     `json:"year,omitempty"`
	Rating     float64 `json:"rating,omitempty"`
	CoverURL   string  `json:"cover_url,omitempty"`
}

// Counts summarizes stored row totals.
type Counts struct {
	Artists int `json:"artists"`
	Albums  int `json:"albums"`
	Pages   int `json:"pages"`
}
