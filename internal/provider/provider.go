// Package provider defines the metadata provider abstraction used to enrich
// crawled artists and albums with images and release years.
package provider

import (
	"context"
	"fmt"
	"time"
)

// ProviderName uniquely identifies a metadata provider.
type ProviderName string

// Known provider names.
const (
	NameSpotify     ProviderName = "spotify"
	NameDeezer      ProviderName = "deezer"
	NameMusicBrainz ProviderName = "musicbrainz"
	NameLastFM      ProviderName = "lastfm"
)

// AllProviderNames returns all known provider names in default priority order.
func AllProviderNames() []ProviderName {
	return []ProviderName{
		NameSpotify,
		NameDeezer,
		NameMusicBrainz,
		NameLastFM,
	}
}

// DisplayName returns a human-readable name for the provider.
func (n ProviderName) DisplayName() string {
	switch n {
	case NameSpotify:
		return "Spotify"
	case NameDeezer:
		return "Deezer"
	case NameMusicBrainz:
		return "MusicBrainz"
	case NameLastFM:
		return "Last.fm"
	default:
		return string(n)
	}
}

// ArtistResult is a single artist search hit from a provider. Confidence
// ranks candidates within one provider's response only; values are never
// comparable across providers.
type ArtistResult struct {
	ProviderID string `json:"provider_id"`
	Name       string `json:"name"`
	ImageURL   string `json:"image_url,omitempty"`
	Confidence int    `json:"confidence"`
}

// AlbumResult is a single album search hit from a provider.
type AlbumResult struct {
	ProviderID  string `json:"provider_id"`
	ArtistName  string `json:"artist_name"`
	Name        string `json:"name"`
	CoverURL    string `json:"cover_url,omitempty"`
	ReleaseYear int    `json:"release_year,omitempty"`
	Confidence  int    `json:"confidence"`
}

// Provider is the interface all metadata source adapters implement. Results
// are ordered best match first.
type Provider interface {
	// Name returns the unique provider identifier.
	Name() ProviderName

	// RequiresAuth returns true if this provider needs an API key to function.
	RequiresAuth() bool

	// SearchArtist searches the provider by artist name.
	SearchArtist(ctx context.Context, name string) ([]ArtistResult, error)

	// SearchAlbums searches the provider by artist and album name.
	SearchAlbums(ctx context.Context, artist, album string) ([]AlbumResult, error)
}

// ErrProviderUnavailable indicates a transient failure (rate-limited,
// timeout, server error).
type ErrProviderUnavailable struct {
	Provider   ProviderName
	Cause      error
	RetryAfter time.Duration
}

func (e *ErrProviderUnavailable) Error() string {
	return fmt.Sprintf("provider %s unavailable: %v", e.Provider, e.Cause)
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Cause }

// ErrNotFound indicates the provider has no data for the query.
type ErrNotFound struct {
	Provider ProviderName
	Query    string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("provider %s: no results for %q", e.Provider, e.Query)
}

// ErrAuthRequired indicates the provider needs an API key but none is configured.
type ErrAuthRequired struct {
	Provider ProviderName
}

func (e *ErrAuthRequired) Error() string {
	return fmt.Sprintf("provider %s: API key not configured", e.Provider)
}
