// Package lastfm implements the provider interface against the Last.fm API.
// An API key is required for every call.
package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sydlexius/scruffy/internal/provider"
)

const defaultBaseURL = "https://ws.audioscrobbler.com/2.0"

// Last.fm serves this star placeholder for entities without real artwork.
const placeholderImageHash = "2a96cbd8b46e442fc41c2b86b821562f"

// Adapter implements the provider.Provider interface for Last.fm.
type Adapter struct {
	client   *http.Client
	limiter  *provider.RateLimiterMap
	settings *provider.SettingsService
	logger   *slog.Logger
	baseURL  string
}

// New creates a Last.fm adapter with the default base URL.
func New(limiter *provider.RateLimiterMap, settings *provider.SettingsService, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(limiter, settings, logger, defaultBaseURL)
}

// NewWithBaseURL creates a Last.fm adapter with a custom base URL (for testing).
func NewWithBaseURL(limiter *provider.RateLimiterMap, settings *provider.SettingsService, logger *slog.Logger, baseURL string) *Adapter {
	return &Adapter{
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  limiter,
		settings: settings,
		logger:   logger.With(slog.String("provider", "lastfm")),
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the provider name.
func (a *Adapter) Name() provider.ProviderName { return provider.NameLastFM }

// RequiresAuth returns whether this provider needs an API key.
func (a *Adapter) RequiresAuth() bool { return true }

// SearchArtist searches Last.fm for artists matching the given name.
func (a *Adapter) SearchArtist(ctx context.Context, name string) ([]provider.ArtistResult, error) {
	apiKey, err := a.getAPIKey(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"method":  {"artist.search"},
		"artist":  {name},
		"api_key": {apiKey},
		"format":  {"json"},
		"limit":   {"25"},
	}
	body, err := a.doRequest(ctx, a.baseURL+"/?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp artistSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing artist search response: %w", err)
	}

	matches := resp.Results.ArtistMatches.Artist
	results := make([]provider.ArtistResult, 0, len(matches))
	for i, art := range matches {
		results = append(results, provider.ArtistResult{
			ProviderID: art.Name,
			Name:       art.Name,
			ImageURL:   bestImage(art.Image),
			Confidence: orderedConfidence(i),
		})
	}
	return results, nil
}

// SearchAlbums looks up a single album with album.getinfo. A hit is an exact
// match, so it carries full confidence; a miss is an empty result set.
func (a *Adapter) SearchAlbums(ctx context.Context, artist, album string) ([]provider.AlbumResult, error) {
	apiKey, err := a.getAPIKey(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"method":  {"album.getinfo"},
		"artist":  {artist},
		"album":   {album},
		"api_key": {apiKey},
		"format":  {"json"},
	}
	body, err := a.doRequest(ctx, a.baseURL+"/?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp albumInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing album info response: %w", err)
	}
	if resp.Album.Name == "" {
		return nil, nil
	}

	return []provider.AlbumResult{{
		ProviderID: resp.Album.Name,
		ArtistName: resp.Album.Artist,
		Name:       resp.Album.Name,
		CoverURL:   bestImage(resp.Album.Image),
		Confidence: 100,
	}}, nil
}

func (a *Adapter) getAPIKey(ctx context.Context) (string, error) {
	apiKey, err := a.settings.GetAPIKey(ctx, provider.NameLastFM)
	if err != nil {
		return "", fmt.Errorf("getting API key: %w", err)
	}
	if apiKey == "" {
		return "", &provider.ErrAuthRequired{Provider: provider.NameLastFM}
	}
	return apiKey, nil
}

func (a *Adapter) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	if err := a.limiter.Wait(ctx, provider.NameLastFM); err != nil {
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameLastFM,
			Cause:    fmt.Errorf("rate limiter: %w", err),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	a.logger.Debug("requesting", slog.String("url", reqURL))

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameLastFM,
			Cause:    err,
		}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrAuthRequired{Provider: provider.NameLastFM}
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameLastFM,
			Cause:    fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	return io.ReadAll(io.LimitReader(resp.Body, 512*1024))
}

// imageSizeRank orders the Last.fm image size ladder.
var imageSizeRank = map[string]int{
	"small":      1,
	"medium":     2,
	"large":      3,
	"extralarge": 4,
	"mega":       5,
}

// bestImage picks the largest usable image, skipping the star placeholder
// Last.fm substitutes when it has no artwork.
func bestImage(images []imageEntry) string {
	best := ""
	bestRank := 0
	for _, img := range images {
		if img.URL == "" || strings.Contains(img.URL, placeholderImageHash) {
			continue
		}
		if rank := imageSizeRank[img.Size]; rank > bestRank {
			best = img.URL
			bestRank = rank
		}
	}
	return best
}

func orderedConfidence(i int) int {
	if i >= 100 {
		return 0
	}
	return 100 - i
}
