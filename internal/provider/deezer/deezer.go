// Package deezer implements the provider interface against the public
// Deezer search API. No authentication is required.
package deezer

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

const defaultBaseURL = "https://api.deezer.com"

// Adapter implements the provider.Provider interface for Deezer.
type Adapter struct {
	client  *http.Client
	limiter *provider.RateLimiterMap
	logger  *slog.Logger
	baseURL string
}

// New creates a Deezer adapter with the default base URL.
func New(limiter *provider.RateLimiterMap, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(limiter, logger, defaultBaseURL)
}

// NewWithBaseURL creates a Deezer adapter with a custom base URL (for testing).
func NewWithBaseURL(limiter *provider.RateLimiterMap, logger *slog.Logger, baseURL string) *Adapter {
	return &Adapter{
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: limiter,
		logger:  logger.With(slog.String("provider", "deezer")),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the provider name.
func (a *Adapter) Name() provider.ProviderName { return provider.NameDeezer }

// RequiresAuth returns whether this provider needs an API key.
func (a *Adapter) RequiresAuth() bool { return false }

// SearchArtist searches Deezer for artists matching the given name.
func (a *Adapter) SearchArtist(ctx context.Context, name string) ([]provider.ArtistResult, error) {
	params := url.Values{
		"q": {fmt.Sprintf("artist:%q", name)},
	}
	body, err := a.doRequest(ctx, a.baseURL+"/search/artist?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp artistSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing artist search response: %w", err)
	}

	results := make([]provider.ArtistResult, 0, len(resp.Data))
	for i, art := range resp.Data {
		results = append(results, provider.ArtistResult{
			ProviderID: fmt.Sprintf("%d", art.ID),
			Name:       art.Name,
			ImageURL:   art.PictureXL,
			Confidence: orderedConfidence(i),
		})
	}
	return results, nil
}

// SearchAlbums searches Deezer for albums by artist and album name. The
// search API does not expose release dates, so ReleaseYear stays zero.
func (a *Adapter) SearchAlbums(ctx context.Context, artist, album string) ([]provider.AlbumResult, error) {
	params := url.Values{
		"q": {fmt.Sprintf("artist:%q album:%q", artist, album)},
	}
	body, err := a.doRequest(ctx, a.baseURL+"/search/album?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp albumSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing album search response: %w", err)
	}

	results := make([]provider.AlbumResult, 0, len(resp.Data))
	for i, al := range resp.Data {
		results = append(results, provider.AlbumResult{
			ProviderID: fmt.Sprintf("%d", al.ID),
			ArtistName: al.Artist.Name,
			Name:       al.Title,
			CoverURL:   al.CoverXL,
			Confidence: orderedConfidence(i),
		})
	}
	return results, nil
}

// orderedConfidence scores results by their position in the response, since
// Deezer returns matches ranked but unscored.
func orderedConfidence(i int) int {
	if i >= 100 {
		return 0
	}
	return 100 - i
}

func (a *Adapter) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	if err := a.limiter.Wait(ctx, provider.NameDeezer); err != nil {
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameDeezer,
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
			Provider: provider.NameDeezer,
			Cause:    err,
		}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrProviderUnavailable{
			Provider:   provider.NameDeezer,
			Cause:      fmt.Errorf("HTTP %d", resp.StatusCode),
			RetryAfter: retryAfter(resp),
		}
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameDeezer,
			Cause:    fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	return io.ReadAll(io.LimitReader(resp.Body, 512*1024))
}

func retryAfter(resp *http.Response) time.Duration {
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := time.ParseDuration(s + "s"); err == nil {
			return secs
		}
	}
	return 0
}
