// Package musicbrainz implements the provider interface against the
// MusicBrainz web service, with album covers resolved through the Cover Art
// Archive. MusicBrainz asks anonymous clients to stay at one request per
// second and to send a descriptive User-Agent.
package musicbrainz

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
	"github.com/sydlexius/scruffy/internal/version"
)

const (
	defaultBaseURL      = "https://musicbrainz.org/ws/2"
	defaultCoverBaseURL = "https://coverartarchive.org"

	// Releases scoring below this are too uncertain to probe for cover art.
	coverScoreThreshold = 80
)

// Adapter implements the provider.Provider interface for MusicBrainz.
type Adapter struct {
	client       *http.Client
	coverClient  *http.Client
	limiter      *provider.RateLimiterMap
	logger       *slog.Logger
	baseURL      string
	coverBaseURL string
}

// New creates a MusicBrainz adapter with the default base URLs.
func New(limiter *provider.RateLimiterMap, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(limiter, logger, defaultBaseURL, defaultCoverBaseURL)
}

// NewWithBaseURL creates a MusicBrainz adapter with custom base URLs (for testing).
func NewWithBaseURL(limiter *provider.RateLimiterMap, logger *slog.Logger, baseURL, coverBaseURL string) *Adapter {
	return &Adapter{
		client: &http.Client{Timeout: 10 * time.Second},
		// The Cover Art Archive answers front-cover probes with a redirect to
		// the image host. The redirect target is the answer, so this client
		// must not follow it.
		coverClient: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		limiter:      limiter,
		logger:       logger.With(slog.String("provider", "musicbrainz")),
		baseURL:      strings.TrimRight(baseURL, "/"),
		coverBaseURL: strings.TrimRight(coverBaseURL, "/"),
	}
}

// Name returns the provider name.
func (a *Adapter) Name() provider.ProviderName { return provider.NameMusicBrainz }

// RequiresAuth returns whether this provider needs an API key.
func (a *Adapter) RequiresAuth() bool { return false }

// SearchArtist searches MusicBrainz for artists matching the given name.
// MusicBrainz hosts no artist images, so results never carry an ImageURL.
func (a *Adapter) SearchArtist(ctx context.Context, name string) ([]provider.ArtistResult, error) {
	params := url.Values{
		"query": {fmt.Sprintf("artist:%q", name)},
		"fmt":   {"json"},
		"limit": {"25"},
	}
	body, err := a.doRequest(ctx, a.baseURL+"/artist?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp artistSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing artist search response: %w", err)
	}

	results := make([]provider.ArtistResult, 0, len(resp.Artists))
	for _, art := range resp.Artists {
		results = append(results, provider.ArtistResult{
			ProviderID: art.ID,
			Name:       art.Name,
			Confidence: art.Score,
		})
	}
	return results, nil
}

// SearchAlbums searches MusicBrainz releases by artist and album name. High
// scoring releases are probed against the Cover Art Archive for a front cover.
func (a *Adapter) SearchAlbums(ctx context.Context, artist, album string) ([]provider.AlbumResult, error) {
	params := url.Values{
		"query": {fmt.Sprintf("release:%q AND artist:%q", album, artist)},
		"fmt":   {"json"},
		"limit": {"25"},
	}
	body, err := a.doRequest(ctx, a.baseURL+"/release?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp releaseSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing release search response: %w", err)
	}

	results := make([]provider.AlbumResult, 0, len(resp.Releases))
	for _, rel := range resp.Releases {
		result := provider.AlbumResult{
			ProviderID:  rel.ID,
			ArtistName:  rel.artistName(),
			Name:        rel.Title,
			ReleaseYear: releaseYear(rel.Date),
			Confidence:  rel.Score,
		}
		if rel.Score >= coverScoreThreshold {
			result.CoverURL = a.frontCoverURL(ctx, rel.ID)
		}
		results = append(results, result)
	}
	return results, nil
}

// frontCoverURL probes the Cover Art Archive for a 500px front cover and
// returns the redirect target, or empty when no cover exists. Probe failures
// are logged and treated as no cover so the release result stays usable.
func (a *Adapter) frontCoverURL(ctx context.Context, releaseID string) string {
	probeURL := a.coverBaseURL + "/release/" + releaseID + "/front-500"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", userAgent())

	resp, err := a.coverClient.Do(req)
	if err != nil {
		a.logger.Debug("cover probe failed",
			slog.String("release", releaseID),
			slog.String("error", err.Error()))
		return ""
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4*1024))

	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return ""
	}
	return resp.Header.Get("Location")
}

func (a *Adapter) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	if err := a.limiter.Wait(ctx, provider.NameMusicBrainz); err != nil {
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameMusicBrainz,
			Cause:    fmt.Errorf("rate limiter: %w", err),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent())
	req.Header.Set("Accept", "application/json")

	a.logger.Debug("requesting", slog.String("url", reqURL))

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameMusicBrainz,
			Cause:    err,
		}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameMusicBrainz,
			Cause:    fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameMusicBrainz,
			Cause:    fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	return io.ReadAll(io.LimitReader(resp.Body, 512*1024))
}

// releaseYear extracts the year from a MusicBrainz date, which may be
// "2006-05-15", "2006-05", or "2006".
func releaseYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	var year int
	if _, err := fmt.Sscanf(date[:4], "%d", &year); err != nil {
		return 0
	}
	return year
}

func userAgent() string {
	return fmt.Sprintf("Scruffy/%s (https://github.com/sydlexius/scruffy)", version.Version)
}
