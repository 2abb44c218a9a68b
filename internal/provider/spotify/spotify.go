// Package spotify implements the provider interface against the Spotify Web
// API. By default it uses the anonymous web-player token, so no credentials
// are needed; when a client ID and secret are configured, it switches to the
// client-credentials OAuth flow.
package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/sydlexius/scruffy/internal/provider"
)

const (
	defaultAPIBaseURL      = "https://api.spotify.com/v1"
	defaultWebBaseURL      = "https://open.spotify.com"
	defaultAccountsBaseURL = "https://accounts.spotify.com"

	// Tokens are refreshed slightly before their advertised expiry.
	tokenExpirySlack = 30 * time.Second
)

// Adapter implements the provider.Provider interface for Spotify.
type Adapter struct {
	client          *http.Client
	limiter         *provider.RateLimiterMap
	settings        *provider.SettingsService
	logger          *slog.Logger
	apiBaseURL      string
	webBaseURL      string
	accountsBaseURL string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// New creates a Spotify adapter with the default base URLs.
func New(limiter *provider.RateLimiterMap, settings *provider.SettingsService, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(limiter, settings, logger, defaultAPIBaseURL, defaultWebBaseURL, defaultAccountsBaseURL)
}

// NewWithBaseURL creates a Spotify adapter with custom base URLs (for testing).
func NewWithBaseURL(limiter *provider.RateLimiterMap, settings *provider.SettingsService, logger *slog.Logger, apiBaseURL, webBaseURL, accountsBaseURL string) *Adapter {
	return &Adapter{
		client:          &http.Client{Timeout: 10 * time.Second},
		limiter:         limiter,
		settings:        settings,
		logger:          logger.With(slog.String("provider", "spotify")),
		apiBaseURL:      strings.TrimRight(apiBaseURL, "/"),
		webBaseURL:      strings.TrimRight(webBaseURL, "/"),
		accountsBaseURL: strings.TrimRight(accountsBaseURL, "/"),
	}
}

// Name returns the provider name.
func (a *Adapter) Name() provider.ProviderName { return provider.NameSpotify }

// RequiresAuth returns whether this provider needs an API key.
func (a *Adapter) RequiresAuth() bool { return false }

// SearchArtist searches Spotify for artists matching the given name.
func (a *Adapter) SearchArtist(ctx context.Context, name string) ([]provider.ArtistResult, error) {
	body, err := a.search(ctx, "artist", name)
	if err != nil {
		return nil, err
	}

	var resp artistSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing artist search response: %w", err)
	}

	merged := mergeEntries(resp.BestMatch.Items, resp.Artists.Items,
		func(e artistEntry) string { return e.ID })

	results := make([]provider.ArtistResult, 0, len(merged))
	for i, art := range merged {
		results = append(results, provider.ArtistResult{
			ProviderID: art.ID,
			Name:       art.Name,
			ImageURL:   biggestImage(art.Images),
			Confidence: orderedConfidence(i),
		})
	}
	return results, nil
}

// SearchAlbums searches Spotify for albums by artist and album name.
func (a *Adapter) SearchAlbums(ctx context.Context, artist, album string) ([]provider.AlbumResult, error) {
	body, err := a.search(ctx, "album", fmt.Sprintf("%s %s", artist, album))
	if err != nil {
		return nil, err
	}

	var resp albumSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing album search response: %w", err)
	}

	merged := mergeEntries(resp.BestMatch.Items, resp.Albums.Items,
		func(e albumEntry) string { return e.ID })

	results := make([]provider.AlbumResult, 0, len(merged))
	for i, al := range merged {
		results = append(results, provider.AlbumResult{
			ProviderID:  al.ID,
			ArtistName:  al.artistName(),
			Name:        al.Name,
			CoverURL:    biggestImage(al.Images),
			ReleaseYear: releaseYear(al.ReleaseDate),
			Confidence:  orderedConfidence(i),
		})
	}
	return results, nil
}

// search issues an authenticated search request. best_match asks the API for
// its own top pick ahead of the general result list.
func (a *Adapter) search(ctx context.Context, kind, query string) ([]byte, error) {
	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"type":                  {kind},
		"q":                     {query},
		"decorate_restrictions": {"false"},
		"best_match":            {"true"},
		"include_external":      {"audio"},
		"limit":                 {"25"},
	}
	return a.doRequest(ctx, a.apiBaseURL+"/search?"+params.Encode(), token)
}

// accessToken returns a cached token, refreshing it when close to expiry.
// Configured client credentials take precedence over the anonymous token.
func (a *Adapter) accessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && time.Now().Before(a.tokenExpiry.Add(-tokenExpirySlack)) {
		return a.token, nil
	}

	clientID, err := a.settings.GetAPIKey(ctx, provider.NameSpotify)
	if err != nil {
		return "", fmt.Errorf("getting client ID: %w", err)
	}
	clientSecret, err := a.settings.GetAPISecret(ctx, provider.NameSpotify)
	if err != nil {
		return "", fmt.Errorf("getting client secret: %w", err)
	}

	if clientID != "" && clientSecret != "" {
		return a.clientCredentialsToken(ctx, clientID, clientSecret)
	}
	return a.anonymousToken(ctx)
}

// clientCredentialsToken fetches a token through the standard OAuth
// client-credentials flow.
func (a *Adapter) clientCredentialsToken(ctx context.Context, clientID, clientSecret string) (string, error) {
	conf := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     a.accountsBaseURL + "/api/token",
	}
	tok, err := conf.Token(ctx)
	if err != nil {
		return "", &provider.ErrProviderUnavailable{
			Provider: provider.NameSpotify,
			Cause:    fmt.Errorf("client credentials token: %w", err),
		}
	}
	a.token = tok.AccessToken
	a.tokenExpiry = tok.Expiry
	a.logger.Debug("obtained client-credentials token")
	return a.token, nil
}

// anonymousToken fetches the short-lived token the Spotify web player uses.
func (a *Adapter) anonymousToken(ctx context.Context) (string, error) {
	reqURL := a.webBaseURL + "/get_access_token?reason=transport&productType=web_player"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", &provider.ErrProviderUnavailable{
			Provider: provider.NameSpotify,
			Cause:    fmt.Errorf("anonymous token: %w", err),
		}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", &provider.ErrProviderUnavailable{
			Provider: provider.NameSpotify,
			Cause:    fmt.Errorf("anonymous token: HTTP %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("reading token response: %w", err)
	}
	var tok anonymousTokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("parsing token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", &provider.ErrProviderUnavailable{
			Provider: provider.NameSpotify,
			Cause:    fmt.Errorf("anonymous token response carried no token"),
		}
	}

	a.token = tok.AccessToken
	a.tokenExpiry = time.UnixMilli(tok.ExpirationTimestampMs)
	a.logger.Debug("obtained anonymous web token")
	return a.token, nil
}

func (a *Adapter) doRequest(ctx context.Context, reqURL, token string) ([]byte, error) {
	if err := a.limiter.Wait(ctx, provider.NameSpotify); err != nil {
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameSpotify,
			Cause:    fmt.Errorf("rate limiter: %w", err),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	a.logger.Debug("requesting", slog.String("url", reqURL))

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameSpotify,
			Cause:    err,
		}
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		// Token expired under us; drop it so the next call refreshes
		a.mu.Lock()
		a.token = ""
		a.mu.Unlock()
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameSpotify,
			Cause:    fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	case resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrProviderUnavailable{
			Provider:   provider.NameSpotify,
			Cause:      fmt.Errorf("HTTP %d", resp.StatusCode),
			RetryAfter: retryAfter(resp),
		}
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameSpotify,
			Cause:    fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	return io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
}

// mergeEntries puts the best-match items first and appends the general items,
// dropping duplicates by ID.
func mergeEntries[T any](best, general []T, id func(T) string) []T {
	seen := make(map[string]bool, len(best))
	merged := make([]T, 0, len(best)+len(general))
	for _, e := range best {
		if key := id(e); key != "" && !seen[key] {
			merged = append(merged, e)
			seen[key] = true
		}
	}
	for _, e := range general {
		if key := id(e); key != "" && !seen[key] {
			merged = append(merged, e)
			seen[key] = true
		}
	}
	return merged
}

// biggestImage picks the image with the largest area.
func biggestImage(images []imageEntry) string {
	best := ""
	bestArea := 0
	for _, img := range images {
		if area := img.Width * img.Height; img.URL != "" && area > bestArea {
			best = img.URL
			bestArea = area
		}
	}
	return best
}

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

func orderedConfidence(i int) int {
	if i >= 100 {
		return 0
	}
	return 100 - i
}

func retryAfter(resp *http.Response) time.Duration {
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := time.ParseDuration(s + "s"); err == nil {
			return secs
		}
	}
	return 0
}
