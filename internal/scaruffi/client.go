// Package scaruffi fetches and parses pages from scaruffi.com. Parsers are
// pure functions over HTML; the client owns rate limiting and retries.
package scaruffi

import (
	"context"
	"crypto/md5" //nolint:gosec // content change detection, not security
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	maxFetchAttempts = 10
	maxBackoff       = 60 * time.Second
	maxBodySize      = 4 << 20
)

// ErrPageNotFound indicates the site returned 404 for a page. It is terminal:
// the page has no data and the fetch is not retried.
type ErrPageNotFound struct {
	URL string
}

func (e *ErrPageNotFound) Error() string {
	return fmt.Sprintf("page not found: %s", e.URL)
}

// Page is a fetched page body with its content hash.
type Page struct {
	URL          string
	Body         []byte
	Hash         string
	LastModified time.Time
}

// Client fetches pages from the site with rate limiting and retry backoff.
type Client struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	baseURL string
	backoff time.Duration
}

// NewClient creates a site client. backoffBase is the first retry delay;
// subsequent delays grow by half again each attempt, capped at a minute.
func NewClient(baseURL string, reqsPerSec float64, timeout, backoffBase time.Duration, logger *slog.Logger) *Client {
	return &Client{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(reqsPerSec), 1),
		logger:  logger.With(slog.String("component", "site-client")),
		baseURL: strings.TrimRight(baseURL, "/"),
		backoff: backoffBase,
	}
}

// FetchPage fetches a site-relative page path, retrying transient failures.
// A 404 returns *ErrPageNotFound immediately with no retries.
func (c *Client) FetchPage(ctx context.Context, path string) (*Page, error) {
	var lastErr error
	delay := c.backoff

	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying page fetch",
				slog.String("path", path),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay = time.Duration(float64(delay) * 1.5)
			if delay > maxBackoff {
				delay = maxBackoff
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		page, err := c.fetchOnce(ctx, path)
		if err == nil {
			return page, nil
		}

		var notFound *ErrPageNotFound
		if errors.As(err, &notFound) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}

	return nil, fmt.Errorf("fetching %s: giving up after %d attempts: %w",
		path, maxFetchAttempts, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, path string) (*Page, error) {
	reqURL := c.baseURL + "/" + strings.TrimPrefix(path, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "Scruffy/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", reqURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &ErrPageNotFound{URL: path}
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("requesting %s: HTTP %d", reqURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", reqURL, err)
	}

	sum := md5.Sum(body) //nolint:gosec

	lastModified := time.Now().UTC()
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			lastModified = t
		}
	}

	return &Page{
		URL:          strings.TrimPrefix(path, "/"),
		Body:         body,
		Hash:         hex.EncodeToString(sum[:]),
		LastModified: lastModified,
	}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
