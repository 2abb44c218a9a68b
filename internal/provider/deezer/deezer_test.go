package deezer

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/sydlexius/scruffy/internal/provider"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("loading fixture %s: %v", name, err)
	}
	return data
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/search/artist":
			q := r.URL.Query().Get("q")
			if strings.Contains(q, "no-results") {
				w.Write([]byte(`{"data":[],"total":0}`))
				return
			}
			w.Write(loadFixture(t, "search_artist_slint.json"))

		case "/search/album":
			q := r.URL.Query().Get("q")
			if strings.Contains(q, "server-error") {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write(loadFixture(t, "search_album_spiderland.json"))

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestAdapter(t *testing.T, baseURL string) *Adapter {
	t.Helper()
	limiter := provider.NewRateLimiterMap()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewWithBaseURL(limiter, logger, baseURL)
}

func TestName(t *testing.T) {
	a := newTestAdapter(t, "http://localhost")
	if a.Name() != provider.NameDeezer {
		t.Errorf("expected %q, got %q", provider.NameDeezer, a.Name())
	}
}

func TestRequiresAuth(t *testing.T) {
	a := newTestAdapter(t, "http://localhost")
	if a.RequiresAuth() {
		t.Error("expected RequiresAuth to return false")
	}
}

func TestSearchArtist(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	a := newTestAdapter(t, srv.URL)

	results, err := a.SearchArtist(context.Background(), "Slint")
	if err != nil {
		t.Fatalf("SearchArtist: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Name != "Slint" {
		t.Errorf("expected Slint, got %q", results[0].Name)
	}
	if results[0].ProviderID != "5120" {
		t.Errorf("expected provider ID 5120, got %q", results[0].ProviderID)
	}
	if !strings.Contains(results[0].ImageURL, "1000x1000") {
		t.Errorf("expected XL picture, got %q", results[0].ImageURL)
	}
	if results[0].Confidence != 100 || results[1].Confidence != 99 {
		t.Errorf("expected descending confidence, got %d, %d",
			results[0].Confidence, results[1].Confidence)
	}
}

func TestSearchArtistNoResults(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	a := newTestAdapter(t, srv.URL)

	results, err := a.SearchArtist(context.Background(), "no-results")
	if err != nil {
		t.Fatalf("SearchArtist: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestSearchAlbums(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	a := newTestAdapter(t, srv.URL)

	results, err := a.SearchAlbums(context.Background(), "Slint", "Spiderland")
	if err != nil {
		t.Fatalf("SearchAlbums: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Name != "Spiderland" || results[0].ArtistName != "Slint" {
		t.Errorf("unexpected first result: %+v", results[0])
	}
	if results[0].CoverURL == "" {
		t.Error("expected cover URL")
	}
	if results[0].ReleaseYear != 0 {
		t.Errorf("search results carry no release year, got %d", results[0].ReleaseYear)
	}
}

func TestSearchAlbumsServerError(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	a := newTestAdapter(t, srv.URL)

	_, err := a.SearchAlbums(context.Background(), "server-error", "x")
	var unavailable *provider.ErrProviderUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestRateLimitedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	a := newTestAdapter(t, srv.URL)

	_, err := a.SearchArtist(context.Background(), "Slint")
	var unavailable *provider.ErrProviderUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if unavailable.RetryAfter.Seconds() != 3 {
		t.Errorf("expected RetryAfter 3s, got %v", unavailable.RetryAfter)
	}
}
