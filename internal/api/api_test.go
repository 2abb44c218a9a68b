package api

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sydlexius/scruffy/internal/catalog"
	"github.com/sydlexius/scruffy/internal/encryption"
	"github.com/sydlexius/scruffy/internal/provider"
	"github.com/sydlexius/scruffy/internal/scaruffi"
	"github.com/sydlexius/scruffy/internal/status"
	"github.com/sydlexius/scruffy/internal/updater"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE pages (
		url TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		last_modified TIMESTAMP,
		checked_at TIMESTAMP NOT NULL
	);
	CREATE TABLE artists (
		url TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		bio TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE related_artists (
		artist_url TEXT NOT NULL,
		related_url TEXT NOT NULL,
		PRIMARY KEY (artist_url, related_url)
	);
	CREATE TABLE albums (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		artist_url TEXT NOT NULL,
		name TEXT NOT NULL COLLATE NOCASE,
		year INTEGER,
		rating REAL,
		cover_url TEXT NOT NULL DEFAULT '',
		rated_on_artist_page INTEGER NOT NULL DEFAULT 0,
		UNIQUE (artist_url, name)
	);
	CREATE TABLE settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	return db
}

type fakeArtistProvider struct {
	name    provider.ProviderName
	results []provider.ArtistResult
	err     error
}

func (f *fakeArtistProvider) Name() provider.ProviderName { return f.name }
func (f *fakeArtistProvider) RequiresAuth() bool          { return false }
func (f *fakeArtistProvider) SearchArtist(_ context.Context, _ string) ([]provider.ArtistResult, error) {
	return f.results, f.err
}
func (f *fakeArtistProvider) SearchAlbums(_ context.Context, _, _ string) ([]provider.AlbumResult, error) {
	return nil, nil
}

type fixture struct {
	srv      *httptest.Server
	catalog  *catalog.Catalog
	reporter *status.Reporter
	settings *provider.SettingsService
	registry *provider.Registry
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cat := catalog.New(db, logger)
	enc, _, err := encryption.NewEncryptor("")
	if err != nil {
		t.Fatalf("creating encryptor: %v", err)
	}
	settings := provider.NewSettingsService(db, enc)
	registry := provider.NewRegistry()
	registry.Register(&fakeArtistProvider{
		name:    provider.NameDeezer,
		results: []provider.ArtistResult{{ProviderID: "1", Name: "Slint", Confidence: 100}},
	})
	reconciler := provider.NewReconciler(registry, settings, logger)
	reporter := status.NewReporter(logger)

	// A site that serves nothing; crawl-control tests never hit it
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html><body></body></html>")
	}))
	t.Cleanup(site.Close)
	client := scaruffi.NewClient(site.URL, 1000, time.Second, time.Millisecond, logger)

	upd := updater.New(client, cat, reconciler, reporter, updater.Config{
		FetchConcurrency:   2,
		WriteConcurrency:   1,
		EarliestRatingYear: time.Now().Year() + 1,
	}, logger)

	router := NewRouter(RouterDeps{
		Updater:          upd,
		Reporter:         reporter,
		ProviderSettings: settings,
		ProviderRegistry: registry,
		Catalog:          cat,
		Logger:           logger,
	})
	srv := httptest.NewServer(router.Handler())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, catalog: cat, reporter: reporter, settings: settings, registry: registry}
}

func doRequest(t *testing.T, method, url string, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() }) //nolint:errcheck
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	f := setup(t)
	resp := doRequest(t, http.MethodGet, f.srv.URL+"/api/v1/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var body map[string]string
	decode(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestUpdateStatus(t *testing.T) {
	f := setup(t)
	f.reporter.Begin()
	f.reporter.AddArtist()
	f.reporter.Finish()

	resp := doRequest(t, http.MethodGet, f.srv.URL+"/api/v1/update/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var s status.Snapshot
	decode(t, resp, &s)
	if s.Artists != 1 || s.Updating {
		t.Errorf("unexpected snapshot: %+v", s)
	}
}

func TestProviderFlags(t *testing.T) {
	f := setup(t)

	resp := doRequest(t, http.MethodGet, f.srv.URL+"/api/v1/providers/artist", "")
	var flags map[provider.ProviderName]bool
	decode(t, resp, &flags)
	if !flags[provider.NameDeezer] {
		t.Error("providers should default to enabled")
	}

	resp = doRequest(t, http.MethodPut, f.srv.URL+"/api/v1/providers/artist", `{"deezer":false}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	decode(t, resp, &flags)
	if flags[provider.NameDeezer] {
		t.Error("deezer should be disabled")
	}
	if !flags[provider.NameSpotify] {
		t.Error("spotify should be untouched")
	}

	// Album scope is independent
	resp = doRequest(t, http.MethodGet, f.srv.URL+"/api/v1/providers/album", "")
	decode(t, resp, &flags)
	if !flags[provider.NameDeezer] {
		t.Error("album scope should be unaffected")
	}
}

func TestProviderFlagsRejectsUnknown(t *testing.T) {
	f := setup(t)
	resp := doRequest(t, http.MethodPut, f.srv.URL+"/api/v1/providers/artist", `{"napster":true}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status %d, want 400", resp.StatusCode)
	}
}

func TestProviderArtistSearch(t *testing.T) {
	f := setup(t)

	resp := doRequest(t, http.MethodGet, f.srv.URL+"/api/v1/providers/deezer/artist?name=Slint", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var results []provider.ArtistResult
	decode(t, resp, &results)
	if len(results) != 1 || results[0].Name != "Slint" {
		t.Errorf("unexpected results: %+v", results)
	}

	resp = doRequest(t, http.MethodGet, f.srv.URL+"/api/v1/providers/deezer/artist", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing name: status %d, want 400", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, f.srv.URL+"/api/v1/providers/napster/artist?name=x", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown provider: status %d, want 404", resp.StatusCode)
	}
}

func TestProviderArtistSearchDisabled(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	if err := f.settings.SetEnabled(ctx, provider.NameDeezer, provider.ScopeArtist, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}

	resp := doRequest(t, http.MethodGet, f.srv.URL+"/api/v1/providers/deezer/artist?name=Slint", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("disabled provider: status %d, want 404", resp.StatusCode)
	}
	var body map[string]string
	decode(t, resp, &body)
	if body["error"] != "provider is disabled" {
		t.Errorf("unexpected body: %v", body)
	}

	// Re-enabling restores the passthrough
	if err := f.settings.SetEnabled(ctx, provider.NameDeezer, provider.ScopeArtist, true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	resp = doRequest(t, http.MethodGet, f.srv.URL+"/api/v1/providers/deezer/artist?name=Slint", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("re-enabled provider: status %d, want 200", resp.StatusCode)
	}
}

func TestGetArtist(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	if err := f.catalog.SaveArtist(ctx, &catalog.Artist{
		URL:  "vol6/slint.html",
		Name: "Slint",
		Albums: []catalog.Album{
			{Name: "Spiderland", Year: 1991, Rating: 9, RatedOnArtistPage: true},
		},
	}); err != nil {
		t.Fatalf("SaveArtist: %v", err)
	}

	resp := doRequest(t, http.MethodGet, f.srv.URL+"/api/v1/artist/vol6/slint.html", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var artist catalog.Artist
	decode(t, resp, &artist)
	if artist.Name != "Slint" || len(artist.Albums) != 1 {
		t.Errorf("unexpected artist: %+v", artist)
	}

	resp = doRequest(t, http.MethodGet, f.srv.URL+"/api/v1/artist/vol6/unknown.html", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status %d, want 404", resp.StatusCode)
	}
}

func TestDeleteAllData(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	if err := f.catalog.SaveArtist(ctx, &catalog.Artist{URL: "vol6/slint.html", Name: "Slint"}); err != nil {
		t.Fatalf("SaveArtist: %v", err)
	}

	resp := doRequest(t, http.MethodDelete, f.srv.URL+"/api/v1/all-data", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	counts, err := f.catalog.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Artists != 0 {
		t.Errorf("expected empty catalog, got %+v", counts)
	}
}

func TestUpdateLiveStreamsSnapshots(t *testing.T) {
	f := setup(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/api/v1/update/live", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET live: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("reading first event: %v", err)
	}
	if !strings.HasPrefix(line, "data: ") {
		t.Fatalf("unexpected SSE line %q", line)
	}
	var s status.Snapshot
	if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &s); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	if s.Updating {
		t.Error("initial snapshot should be idle")
	}
}

func TestUpdateStartAndStop(t *testing.T) {
	f := setup(t)

	resp := doRequest(t, http.MethodPut, f.srv.URL+"/api/v1/update/start", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var body map[string]any
	decode(t, resp, &body)
	if body["started"] != true {
		t.Errorf("expected started=true, got %v", body)
	}

	resp = doRequest(t, http.MethodPut, f.srv.URL+"/api/v1/update/stop", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status %d", resp.StatusCode)
	}
}
