// Package updater orchestrates crawl runs: listing discovery, artist pages,
// aggregated ratings pages, enrichment, and persistence.
package updater

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sydlexius/scruffy/internal/catalog"
	"github.com/sydlexius/scruffy/internal/provider"
	"github.com/sydlexius/scruffy/internal/scaruffi"
	"github.com/sydlexius/scruffy/internal/status"
)

// State is the updater lifecycle state.
type State string

// Updater states. Stopping means cancellation was requested and in-flight
// pages are finishing.
const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Config holds the crawl tunables.
type Config struct {
	FetchConcurrency   int
	WriteConcurrency   int
	RecheckDelay       time.Duration
	EarliestRatingYear int
}

// Updater runs crawls. One run is active at a time; a finished run schedules
// the next one after the recheck delay.
type Updater struct {
	client     *scaruffi.Client
	catalog    *catalog.Catalog
	reconciler *provider.Reconciler
	reporter   *status.Reporter
	cfg        Config
	logger     *slog.Logger

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	done    chan struct{}
	recheck *time.Timer
	now     func() time.Time
}

// New creates an Updater.
func New(client *scaruffi.Client, cat *catalog.Catalog, reconciler *provider.Reconciler, reporter *status.Reporter, cfg Config, logger *slog.Logger) *Updater {
	if cfg.FetchConcurrency < 1 {
		cfg.FetchConcurrency = 1
	}
	if cfg.WriteConcurrency < 1 {
		cfg.WriteConcurrency = 1
	}
	return &Updater{
		client:     client,
		catalog:    cat,
		reconciler: reconciler,
		reporter:   reporter,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "updater")),
		state:      StateIdle,
		now:        time.Now,
	}
}

// State returns the current lifecycle state.
func (u *Updater) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Start begins a run unless one is already active. Returns true when a new
// run was started.
func (u *Updater) Start() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state != StateIdle {
		return false
	}
	if u.recheck != nil {
		u.recheck.Stop()
		u.recheck = nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	u.state = StateRunning
	u.cancel = cancel
	u.done = make(chan struct{})
	go u.run(ctx)
	return true
}

// Stop requests cooperative cancellation of the active run and cancels a
// pending recheck. In-flight pages finish; no new work starts.
func (u *Updater) Stop() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.recheck != nil {
		u.recheck.Stop()
		u.recheck = nil
	}
	if u.state != StateRunning {
		return
	}
	u.state = StateStopping
	u.cancel()
}

// Wait blocks until the active run finishes, or the context expires.
func (u *Updater) Wait(ctx context.Context) error {
	u.mu.Lock()
	done := u.done
	u.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (u *Updater) run(ctx context.Context) {
	start := u.now()
	u.logger.Info("crawl started")
	u.reporter.Begin()

	u.crawlArtists(ctx)
	u.crawlRatings(ctx)

	u.reporter.Finish()

	u.mu.Lock()
	stopped := u.state == StateStopping
	u.state = StateIdle
	u.cancel()
	close(u.done)
	u.done = nil
	if !stopped && u.cfg.RecheckDelay > 0 {
		u.recheck = time.AfterFunc(u.cfg.RecheckDelay, func() { u.Start() })
	}
	u.mu.Unlock()

	u.logger.Info("crawl finished",
		slog.Duration("elapsed", u.now().Sub(start)),
		slog.Bool("stopped", stopped))
}

// crawlArtists fetches the listing pages, dedupes the discovered artist
// URLs, and pushes every artist page through fetch, parse, enrich, persist.
func (u *Updater) crawlArtists(ctx context.Context) {
	urls := u.collectArtistURLs(ctx)
	u.logger.Info("artist discovery complete", slog.Int("artists", len(urls)))

	type parsed struct {
		artist *catalog.Artist
		page   *scaruffi.Page
	}
	writeCh := make(chan parsed, u.cfg.WriteConcurrency)

	var writers errgroup.Group
	writers.SetLimit(u.cfg.WriteConcurrency)
	writersDone := make(chan struct{})
	go func() {
		defer close(writersDone)
		for item := range writeCh {
			item := item
			writers.Go(func() error {
				if err := u.catalog.SaveArtist(ctx, item.artist); err != nil {
					u.reportError(item.artist.URL, err)
					return nil
				}
				if err := u.catalog.SavePage(ctx, catalog.Page{
					URL:          item.page.URL,
					Hash:         item.page.Hash,
					LastModified: item.page.LastModified,
					CheckedAt:    u.now().UTC(),
				}); err != nil {
					u.reportError(item.page.URL, err)
					return nil
				}
				u.reporter.AddArtist()
				u.reporter.AddAlbums(len(item.artist.Albums))
				return nil
			})
		}
		writers.Wait() //nolint:errcheck
	}()

	var fetchers errgroup.Group
	fetchers.SetLimit(u.cfg.FetchConcurrency)
	for _, url := range urls {
		url := url
		fetchers.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			artist, page := u.processArtistPage(ctx, url)
			if artist != nil {
				writeCh <- parsed{artist: artist, page: page}
			}
			return nil
		})
	}
	fetchers.Wait() //nolint:errcheck
	close(writeCh)
	<-writersDone
}

// processArtistPage fetches and parses one artist page, skipping work when
// the page hash is unchanged since the last run. Enrichment happens here so
// provider latency overlaps across the fetch pool.
func (u *Updater) processArtistPage(ctx context.Context, url string) (*catalog.Artist, *scaruffi.Page) {
	page, err := u.client.FetchPage(ctx, url)
	if err != nil {
		var notFound *scaruffi.ErrPageNotFound
		if errors.As(err, &notFound) {
			u.logger.Info("page gone", slog.String("url", url))
		} else if ctx.Err() == nil {
			u.reportError(url, err)
		}
		return nil, nil
	}
	u.reporter.AddPage()

	stored, err := u.catalog.PageHash(ctx, url)
	if err != nil {
		u.reportError(url, err)
		return nil, nil
	}
	if stored != "" && stored == page.Hash {
		if err := u.catalog.TouchPage(ctx, url, u.now().UTC()); err != nil {
			u.reportError(url, err)
		}
		return nil, nil
	}

	artist, err := scaruffi.ParseArtistPage(bytes.NewReader(page.Body), url)
	if err != nil {
		u.reportError(url, err)
		return nil, nil
	}
	if artist == nil {
		return nil, nil
	}

	u.enrichArtist(ctx, artist)
	return artist, page
}

func (u *Updater) enrichArtist(ctx context.Context, artist *catalog.Artist) {
	for _, err := range u.reconciler.EnrichArtist(ctx, artist) {
		u.reportError(artist.URL, err)
	}
	for i := range artist.Albums {
		if ctx.Err() != nil {
			return
		}
		for _, err := range u.reconciler.EnrichAlbum(ctx, artist.Name, &artist.Albums[i]) {
			u.reportError(fmt.Sprintf("%s: %s", artist.URL, artist.Albums[i].Name), err)
		}
	}
}

// collectArtistURLs fetches every listing page concurrently and merges the
// artist URLs they link.
func (u *Updater) collectArtistURLs(ctx context.Context) []string {
	type listing struct {
		path  string
		parse func(io.Reader) (map[string]string, error)
	}
	listings := []listing{
		{scaruffi.RockListingPath, scaruffi.ParseRockListing},
		{scaruffi.JazzListingPath, scaruffi.ParseJazzListing},
	}
	for vol := 1; vol <= 8; vol++ {
		vol := vol
		listings = append(listings, listing{
			path: scaruffi.VolumeListingPath(vol),
			parse: func(r io.Reader) (map[string]string, error) {
				return scaruffi.ParseVolumeListing(vol, r)
			},
		})
	}

	var mu sync.Mutex
	seen := make(map[string]bool)
	var urls []string

	var g errgroup.Group
	g.SetLimit(u.cfg.FetchConcurrency)
	for _, l := range listings {
		l := l
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			page, err := u.client.FetchPage(ctx, l.path)
			if err != nil {
				if ctx.Err() == nil {
					u.reportError(l.path, err)
				}
				return nil
			}
			u.reporter.AddPage()
			found, err := l.parse(bytes.NewReader(page.Body))
			if err != nil {
				u.reportError(l.path, err)
				return nil
			}
			mu.Lock()
			for url := range found {
				if !seen[url] {
					seen[url] = true
					urls = append(urls, url)
				}
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait() //nolint:errcheck
	return urls
}

// crawlRatings processes the recent-reviews page and every yearly ratings
// page, enriching and persisting the album rows they list. Albums already
// enriched once this phase are not enriched again.
func (u *Updater) crawlRatings(ctx context.Context) {
	paths := []string{scaruffi.NewRatingsPath}
	for year := u.cfg.EarliestRatingYear; year <= u.now().Year(); year++ {
		paths = append(paths, scaruffi.YearRatingsPath(year))
	}

	enriched := make(map[string]bool)
	var enrichedMu sync.Mutex

	var g errgroup.Group
	g.SetLimit(u.cfg.FetchConcurrency)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			u.processRatingsPage(ctx, path, enriched, &enrichedMu)
			return nil
		})
	}
	g.Wait() //nolint:errcheck
}

func (u *Updater) processRatingsPage(ctx context.Context, path string, enriched map[string]bool, enrichedMu *sync.Mutex) {
	page, err := u.client.FetchPage(ctx, path)
	if err != nil {
		var notFound *scaruffi.ErrPageNotFound
		if errors.As(err, &notFound) {
			u.logger.Info("ratings page gone", slog.String("url", path))
		} else if ctx.Err() == nil {
			u.reportError(path, err)
		}
		return
	}
	u.reporter.AddPage()

	stored, err := u.catalog.PageHash(ctx, path)
	if err != nil {
		u.reportError(path, err)
		return
	}
	if stored != "" && stored == page.Hash {
		if err := u.catalog.TouchPage(ctx, path, u.now().UTC()); err != nil {
			u.reportError(path, err)
		}
		return
	}

	parsed, err := scaruffi.ParseRatingsPage(bytes.NewReader(page.Body), path, ratingsYear(path))
	if err != nil {
		u.reportError(path, err)
		return
	}

	for i := range parsed.Albums {
		if ctx.Err() != nil {
			return
		}
		row := &parsed.Albums[i]
		key := row.ArtistURL + "\x00" + strings.ToLower(row.Name)
		enrichedMu.Lock()
		skip := enriched[key]
		enriched[key] = true
		enrichedMu.Unlock()
		if skip {
			continue
		}
		for _, err := range u.reconciler.EnrichAlbumRow(ctx, row) {
			u.reportError(fmt.Sprintf("%s: %s", path, row.Name), err)
		}
	}

	if err := u.catalog.SaveAlbumRows(ctx, parsed.Albums); err != nil {
		u.reportError(path, err)
		return
	}
	u.saveArtistStubs(ctx, parsed)
	if err := u.catalog.SavePage(ctx, catalog.Page{
		URL:          page.URL,
		Hash:         page.Hash,
		LastModified: page.LastModified,
		CheckedAt:    u.now().UTC(),
	}); err != nil {
		u.reportError(path, err)
	}
	u.reporter.AddAlbums(len(parsed.Albums))
}

// saveArtistStubs records artists linked from a ratings page that had no
// album row, so the next artist crawl picks them up with a name in place.
func (u *Updater) saveArtistStubs(ctx context.Context, parsed *scaruffi.RatingsPage) {
	covered := make(map[string]bool, len(parsed.Albums))
	for _, row := range parsed.Albums {
		covered[row.ArtistURL] = true
	}
	for url, name := range parsed.Artists {
		if covered[url] || name == "" {
			continue
		}
		if err := u.catalog.SaveArtist(ctx, &catalog.Artist{URL: url, Name: name}); err != nil {
			u.reportError(url, err)
		}
	}
}

// UpdateArtist re-crawls one artist page immediately, bypassing the page
// hash ledger. Used by the admin API for targeted refreshes.
func (u *Updater) UpdateArtist(ctx context.Context, url string) error {
	page, err := u.client.FetchPage(ctx, url)
	if err != nil {
		return err
	}
	artist, err := scaruffi.ParseArtistPage(bytes.NewReader(page.Body), url)
	if err != nil {
		return err
	}
	if artist == nil {
		return fmt.Errorf("%s is not an artist page", url)
	}
	u.enrichArtist(ctx, artist)
	if err := u.catalog.SaveArtist(ctx, artist); err != nil {
		return err
	}
	return u.catalog.SavePage(ctx, catalog.Page{
		URL:          page.URL,
		Hash:         page.Hash,
		LastModified: page.LastModified,
		CheckedAt:    u.now().UTC(),
	})
}

func (u *Updater) reportError(context string, err error) {
	u.logger.Warn("crawl error", slog.String("context", context), slog.String("error", err.Error()))
	u.reporter.AddError(context, err)
}

// ratingsYear maps a ratings page path to the release year it implies. The
// recent-reviews page carries mixed years, signalled as zero.
func ratingsYear(path string) int {
	if path == scaruffi.NewRatingsPath {
		return 0
	}
	var year int
	if _, err := fmt.Sscanf(path, "cdreview/%d.html", &year); err != nil {
		return 0
	}
	return year
}
