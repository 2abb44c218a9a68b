package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Catalog persists crawled artists, albums, and the page ledger. All writes
// are transactional; incoming empty values never replace stored ones.
type Catalog struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a Catalog backed by db.
func New(db *sql.DB, logger *slog.Logger) *Catalog {
	return &Catalog{
		db:     db,
		logger: logger.With(slog.String("component", "catalog")),
	}
}

// PageHash returns the stored content hash for a page URL, or "" if the page
// has never been recorded.
func (c *Catalog) PageHash(ctx context.Context, url string) (string, error) {
	var hash string
	err := c.db.QueryRowContext(ctx,
		`SELECT hash FROM pages WHERE url = ?`, url).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying page hash: %w", err)
	}
	return hash, nil
}

// SavePage upserts a page ledger entry.
func (c *Catalog) SavePage(ctx context.Context, p Page) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO pages (url, hash, last_modified, checked_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			hash = excluded.hash,
			last_modified = excluded.last_modified,
			checked_at = excluded.checked_at`,
		p.URL, p.Hash, p.LastModified, p.CheckedAt)
	if err != nil {
		return fmt.Errorf("saving page %s: %w", p.URL, err)
	}
	return nil
}

// TouchPage advances a page's checked_at timestamp without changing its hash.
// Used when a fetch found the content unchanged.
func (c *Catalog) TouchPage(ctx context.Context, url string, checkedAt time.Time) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE pages SET checked_at = ? WHERE url = ?`, checkedAt, url)
	if err != nil {
		return fmt.Errorf("touching page %s: %w", url, err)
	}
	return nil
}

// SaveArtist upserts an artist, its related-artist set, and its albums in a
// single transaction. Name, bio, and image follow the merge rule; related
// artists are replaced as a set; album ratings from an artist page are
// authoritative.
func (c *Catalog) SaveArtist(ctx context.Context, a *Artist) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := upsertArtist(ctx, tx, a.URL, a.Name, a.Bio, a.ImageURL); err != nil {
		return err
	}

	if len(a.RelatedArtists) > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM related_artists WHERE artist_url = ?`, a.URL); err != nil {
			return fmt.Errorf("clearing related artists: %w", err)
		}
		for _, rel := range a.RelatedArtists {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO related_artists (artist_url, related_url)
				VALUES (?, ?)
				ON CONFLICT DO NOTHING`, a.URL, rel); err != nil {
				return fmt.Errorf("saving related artist: %w", err)
			}
		}
	}

	for i := range a.Albums {
		if err := upsertAlbum(ctx, tx, a.URL, &a.Albums[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing artist %s: %w", a.URL, err)
	}

	c.logger.Debug("saved artist",
		slog.String("url", a.URL),
		slog.Int("albums", len(a.Albums)))
	return nil
}

// SaveAlbumRows upserts albums parsed from an aggregated ratings page. A stub
// artist row is created when the album's artist has not been crawled yet. A
// row's rating is ignored when the stored album was rated on the artist's own
// page.
func (c *Catalog) SaveAlbumRows(ctx context.Context, rows []AlbumRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, row := range rows {
		if err := upsertArtist(ctx, tx, row.ArtistURL, row.ArtistName, "", ""); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO albums (artist_url, name, year, rating, cover_url, rated_on_artist_page)
			VALUES (?, ?, ?, ?, ?, 0)
			ON CONFLICT(artist_url, name) DO UPDATE SET
				year = COALESCE(albums.year, excluded.year),
				cover_url = CASE WHEN albums.cover_url = '' THEN excluded.cover_url ELSE albums.cover_url END,
				rating = CASE
					WHEN albums.rated_on_artist_page = 1 THEN albums.rating
					ELSE COALESCE(excluded.rating, albums.rating)
				END`,
			row.ArtistURL, row.Name, nullInt(row.Year), nullFloat(row.Rating), row.CoverURL); err != nil {
			return fmt.Errorf("saving album %s/%s: %w", row.ArtistURL, row.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing album rows: %w", err)
	}
	return nil
}

// GetArtist loads an artist with its related artists and albums. Returns
// sql.ErrNoRows when unknown.
func (c *Catalog) GetArtist(ctx context.Context, url string) (*Artist, error) {
	a := &Artist{URL: url}
	err := c.db.QueryRowContext(ctx,
		`SELECT name, bio, image_url FROM artists WHERE url = ?`, url).
		Scan(&a.Name, &a.Bio, &a.ImageURL)
	if err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT related_url FROM related_artists WHERE artist_url = ? ORDER BY related_url`, url)
	if err != nil {
		return nil, fmt.Errorf("querying related artists: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var rel string
		if err := rows.Scan(&rel); err != nil {
			return nil, err
		}
		a.RelatedArtists = append(a.RelatedArtists, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	albumRows, err := c.db.QueryContext(ctx, `
		SELECT name, year, rating, cover_url, rated_on_artist_page
		FROM albums WHERE artist_url = ? ORDER BY year, name`, url)
	if err != nil {
		return nil, fmt.Errorf("querying albums: %w", err)
	}
	defer albumRows.Close() //nolint:errcheck
	for albumRows.Next() {
		var (
			al     Album
			year   sql.NullInt64
			rating sql.NullFloat64
		)
		if err := albumRows.Scan(&al.Name, &year, &rating, &al.CoverURL, &al.RatedOnArtistPage); err != nil {
			return nil, err
		}
		al.Year = int(year.Int64)
		al.Rating = rating.Float64
		a.Albums = append(a.Albums, al)
	}
	if err := albumRows.Err(); err != nil {
		return nil, err
	}

	return a, nil
}

// Counts returns stored row totals.
func (c *Catalog) Counts(ctx context.Context) (Counts, error) {
	var n Counts
	row := c.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM artists),
			(SELECT COUNT(*) FROM albums),
			(SELECT COUNT(*) FROM pages)`)
	if err := row.Scan(&n.Artists, &n.Albums, &n.Pages); err != nil {
		return Counts{}, fmt.Errorf("counting rows: %w", err)
	}
	return n, nil
}

// DeleteAll removes every artist, album, related-artist link, and page ledger
// entry in one transaction. Settings are preserved.
func (c *Catalog) DeleteAll(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{
		`DELETE FROM albums`,
		`DELETE FROM related_artists`,
		`DELETE FROM artists`,
		`DELETE FROM pages`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clearing data: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}

	c.logger.Info("deleted all crawled data")
	return nil
}

func upsertArtist(ctx context.Context, tx *sql.Tx, url, name, bio, imageURL string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO artists (url, name, bio, image_url, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			name = CASE WHEN excluded.name = '' THEN artists.name ELSE excluded.name END,
			bio = CASE WHEN excluded.bio = '' THEN artists.bio ELSE excluded.bio END,
			image_url = CASE WHEN excluded.image_url = '' THEN artists.image_url ELSE excluded.image_url END,
			updated_at = excluded.updated_at`,
		url, name, bio, imageURL, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving artist %s: %w", url, err)
	}
	return nil
}

func upsertAlbum(ctx context.Context, tx *sql.Tx, artistURL string, al *Album) error {
	ratedOnPage := 0
	if al.RatedOnArtistPage {
		ratedOnPage = 1
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO albums (artist_url, name, year, rating, cover_url, rated_on_artist_page)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(artist_url, name) DO UPDATE SET
			year = COALESCE(excluded.year, albums.year),
			cover_url = CASE WHEN excluded.cover_url = '' THEN albums.cover_url ELSE excluded.cover_url END,
			rating = CASE
				WHEN excluded.rated_on_artist_page = 1 THEN COALESCE(excluded.rating, albums.rating)
				WHEN albums.rated_on_artist_page = 1 THEN albums.rating
				ELSE COALESCE(excluded.rating, albums.rating)
			END,
			rated_on_artist_page = MAX(albums.rated_on_artist_page, excluded.rated_on_artist_page)`,
		artistURL, al.Name, nullInt(al.Year), nullFloat(al.Rating), al.CoverURL, ratedOnPage)
	if err != nil {
		return fmt.Errorf("saving album %s/%s: %w", artistURL, al.Name, err)
	}
	return nil
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullFloat(v float64) any {
	if v == 0 {
		return nil
	}
	return v
}
