package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sydlexius/scruffy/internal/catalog"
)

// Reconciler fills missing artist and album fields by walking the enabled
// providers in priority order. The first non-empty value wins per field; a
// provider failure logs and continues the chain; ending with fields still
// empty is a valid outcome.
type Reconciler struct {
	registry *Registry
	settings *SettingsService
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(registry *Registry, settings *SettingsService, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		registry: registry,
		settings: settings,
		logger:   logger.With(slog.String("component", "reconciler")),
	}
}

// EnrichArtist fills the artist's image URL. Providers are not called once
// the field is filled.
func (r *Reconciler) EnrichArtist(ctx context.Context, a *catalog.Artist) []error {
	if a.Name == "" || a.ImageURL != "" {
		return nil
	}

	chain, err := r.settings.EnabledProviders(ctx, ScopeArtist)
	if err != nil {
		return []error{fmt.Errorf("loading provider chain: %w", err)}
	}

	var errs []error
	for _, name := range chain {
		if a.ImageURL != "" {
			break
		}
		p := r.registry.Get(name)
		if p == nil {
			continue
		}

		results, err := p.SearchArtist(ctx, a.Name)
		if err != nil {
			r.logger.Debug("artist search failed",
				slog.String("provider", string(name)),
				slog.String("artist", a.Name),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}

		for _, res := range results {
			if res.ImageURL != "" {
				a.ImageURL = res.ImageURL
				break
			}
		}
	}
	return errs
}

// EnrichAlbum fills the album's cover URL and release year independently.
// Providers lower in the chain are only consulted for fields still empty,
// and no call is made once both fields are filled.
func (r *Reconciler) EnrichAlbum(ctx context.Context, artistName string, al *catalog.Album) []error {
	return r.enrichAlbumFields(ctx, artistName, al.Name, &al.CoverURL, &al.Year)
}

// EnrichAlbumRow fills a ratings-page album row the same way.
func (r *Reconciler) EnrichAlbumRow(ctx context.Context, row *catalog.AlbumRow) []error {
	return r.enrichAlbumFields(ctx, row.ArtistName, row.Name, &row.CoverURL, &row.Year)
}

func (r *Reconciler) enrichAlbumFields(ctx context.Context, artistName, albumName string, cover *string, year *int) []error {
	if artistName == "" || albumName == "" {
		return nil
	}
	if *cover != "" && *year != 0 {
		return nil
	}

	chain, err := r.settings.EnabledProviders(ctx, ScopeAlbum)
	if err != nil {
		return []error{fmt.Errorf("loading provider chain: %w", err)}
	}

	var errs []error
	for _, name := range chain {
		if *cover != "" && *year != 0 {
			break
		}
		p := r.registry.Get(name)
		if p == nil {
			continue
		}

		results, err := p.SearchAlbums(ctx, artistName, albumName)
		if err != nil {
			r.logger.Debug("album search failed",
				slog.String("provider", string(name)),
				slog.String("artist", artistName),
				slog.String("album", albumName),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}

		for _, res := range results {
			if *cover == "" && res.CoverURL != "" {
				*cover = res.CoverURL
			}
			if *year == 0 && res.ReleaseYear != 0 {
				*year = res.ReleaseYear
			}
		}
	}
	return errs
}
