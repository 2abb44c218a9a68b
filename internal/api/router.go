// Package api exposes the admin HTTP surface: crawl control, live status,
// provider settings, and data management.
package api

import (
	"log/slog"
	"net/http"

	"github.com/sydlexius/scruffy/internal/api/middleware"
	"github.com/sydlexius/scruffy/internal/catalog"
	"github.com/sydlexius/scruffy/internal/provider"
	"github.com/sydlexius/scruffy/internal/status"
	"github.com/sydlexius/scruffy/internal/updater"
)

// RouterDeps bundles all dependencies needed by the HTTP router.
type RouterDeps struct {
	Updater          *updater.Updater
	Reporter         *status.Reporter
	ProviderSettings *provider.SettingsService
	ProviderRegistry *provider.Registry
	Catalog          *catalog.Catalog
	Logger           *slog.Logger
	BasePath         string
}

// Router sets up all HTTP routes for the application.
type Router struct {
	updater          *updater.Updater
	reporter         *status.Reporter
	providerSettings *provider.SettingsService
	providerRegistry *provider.Registry
	catalog          *catalog.Catalog
	logger           *slog.Logger
	basePath         string
}

// NewRouter creates a new Router with all routes configured.
func NewRouter(deps RouterDeps) *Router {
	return &Router{
		updater:          deps.Updater,
		reporter:         deps.Reporter,
		providerSettings: deps.ProviderSettings,
		providerRegistry: deps.ProviderRegistry,
		catalog:          deps.Catalog,
		logger:           deps.Logger,
		basePath:         deps.BasePath,
	}
}

// Handler returns the fully configured HTTP handler with middleware applied.
func (r *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	bp := r.basePath

	mux.HandleFunc("GET "+bp+"/api/v1/health", r.handleHealth)

	mux.HandleFunc("GET "+bp+"/api/v1/update/status", r.handleUpdateStatus)
	mux.HandleFunc("GET "+bp+"/api/v1/update/live", r.handleUpdateLive)
	mux.HandleFunc("PUT "+bp+"/api/v1/update/start", r.handleUpdateStart)
	mux.HandleFunc("PUT "+bp+"/api/v1/update/stop", r.handleUpdateStop)

	mux.HandleFunc("GET "+bp+"/api/v1/providers/artist", r.handleGetProviderFlags(provider.ScopeArtist))
	mux.HandleFunc("PUT "+bp+"/api/v1/providers/artist", r.handleSetProviderFlags(provider.ScopeArtist))
	mux.HandleFunc("GET "+bp+"/api/v1/providers/album", r.handleGetProviderFlags(provider.ScopeAlbum))
	mux.HandleFunc("PUT "+bp+"/api/v1/providers/album", r.handleSetProviderFlags(provider.ScopeAlbum))
	mux.HandleFunc("GET "+bp+"/api/v1/providers/{provider}/artist", r.handleProviderArtistSearch)

	mux.HandleFunc("PUT "+bp+"/api/v1/artist/{vol}/{path}", r.handleUpdateArtist)
	mux.HandleFunc("GET "+bp+"/api/v1/artist/{vol}/{path}", r.handleGetArtist)

	mux.HandleFunc("DELETE "+bp+"/api/v1/all-data", r.handleDeleteAllData)

	return middleware.Logging(r.logger)(mux)
}
