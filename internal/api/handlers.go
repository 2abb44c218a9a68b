package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sydlexius/scruffy/internal/provider"
	"github.com/sydlexius/scruffy/internal/scaruffi"
	"github.com/sydlexius/scruffy/internal/updater"
	"github.com/sydlexius/scruffy/internal/version"
)

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (r *Router) handleUpdateStatus(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.reporter.Snapshot())
}

func (r *Router) handleUpdateStart(w http.ResponseWriter, req *http.Request) {
	started := r.updater.Start()
	writeJSON(w, http.StatusOK, map[string]any{
		"started": started,
		"state":   r.updater.State(),
	})
}

func (r *Router) handleUpdateStop(w http.ResponseWriter, req *http.Request) {
	r.updater.Stop()
	writeJSON(w, http.StatusOK, map[string]any{
		"state": r.updater.State(),
	})
}

// handleUpdateLive streams status snapshots over server-sent events until the
// client disconnects.
func (r *Router) handleUpdateLive(w http.ResponseWriter, req *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id, ch := r.reporter.Subscribe()
	defer r.reporter.Unsubscribe(id)

	for {
		select {
		case snapshot, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(snapshot)
			if err != nil {
				r.logger.Warn("marshaling snapshot", "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-req.Context().Done():
			return
		}
	}
}

func (r *Router) handleGetProviderFlags(scope provider.Scope) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		flags, err := r.providerSettings.EnabledMap(req.Context(), scope)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, flags)
	}
}

func (r *Router) handleSetProviderFlags(scope provider.Scope) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body map[provider.ProviderName]bool
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		known := make(map[provider.ProviderName]bool, len(provider.AllProviderNames()))
		for _, name := range provider.AllProviderNames() {
			known[name] = true
		}
		for name := range body {
			if !known[name] {
				writeJSON(w, http.StatusBadRequest, map[string]string{
					"error": fmt.Sprintf("unknown provider %q", name),
				})
				return
			}
		}

		for name, enabled := range body {
			if err := r.providerSettings.SetEnabled(req.Context(), name, scope, enabled); err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
				return
			}
		}

		flags, err := r.providerSettings.EnabledMap(req.Context(), scope)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, flags)
	}
}

// handleProviderArtistSearch passes an artist query straight to one provider,
// mainly for verifying keys and comparing providers from the admin UI.
func (r *Router) handleProviderArtistSearch(w http.ResponseWriter, req *http.Request) {
	name := req.URL.Query().Get("name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name parameter required"})
		return
	}

	providerName := provider.ProviderName(req.PathValue("provider"))
	p := r.providerRegistry.Get(providerName)
	if p == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown provider"})
		return
	}

	enabled, err := r.providerSettings.IsEnabled(req.Context(), providerName, provider.ScopeArtist)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if !enabled {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "provider is disabled"})
		return
	}

	results, err := p.SearchArtist(req.Context(), name)
	if err != nil {
		var authErr *provider.ErrAuthRequired
		if errors.As(err, &authErr) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": authErr.Error()})
			return
		}
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// handleUpdateArtist re-crawls one artist page immediately, bypassing the
// page hash ledger.
func (r *Router) handleUpdateArtist(w http.ResponseWriter, req *http.Request) {
	url := req.PathValue("vol") + "/" + req.PathValue("path")

	if err := r.updater.UpdateArtist(req.Context(), url); err != nil {
		var notFound *scaruffi.ErrPageNotFound
		if errors.As(err, &notFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	artist, err := r.catalog.GetArtist(req.Context(), url)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, artist)
}

func (r *Router) handleGetArtist(w http.ResponseWriter, req *http.Request) {
	url := req.PathValue("vol") + "/" + req.PathValue("path")

	artist, err := r.catalog.GetArtist(req.Context(), url)
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "artist not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, artist)
}

func (r *Router) handleDeleteAllData(w http.ResponseWriter, req *http.Request) {
	if r.updater.State() != updater.StateIdle {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a crawl is running"})
		return
	}
	if err := r.catalog.DeleteAll(req.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}
