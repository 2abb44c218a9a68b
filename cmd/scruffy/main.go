package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sydlexius/scruffy/internal/api"
	"github.com/sydlexius/scruffy/internal/catalog"
	"github.com/sydlexius/scruffy/internal/config"
	"github.com/sydlexius/scruffy/internal/database"
	"github.com/sydlexius/scruffy/internal/encryption"
	"github.com/sydlexius/scruffy/internal/logging"
	"github.com/sydlexius/scruffy/internal/provider"
	"github.com/sydlexius/scruffy/internal/provider/deezer"
	"github.com/sydlexius/scruffy/internal/provider/lastfm"
	"github.com/sydlexius/scruffy/internal/provider/musicbrainz"
	"github.com/sydlexius/scruffy/internal/provider/spotify"
	"github.com/sydlexius/scruffy/internal/scaruffi"
	"github.com/sydlexius/scruffy/internal/status"
	"github.com/sydlexius/scruffy/internal/updater"
	"github.com/sydlexius/scruffy/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", defaultConfigPath(), "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Set up structured logging via the logging Manager
	logManager, logger := logging.NewManager(logging.Config{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		FilePath: cfg.Logging.FilePath,
	})
	defer logManager.Close() //nolint:errcheck
	slog.SetDefault(logger)

	// Open database and migrate
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database ready", slog.String("path", cfg.Database.Path))

	// Resolve encryption key: config > key file > generate new
	encKey, err := resolveEncryptionKey(cfg, logger)
	if err != nil {
		return fmt.Errorf("resolving encryption key: %w", err)
	}
	encryptor, _, err := encryption.NewEncryptor(encKey)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}

	// Provider infrastructure
	rateLimiters := provider.NewRateLimiterMap()
	providerSettings := provider.NewSettingsService(db, encryptor)
	providerRegistry := provider.NewRegistry()
	providerRegistry.Register(spotify.New(rateLimiters, providerSettings, logger))
	providerRegistry.Register(deezer.New(rateLimiters, logger))
	providerRegistry.Register(musicbrainz.New(rateLimiters, logger))
	providerRegistry.Register(lastfm.New(rateLimiters, providerSettings, logger))
	reconciler := provider.NewReconciler(providerRegistry, providerSettings, logger)

	// Crawl pipeline
	cat := catalog.New(db, logger)
	reporter := status.NewReporter(logger)
	siteClient := scaruffi.NewClient(
		cfg.Site.BaseURL,
		cfg.Site.RequestsPerSec,
		time.Duration(cfg.Site.TimeoutSeconds)*time.Second,
		time.Duration(cfg.Site.BackoffBaseSec*float64(time.Second)),
		logger,
	)
	upd := updater.New(siteClient, cat, reconciler, reporter, updater.Config{
		FetchConcurrency:   cfg.Update.FetchConcurrency,
		WriteConcurrency:   cfg.Update.WriteConcurrency,
		RecheckDelay:       time.Duration(cfg.Update.RecheckDelaySec) * time.Second,
		EarliestRatingYear: cfg.Update.EarliestRatingYear,
	}, logger)

	logger.Info("starting scruffy", slog.String("version", version.Version))

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Reload logging settings when the config file changes on disk
	configWatcher := config.NewWatcher(*configPath, func(updated *config.Config) {
		logManager.Reconfigure(logging.Config{
			Level:    updated.Logging.Level,
			Format:   updated.Logging.Format,
			FilePath: updated.Logging.FilePath,
		})
	}, logger)
	go func() {
		if err := configWatcher.Run(ctx); err != nil {
			logger.Warn("config watcher stopped", "error", err)
		}
	}()

	router := api.NewRouter(api.RouterDeps{
		Updater:          upd,
		Reporter:         reporter,
		ProviderSettings: providerSettings,
		ProviderRegistry: providerRegistry,
		Catalog:          cat,
		Logger:           logger,
		BasePath:         cfg.Server.BasePath,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// First crawl starts immediately; the recheck timer takes over from there
	upd.Start()

	go func() {
		logger.Info("server starting", slog.String("addr", addr), slog.String("base_path", cfg.Server.BasePath))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	upd.Stop()
	if err := upd.Wait(shutdownCtx); err != nil {
		logger.Warn("crawl did not stop in time", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}

func defaultConfigPath() string {
	if p := os.Getenv("SCRUFFY_CONFIG_PATH"); p != "" {
		return p
	}
	return "/data/config.yaml"
}

// resolveEncryptionKey determines the key protecting provider credentials.
// Priority: config value > key file next to the database > generate new.
func resolveEncryptionKey(cfg *config.Config, logger *slog.Logger) (string, error) {
	if cfg.Encryption.Key != "" {
		return cfg.Encryption.Key, nil
	}

	dataDir := filepath.Dir(cfg.Database.Path)
	keyFile := filepath.Join(dataDir, "encryption.key")

	data, err := os.ReadFile(keyFile) //nolint:gosec // G304: path derived from trusted config
	if err == nil {
		key := strings.TrimSpace(string(data))
		if key != "" {
			logger.Debug("loaded encryption key from file", slog.String("path", keyFile))
			return key, nil
		}
	}

	_, key, err := encryption.NewEncryptor("")
	if err != nil {
		return "", fmt.Errorf("generating encryption key: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		logger.Warn("could not create data directory for encryption key",
			slog.String("path", dataDir), slog.Any("error", err))
		return key, nil
	}
	if err := os.WriteFile(keyFile, []byte(key+"\n"), 0o600); err != nil {
		logger.Warn("could not save encryption key to file",
			slog.String("path", keyFile), slog.Any("error", err))
	} else {
		logger.Warn("generated new encryption key -- back up this file",
			slog.String("path", keyFile))
	}
	return key, nil
}
