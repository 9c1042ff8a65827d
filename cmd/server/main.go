// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/tomtom215/stridesync/docs" // registers the swagger document served at /swagger/doc.json
	"github.com/tomtom215/stridesync/internal/api"
	"github.com/tomtom215/stridesync/internal/config"
	"github.com/tomtom215/stridesync/internal/database"
	"github.com/tomtom215/stridesync/internal/events"
	"github.com/tomtom215/stridesync/internal/ingest"
	"github.com/tomtom215/stridesync/internal/logging"
	"github.com/tomtom215/stridesync/internal/provider"
	"github.com/tomtom215/stridesync/internal/ratelimit"
	"github.com/tomtom215/stridesync/internal/secrets"
	"github.com/tomtom215/stridesync/internal/statusstore"
	"github.com/tomtom215/stridesync/internal/supervisor"
	"github.com/tomtom215/stridesync/internal/supervisor/services"
	syncpkg "github.com/tomtom215/stridesync/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	if err := run(cfg); err != nil {
		logging.Error().Err(err).Msg("Stridesync exited with error")
		os.Exit(1)
	}
}

// run wires every component and blocks until a shutdown signal. Resources
// are closed in reverse order of creation once the tree has stopped.
//
//nolint:gocyclo // sequential setup steps
func run(cfg *config.Config) error {
	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("ingestion_mode", cfg.Ingestion.Mode).
		Str("status_store", cfg.StatusStore.Backend).
		Str("duckdb_path", cfg.Database.Path).
		Msg("Starting Stridesync with supervisor tree")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Status store
	store, err := statusstore.Open(ctx, cfg.StatusStore)
	if err != nil {
		return fmt.Errorf("open status store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing status store")
		}
	}()
	syncStatuses := statusstore.SyncStatuses(store, statusstore.RecordsOptionsFromConfig(cfg.StatusStore, false))
	activityStatuses := statusstore.ActivityStatuses(store, statusstore.RecordsOptionsFromConfig(cfg.StatusStore, true))

	// Database
	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	// Events
	publisher, err := events.New(cfg.Events)
	if err != nil {
		return fmt.Errorf("initialize events: %w", err)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event publisher")
		}
	}()

	// Ingestion
	coordOpts := []ingest.Option{
		ingest.WithTaskTimeout(cfg.Sync.ItemTimeout),
		ingest.WithStaleAfter(cfg.Sync.StaleAfter),
	}
	if publisher != nil {
		coordOpts = append(coordOpts, ingest.WithEvents(publisher))
	}
	coordinator := ingest.NewCoordinator(db, activityStatuses, coordOpts...)

	var forwarder syncpkg.Forwarder
	switch cfg.Ingestion.Mode {
	case config.IngestionModeLocal:
		forwarder = syncpkg.NewLocalForwarder(coordinator)
	default:
		forwarder = syncpkg.NewHTTPForwarder(cfg.Ingestion, provider.RetryPolicyFromConfig(cfg.Provider))
	}

	// Sync
	limiter := ratelimit.New(store, cfg.RateLimit)
	newProvider, err := providerFactory(cfg.Provider)
	if err != nil {
		return err
	}
	syncOpts := []syncpkg.Option{syncpkg.WithProviderFactory(newProvider)}
	if publisher != nil {
		syncOpts = append(syncOpts, syncpkg.WithEvents(publisher))
	}
	orchestrator := syncpkg.NewOrchestrator(cfg.Sync, syncStatuses, limiter, forwarder, syncOpts...)

	// HTTP
	handler := api.NewHandler(orchestrator, coordinator, cfg.Server.MaxUploadBytes,
		api.HealthCheck{Name: "database", Check: db.Ping},
		api.HealthCheck{Name: "status_store", Check: store.Ping},
	)
	router := api.NewRouter(handler, api.NewChiMiddleware(api.ChiMiddlewareConfigFromServer(cfg.Server)))
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	// Supervisor tree
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}
	if gc, ok := store.(statusstore.GarbageCollector); ok {
		tree.AddStorageService(services.NewStatusStoreGCService(gc, cfg.StatusStore.GCInterval))
	}
	tree.AddPipelineService(services.NewOrchestratorService(orchestrator))
	tree.AddPipelineService(services.NewCoordinatorService(coordinator, 30*time.Second))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	logging.Info().Str("addr", server.Addr).Msg("Server listening")

	err = tree.Serve(ctx)
	if report, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within the shutdown timeout")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree: %w", err)
	}

	logging.Info().Msg("Stridesync stopped")
	return nil
}

// providerFactory builds the provider client on first use. With vault
// enabled the API key is resolved from vault at that point, so a vault
// outage at startup does not block the server.
func providerFactory(cfg config.ProviderConfig) (func(ctx context.Context) (syncpkg.Provider, error), error) {
	var store secrets.Store
	if cfg.Vault.Enabled {
		v, err := secrets.NewVault(cfg.Vault)
		if err != nil {
			return nil, err
		}
		store = v
		logging.Info().Str("vault_addr", cfg.Vault.Address).Msg("Provider API key will be read from vault")
	}
	return func(ctx context.Context) (syncpkg.Provider, error) {
		key, err := secrets.ResolveAPIKey(ctx, store, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		pc := cfg
		pc.APIKey = key
		return provider.NewClient(pc), nil
	}, nil
}
