package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IvanJelicSF/superdesk-core/app/api"
	"github.com/IvanJelicSF/superdesk-core/app/cfg"
	"github.com/IvanJelicSF/superdesk-core/app/config"
	"github.com/IvanJelicSF/superdesk-core/app/database"
	"github.com/IvanJelicSF/superdesk-core/app/feeding"
	"github.com/IvanJelicSF/superdesk-core/app/ingest"
	"github.com/IvanJelicSF/superdesk-core/app/media"
	"github.com/IvanJelicSF/superdesk-core/app/notify"
	"github.com/IvanJelicSF/superdesk-core/app/routing"
	"github.com/IvanJelicSF/superdesk-core/app/scheduler"
	"github.com/IvanJelicSF/superdesk-core/app/search"
	"github.com/IvanJelicSF/superdesk-core/app/vocab"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting ingest server", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBHost, appCfg.DBPort, appCfg.DBUser,
		appCfg.DBPassword, appCfg.DBName, appCfg.DBSSLMode)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	configCache := config.NewCache(appCfg.ProvidersDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load provider configurations", "error", err)
		os.Exit(1)
	}

	vocabularies, err := vocab.Load(appCfg.VocabulariesFile)
	if err != nil {
		slog.Error("Failed to load vocabularies", "error", err)
		os.Exit(1)
	}

	providerRepo := database.NewProviderRepository(db)
	itemRepo := database.NewItemRepository(db)
	lockRepo := database.NewLockRepository(db)
	profileRepo := database.NewProfileRepository(db)
	indexer := search.NewIndexer(db)

	// Register providers from configuration files
	registered := 0
	for name, providerConfig := range configCache.GetConfigs() {
		if _, err := providerRepo.Upsert(context.Background(), providerConfig.Provider()); err != nil {
			slog.Warn("Failed to register provider", "provider", name, "error", err)
			continue
		}
		registered++
	}
	slog.Info("Providers registered", "count", registered)

	httpClient := &http.Client{Timeout: 60 * time.Second}

	feeding.Register("rss", feeding.NewRSSService(httpClient, appCfg.UserAgent))
	feeding.RegisterParser("rss20")

	notifier := notify.New(appCfg.NotifyWebhookURL, httpClient)
	transferrer := media.NewTransferrer(httpClient, nil, appCfg.UserAgent)
	router := routing.NewApplier(notifier)

	orchestrator := ingest.NewOrchestrator(itemRepo, indexer, transferrer,
		vocabularies, profileRepo, router, ingest.Config{
			ExpiryMinutes: appCfg.IngestExpiryMinutes,
			SkipIPTCCodes: appCfg.SkipIPTCCodes,
		})

	sched, err := scheduler.NewScheduler(providerRepo, configCache, orchestrator,
		lockRepo, notifier, appCfg.WorkerCount, appCfg.SchedulerInterval, appCfg.UpdateTTLSeconds)
	if err != nil {
		slog.Error("Failed to create scheduler", "error", err)
		os.Exit(1)
	}

	// One-shot mode: update a single provider inline and exit
	if appCfg.RunProvider != "" {
		if err := sched.RunOnce(context.Background(), appCfg.RunProvider, appCfg.RunSync); err != nil {
			slog.Error("Provider update failed", "provider", appCfg.RunProvider, "error", err)
			os.Exit(1)
		}
		return
	}

	if err := sched.Start(); err != nil {
		slog.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	apiHandler := api.NewHandler(providerRepo, configCache, sched, appCfg.Version)
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(apiHandler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
