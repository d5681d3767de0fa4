package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/encorehq/encore-sync/internal/api"
	"github.com/encorehq/encore-sync/internal/config"
	"github.com/encorehq/encore-sync/internal/db"
	"github.com/encorehq/encore-sync/internal/importer"
	"github.com/encorehq/encore-sync/internal/progress"
	"github.com/encorehq/encore-sync/internal/setlistfm"
	"github.com/encorehq/encore-sync/internal/spotify"
	"github.com/encorehq/encore-sync/internal/ticketmaster"
)

// @title Encore Sync API
// @version 1.0
// @description API for importing and resyncing artist catalogs, shows and setlists
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @host localhost:8080
// @BasePath /api/v1
func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})
	logger.SetOutput(os.Stdout)

	// Load configuration with defaults
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate minimum required config
	if cfg.DBConnectionString == "" || cfg.Spotify.ClientID == "" || cfg.Spotify.ClientSecret == "" {
		logger.Fatal("Missing required configuration (DB_CONNECTION_STRING, SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET must be set)")
	}

	// Initialize database
	store, err := db.NewPostgresStore(cfg.DBConnectionString)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}

	// Run migrations with retry logic
	if err := retry(3, 5*time.Second, func() error {
		return store.Migrate()
	}); err != nil {
		logger.Fatalf("Failed to run migrations after retries: %v", err)
	}

	// Initialize provider clients
	catalogClient := spotify.NewClient(cfg.Spotify, nil, logger)
	eventsClient := ticketmaster.NewClient(cfg.Ticketmaster, nil, logger)
	setlistClient := setlistfm.NewClient(cfg.SetlistFM, nil, logger)

	// Initialize import pipeline
	bus := progress.NewBus()
	statusStore := progress.NewStatusStore(cfg.Sync.StatusRetention, logger)
	orchestrator := importer.NewOrchestrator(store, catalogClient, eventsClient, setlistClient, bus, statusStore, logger)
	driver := importer.NewDriver(store, orchestrator, cfg.Sync, logger)

	janitorCtx, janitorCancel := context.WithCancel(context.Background())
	defer janitorCancel()
	statusStore.StartJanitor(janitorCtx)

	if err := driver.StartCron(cfg.ResyncSchedule); err != nil {
		logger.Fatalf("Failed to start resync cron: %v", err)
	}
	defer driver.StopCron()

	// Setup router
	handler := api.NewHandler(orchestrator, driver, store, bus, cfg.CronSecret, logger)
	router := api.SetupRouter(handler)

	// Create HTTP server. Write timeout stays generous so SSE streams are
	// not cut off mid-import.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	logger.Info("Server exited properly")
}

// retry retries a function up to a certain number of attempts with a delay between attempts
func retry(attempts int, sleep time.Duration, fn func() error) error {
	if err := fn(); err != nil {
		if attempts--; attempts > 0 {
			time.Sleep(sleep)
			return retry(attempts, sleep, fn)
		}
		return err
	}
	return nil
}
