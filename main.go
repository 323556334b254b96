package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"previewarr/api"
	"previewarr/config"
	"previewarr/handlers"
	"previewarr/internal/database"
	"previewarr/services/catalog"
	"previewarr/services/locator"
	"previewarr/services/metadata"
	"previewarr/services/resolver"
	"previewarr/utils"

	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {

	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	fmt.Println("🚀 previewarr Backend Starting...")

	// Determine config path (env or default)
	configPath := os.Getenv("PREVIEWARR_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	// Init config manager and load settings (creates defaults if missing)
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			// Redirect standard log to both console and file
			multiWriter := io.MultiWriter(os.Stdout, fileWriter)
			log.SetOutput(multiWriter)
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	// Fail fast on configuration errors rather than per request
	if settings.Metadata.TMDBAPIKey == "" {
		log.Fatalf("metadata.tmdbApiKey is not set in %s; add one and restart", configPath)
	}

	// Open the cache database and run migrations
	db, err := database.NewDB(database.Config{DatabasePath: settings.Cache.DatabasePath})
	if err != nil {
		log.Fatalf("failed to open cache database: %v", err)
	}
	defer db.Close()

	// Wire up the resolution pipeline
	metadataSvc := metadata.NewService(settings.Metadata.TMDBAPIKey, settings.Metadata.Language, nil)
	catalogSvc := catalog.NewService(
		settings.Catalog.Storefronts,
		settings.Catalog.MinMatchScore,
		time.Duration(settings.Catalog.SearchTimeoutSec)*time.Second,
		nil,
	)
	locatorSvc := locator.NewService(settings.Relay, nil)
	resolverSvc := resolver.NewService(
		metadataSvc,
		catalogSvc,
		locatorSvc,
		db.Repository,
		time.Duration(settings.Cache.TTLDays)*24*time.Hour,
	)

	// Housekeeping: drop entries past the re-verification window once a day
	purgeCtx, purgeCancel := context.WithCancel(context.Background())
	defer purgeCancel()
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-purgeCtx.Done():
				return
			case <-ticker.C:
				ttl := time.Duration(settings.Cache.TTLDays) * 24 * time.Hour
				if removed, err := db.Repository.PurgeStale(ttl); err != nil {
					log.Printf("[main] cache purge failed: %v", err)
				} else if removed > 0 {
					log.Printf("[main] purged %d stale cache entries", removed)
				}
			}
		}
	}()

	r := utils.NewRouter()
	api.RegisterRoutes(r, handlers.NewPreviewHandler(resolverSvc))

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Setup graceful shutdown
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("🛑 Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
