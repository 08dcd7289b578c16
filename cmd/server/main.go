package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collabd/internal/api"
	"collabd/internal/config"
	"collabd/internal/db"
	"collabd/internal/repository"
	"collabd/internal/services"
	"collabd/internal/services/collaboration"
	"collabd/internal/telemetry"
)

const (
	serviceName    = "collabd"
	serviceVersion = "1.0.0"
)

func main() {
	log.Println("🚀 Starting collaboration server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Tracing is optional; a missing collector must not stop the server.
	jaegerShutdown, err := telemetry.InitJaeger(serviceName, serviceVersion, cfg.JaegerEndpoint)
	if err != nil {
		log.Printf("⚠️  Failed to initialize Jaeger: %v (continuing without tracing)", err)
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Printf("⚠️  Failed to shutdown Jaeger: %v", err)
		}
	}()

	opts := collaboration.Options{
		IdleTimeout:      cfg.IdleTimeout,
		ReapInterval:     cfg.ReapInterval,
		SyncHistoryLimit: cfg.SyncHistoryLimit,
	}

	var (
		archiver *services.EditArchiverImpl
		edits    api.EditHistoryStore
	)
	if cfg.ArchiveEnabled {
		database, err := db.NewGorm(cfg)
		if err != nil {
			log.Fatalf("❌ Failed to connect to database: %v", err)
		}
		defer database.Close()

		editRepo := repository.NewEditRepository(database.DB)
		edits = editRepo

		archiver = services.NewEditArchiver(editRepo, cfg.ArchiveWorkers, cfg.ArchiveQueueSize)
		archiver.Start()
		opts.Archive = archiver
	} else {
		log.Println("  Edit archive disabled")
	}

	directory := collaboration.NewDirectory(opts)
	wsHandler := collaboration.NewWebSocketHandler(directory, cfg.SendBufferSize)

	handler := api.NewHandler(directory, wsHandler, edits)
	router := api.SetupRoutes(handler)

	// No WriteTimeout: it would also apply to hijacked websocket connections'
	// handshake and is enforced per frame by the write pump instead.
	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("🌐 Server listening on http://%s", cfg.Addr())
		log.Printf("   GET    /ws?user_id=&user_name=       - Collaboration socket")
		log.Printf("   GET    /api/stats                    - Live session stats")
		log.Printf("   GET    /api/documents/{id}/edits     - Archived edits")
		log.Printf("   DELETE /api/documents/{id}/edits     - Prune archived edits")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	// Drain connections before the archiver so every accepted edit is queued.
	directory.Shutdown()
	if archiver != nil {
		archiver.Shutdown()
	}

	log.Println("✓ Server shutdown complete")
}
