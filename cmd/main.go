/*
Package main is the entry point for the ChatFlow server.

It is responsible for loading configuration, initializing the global logging system,
connecting the database and file storage, wiring the core components (session
registry, room directory, message router, presence broadcaster, transport hub),
starting the HTTP server, and gracefully handling operating system interrupt
signals (SIGINT, SIGTERM) to ensure a smooth server shutdown.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatflow/internal/app/db"
	"chatflow/internal/app/history"
	"chatflow/internal/app/message"
	"chatflow/internal/app/presence"
	"chatflow/internal/app/room"
	"chatflow/internal/app/session"
	"chatflow/internal/app/storage"
	"chatflow/internal/app/transport"
	"chatflow/internal/configs"
	"chatflow/internal/handler"
	"chatflow/internal/pkg/logx"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.Environment == "development")
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Dur("session_timeout", cfg.SessionTimeout).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect database and run migrations
	pool, err := db.NewPool(cfg.DatabaseDSN)
	if err != nil {
		logx.Fatal(err, "Failed to connect to database")
	}
	defer pool.Close()

	userStore := db.NewUserStore(pool)
	messageStore := history.NewPostgresStore(pool)

	// Connect file storage
	storageService, err := storage.NewService(storage.ServiceConfig{
		S3BucketName:      cfg.S3BucketName,
		S3Endpoint:        cfg.S3Endpoint,
		S3AccessKeyID:     cfg.S3AccessKeyID,
		S3SecretAccessKey: cfg.S3SecretAccessKey,
	})
	if err != nil {
		logx.Fatal(err, "Failed to initialize file storage")
	}

	// Wire core components. The hub is constructed first and bound after the
	// components that push events through it exist.
	hub := transport.NewHub()

	registry := session.NewRegistry(cfg.SessionTimeout, cfg.UserEviction)
	directory := room.NewDirectory()
	directory.SeedDefaults()

	router := message.NewRouter(directory, messageStore, hub)
	broadcaster := presence.NewBroadcaster(registry, directory, hub, cfg.TypingExpiry)

	hub.Bind(registry, directory, router, broadcaster)
	hub.SetUserLookup(func(ctx context.Context, userID string) bool {
		_, err := userStore.GetUserByID(ctx, userID)
		return err == nil
	})

	registry.StartSweeper(cfg.SweepInterval)
	broadcaster.StartSweeper(cfg.SweepInterval)

	deps := &handler.AppDeps{
		Config:    cfg,
		Registry:  registry,
		Directory: directory,
		Router:    router,
		Presence:  broadcaster,
		Hub:       hub,
		Users:     userStore,
		History:   messageStore,
		Storage:   storageService,
	}

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler.Router(deps),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("ChatFlow Server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Fatal(err, "Server forced to shutdown")
	}

	hub.Shutdown()
	broadcaster.Stop()
	registry.Stop()

	logx.Info("Server gracefully stopped.")
}
