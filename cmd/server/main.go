// Package main is the entry point for the crmflow API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"crmflow/internal/app"
	"crmflow/internal/config"
	v1 "crmflow/internal/infrastructure/http/v1"
	"crmflow/pkg/logger"
)

var version = "dev"

func main() {
	configPath := flag.String("config", getEnv("CONFIG_PATH", "config.yaml"), "path to the YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := logger.WithLogger(context.Background(), log)
	log.Infow("starting crmflow server", "version", version)

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to initialize application", "error", err)
	}
	defer a.Close()
	log.Infow("application initialized",
		"cache", cfg.Cache.Type,
		"metrics", cfg.Metrics.Enabled,
		"migrate_on_start", cfg.Database.MigrateOnStart,
	)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Logger:          log,
		Version:         version,
		Pool:            a.Pool,
		Metrics:         a.Metrics,
		MetricsPath:     cfg.Metrics.Path,
		JWTValidator:    a.JWT,
		Gate:            a.Gate,
		RateLimiter:     a.RateLimiter,
		BulkMaxItems:    cfg.Guards.BulkMaxItems,
		AuthService:     a.Auth,
		CompanyService:  a.Companies,
		FollowUpService: a.FollowUps,
		TaskService:     a.Tasks,
		TicketService:   a.Tickets,
		EventService:    a.Events,
		Permissions:     a.Permissions,
		Inbox:           a.Notifications,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Infow("server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	a.Pool.LogStats(ctx)
	log.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
