package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/tunegrab/tunegrab/internal/config"
	"github.com/tunegrab/tunegrab/internal/database"
	"github.com/tunegrab/tunegrab/internal/events"
	"github.com/tunegrab/tunegrab/internal/modules/modulemanager"
	"github.com/tunegrab/tunegrab/internal/server"

	// Modules self-register on import.
	_ "github.com/tunegrab/tunegrab/internal/modules/downloadmodule"
	_ "github.com/tunegrab/tunegrab/internal/modules/eventsmodule"
	_ "github.com/tunegrab/tunegrab/internal/modules/normalizermodule"
	_ "github.com/tunegrab/tunegrab/internal/modules/pipelinemodule"
	_ "github.com/tunegrab/tunegrab/internal/modules/reachabilitymodule"
	_ "github.com/tunegrab/tunegrab/internal/modules/recognizermodule"
	_ "github.com/tunegrab/tunegrab/internal/modules/resolvermodule"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	appLogger := hclog.New(&hclog.LoggerOptions{
		Name:  "tunegrab",
		Level: hclog.LevelFromString(os.Getenv("LOG_LEVEL")),
	})

	if err := config.Load(*configPath); err != nil {
		appLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(config.Get().Media.WorkDir, 0o755); err != nil {
		appLogger.Error("failed to create work directory", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := events.NewEventBus(256)
	if err := eventBus.Start(ctx); err != nil {
		appLogger.Error("failed to start event bus", "error", err)
		os.Exit(1)
	}
	events.SetGlobalEventBus(eventBus)

	if err := database.Initialize(); err != nil {
		appLogger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}

	if err := modulemanager.LoadAll(database.GetDB()); err != nil {
		appLogger.Error("failed to load modules", "error", err)
		os.Exit(1)
	}

	router := server.New()
	srv := server.HTTPServer(router)

	go func() {
		appLogger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("server stopped unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("http shutdown did not complete cleanly", "error", err)
	}
	modulemanager.Shutdown()
	if err := eventBus.Stop(shutdownCtx); err != nil {
		appLogger.Warn("event bus stop timed out", "error", err)
	}
	cancel()

	appLogger.Info("shutdown complete")
}
