package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	channelimpl "github.com/foxseedlab/mixerd/external/channel"
	configloader "github.com/foxseedlab/mixerd/external/config"
	repositoryimpl "github.com/foxseedlab/mixerd/external/repository"
	webhookimpl "github.com/foxseedlab/mixerd/external/webhook"
	"github.com/foxseedlab/mixerd/internal/api"
	"github.com/foxseedlab/mixerd/internal/config"
	"github.com/foxseedlab/mixerd/internal/router"
	"github.com/samber/do/v2"
)

const (
	orphanRecoveryTimeout = 15 * time.Second
	routerCloseTimeout    = 10 * time.Second
)

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "router_id", cfg.RouterID)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching mixer controller")
	run(injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	channelimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	router.RegisterDI(injector)
	api.RegisterDI(injector)

	return injector
}

func run(injector do.Injector) {
	engine, err := do.Invoke[*channelimpl.WebSocketChannel](injector)
	if err != nil {
		slog.Error("failed to connect mixing engine", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			slog.Error("engine channel close failed", "error", err)
		}
	}()
	slog.Info("startup: engine channel connected")

	r, err := do.Invoke[*router.Router](injector)
	if err != nil {
		slog.Error("failed to resolve router", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), orphanRecoveryTimeout)
	if err := r.RecoverOrphans(ctx); err != nil {
		slog.Error("failed to recover orphan mixers", "error", err, "router_id", r.ID())
	}
	cancel()

	server, err := do.Invoke[*api.Server](injector)
	if err != nil {
		slog.Error("failed to resolve api server", "error", err)
		os.Exit(1)
	}
	server.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutting down")
	case <-engine.Done():
		slog.Error("engine channel lost; shutting down")
	}

	if err := server.Shutdown(context.Background()); err != nil {
		slog.Error("api server shutdown failed", "error", err)
	}
	closeCtx, closeCancel := context.WithTimeout(context.Background(), routerCloseTimeout)
	defer closeCancel()
	r.Close(closeCtx)
}
