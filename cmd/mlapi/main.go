package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spacesedan/mlapi/config"
	"github.com/spacesedan/mlapi/internal/app"
	"github.com/spacesedan/mlapi/internal/logging"
)

func main() {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	config.LoadEnv(env)

	cfg := config.Load()
	logging.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("[Main] Failed to start service",
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		slog.Error("[Main] Server stopped with error",
			slog.String("error", err.Error()))
		a.Close()
		os.Exit(1)
	}
}
