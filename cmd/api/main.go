package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/markdave123-py/docsift/internal/app"
	"github.com/markdave123-py/docsift/internal/applog"
	"github.com/markdave123-py/docsift/internal/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	applog.Init(applog.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	// SIGINT/SIGTERM cancel ctx; in-flight ingestions still run to completion.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		applog.Fatalf("docsift stopped: %v", err)
	}
	applog.Info("docsift stopped")
	applog.Sync()
}

func run(ctx context.Context, cfg *config.Config) error {
	application, err := app.NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	defer application.Close()

	applog.Info("docsift is running", "port", cfg.Port)
	return application.Run(ctx)
}
