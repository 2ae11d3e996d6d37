package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maximegiguere1one/chiroflow/adapter/cli"
	"github.com/maximegiguere1one/chiroflow/adapter/cli/appointment"
	"github.com/maximegiguere1one/chiroflow/adapter/cli/catalog"
	"github.com/maximegiguere1one/chiroflow/adapter/cli/rebooking"
	"github.com/maximegiguere1one/chiroflow/adapter/cli/token"
	"github.com/maximegiguere1one/chiroflow/adapter/cli/waitlist"
	"github.com/maximegiguere1one/chiroflow/internal/app"
	"github.com/maximegiguere1one/chiroflow/pkg/config"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:          observability.LogLevel(cfg.LogLevel),
		Format:         observability.LogFormat(cfg.LogFormat),
		Output:         os.Stderr,
		ServiceName:    "chiroflow",
		ServiceVersion: cfg.ServiceVersion,
		Production:     cfg.IsProduction(),
	})
	slog.SetDefault(logger)
	cli.SetLogger(logger)

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		if !cfg.IsDevelopment() {
			logger.Error("failed to initialize container", "error", err)
			return 1
		}
		// Commands that need the database report ErrNotInitialized.
		logger.Warn("failed to initialize container, running in limited mode", "error", err)
	} else {
		defer container.Close()
		cli.SetApp(cli.NewApp(container))
	}

	cli.AddCommand(appointment.Cmd)
	cli.AddCommand(catalog.HoursCmd)
	cli.AddCommand(catalog.ServiceCmd)
	cli.AddCommand(waitlist.Cmd)
	cli.AddCommand(rebooking.Cmd)
	cli.AddCommand(token.Cmd)

	if err := cli.Execute(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
