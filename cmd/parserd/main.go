// Command parserd is the rteval submission report ingestion daemon.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/rteval-org/parserd/internal/adapter/db"
	"github.com/rteval-org/parserd/internal/adapter/observability"
	"github.com/rteval-org/parserd/internal/adapter/planengine/stub"
	"github.com/rteval-org/parserd/internal/config"
	"github.com/rteval-org/parserd/internal/domain"
	"github.com/rteval-org/parserd/internal/supervisor"
)

// metricsAddr is the loopback-bound address the internal /metrics and
// /healthz surface listens on.
const metricsAddr = "127.0.0.1:9100"

func main() {
	app := config.App(run)
	if err := app.Run(os.Args); err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok {
			fmt.Fprintln(os.Stderr, exitErr.Error())
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func run(c *cli.Context, resolved config.Resolved) error {
	cfg := resolved.Config

	logger, closeLog, err := observability.NewLogger(cfg.LogDest, cfg.LogLevel)
	if err != nil {
		return cli.Exit(fmt.Sprintf("op=main.run: logger setup: %v", err), 2)
	}
	defer closeLog()
	slog.SetDefault(logger)

	ctx := context.Background()
	shutdownTracing, err := observability.SetupTracing(ctx)
	if err != nil {
		logger.Warn("tracing setup failed, continuing without tracing", slog.Any("error", err))
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer shutdownTracing(ctx)

	if cfg.Daemon {
		if cfg.LogDest == "stderr:" || cfg.LogDest == "stdout:" || cfg.LogDest == "" {
			return cli.Exit("op=main.run: cannot daemonize while logging to the console; set -l/--log to a file or syslog destination", 3)
		}
		logger.Info("daemonizing")
	}

	logger.Info("starting parserd",
		slog.String("config_path", resolved.ConfigPath),
		slog.Int("threads", cfg.Threads),
		slog.String("report_dir", cfg.ReportDir))

	engine := stub.New()

	dial := func(ctx context.Context, dsn string, log *slog.Logger) (domain.Gateway, error) {
		return db.Connect(ctx, dsn, log)
	}

	sup := supervisor.New(cfg, logger, engine, dial)
	if err := sup.Run(ctx, metricsAddr); err != nil {
		return cli.Exit(fmt.Sprintf("op=main.run: %v", err), 4)
	}
	return nil
}
