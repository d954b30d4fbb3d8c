package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/helpinghand/relay/internal/config"
	"github.com/helpinghand/relay/internal/logging"
)

func catchupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catchup",
		Short: "Scan chats once for missed messages and respond",
		Long:  "Runs a single catch-up pass: lists recent chats, routes every message newer than the last-processed bookmark, waits for the scheduled responses to go out, then exits.",
		Run: func(cmd *cobra.Command, args []string) {
			runCatchup()
		},
	}
}

func runCatchup() {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	closeLog := logging.Setup(cfg.Paths.LogFile, verbose)
	defer closeLog()

	app, err := buildApp(cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}

	if err := app.scanner.Run(context.Background()); err != nil {
		slog.Error("catch-up failed", "error", err)
		os.Exit(1)
	}

	// Catch-up delays are capped, so waiting for the responses is bounded.
	app.scheduler.Wait()
}
