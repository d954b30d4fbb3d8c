package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/helpinghand/relay/internal/config"
	"github.com/helpinghand/relay/internal/httpapi"
	"github.com/helpinghand/relay/internal/logging"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
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
	slog.Info("relay starting",
		"version", Version,
		"personas", app.registry.Len(),
		"port", cfg.Server.Port)

	var readLog httpapi.LogReadFunc
	if cfg.Paths.LogFile != "" {
		logFile := cfg.Paths.LogFile
		readLog = func(n int) []string { return logging.Tail(logFile, n) }
	}
	api := httpapi.NewServer(httpapi.Deps{
		Registry:      app.registry,
		Sink:          app.processor,
		Subs:          app.manager,
		Catchup:       app.scanner,
		Store:         app.store,
		ReadLog:       readLog,
		Credentials:   app.tokens.Credentials,
		LLMConfigured: app.completions.Configured,
		Version:       Version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return api.Start(ctx, cfg.Server.Port)
	})

	if cfg.Subscription.CallbackURL != "" {
		g.Go(func() error {
			if err := app.manager.Ensure(ctx); err != nil {
				slog.Error("initial subscription failed, renewal loop will retry", "error", err)
			}
			return app.manager.RenewalLoop(ctx)
		})
	} else {
		slog.Warn("no callback URL configured, running without a subscription")
	}

	if cfg.Personas.Watch {
		g.Go(func() error {
			return app.registry.Watch(ctx)
		})
	}

	// One catch-up sweep at startup picks up anything missed while down.
	g.Go(func() error {
		if err := app.scanner.Run(ctx); err != nil {
			slog.Error("startup catch-up failed", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		slog.Error("relay stopped", "error", err)
		os.Exit(1)
	}

	drain(app)
	slog.Info("relay stopped")
}

// drain gives in-flight responses a bounded window to finish.
func drain(app *app) {
	done := make(chan struct{})
	go func() {
		app.scheduler.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		slog.Warn("shutdown with responses still pending")
	}
}
