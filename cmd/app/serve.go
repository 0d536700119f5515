package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stablecoin_go/internal/app"

	_ "net/http/pprof" // For pprof profiling
)

func serveCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Runs the engine with price feeds, keeper and query API",
		RunE:  serveFunc,
	}
	c.Flags().String("pprof", "localhost:6060", "pprof listen address; empty disables it")
	return c
}

func serveFunc(c *cobra.Command, _ []string) error {
	configPath, _ := c.Flags().GetString("config")
	pprofAddr, _ := c.Flags().GetString("pprof")

	// 1. Pprof Server (for performance profiling)
	if pprofAddr != "" {
		go func() {
			slog.Info("Pprof server started", slog.String("addr", pprofAddr))
			if err := http.ListenAndServe(pprofAddr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap(configPath)
	if err := bootstrap.Initialize(); err != nil {
		return err
	}
	defer func() {
		if err := bootstrap.Shutdown(); err != nil {
			slog.Error("Shutdown failed", slog.Any("error", err))
		}
	}()
	if err := bootstrap.BuildEngine(); err != nil {
		return err
	}

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Sequencer in its own goroutine (the single writer)
	seq := bootstrap.Sequencer
	go seq.Run(ctx)
	slog.InfoContext(ctx, "Sequencer started")

	// 5. Price feeds
	stopFeeds := bootstrap.StartFeeds(ctx)

	// 6. Query API
	srv := bootstrap.NewHTTPServer()
	go func() {
		slog.Info("Query API listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Query API failed", slog.Any("error", err))
			stop()
		}
	}()

	slog.InfoContext(ctx, "Collateral engine fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Query API shutdown failed", slog.Any("error", err))
	}
	stopFeeds()
	<-seq.Done()
	return nil
}
