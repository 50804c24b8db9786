package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/contexta-ingest/internal/app"
	"github.com/markdave123-py/contexta-ingest/internal/config"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	application, err := app.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer application.Close()

	g, gctx := errgroup.WithContext(ctx)

	application.Ingestor.Start(gctx)
	g.Go(func() error {
		application.Ingestor.Wait()
		return nil
	})
	g.Go(application.Server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return application.Server.Shutdown(shutdownCtx)
	})

	slog.Info("contexta ingest is running", "port", cfg.Port)
	if err := g.Wait(); err != nil {
		slog.Error("shutdown with error", "err", err)
	}
	slog.Info("stopped")
}
