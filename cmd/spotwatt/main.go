package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spotwatt/spotwatt/pkg/log"
	"github.com/spotwatt/spotwatt/pkg/prices"
	"github.com/spotwatt/spotwatt/pkg/server"
	"github.com/spotwatt/spotwatt/pkg/store"
	"github.com/spotwatt/spotwatt/pkg/upstream"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
)

func main() {
	// init packages
	primary := upstream.ConfiguredElering()
	secondary := upstream.ConfiguredENTSOE()
	series, daily := store.Configured()

	// assemble the service and server
	svc := prices.New(primary, secondary, series, daily)
	srv := server.Configured(svc)

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// let pending cache snapshots land before exiting
	defer func() {
		if err := svc.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close price service", "error", err)
		}
	}()

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
