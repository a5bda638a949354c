// Package main runs an in-memory stand-in for the property management chat
// backend, for trying the CLI without the real service.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/raphaelgruber/propchat/internal/config"
	"github.com/raphaelgruber/propchat/internal/devserver"
)

func main() {
	addr := flag.String("addr", envOr("PROPCHAT_DEVSERVER_ADDR", ":8000"), "listen address")
	token := flag.String("token", os.Getenv("PROPCHAT_DEVSERVER_TOKEN"), "require this bearer token")
	delay := flag.Duration("delay", 40*time.Millisecond, "pause between streamed chunks")
	logFile := flag.String("log-file", filepath.Join(os.TempDir(), "propchat-devserver.log"), "log file")
	debug := flag.Bool("debug", os.Getenv("LOG_LEVEL") == "debug", "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger, closeLog := config.SetupLogger(*logFile, level)
	defer func() {
		if err := closeLog(); err != nil {
			slog.Error("failed to close log file", "error", err)
		}
	}()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := devserver.New(
		devserver.WithLogger(logger),
		devserver.WithToken(*token),
		devserver.WithChunkDelay(*delay),
	)

	logger.Info("starting propchat-devserver", "addr", *addr, "api", devserver.APIPrefix, "auth", *token != "")
	if err := srv.Run(ctx, *addr); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
