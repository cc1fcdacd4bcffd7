// Package main is the entry point for the samstored data service.
//
// samstored hosts the experiment-tracking store: document collections with
// typed binary content, boolean search and a change feed. Serving surfaces
// (HTTP API, dashboard, task queue) live in separate processes that link the
// internal packages; this binary owns the data directory and the change-feed
// watchers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/samlab-dev/samstore/internal/notify"
	"github.com/samlab-dev/samstore/internal/store"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "samstored: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	dataDir := flag.String("data-dir", "./data", "Data directory")
	configPath := flag.String("config", "", "Path to YAML config (optional; defaults to the standard collection layout)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
	slog.SetDefault(logger)

	switch *logLevel {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", *logLevel)
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := store.DefaultConfig(*dataDir)
	if *configPath != "" {
		var err error
		if cfg, err = store.LoadConfig(*configPath, *dataDir); err != nil {
			return err
		}
	}

	start := time.Now()
	registry, err := store.Open(cfg)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Store opened", "dir", cfg.DataDir, "collections", len(cfg.Collections), "in", time.Since(start).Round(time.Millisecond))

	if err := registry.WatchFiles(ctx); err != nil {
		return err
	}

	broker := notify.NewBroker()
	watcher := notify.NewWatcher(registry, broker)
	slog.InfoContext(ctx, "Change feed running", "watched", len(registry.Watched()))
	watcher.Run(ctx)
	slog.InfoContext(ctx, "Shutting down")
	return nil
}
