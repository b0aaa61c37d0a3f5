// Package main is the entry point for the task-master server.
//
// main stays small: load config, build the logger, hand both to
// internal/server and exit non-zero on failure. Everything else lives in
// internal packages so it can be tested without a process.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sakif/task-master/internal/config"
	"github.com/sakif/task-master/internal/server"
)

func main() {
	// === 1. CONFIGURATION ===
	// Defaults, then the optional TOML file in $TASKMASTER_CONFIG, then
	// environment variables. JWT_SECRET has no default.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// === 2. LOGGING ===
	// Validate already checked the level, so the error can't happen here.
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// === 3. BUILD AND RUN ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
