// Command membank-reconcile runs a single pass of the index
// reconciler and exits. Useful for a cron-driven deployment that
// prefers an external scheduler over membankd's built-in one, or for
// forcing a catch-up pass after a known outage of the semantic index.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/cognisys/memorybank/internal/config"
	"github.com/cognisys/memorybank/internal/index"
	"github.com/cognisys/memorybank/internal/pool"
)

func main() {
	configPath := flag.String("config", "", "path to membank.toml")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "membank-reconcile: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	p, err := pool.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("connecting to backend: %w", err)
	}
	defer p.Close()

	ix, err := index.Open(cfg.Index.Path, cfg.Index.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("opening semantic index: %w", err)
	}
	defer ix.Close()

	reconciler := index.NewReconciler(ix, p.DB(), logger)
	if err := reconciler.Run(context.Background()); err != nil {
		return fmt.Errorf("reconciliation pass failed: %w", err)
	}
	return nil
}
