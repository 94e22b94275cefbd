// Command membankd runs the memory bank MCP server.
//
// It speaks JSON-RPC 2.0 (MCP protocol) over stdio by default, or over
// Streamable HTTP when configured, and persists structured memory blocks
// to a Dolt-compatible versioned MySQL backend.
//
// Configuration is read from (in order of precedence) environment
// variables, a TOML config file, then built-in defaults. See
// internal/config for the full list of MEMBANK_* environment variables.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cognisys/memorybank/internal/bank"
	"github.com/cognisys/memorybank/internal/config"
	"github.com/cognisys/memorybank/internal/content"
	"github.com/cognisys/memorybank/internal/index"
	"github.com/cognisys/memorybank/internal/mcp"
	"github.com/cognisys/memorybank/internal/pool"
	"github.com/cognisys/memorybank/internal/schema"
	"github.com/cognisys/memorybank/internal/scheduler"
	"github.com/cognisys/memorybank/internal/tools/branch"
	"github.com/cognisys/memorybank/internal/tools/health"
	"github.com/cognisys/memorybank/internal/tools/links"
	"github.com/cognisys/memorybank/internal/tools/memory"
	"github.com/cognisys/memorybank/internal/tools/namespace"
	"github.com/cognisys/memorybank/internal/tools/search"
)

// Version is set via ldflags at build time.
var Version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "info" {
		runInfo(os.Args[2:])
		return
	}

	configPath := flag.String("config", "", "path to membank.toml")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "membankd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	logger.Info("starting membankd",
		"version", Version,
		"backend", fmt.Sprintf("%s:%d/%s", cfg.Backend.Host, cfg.Backend.Port, cfg.Backend.Database),
		"default_branch", cfg.DefaultBranch,
		"transport", cfg.Transport.Mode,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p, err := pool.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("opening backend pool: %w", err)
	}
	defer p.Close()

	registry, err := schema.New(ctx, p.DB())
	if err != nil {
		return fmt.Errorf("loading schema registry: %w", err)
	}

	ix, err := index.Open(cfg.Index.Path, cfg.Index.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("opening semantic index: %w", err)
	}
	defer ix.Close()

	b := bank.New(cfg, p, registry, ix, logger)

	tools := mcp.NewRegistry()

	tools.Register(memory.NewCreateMemoryBlock(b))
	tools.Register(memory.NewGetMemoryBlock(b))
	tools.Register(memory.NewQueryMemoryBlocks(b))
	tools.Register(memory.NewUpdateMemoryBlock(b))
	tools.Register(memory.NewDeleteMemoryBlock(b))

	tools.Register(links.NewCreateBlockLink(b))
	tools.Register(links.NewDeleteBlockLink(b))
	tools.Register(links.NewGetLinkedBlocks(b))

	tools.Register(search.NewSemanticSearch(b))

	tools.Register(branch.NewListBranches(b))
	tools.Register(branch.NewCreateBranch(b))
	tools.Register(branch.NewCheckoutBranch(b))
	tools.Register(branch.NewCommit(b))
	tools.Register(branch.NewMergeBranches(b))

	tools.Register(namespace.NewListNamespaces(b))
	tools.Register(namespace.NewCreateNamespace(b))

	tools.Register(health.NewHealthCheck(b))

	tools.RegisterPrompt(&content.UsageGuidePrompt{})

	tools.RegisterResource(content.NewBlockTypesResource(registry))
	tools.RegisterResource(content.NewToolReferenceResource(tools))

	sched := scheduler.NewScheduler(logger)
	sched.AddJob(pool.NewHealthJob(p), cfg.HealthCheck.Interval)
	sched.AddJob(index.NewReconciler(ix, p.DB(), logger), cfg.HealthCheck.Interval)
	sched.Start(ctx)
	defer sched.Stop()

	server := mcp.NewServer(tools, mcp.ServerInfo{
		Name:    "membankd",
		Version: Version,
	}, logger, cfg.Call.DefaultDeadline)

	if cfg.Transport.Mode == "http" {
		return runHTTP(ctx, cfg, server, logger)
	}
	return server.Run(ctx)
}

func runHTTP(ctx context.Context, cfg *config.Config, server *mcp.Server, logger *slog.Logger) error {
	httpServer := mcp.NewHTTPServer(server, cfg.Transport.CORSOrigins, logger)
	addr := fmt.Sprintf("%s:%s", cfg.Transport.Host, cfg.Transport.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: httpServer.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Connection.Timeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
