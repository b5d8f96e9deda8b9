package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/icebreaker/internal/api"
	"github.com/kalambet/icebreaker/internal/collect"
	"github.com/kalambet/icebreaker/internal/config"
	"github.com/kalambet/icebreaker/internal/insight"
	"github.com/kalambet/icebreaker/internal/pipeline"
	"github.com/kalambet/icebreaker/internal/staging"
	"github.com/kalambet/icebreaker/internal/storage"
	"github.com/kalambet/icebreaker/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the run worker (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the comparison tools over MCP (stdio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status and effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func setupLogging(cfg config.LogConfig, w io.Writer) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

func parseDuration(key, value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", value, "default", fallback)
		return fallback
	}
	return d
}

// app holds the wired pipeline shared by the HTTP and MCP entry points.
type app struct {
	store *storage.Store
	orch  *pipeline.Orchestrator
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}

func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	store, err := storage.OpenDriver(cfg.Storage.Driver, cfg.Storage.DataDir, cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	stage, err := staging.Open(ctx, staging.Options{
		Backend:       cfg.Staging.Backend,
		Dir:           cfg.Staging.Dir,
		MemoryEntries: cfg.Staging.MemoryEntries,
		SQL:           store,
		S3: staging.S3Config{
			Endpoint:  cfg.Staging.S3Endpoint,
			Region:    cfg.Staging.S3Region,
			AccessKey: cfg.Staging.S3AccessKey,
			SecretKey: cfg.Staging.S3SecretKey,
			Bucket:    cfg.Staging.S3Bucket,
			UseSSL:    cfg.Staging.S3UseSSL,
		},
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening staging store: %w", err)
	}

	coll := collect.New(collect.Config{
		BaseURL:       cfg.Collector.BaseURL,
		Token:         cfg.Collector.APIToken,
		DatasetID:     cfg.Collector.DatasetID,
		IncludeErrors: true,
		PollInterval:  parseDuration("collector.poll_interval", cfg.Collector.PollInterval, 12*time.Second),
		MaxAttempts:   cfg.Collector.MaxAttempts,
	})

	ic := cfg.Insight.ForProvider()
	gen, err := insight.NewGenerator(ctx, ic.Provider, ic.BaseURL, ic.APIKey, ic.Model)
	if err != nil {
		store.Close()
		return nil, err
	}
	if oc, ok := gen.(*insight.OllamaClient); ok && !oc.HasModel(ctx) {
		printWarning("%s is not pulled locally; run `ollama pull` before comparing", oc.Name())
	}

	orch := pipeline.New(pipeline.Deps{
		Collector: coll,
		Staging:   stage,
		Analyzer:  insight.NewAnalyzer(gen, cfg.Insight.MaxPayloadBytes, nil),
		Recorder:  store,
	})

	slog.Info("pipeline ready",
		"storage", cfg.Storage.Driver,
		"staging", cfg.Staging.Backend,
		"insight_provider", cfg.Insight.Provider,
		"generator", generatorName(gen),
	)
	return &app{store: store, orch: orch}, nil
}

func generatorName(g insight.Generator) string {
	if n, ok := g.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "unknown"
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "icebreaker version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log, os.Stderr)

	if err := cfg.RequireSecrets(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := api.NewHandler(api.Deps{
		Pipeline: a.orch,
		Runs:     a.store,
		Queue:    a.store,
		Logger:   slog.Default(),
	})

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	w := worker.NewWorker(a.store, a.orch,
		parseDuration("worker.poll_interval", cfg.Worker.PollInterval, 500*time.Millisecond),
		slog.Default(),
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Start(gCtx, cfg.Worker.Concurrency)
	})
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "icebreaker listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// stdout carries the MCP protocol.
	setupLogging(cfg.Log, os.Stderr)

	if err := cfg.RequireSecrets(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Pipeline: a.orch,
		Runs:     a.store,
		Version:  version,
	})
	slog.Info("MCP server started (stdio transport)")

	stdioSrv := server.NewStdioServer(mcpSrv)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	base := serverURL(cfg)
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(base + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running at %s", base)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Collector", "%s (dataset %s)", cfg.Collector.BaseURL, cfg.Collector.DatasetID)
	printStatus("Polling", "every %s, up to %d attempts", cfg.Collector.PollInterval, cfg.Collector.MaxAttempts)
	printStatus("Insight", "%s / %s", cfg.Insight.Provider, cfg.Insight.Model)
	printStatus("Staging", "%s", cfg.Staging.Backend)
	printStatus("Storage", "%s", cfg.Storage.Driver)
	if err := cfg.RequireSecrets(); err != nil {
		printWarning("%v", err)
	}
	return nil
}
