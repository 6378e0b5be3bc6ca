package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/api"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/attest"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/config"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/oracle"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/provenance"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/server"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/storage"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/trust"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML or TOML config file (chosen by extension)")
	envFile := flag.String("env-file", ".env", "Path to a dotenv file (ignored if missing)")
	flag.String("transport", "stdio", "Transport mode: stdio or http")
	flag.String("port", "8081", "HTTP port (only used with --transport http)")
	flag.String("data-dir", "./data", "Directory for the SQLite database")
	flag.String("driver", "sqlite", "Storage driver: sqlite or mysql")
	flag.String("dsn", "", "MySQL DSN (only used with --driver mysql)")
	flag.String("log-level", "info", "Log level: debug, info, warn or error")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := applyFlags(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid flags: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// applyFlags overrides file and environment settings with explicitly set flags.
func applyFlags(cfg *config.Config) error {
	flag.Visit(func(f *flag.Flag) {
		v := f.Value.String()
		switch f.Name {
		case "transport":
			cfg.Server.Transport = v
		case "port":
			cfg.Server.Port = v
		case "data-dir":
			cfg.Storage.DataDir = v
		case "driver":
			cfg.Storage.Driver = v
		case "dsn":
			cfg.Storage.DSN = v
		case "log-level":
			cfg.Log.Level = v
		}
	})
	if err := cfg.ExpandPaths(); err != nil {
		return err
	}
	return cfg.Validate()
}

// initLogger writes JSON to stderr; stdout carries the MCP stream in stdio mode.
func initLogger(level string) *slog.Logger {
	lvl, _ := config.ParseLevel(level)
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, storage.Dialect(cfg.Storage.Driver), cfg.StorageTarget())
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	engine, err := trust.NewEngine(cfg.Trust.Weights)
	if err != nil {
		return err
	}
	svc, err := provenance.New(store, engine, cfg.Provenance(),
		provenance.WithLogger(logger),
		provenance.WithRegistrar(&attest.Simulated{
			Network: cfg.Attestation.Network,
			Delay:   cfg.Attestation.SimulatedDelay,
		}),
		provenance.WithAnalyzer(oracle.NewStatic()),
	)
	if err != nil {
		return err
	}

	// Build the MCP server with all tools registered
	srv := server.New(svc)

	switch cfg.Server.Transport {
	case "stdio":
		logger.Info("trust ledger starting", "transport", "stdio", "storage", store.Dialect())
		return srv.Run(ctx, &mcp.StdioTransport{})
	case "http":
		mcpHandler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
			return srv
		}, nil)
		handler := api.New(svc, api.Options{
			Logger:         logger,
			RateLimit:      cfg.Server.RateLimit,
			RateBurst:      cfg.Server.RateBurst,
			MaxBodyBytes:   cfg.Server.MaxBodyBytes,
			MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
			MCP:            mcpHandler,
		}).Handler()
		return serveHTTP(ctx, ":"+cfg.Server.Port, handler, logger)
	default:
		return fmt.Errorf("unknown transport: %s (use stdio or http)", cfg.Server.Transport)
	}
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("trust ledger listening", "transport", "http", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
