package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/italolelis/media_analyzer/internal/analysis/gemini"
	"github.com/italolelis/media_analyzer/internal/config"
	"github.com/italolelis/media_analyzer/internal/fetch"
	"github.com/italolelis/media_analyzer/internal/headers"
	"github.com/italolelis/media_analyzer/internal/http/rest"
	"github.com/italolelis/media_analyzer/internal/logctx"
	"github.com/italolelis/media_analyzer/internal/mcptools"
	"github.com/italolelis/media_analyzer/internal/pipeline"
	"github.com/italolelis/media_analyzer/internal/scratch"
	"github.com/italolelis/media_analyzer/internal/storage/sqlite"
	"github.com/italolelis/media_analyzer/internal/telemetry"
)

const serviceName = "media_analyzer"

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	// Stdout carries the MCP protocol stream, so logs go to stderr.
	logger := slog.New(logctx.NewTraceHandler(
		slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("media analyzer starting...", "version", version, "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}
	defer database.Close()

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: serviceName,
	})
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}

	repo := sqlite.NewInstrumentedMediaRepository(database, tel)

	// =========================================================================
	// Start Acquisition Pipeline
	sm := scratch.NewManager(cfg.ScratchDir)
	fetcher := fetch.NewFetcher(headers.NewProvider(), sm, tel, cfg.MaxDownloadSize)
	analyzer := gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiBaseURL)

	p := pipeline.New(repo, repo, fetcher, sm, analyzer, tel)

	// =========================================================================
	// Start MCP Server
	mcpServer := gomcp.NewServer(
		&gomcp.Implementation{Name: "media-analyzer", Version: version},
		nil,
	)
	mcptools.Register(mcpServer, p)

	// =========================================================================
	// Start Admin API
	server := setupServer(ctx, repo, sm, tel, cfg)

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("serving MCP over stdio")

		return mcpServer.Run(gctx, &gomcp.StdioTransport{})
	})

	group.Go(func() error {
		logger.Info("initializing admin API", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	group.Go(func() error {
		<-gctx.Done()
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	return group.Wait()
}

// setupServer prepares the admin handlers and the metrics endpoint.
func setupServer(
	ctx context.Context,
	repo *sqlite.InstrumentedMediaRepository,
	sm *scratch.Manager,
	tel *telemetry.Telemetry,
	cfg *config.Config,
) *http.Server {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Mount("/", rest.NewAdminHandler(repo, sm).Routes())
	r.Handle("/metrics", tel.Handler())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
