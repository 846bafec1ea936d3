package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/astro1860/building-review-copliot/internal/config"
	logpkg "github.com/astro1860/building-review-copliot/internal/logger"
	"github.com/astro1860/building-review-copliot/internal/metrics"
	chiTransport "github.com/astro1860/building-review-copliot/internal/transport/chi"
	"github.com/astro1860/building-review-copliot/internal/version"
)

func newServeCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  "Serves document upload, streamed answers, references and session history over HTTP.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), port)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides http.port)")
	return cmd
}

func runServe(ctx context.Context, portOverride int) error {
	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if portOverride > 0 {
		cfg.HTTP.Port = portOverride
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting copilot API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
	)

	// Registered explicitly, once, from main.
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterGenerationMetrics()
	metrics.RegisterRetrievalMetrics()

	a, err := newApp(ctx, cfg, logger, true)
	if err != nil {
		logger.Error("Failed to assemble copilot", zap.Error(err))
		return err
	}
	defer a.Close()

	server := chiTransport.NewServer(a.chat, a.session, a.health, logger).
		WithExamples(cfg.Session.ExampleQuestions).
		WithMaxUploadBytes(cfg.HTTP.MaxUploadMB << 20).
		WithUsage(a.usage)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           chiTransport.NewRouter(server, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-quit:
		logger.Info("Received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			logger.Error("HTTP server error", zap.Error(err))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
		return err
	}

	logger.Info("Server stopped gracefully")
	return nil
}
