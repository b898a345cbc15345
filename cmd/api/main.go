// Package main is the entry point for the community registry API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/onnwee/domu/internal/config"
	"github.com/onnwee/domu/internal/middleware"
)

// shutdownTimeout bounds graceful shutdown after SIGINT/SIGTERM.
const shutdownTimeout = 10 * time.Second

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", os.Getenv("DOMU_CONFIG"), "path to an optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("Domu Community Registry API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			slog.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	summary := make([]any, 0, 2*len(cfg.LogSummary()))
	for k, v := range cfg.LogSummary() {
		summary = append(summary, k, v)
	}
	logger.Info("configuration loaded", summary...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.Port))
	if err != nil {
		logger.Error("failed to listen", "port", cfg.Port, "error", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, logger, ln); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// run serves on ln until ctx is cancelled, then drains in-flight requests.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, ln net.Listener) error {
	srv, err := newServer(ctx, cfg, logger)
	if err != nil {
		ln.Close()
		return err
	}

	httpServer := &http.Server{
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", ln.Addr().String(), "storage_backend", srv.opened.Backend)
		serveErr <- httpServer.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		_ = srv.close(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		_ = srv.close(shutdownCtx)
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if err := srv.close(shutdownCtx); err != nil {
		logger.Error("failed to release resources", "error", err)
	}

	logger.Info("server stopped")
	return nil
}
