// Command concoro-api serves the concorsi listing API.
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
	"syscall"

	"github.com/concoro-it/concoro/internal/config"
	"github.com/concoro-it/concoro/internal/logging"
	"github.com/concoro-it/concoro/pkg/di"
)

var (
	configPath = flag.String("config", "", "Path to YAML configuration file")
	logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat  = flag.String("log-format", "", "Log format (text, json)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading configuration", "error", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}

	logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ln, err := net.Listen("tcp", cfg.Server.Address)
	if err != nil {
		logger.Error("listening", "address", cfg.Server.Address, "error", err)
		os.Exit(1)
	}

	if err := serve(ctx, cfg, logging.NewSlogAdapter(logger), ln); err != nil {
		logger.Error("concoro error", "error", err)
		os.Exit(1)
	}

	logger.Info("concoro shutdown complete")
}

// serve wires the container and answers HTTP on ln until ctx is done, then
// drains in-flight requests within the shutdown timeout.
func serve(ctx context.Context, cfg config.Config, logger logging.Logger, ln net.Listener) error {
	container, err := di.NewContainer(ctx, cfg, di.WithLogger(logger))
	if err != nil {
		ln.Close()
		return fmt.Errorf("building container: %w", err)
	}
	defer container.Close()

	read, write, shutdown := cfg.ServerTimeouts()
	srv := &http.Server{
		Handler:      container.Handler(),
		ReadTimeout:  read,
		WriteTimeout: write,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", ln.Addr().String(), "store", cfg.Store.Driver)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", shutdown)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdown)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
