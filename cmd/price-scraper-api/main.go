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

	"github.com/maltedev/catalog-price-scraper/internal/api"
	"github.com/maltedev/catalog-price-scraper/internal/app"
	"github.com/maltedev/catalog-price-scraper/internal/config"
	"github.com/maltedev/catalog-price-scraper/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger, app.Deps{})
	if err != nil {
		logger.Error("failed to initialize scraper", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	handlers := api.NewHandlers(a.Service, logger)
	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handlers, api.RouterOptions{Registry: a.Metrics.Registry}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	// Graceful shutdown
	idle := make(chan struct{})
	go func() {
		defer close(idle)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
			// Running batches give up between attempts.
			cancel()
		}
	}()

	logger.Info("server starting", "addr", server.Addr, "backend", cfg.Scraper.Backend)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		a.Close()
		os.Exit(1)
	}

	<-idle
	logger.Info("server stopped")
}
