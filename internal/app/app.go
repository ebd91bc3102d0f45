// Package app initializes and holds long-lived application services, acting
// as a small dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cvsdeals/promocrawl/internal/catalog"
	"github.com/cvsdeals/promocrawl/internal/logging"
	"github.com/cvsdeals/promocrawl/internal/store"
)

// App holds the shared, long-lived services for one process: the logger,
// the catalog store, and the metrics endpoint. It is initialized once at
// startup and passed to the commands that need it.
type App struct {
	logger        *zap.Logger
	store         catalog.Store
	metricsServer *http.Server
}

// GetLogger returns the shared zap logger instance.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetStore exposes the configured catalog store.
func (a *App) GetStore() catalog.Store {
	return a.store
}

// NewApp builds the service container from configuration. It fails fast on
// anything unusable, in particular a missing store DSN.
func NewApp(ctx context.Context) (*App, error) {
	l := logging.L
	l.Info("Initializing application services...")

	dsn := viper.GetString("store.dsn")
	if dsn == "" {
		return nil, fmt.Errorf("store.dsn is not set (PROMOCRAWL_STORE_DSN)")
	}
	catalogStore, err := store.New(ctx, store.Config{
		DSN:      dsn,
		Table:    viper.GetString("store.table"),
		MaxConns: int32(viper.GetInt("store.max_conns")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog store: %w", err)
	}

	app := &App{
		logger: l,
		store:  catalogStore,
	}
	app.startMetricsServer(viper.GetString("metrics.addr"))

	l.Info("Application services initialized successfully.")
	return app, nil
}

func (a *App) startMetricsServer(addr string) {
	if addr == "" {
		return
	}
	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	a.metricsServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("Starting metrics server", zap.String("addr", addr))
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
}

// Close gracefully shuts down all services in the container.
func (a *App) Close() {
	a.logger.Info("Shutting down application services...")
	if a.store != nil {
		a.store.Close()
	}
	if a.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("Error shutting down metrics server", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		// Best effort; stderr sync failures are expected on some platforms.
		_ = err
	}
}
