package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"pathology-records-server/internal/config"
	"pathology-records-server/internal/logger"
	"pathology-records-server/internal/metrics"
	"pathology-records-server/internal/middleware"
	"pathology-records-server/internal/repository"
	"pathology-records-server/internal/routes"
	"pathology-records-server/internal/store"
	"pathology-records-server/internal/tracer"
)

func main() {
	// Load environment variables; a missing .env just means the real
	// environment is used.
	envErr := godotenv.Load()
	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		log.Fatalf("Error loading .env file: %v", envErr)
	}

	// Initialize configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	logr, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	defer func() { _ = logr.Sync() }()
	if envErr != nil {
		logr.Info("no .env file found, using process environment")
	}

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracer.Init(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logr.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	collector := metrics.NewCollector("pathology")

	backend, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Store.Driver, err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logr.Warn("closing store failed", zap.Error(err))
		}
	}()
	logr.Info("document store ready", zap.String("driver", cfg.Store.Driver))

	docs := store.Instrument(backend, collector.StoreOpDuration, tp.Tracer("pathology-records-server/store"))
	repos := repository.New(docs)

	if cfg.Bootstrap.AdminEmail != "" {
		created, err := repos.Users.EnsureAdmin(ctx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword)
		if err != nil {
			return fmt.Errorf("bootstrapping admin: %w", err)
		}
		if created {
			logr.Info("bootstrap admin created", zap.String("email", cfg.Bootstrap.AdminEmail))
		}
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	limiter := middleware.NewClientLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	go limiter.RunCleanup(ctx, time.Minute)

	router := routes.NewRouter(routes.Deps{
		Cfg:     cfg,
		Repos:   repos,
		Metrics: collector,
		Tracer:  tp.Tracer("pathology-records-server/http"),
		Limiter: limiter,
		Log:     logr,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listening: %w", err)
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logr.Info("server stopped")
	return nil
}
