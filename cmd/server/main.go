package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	httpHandlers "github.com/knokvik/ratewarden/internal/adapters/http/handlers"
	httpMiddleware "github.com/knokvik/ratewarden/internal/adapters/http/middleware"
	memorystorage "github.com/knokvik/ratewarden/internal/adapters/storage/memory"
	redisstorage "github.com/knokvik/ratewarden/internal/adapters/storage/redis"
	"github.com/knokvik/ratewarden/internal/config"
	"github.com/knokvik/ratewarden/internal/core/ports"
	"github.com/knokvik/ratewarden/internal/core/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, closeFn, err := initBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init backend: %v", err)
	}
	defer closeFn()

	limiter, err := services.NewAdmissionService(backend, services.Config{
		Window: cfg.RateLimiter.Window,
		Tiers:  cfg.RateLimiter.Tiers,
	})
	if err != nil {
		log.Fatalf("failed to create limiter: %v", err)
	}

	r := chi.NewRouter()
	r.Use(httpMiddleware.NewRateLimiterMiddleware(httpMiddleware.Options{
		Limiter:  limiter,
		FailOpen: cfg.RateLimiter.FailOpen,
	}))
	r.Get("/test", httpHandlers.TestHandler)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if err != nil {
			errCh <- err
		}
	}()
	log.Printf("listening on :%s (storage: %s)", cfg.Server.Port, cfg.Storage.Type)

	select {
	case <-ctx.Done():
		log.Println("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

func initBackend(ctx context.Context, cfg config.Config) (ports.Backend, func(), error) {
	switch cfg.Storage.Type {
	case "redis":
		storage, err := redisstorage.New(redisstorage.Config{
			Addr:      fmt.Sprintf("%s:%d", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
			Password:  cfg.Storage.Redis.Password,
			DB:        cfg.Storage.Redis.DB,
			KeyPrefix: cfg.RateLimiter.KeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return storage, func() {
			if err := storage.Close(); err != nil {
				log.Printf("failed to close redis storage: %v", err)
			}
		}, nil
	case "memory":
		storage := memorystorage.New()
		// The sweeper is the only thing bounding local-backend memory;
		// it stops with the signal context.
		storage.StartSweeper(ctx, cfg.RateLimiter.Window)
		return storage, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}
