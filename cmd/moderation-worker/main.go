package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/campuskart/backend/internal/app"
	"github.com/campuskart/backend/internal/config"
	"github.com/campuskart/backend/internal/handlers"
	"github.com/campuskart/backend/internal/metrics"
)

// The worker is the Eventarc target for Firestore document triggers on
// listings/{id} (created) and users/{uid} (written).
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.WithError(err).Fatal("cant load config")
	}
	cfg.SetupLogging()

	// Cloud Run injects PORT.
	if port := os.Getenv("PORT"); port != "" {
		cfg.ServerAddress = ":" + port
	}

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize")
	}

	events := handlers.NewEventHandler(a.Moderation.Dispatcher, 0)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/", handlers.Health)
	r.Get("/health", handlers.Health)
	r.Handle("/metrics", metrics.Handler())
	r.Post("/events", events.HandleEvent)

	srv := &http.Server{Addr: cfg.ServerAddress, Handler: r}
	go func() {
		log.Infof("moderation-worker listening on %s", cfg.ServerAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("worker failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
	if err := a.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("closing resources failed")
	}
}
