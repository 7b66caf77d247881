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
	"github.com/go-chi/cors"
	log "github.com/sirupsen/logrus"

	"github.com/campuskart/backend/internal/app"
	"github.com/campuskart/backend/internal/config"
	"github.com/campuskart/backend/internal/handlers"
	"github.com/campuskart/backend/internal/metrics"
	appMiddleware "github.com/campuskart/backend/internal/middleware"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.WithError(err).Fatal("cant load config")
	}
	cfg.SetupLogging()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize")
	}

	var authMW func(http.Handler) http.Handler
	switch {
	case cfg.AuthMode == config.AuthFirebase && a.Auth != nil:
		authMW = appMiddleware.FirebaseAuth(a.Auth)
	default:
		authMW = appMiddleware.JWTAuth(cfg.JWTSecret)
	}

	listingHandler := handlers.NewListingHandler(a.Store, a.InProcessDispatch(), cfg.RequestTimeout)
	profileHandler := handlers.NewProfileHandler(a.Store)
	adminHandler := handlers.NewAdminHandler(a.Moderation.Admin, a.Moderation.Claims, cfg.RequestTimeout)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", handlers.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMW)

			r.Get("/profile", profileHandler.GetProfile)

			r.Route("/listings", func(r chi.Router) {
				r.Post("/", listingHandler.CreateListing)
				r.Get("/{listingId}", listingHandler.GetListing)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Post("/self-grant", adminHandler.SelfGrantAdmin)

				r.Group(func(r chi.Router) {
					r.Use(appMiddleware.RequireAdmin)

					r.Route("/users/{userId}", func(r chi.Router) {
						r.Post("/ban", adminHandler.BanUser)
						r.Post("/unban", adminHandler.UnbanUser)
						r.Put("/admin", adminHandler.SetAdmin)
					})
					r.Route("/listings/{listingId}", func(r chi.Router) {
						r.Post("/approve", adminHandler.ApproveListing)
						r.Post("/reject", adminHandler.RejectListing)
						r.Delete("/", adminHandler.DeleteListing)
					})
				})
			})
		})
	})

	srv := &http.Server{Addr: cfg.ServerAddress, Handler: r}
	go func() {
		log.Infof("CampusKart API server starting on %s", cfg.ServerAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
	if err := a.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("closing resources failed")
	}
}
