// Package app assembles the store, identity provider and moderation pipeline
// from configuration. Both binaries start here.
package app

import (
	"context"
	"errors"
	"fmt"

	fbauth "firebase.google.com/go/v4/auth"
	log "github.com/sirupsen/logrus"

	"github.com/campuskart/backend/internal/config"
	"github.com/campuskart/backend/internal/moderation"
	"github.com/campuskart/backend/internal/services"
	"github.com/campuskart/backend/internal/storage"
)

type App struct {
	Config     *config.Config
	Store      moderation.Store
	Moderation *moderation.Service
	// Auth is nil unless Firebase is configured.
	Auth *fbauth.Client

	closers []func(context.Context) error
}

// Build wires everything cfg asks for. Call Close on shutdown.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	var claims moderation.ClaimsProvider
	if cfg.NeedsFirebase() {
		fbApp, err := services.NewFirebaseApp(ctx, services.FirebaseConfig{
			ProjectID:       cfg.FirebaseProjectID,
			CredentialsJSON: cfg.FirebaseCredentialsJSON,
		})
		if err != nil {
			return nil, err
		}
		authClient, err := fbApp.Auth(ctx)
		if err != nil {
			return nil, fmt.Errorf("firebase: auth client: %w", err)
		}
		a.Auth = authClient
		claims = services.NewFirebaseClaims(authClient)

		if cfg.StoreDriver == config.StoreFirestore {
			fs, err := fbApp.Firestore(ctx)
			if err != nil {
				return nil, fmt.Errorf("firebase: firestore client: %w", err)
			}
			store := storage.NewFirestoreStore(fs)
			a.Store = store
			a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		}
	}

	if a.Store == nil {
		store, err := openStore(ctx, cfg)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.Store = store
	}

	policy, err := services.LoadPolicy(ctx, cfg.PolicyURI)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	var screener moderation.ImageScreener
	if cfg.ImageScreening {
		ss, err := services.NewSafeSearchScreener(ctx)
		if err != nil {
			log.WithError(err).Warn("[app] image screening disabled")
		} else {
			screener = ss
		}
	}

	svc, err := moderation.New(a.Store, moderation.Options{
		Policy:            policy,
		Claims:            claims,
		Screener:          screener,
		AllowBootstrap:    cfg.AllowAdminBootstrap,
		InProcessTriggers: cfg.InProcessTriggers,
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Moderation = svc

	log.WithFields(log.Fields{
		"store":               cfg.StoreDriver,
		"auth":                cfg.AuthMode,
		"in_process_triggers": cfg.InProcessTriggers,
		"image_screening":     screener != nil,
	}).Info("[app] moderation pipeline ready")
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config) (moderation.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return storage.NewMemoryStore(), nil
	case config.StoreFile:
		return storage.NewFileStore(cfg.DataDir)
	case config.StoreMongo:
		return storage.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
	}
	return nil, fmt.Errorf("app: store driver %q needs Firebase", cfg.StoreDriver)
}

// InProcessDispatch returns the dispatcher HTTP handlers should fire events
// on, or nil when the database delivers them to the worker.
func (a *App) InProcessDispatch() *moderation.Dispatcher {
	if !a.Config.InProcessTriggers {
		return nil
	}
	return a.Moderation.Dispatcher
}

func (a *App) Close(ctx context.Context) error {
	var errs []error
	if ms, ok := a.Store.(*storage.MongoStore); ok {
		errs = append(errs, ms.Close(ctx))
	}
	for _, c := range a.closers {
		errs = append(errs, c(ctx))
	}
	return errors.Join(errs...)
}
