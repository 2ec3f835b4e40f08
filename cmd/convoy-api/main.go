// README: Entry point; loads config, wires the tour engine and notifiers, serves HTTP until signalled.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"convoy/internal/ai"
	"convoy/internal/config"
	httptransport "convoy/internal/http"
	"convoy/internal/infra"
	"convoy/internal/maps"
	"convoy/internal/modules/booking"
	"convoy/internal/modules/capacity"
	"convoy/internal/modules/collection"
	"convoy/internal/modules/tour"
	"convoy/internal/notify"
	"convoy/internal/store"
	"convoy/internal/store/memory"
	"convoy/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("convoy-api stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if cfg.Firebase.ProjectID == "" {
		return errors.New("CONVOY_FIREBASE_PROJECT_ID is required")
	}
	app, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		return err
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, app)
	if err != nil {
		return err
	}

	var uow store.UnitOfWork
	switch cfg.Store {
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		uow = memory.New()
	default:
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		uow = postgres.NewStore(pool)
	}

	notifiers := notify.Multi{notify.LogNotifier{Logger: logger}}
	if cfg.Redis.Addr != "" {
		rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		notifiers = append(notifiers, notify.NewRedisPublisher(rdb, cfg.Redis.Channel))
	}
	if cfg.Firebase.FCMEnabled {
		fcm, err := infra.NewMessaging(ctx, app)
		if err != nil {
			return err
		}
		notifiers = append(notifiers, notify.NewFCMNotifier(fcm))
	}
	events := notify.NewDispatcher(notifiers, cfg.Notify.Timeout, logger)

	ledger := capacity.NewLedger(uow, logger)
	projector := booking.NewProjector(ledger, logger)

	bookingDeps := booking.Deps{UoW: uow, Ledger: ledger, Projector: projector, Events: events, Logger: logger}
	tourDeps := tour.Deps{
		UoW:       uow,
		Projector: projector,
		Events:    events,
		Policy:    tour.ParseCancelPolicy(cfg.Tours.CancelPolicy),
		Logger:    logger,
	}
	var estimator collection.Estimator

	if cfg.AI.GeminiKey != "" {
		classifier, err := ai.NewGeminiClassifier(ctx, cfg.AI.GeminiKey)
		if err != nil {
			return err
		}
		defer classifier.Close()
		bookingDeps.Classifier = classifier
	}
	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey, cfg.Maps.Language)
		if err != nil {
			return err
		}
		places, err := maps.NewPlacesService(cfg.Maps.APIKey, cfg.Maps.Language, cfg.Maps.Region)
		if err != nil {
			return err
		}
		estimator = routes
		tourDeps.Resolver = places
	}

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Tours:      tour.NewService(tourDeps),
		Bookings:   booking.NewService(bookingDeps),
		Collection: collection.NewSelector(uow, estimator, logger),
		Verifier:   verifier,
		Logger:     logger,
	})
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("convoy-api listening", "addr", cfg.HTTP.Addr, "store", cfg.Store, "cancel_policy", tourDeps.Policy)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "err", err)
		}
	}
	// Deliver notifications for work that committed before shutdown.
	events.Wait()
	return nil
}
