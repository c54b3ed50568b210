// README: Entry point; loads config, wires services, starts HTTP server and background schedulers.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"haven/internal/config"
	"haven/internal/geocode"
	httptransport "haven/internal/http"
	"haven/internal/infra"
	"haven/internal/modules/checkin"
	"haven/internal/modules/presence"
	"haven/internal/modules/sos"
	"haven/internal/modules/tracking"
	"haven/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := infra.NewLogger(cfg.LogFormat == "console")
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Firebase.ProjectID == "" {
		log.Fatal("HAVEN_FIREBASE_PROJECT_ID is required")
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		log.Fatalf("firebase init: %v", err)
	}
	fcm, err := infra.NewMessaging(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		log.Fatalf("firebase messaging init: %v", err)
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	geocoder, err := newGeocoder(cfg.Geocode)
	if err != nil {
		log.Fatalf("geocoder init: %v", err)
	}
	resolver := geocode.NewResolver(geocoder, logger)

	tokenStore := notify.NewTokenStore(dbPool)
	notifier := notify.NewFCMNotifier(fcm, tokenStore, logger)
	dispatcher := notify.NewDispatcher(notifier, logger, cfg.Notify.QueueDepth)

	feed := tracking.NewDeviceFeed()
	trackingStore := tracking.NewStore(dbPool, redisClient)
	trackingCfg := tracking.Config{
		AccuracyProfile:         tracking.AccuracyProfile(cfg.Tracking.AccuracyProfile),
		UpdateInterval:          time.Duration(cfg.Tracking.UpdateIntervalMs) * time.Millisecond,
		DistanceThresholdMeters: cfg.Tracking.DistanceThresholdMeters,
		HistoryWriteFrequency:   time.Duration(cfg.Tracking.HistoryWriteFrequencyMinutes) * time.Minute,
	}
	trackingSvc := tracking.NewService(trackingStore, feed, resolver, trackingCfg, logger)

	contactStore := sos.NewContactStore(dbPool)
	sosSvc := sos.NewService(trackingStore, trackingSvc, resolver, contactStore, dispatcher, logger)

	connectionStore := presence.NewConnectionStore(dbPool)
	presenceSvc := presence.NewService(connectionStore, trackingSvc, trackingSvc, logger)

	checkinStore := checkin.NewStore(dbPool)
	checkinSvc := checkin.NewService(checkinStore, trackingSvc, connectionStore, contactStore, dispatcher, logger)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Tracking:    trackingSvc,
		Feed:        feed,
		Presence:    trackingStore,
		Connections: connectionStore,
		CheckIn:     checkinSvc,
		CheckIns:    checkinStore,
		SOS:         sosSvc,
		Contacts:    contactStore,
		Sharing:     presenceSvc,
		Tokens:      tokenStore,
		Verifier:    verifier,
		Logger:      logger,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}

	go dispatcher.Run(ctx)
	go presenceSvc.RunScheduler(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func newGeocoder(cfg config.GeocodeConfig) (geocode.Geocoder, error) {
	if cfg.Provider == "google" {
		return geocode.NewGoogleGeocoder(cfg.GoogleAPIKey)
	}
	return geocode.NewNominatimGeocoder(cfg.NominatimURL), nil
}
