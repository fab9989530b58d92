package main

import (
	"context"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog/log"

	"conversions-relay-service/internal/config"
	"conversions-relay-service/internal/controller"
	"conversions-relay-service/internal/db"
	"conversions-relay-service/internal/facebook"
	"conversions-relay-service/internal/geoip"
	httpserver "conversions-relay-service/internal/http"
	"conversions-relay-service/internal/logging"
	"conversions-relay-service/internal/model"
	"conversions-relay-service/internal/repository"
	"conversions-relay-service/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	logging.Init(cfg.LogLevel, cfg.AppMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.NewConnection(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("connect clickhouse")
	}
	defer conn.Close()

	if err := db.RunMigrations(ctx, conn); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	// Geo enrichment is optional: a failed init degrades lookups to empty
	// results instead of blocking startup.
	geoService := geoip.NewService(cfg.GeoIPDBPath, cfg.GeoCacheTTL, cfg.GeoCacheSize)
	if !geoService.Initialize() {
		log.Warn().Msg("geoip unavailable, events will be delivered without enrichment")
	}
	defer geoService.Close()

	eventRepo := repository.NewEventRepository(conn)
	pixelRepo := repository.NewPixelConfigRepository(conn)

	worker := service.NewRecordWorker(eventRepo, cfg.WorkerBufferSize, cfg.WorkerBatchSize, cfg.WorkerFlushEvery)
	defer worker.Shutdown()

	resolver := service.NewPixelResolver(pixelRepo, model.Credentials{
		PixelID:     cfg.PixelID,
		AccessToken: cfg.AccessToken,
		TestCode:    cfg.TestCode,
	})

	sender := facebook.NewClient(cfg.FacebookAPIURL, cfg.DeliveryTimeout, cfg.DeliveryMaxAttempts, cfg.DeliveryRetryBaseDelay)

	eventService := service.NewEventService(resolver, geoService, sender, worker, cfg.DefaultCountryCode, cfg.DefaultCurrency)
	eventController := controller.NewEventController(eventService, geoService)

	server := httpserver.NewServer(cfg, eventController)

	go func() {
		<-ctx.Done()
		if err := server.Shutdown(); err != nil {
			log.Error().Err(err).Msg("server shutdown")
		}
	}()

	log.Info().Str("addr", cfg.HTTPPort).Msg("starting server")
	if err := server.Listen(cfg.HTTPPort); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
