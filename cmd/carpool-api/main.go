// Entry point; loads config, wires services and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"carpool/internal/config"
	httptransport "carpool/internal/http"
	"carpool/internal/infra"
	"carpool/internal/maps"
	"carpool/internal/modules/location"
	"carpool/internal/modules/pricing"
	"carpool/internal/modules/ride"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := infra.NewLogger(os.Getenv("CARPOOL_ENV"))
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("postgres init", zap.Error(err))
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	if cfg.Maps.APIKey == "" {
		logger.Fatal("GOOGLE_MAPS_API_KEY is required")
	}
	routeSvc, err := maps.NewService(cfg.Maps.APIKey)
	if err != nil {
		logger.Fatal("maps init", zap.Error(err))
	}

	pricingSvc := pricing.NewService(pricing.ParamsFromConfig(cfg.Pricing))

	locationStore := location.NewStore(dbPool)
	locationSvc := location.NewService(locationStore, routeSvc, cfg.Location, logger)

	rideStore := ride.NewStore(dbPool, redisClient)
	rideSvc := ride.NewService(rideStore, locationSvc, routeSvc, pricingSvc, logger)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Rides:     rideSvc,
		Locations: locationSvc,
		Pricing:   pricingSvc,
		Logger:    logger,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("serve", zap.Error(err))
	}
}
