// Package http registers the HTTP routes and delegates to module services.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carpool/internal/http/handlers"
	"carpool/internal/http/middleware"
	"carpool/internal/modules/location"
	"carpool/internal/modules/pricing"
	"carpool/internal/modules/ride"
)

type RouterDeps struct {
	Rides     *ride.Service
	Locations *location.Service
	Pricing   *pricing.Service
	Logger    *zap.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logging(deps.Logger))

	rideHandler := handlers.NewRideHandler(deps.Rides)
	rides := r.Group("/api/rides")
	rides.POST("", rideHandler.Create)
	rides.GET("", rideHandler.List)
	rides.GET("/:id", rideHandler.Get)
	rides.GET("/:id/riders", rideHandler.Riders)
	rides.GET("/:id/events", rideHandler.Events)
	rides.GET("/:id/split", rideHandler.Split)
	rides.POST("/:id/join", rideHandler.Join)
	rides.POST("/:id/close", rideHandler.Close)
	rides.POST("/:id/accept", rideHandler.Accept)
	rides.POST("/:id/start", rideHandler.Start)
	rides.POST("/:id/complete", rideHandler.Complete)
	rides.POST("/:id/cancel", rideHandler.Cancel)

	locationHandler := handlers.NewLocationHandler(deps.Locations)
	r.POST("/api/locations/resolve", locationHandler.Resolve)

	pricingHandler := handlers.NewPricingHandler(deps.Pricing)
	r.POST("/api/price/quote", pricingHandler.Quote)
	r.POST("/api/price/split", pricingHandler.Split)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
