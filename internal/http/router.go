// README: HTTP router registration; every /api route runs behind Firebase auth.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"convoy/internal/http/handlers"
	"convoy/internal/http/middleware"
	"convoy/internal/infra"
	"convoy/internal/modules/booking"
	"convoy/internal/modules/collection"
	"convoy/internal/modules/tour"
)

type RouterDeps struct {
	Tours      *tour.Service
	Bookings   *booking.Service
	Collection *collection.Selector
	Verifier   infra.TokenVerifier
	Logger     *slog.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(middleware.Recovery(logger), middleware.Logging(logger))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	tourHandler := handlers.NewTourHandler(deps.Tours, deps.Bookings)
	bookingHandler := handlers.NewBookingHandler(deps.Bookings)
	collectionHandler := handlers.NewCollectionHandler(deps.Collection)

	api := r.Group("/api", middleware.Auth(deps.Verifier))
	{
		api.POST("/tours", tourHandler.Create)
		api.GET("/tours/:id", tourHandler.Get)
		api.POST("/tours/:id/transition", tourHandler.Transition)
		api.GET("/tours/:id/bookings", tourHandler.Bookings)
		api.POST("/tours/:id/bookings", bookingHandler.Create)
		api.GET("/tours/:id/collection-points", collectionHandler.List)
		api.GET("/carriers/me/tours", tourHandler.Mine)

		api.GET("/bookings/:id", bookingHandler.Get)
		api.POST("/bookings/:id/status", bookingHandler.ChangeStatus)
		api.PATCH("/bookings/:id/weight", bookingHandler.UpdateWeight)
		api.GET("/users/me/bookings", bookingHandler.Mine)
	}
	return r
}
