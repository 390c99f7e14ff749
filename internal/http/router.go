// README: HTTP router registration.
package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schoolride/internal/http/handlers"
	"schoolride/internal/http/middleware"
)

const (
	roleParent = "parent"
	roleDriver = "driver"
	roleAdmin  = "admin"
)

func (s *Server) Routes() *gin.Engine {
	cfg := s.deps.Config
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.Recovery(s.log), middleware.Logging(s.log), middleware.Prometheus())
	r.Use(cors.New(corsConfig(cfg.HTTP.AllowedOrigins)))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", middleware.Auth(s.deps.Verifier))
	parent := middleware.RequireRole(roleParent)
	drv := middleware.RequireRole(roleDriver)
	admin := middleware.RequireRole(roleAdmin)

	profileHandler := handlers.NewProfileHandler(s.deps.Profiles, s.deps.Claims, s.log)
	api.POST("/profile", profileHandler.Register)
	api.GET("/profile/me", profileHandler.Me)
	api.PATCH("/profile/me", profileHandler.Update)
	api.POST("/profile/me/device-tokens", profileHandler.RegisterDeviceToken)

	childHandler := handlers.NewChildHandler(s.deps.Children, s.deps.Matching)
	children := api.Group("/children", parent)
	children.POST("", childHandler.Create)
	children.GET("", childHandler.List)
	children.GET("/:id", childHandler.Get)
	children.PUT("/:id", childHandler.Update)
	children.DELETE("/:id", childHandler.Delete)
	children.GET("/:id/drivers", childHandler.Drivers)

	driverHandler := handlers.NewDriverHandler(s.deps.Drivers, s.deps.Bookings)
	rideHandler := handlers.NewRideHandler(s.deps.Rides, cfg.HTTP.AllowedOrigins, s.log)
	locationHandler := handlers.NewLocationHandler(s.deps.Location, s.deps.Rides)
	driverGroup := api.Group("/driver", drv)
	driverGroup.GET("/me", driverHandler.Me)
	driverGroup.PUT("/vehicle", driverHandler.UpdateVehicle)
	driverGroup.PUT("/routes", driverHandler.UpdateRoutes)
	driverGroup.PUT("/booking-open", driverHandler.SetBookingOpen)
	driverGroup.GET("/bookings", driverHandler.Bookings)
	driverGroup.POST("/shifts", rideHandler.StartShift)
	driverGroup.PUT("/location", locationHandler.Update)

	bookingHandler := handlers.NewBookingHandler(s.deps.Bookings)
	paymentHandler := handlers.NewPaymentHandler(s.deps.Payments)
	bookings := api.Group("/bookings")
	bookings.POST("", parent, bookingHandler.Create)
	bookings.GET("", bookingHandler.List)
	bookings.GET("/:id", bookingHandler.Get)
	bookings.POST("/:id/cancel", bookingHandler.Cancel)
	bookings.POST("/:id/complete", middleware.RequireRole(roleDriver, roleAdmin), bookingHandler.Complete)
	bookings.POST("/:id/cancel-date", parent, bookingHandler.CancelDate)
	bookings.POST("/:id/extend", parent, bookingHandler.Extend)
	bookings.POST("/:id/payments", parent, paymentHandler.PayUpfront)

	payments := api.Group("/payments")
	payments.GET("", parent, paymentHandler.List)
	payments.GET("/:id", paymentHandler.Get)
	payments.POST("/:id/balance", parent, paymentHandler.PayBalance)
	payments.GET("/:id/receipt", paymentHandler.Receipt)

	rides := api.Group("/rides")
	rides.GET("/:id", rideHandler.Get)
	rides.GET("/:id/ws", rideHandler.Stream)
	rides.GET("/:id/location", locationHandler.RidePosition)
	rides.POST("/:id/children/:childId/status", drv, rideHandler.UpdateChildStatus)
	rides.POST("/:id/complete-early", drv, rideHandler.CompleteEarly)
	rides.POST("/:id/emergency", drv, rideHandler.Emergency)

	placesHandler := handlers.NewPlacesHandler(s.deps.Places, s.deps.Autocomplete)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.AutocompleteRPS, cfg.RateLimit.AutocompleteBurst)
	places := api.Group("/places")
	places.GET("/geocode", placesHandler.Geocode)
	places.GET("/reverse", placesHandler.Reverse)
	places.GET("/autocomplete", limiter.Limit(), placesHandler.Autocomplete)
	places.DELETE("/autocomplete", placesHandler.EndAutocomplete)
	places.GET("/nearby", placesHandler.Nearby)

	notificationHandler := handlers.NewNotificationHandler(s.deps.Notifications)
	api.GET("/notifications", notificationHandler.List)
	api.POST("/notifications/:id/read", notificationHandler.MarkRead)

	adminHandler := handlers.NewAdminHandler(s.deps.Profiles, s.deps.Drivers, s.deps.Notifier, s.log)
	adminGroup := api.Group("/admin", admin)
	adminGroup.GET("/users", adminHandler.ListUsers)
	adminGroup.POST("/users/:id/approve", adminHandler.Approve)
	adminGroup.POST("/users/:id/suspend", adminHandler.Suspend)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}
