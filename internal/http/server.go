// README: API server; builds the gin engine from module services and runs it with graceful shutdown.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"schoolride/internal/config"
	"schoolride/internal/http/handlers"
	"schoolride/internal/infra"
	"schoolride/internal/logger"
	"schoolride/internal/maps"
	"schoolride/internal/modules/booking"
	"schoolride/internal/modules/child"
	"schoolride/internal/modules/driver"
	"schoolride/internal/modules/location"
	"schoolride/internal/modules/matching"
	"schoolride/internal/modules/notification"
	"schoolride/internal/modules/payment"
	"schoolride/internal/modules/profile"
	"schoolride/internal/modules/ride"
)

type ServerDeps struct {
	Config        config.Config
	Verifier      infra.TokenVerifier
	Claims        handlers.ClaimSetter
	Profiles      *profile.Service
	Children      *child.Service
	Drivers       *driver.Service
	Matching      *matching.Service
	Bookings      *booking.Service
	Payments      *payment.Service
	Rides         *ride.Service
	Location      *location.Service
	Notifications *notification.Service
	Notifier      notification.Dispatcher
	Places        *maps.PlacesService
	Autocomplete  *maps.Autocompleter
	Log           *zap.Logger
}

type Server struct {
	deps ServerDeps
	log  *zap.Logger
}

func NewServer(deps ServerDeps) *Server {
	return &Server{deps: deps, log: logger.OrNop(deps.Log)}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.deps.Config.HTTP.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.log.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}
