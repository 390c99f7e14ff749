// README: Base handler utilities (JSON helpers, request parsing, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"schoolride/internal/http/middleware"
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
	"schoolride/internal/types"
)

type errorResponse struct {
	Error   string       `json:"error"`
	Details []fieldError `json:"details,omitempty"`
}

// isValidID accepts Firebase uids, uuids and ride keys: letters, digits, '-' and '_', at most 128 chars.
func isValidID(v string) bool {
	if v == "" || len(v) > 128 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeInternal(c *gin.Context, err error) {
	_ = c.Error(err)
	writeError(c, http.StatusInternalServerError, "internal error")
}

// pathID reads and validates a path parameter; it writes 400 and returns false when invalid.
func pathID(c *gin.Context, name string) (types.ID, bool) {
	v := c.Param(name)
	if !isValidID(v) {
		writeError(c, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return types.ID(v), true
}

func callerID(c *gin.Context) types.ID {
	return types.ID(middleware.CallerUID(c))
}

func isAdmin(c *gin.Context) bool {
	return middleware.CallerRole(c) == string(profile.RoleAdmin)
}

// parseDay reads YYYY-MM-DD; empty means today.
func parseDay(v string) (time.Time, error) {
	if v == "" {
		return types.Day(time.Now()), nil
	}
	return types.ParseDay(v)
}

func queryFloat(c *gin.Context, key string) (float64, bool) {
	f, err := strconv.ParseFloat(c.Query(key), 64)
	return f, err == nil
}

func writeProfileError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, profile.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, profile.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	default:
		writeInternal(c, err)
	}
}

func writeChildError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, child.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, child.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, child.ErrForbidden):
		writeError(c, http.StatusForbidden, err.Error())
	default:
		writeInternal(c, err)
	}
}

func writeDriverError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, driver.ErrBadRequest), errors.Is(err, matching.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, driver.ErrNotFound), errors.Is(err, child.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, driver.ErrInvalidState):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeInternal(c, err)
	}
}

func writeBookingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, booking.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, child.ErrNotFound), errors.Is(err, driver.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrForbidden), errors.Is(err, child.ErrForbidden):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, booking.ErrIncompatibleRoute), errors.Is(err, booking.ErrConfirmationRequired):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, booking.ErrInvalidState), errors.Is(err, booking.ErrConflict),
		errors.Is(err, booking.ErrNoSeats), errors.Is(err, booking.ErrDriverUnavailable):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeInternal(c, err)
	}
}

func writePaymentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, payment.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, payment.ErrNotFound), errors.Is(err, booking.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, payment.ErrForbidden):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, payment.ErrPaymentFailed):
		writeError(c, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, payment.ErrInvalidState), errors.Is(err, payment.ErrConflict), errors.Is(err, payment.ErrOverpayment):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeInternal(c, err)
	}
}

func writeRideError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ride.ErrBadRequest), errors.Is(err, ride.ErrChildNotOnRide):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ride.ErrNotFound), errors.Is(err, ride.ErrNoBookings):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ride.ErrForbidden):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, ride.ErrRideCompleted), errors.Is(err, ride.ErrInvalidTransition):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeInternal(c, err)
	}
}

func writeLocationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, location.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, location.ErrNoSession), errors.Is(err, location.ErrNoPosition):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, location.ErrSessionExists):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeInternal(c, err)
	}
}

func writeMapsError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, maps.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, maps.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, maps.ErrStale):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusBadGateway, "maps provider error")
	}
}

func writeNotificationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, notification.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, notification.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	default:
		writeInternal(c, err)
	}
}
