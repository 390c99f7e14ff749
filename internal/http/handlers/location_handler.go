// README: Location handlers: driver position updates and the latest position of a ride's driver.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolride/internal/modules/location"
	"schoolride/internal/modules/ride"
	"schoolride/internal/types"
)

type LocationHandler struct {
	location *location.Service
	rides    *ride.Service
}

func NewLocationHandler(svc *location.Service, rides *ride.Service) *LocationHandler {
	return &LocationHandler{location: svc, rides: rides}
}

type locationReq struct {
	Lat  float64 `json:"lat" binding:"latitude"`
	Lng  float64 `json:"lng" binding:"longitude"`
	Seq  int64   `json:"seq" binding:"required,gt=0"`
	TsMs int64   `json:"ts_ms" binding:"omitempty,gt=0"`
}

// Update records the authenticated driver's own position.
func (h *LocationHandler) Update(c *gin.Context) {
	var req locationReq
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.location.UpdatePosition(c.Request.Context(), location.Update{
		DriverID: callerID(c),
		Seq:      req.Seq,
		Position: types.Point{Lat: req.Lat, Lng: req.Lng},
		TsMs:     req.TsMs,
	})
	if err != nil {
		writeLocationError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

// RidePosition returns the latest position of the driver serving a ride the caller can see.
func (h *LocationHandler) RidePosition(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var (
		r   *ride.ActiveRide
		err error
	)
	if isAdmin(c) {
		r, err = h.rides.Get(ctx, id)
	} else {
		r, err = h.rides.GetFor(ctx, id, callerID(c))
	}
	if err != nil {
		writeRideError(c, err)
		return
	}
	pos, err := h.location.Current(ctx, r.DriverID)
	if err != nil {
		writeLocationError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, pos)
}
