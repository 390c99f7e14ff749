// README: Driver handlers: own vehicle, commute route, booking window and booking list.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolride/internal/modules/booking"
	"schoolride/internal/modules/driver"
	"schoolride/internal/types"
)

type DriverHandler struct {
	drivers  *driver.Service
	bookings *booking.Service
}

func NewDriverHandler(drivers *driver.Service, bookings *booking.Service) *DriverHandler {
	return &DriverHandler{drivers: drivers, bookings: bookings}
}

func (h *DriverHandler) Me(c *gin.Context) {
	ctx := c.Request.Context()
	d, err := h.drivers.Get(ctx, callerID(c))
	if err != nil {
		writeDriverError(c, err)
		return
	}
	avail, err := h.drivers.Availability(ctx, d.ID)
	if err != nil {
		writeDriverError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"driver": d, "availability": avail})
}

func (h *DriverHandler) UpdateVehicle(c *gin.Context) {
	var req driver.Vehicle
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.drivers.UpdateVehicle(c.Request.Context(), callerID(c), req)
	if err != nil {
		writeDriverError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

type routesReq struct {
	StartPoint types.Location `json:"start_point"`
	EndPoint   types.Location `json:"end_point"`
}

func (h *DriverHandler) UpdateRoutes(c *gin.Context) {
	var req routesReq
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.drivers.UpdateRoutes(c.Request.Context(), callerID(c), driver.Routes{
		StartPoint: &req.StartPoint,
		EndPoint:   &req.EndPoint,
	})
	if err != nil {
		writeDriverError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

type bookingOpenReq struct {
	Open *bool `json:"open" binding:"required"`
}

func (h *DriverHandler) SetBookingOpen(c *gin.Context) {
	var req bookingOpenReq
	if !bindJSON(c, &req) {
		return
	}
	if err := h.drivers.SetBookingOpen(c.Request.Context(), callerID(c), *req.Open); err != nil {
		writeDriverError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"booking_open": *req.Open})
}

func (h *DriverHandler) Bookings(c *gin.Context) {
	status := booking.Status(c.Query("status"))
	list, err := h.bookings.ListByDriver(c.Request.Context(), callerID(c), status)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	if list == nil {
		list = []booking.Booking{}
	}
	writeJSON(c, http.StatusOK, list)
}
