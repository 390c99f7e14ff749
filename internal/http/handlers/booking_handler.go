// README: Booking handlers: create, view, cancel, complete, per-date cancel and extension.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolride/internal/http/middleware"
	"schoolride/internal/modules/booking"
	"schoolride/internal/types"
)

type BookingHandler struct {
	bookings *booking.Service
}

func NewBookingHandler(svc *booking.Service) *BookingHandler {
	return &BookingHandler{bookings: svc}
}

type createBookingReq struct {
	ChildID        string `json:"child_id" binding:"required,entity_id"`
	DriverID       string `json:"driver_id" binding:"required,entity_id"`
	RideDate       string `json:"ride_date" binding:"required,day"`
	EndDate        string `json:"end_date" binding:"omitempty,day"`
	DailyTime      string `json:"daily_time" binding:"omitempty,datetime=15:04"`
	ConfirmWarning bool   `json:"confirm_warning"`
}

func (h *BookingHandler) Create(c *gin.Context) {
	var req createBookingReq
	if !bindJSON(c, &req) {
		return
	}
	start, _ := types.ParseDay(req.RideDate)
	end := start
	if req.EndDate != "" {
		end, _ = types.ParseDay(req.EndDate)
	}
	created, err := h.bookings.Create(c.Request.Context(), booking.CreateCommand{
		ParentID:       callerID(c),
		ChildID:        types.ID(req.ChildID),
		DriverID:       types.ID(req.DriverID),
		RideDate:       start,
		EndDate:        end,
		DailyTime:      req.DailyTime,
		ConfirmWarning: req.ConfirmWarning,
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, created)
}

// List returns the caller's bookings: as driver for drivers, as parent otherwise.
func (h *BookingHandler) List(c *gin.Context) {
	var (
		list []booking.Booking
		err  error
	)
	if middleware.CallerRole(c) == booking.ActorDriver {
		list, err = h.bookings.ListByDriver(c.Request.Context(), callerID(c), booking.Status(c.Query("status")))
	} else {
		list, err = h.bookings.ListByParent(c.Request.Context(), callerID(c))
	}
	if err != nil {
		writeBookingError(c, err)
		return
	}
	if list == nil {
		list = []booking.Booking{}
	}
	writeJSON(c, http.StatusOK, list)
}

func (h *BookingHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	b, err := h.bookings.Get(c.Request.Context(), id)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	if !b.Involves(callerID(c)) && !isAdmin(c) {
		writeBookingError(c, booking.ErrForbidden)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

func (h *BookingHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	b, err := h.bookings.Cancel(c.Request.Context(), booking.CancelCommand{
		BookingID: id,
		ActorID:   callerID(c),
		ActorType: middleware.CallerRole(c),
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

func (h *BookingHandler) Complete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	b, err := h.bookings.Complete(c.Request.Context(), id, callerID(c), middleware.CallerRole(c))
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

type cancelDateReq struct {
	Date string `json:"date" binding:"required,day"`
}

func (h *BookingHandler) CancelDate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req cancelDateReq
	if !bindJSON(c, &req) {
		return
	}
	date, _ := types.ParseDay(req.Date)
	b, err := h.bookings.CancelDate(c.Request.Context(), booking.CancelDateCommand{
		BookingID: id,
		ParentID:  callerID(c),
		Date:      date,
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

type extendReq struct {
	AdditionalDays int `json:"additional_days" binding:"required,min=1,max=200"`
}

func (h *BookingHandler) Extend(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req extendReq
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.bookings.Extend(c.Request.Context(), booking.ExtendCommand{
		BookingID:      id,
		ParentID:       callerID(c),
		AdditionalDays: req.AdditionalDays,
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}
