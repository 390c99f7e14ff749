// README: Ride handlers: shift start, attendance, early completion, emergencies and the live websocket.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"schoolride/internal/logger"
	"schoolride/internal/modules/ride"
	"schoolride/internal/types"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

type RideHandler struct {
	rides    *ride.Service
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewRideHandler accepts websocket upgrades from allowedOrigins; "*" allows any origin.
func NewRideHandler(svc *ride.Service, allowedOrigins []string, log *zap.Logger) *RideHandler {
	return &RideHandler{
		rides: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: logger.OrNop(log),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

type startShiftReq struct {
	Date string `json:"date" binding:"omitempty,day"`
}

func (h *RideHandler) StartShift(c *gin.Context) {
	var req startShiftReq
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	date, err := parseDay(req.Date)
	if err != nil {
		writeError(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	r, err := h.rides.StartShift(c.Request.Context(), callerID(c), date)
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := h.load(c, id)
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) load(c *gin.Context, id types.ID) (*ride.ActiveRide, error) {
	if isAdmin(c) {
		return h.rides.Get(c.Request.Context(), id)
	}
	return h.rides.GetFor(c.Request.Context(), id, callerID(c))
}

type childStatusReq struct {
	Status string `json:"status" binding:"required,oneof=picked_up absent dropped_off"`
}

func (h *RideHandler) UpdateChildStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	childID, ok := pathID(c, "childId")
	if !ok {
		return
	}
	var req childStatusReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.rides.UpdateChildStatus(c.Request.Context(), ride.StatusCommand{
		RideID:   id,
		DriverID: callerID(c),
		ChildID:  childID,
		Status:   ride.ChildStatus(req.Status),
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) CompleteEarly(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := h.rides.CompleteEarly(c.Request.Context(), id, callerID(c))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type emergencyReq struct {
	Message string  `json:"message" binding:"required,min=1,max=500"`
	Lat     float64 `json:"lat" binding:"latitude"`
	Lng     float64 `json:"lng" binding:"longitude"`
}

func (h *RideHandler) Emergency(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req emergencyReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.rides.RaiseEmergency(c.Request.Context(), ride.EmergencyCommand{
		RideID:   id,
		DriverID: callerID(c),
		Message:  req.Message,
		Point:    types.Point{Lat: req.Lat, Lng: req.Lng},
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, r)
}

// Stream upgrades to a websocket and writes the full ride JSON on every change.
func (h *RideHandler) Stream(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if _, err := h.load(c, id); err != nil {
		writeRideError(c, err)
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("ride_id", string(id)), zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The reader only services control frames; a read error means the client went away.
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	updates := make(chan *ride.ActiveRide, 1)
	go func() {
		defer cancel()
		err := h.rides.Watch(ctx, id, func(r *ride.ActiveRide) error {
			// Keep only the newest snapshot when the writer lags.
			select {
			case <-updates:
			default:
			}
			updates <- r
			return nil
		})
		if err != nil {
			h.log.Warn("ride watch ended", zap.String("ride_id", string(id)), zap.Error(err))
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		case r := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(r); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
