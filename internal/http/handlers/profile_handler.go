// README: Profile handlers: self-registration, own profile and device tokens.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"schoolride/internal/logger"
	"schoolride/internal/modules/profile"
)

// ClaimSetter publishes the profile role to the identity provider.
type ClaimSetter interface {
	SetRole(ctx context.Context, uid, role string) error
}

type ProfileHandler struct {
	profiles *profile.Service
	claims   ClaimSetter
	log      *zap.Logger
}

func NewProfileHandler(svc *profile.Service, claims ClaimSetter, log *zap.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: svc, claims: claims, log: logger.OrNop(log)}
}

type upsertProfileReq struct {
	Role  string `json:"role" binding:"required,oneof=parent driver"`
	Name  string `json:"name" binding:"max=200"`
	Email string `json:"email" binding:"omitempty,email"`
	Phone string `json:"phone" binding:"max=32"`
}

// Register creates the caller's profile, or returns it when it already exists.
func (h *ProfileHandler) Register(c *gin.Context) {
	var req upsertProfileReq
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.profiles.Upsert(c.Request.Context(), profile.UpsertCommand{
		ID:    callerID(c),
		Role:  profile.Role(req.Role),
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		writeProfileError(c, err)
		return
	}
	if h.claims != nil {
		if err := h.claims.SetRole(c.Request.Context(), string(p.ID), string(p.Role)); err != nil {
			h.log.Warn("set role claim failed", zap.String("uid", string(p.ID)), zap.Error(err))
		}
	}
	writeJSON(c, http.StatusCreated, p)
}

func (h *ProfileHandler) Me(c *gin.Context) {
	p, err := h.profiles.Get(c.Request.Context(), callerID(c))
	if err != nil {
		writeProfileError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

func (h *ProfileHandler) Update(c *gin.Context) {
	var req profile.Fields
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.profiles.Update(c.Request.Context(), callerID(c), req)
	if err != nil {
		writeProfileError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

type deviceTokenReq struct {
	Token string `json:"token" binding:"required,max=4096"`
}

func (h *ProfileHandler) RegisterDeviceToken(c *gin.Context) {
	var req deviceTokenReq
	if !bindJSON(c, &req) {
		return
	}
	if err := h.profiles.RegisterDeviceToken(c.Request.Context(), callerID(c), req.Token); err != nil {
		writeProfileError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": "ok"})
}
