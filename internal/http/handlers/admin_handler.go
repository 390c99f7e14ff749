// README: Admin handlers: user listing, approval and suspension.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"schoolride/internal/logger"
	"schoolride/internal/modules/driver"
	"schoolride/internal/modules/notification"
	"schoolride/internal/modules/profile"
	"schoolride/internal/types"
)

type AdminHandler struct {
	profiles *profile.Service
	drivers  *driver.Service
	notifier notification.Dispatcher
	log      *zap.Logger
}

func NewAdminHandler(profiles *profile.Service, drivers *driver.Service, notifier notification.Dispatcher, log *zap.Logger) *AdminHandler {
	return &AdminHandler{profiles: profiles, drivers: drivers, notifier: notifier, log: logger.OrNop(log)}
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	role := profile.Role(c.Query("role"))
	status := profile.Status(c.Query("status"))
	if (role != "" && !role.Valid()) || (status != "" && !status.Valid()) {
		writeError(c, http.StatusBadRequest, "invalid role or status filter")
		return
	}
	list, err := h.profiles.List(c.Request.Context(), role, status)
	if err != nil {
		writeProfileError(c, err)
		return
	}
	if list == nil {
		list = []profile.Profile{}
	}
	writeJSON(c, http.StatusOK, list)
}

func (h *AdminHandler) Approve(c *gin.Context) {
	h.setStatus(c, profile.StatusApproved)
}

func (h *AdminHandler) Suspend(c *gin.Context) {
	h.setStatus(c, profile.StatusSuspended)
}

// setStatus routes drivers through the driver service so suspension also closes their booking window.
func (h *AdminHandler) setStatus(c *gin.Context, status profile.Status) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	p, err := h.profiles.Get(ctx, id)
	if err != nil {
		writeProfileError(c, err)
		return
	}
	if p.Role == profile.RoleDriver {
		err = h.drivers.SetStatus(ctx, id, status)
		if err != nil {
			writeDriverError(c, err)
			return
		}
	} else if err = h.profiles.SetStatus(ctx, id, status); err != nil {
		writeProfileError(c, err)
		return
	}
	h.notifyStatus(ctx, id, status)
	writeJSON(c, http.StatusOK, map[string]any{"id": id, "status": status})
}

func (h *AdminHandler) notifyStatus(ctx context.Context, id types.ID, status profile.Status) {
	body := "Your account has been approved."
	if status == profile.StatusSuspended {
		body = "Your account has been suspended. Contact support for details."
	}
	notification.Fanout(ctx, h.notifier, h.log, notification.Command{
		RecipientID: id,
		Kind:        notification.KindAccountApproval,
		Title:       "Account status changed",
		Body:        body,
		Data:        map[string]string{"status": string(status)},
	})
}
