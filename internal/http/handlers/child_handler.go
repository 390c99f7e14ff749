// README: Child handlers for the parent's children and compatible-driver listing.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"schoolride/internal/modules/child"
	"schoolride/internal/modules/matching"
	"schoolride/internal/types"
)

type ChildHandler struct {
	children *child.Service
	matching *matching.Service
}

func NewChildHandler(children *child.Service, matchingSvc *matching.Service) *ChildHandler {
	return &ChildHandler{children: children, matching: matchingSvc}
}

type childReq struct {
	FullName          string         `json:"full_name" binding:"required,max=200"`
	DateOfBirth       string         `json:"date_of_birth" binding:"omitempty,day"`
	Gender            string         `json:"gender" binding:"max=32"`
	SchoolName        string         `json:"school_name" binding:"required,max=200"`
	SchoolLocation    types.Location `json:"school_location"`
	TripStartLocation types.Location `json:"trip_start_location"`
	StudentID         string         `json:"student_id"`
	AvatarURL         string         `json:"avatar_url"`
}

func (r childReq) command(parentID types.ID) (child.CreateCommand, bool) {
	cmd := child.CreateCommand{
		ParentID:          parentID,
		FullName:          r.FullName,
		Gender:            r.Gender,
		SchoolName:        r.SchoolName,
		SchoolLocation:    r.SchoolLocation,
		TripStartLocation: r.TripStartLocation,
		StudentID:         r.StudentID,
		AvatarURL:         r.AvatarURL,
	}
	if r.DateOfBirth != "" {
		dob, err := types.ParseDay(r.DateOfBirth)
		if err != nil {
			return cmd, false
		}
		cmd.DateOfBirth = &dob
	}
	return cmd, true
}

func (h *ChildHandler) Create(c *gin.Context) {
	var req childReq
	if !bindJSON(c, &req) {
		return
	}
	cmd, ok := req.command(callerID(c))
	if !ok {
		writeError(c, http.StatusBadRequest, "date_of_birth must be YYYY-MM-DD")
		return
	}
	ch, err := h.children.Create(c.Request.Context(), cmd)
	if err != nil {
		writeChildError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, ch)
}

func (h *ChildHandler) List(c *gin.Context) {
	list, err := h.children.List(c.Request.Context(), callerID(c))
	if err != nil {
		writeChildError(c, err)
		return
	}
	if list == nil {
		list = []child.Child{}
	}
	writeJSON(c, http.StatusOK, list)
}

func (h *ChildHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ch, err := h.children.GetOwned(c.Request.Context(), id, callerID(c))
	if err != nil {
		writeChildError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, ch)
}

func (h *ChildHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req childReq
	if !bindJSON(c, &req) {
		return
	}
	cmd, ok := req.command(callerID(c))
	if !ok {
		writeError(c, http.StatusBadRequest, "date_of_birth must be YYYY-MM-DD")
		return
	}
	ch, err := h.children.Update(c.Request.Context(), child.UpdateCommand{ID: id, ParentID: callerID(c), CreateCommand: cmd})
	if err != nil {
		writeChildError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, ch)
}

func (h *ChildHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.children.Delete(c.Request.Context(), id, callerID(c)); err != nil {
		writeChildError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Drivers lists drivers whose commute suits the child, best match first.
func (h *ChildHandler) Drivers(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.children.GetOwned(ctx, id, callerID(c)); err != nil {
		writeChildError(c, err)
		return
	}
	candidates, err := h.matching.ListDrivers(ctx, id)
	if err != nil {
		writeDriverError(c, err)
		return
	}
	if candidates == nil {
		candidates = []matching.Candidate{}
	}
	writeJSON(c, http.StatusOK, map[string]any{"drivers": candidates, "as_of": time.Now().UTC()})
}
