package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"iesb-saude-portal/internal/appointment"
	"iesb-saude-portal/internal/backend"
	"iesb-saude-portal/internal/scheduling"
)

type listRequest struct {
	Page    int    `form:"page" binding:"gte=0"`
	PerPage int    `form:"per_page" binding:"gte=0,lte=100"`
	Status  string `form:"status" binding:"omitempty,appointment_status"`
}

// ListAppointments pages through the caller's appointments.
func (h *Handler) ListAppointments(c *gin.Context) {
	var req listRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.invalid(c, err)
		return
	}

	_, user, b := h.current(c)
	res, err := h.svc.List(c.Request.Context(), b, user, backend.ListQuery{
		Page:    req.Page,
		PerPage: req.PerPage,
		Status:  appointment.Status(req.Status),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type bookRequest struct {
	TimeSlotID int64     `json:"time_slot_id" binding:"required,gt=0"`
	Start      time.Time `json:"start" binding:"required"`
	End        time.Time `json:"end" binding:"required,gtfield=Start"`
	Objective  string    `json:"objective" binding:"required"`
}

// BookAppointment requests a free instance for the signed-in patient.
func (h *Handler) BookAppointment(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}

	_, user, b := h.current(c)
	a, err := h.svc.Book(c.Request.Context(), b, user, scheduling.BookRequest{
		TimeSlotID: req.TimeSlotID,
		Start:      req.Start,
		End:        req.End,
		Objective:  req.Objective,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, scheduling.Describe(a, user.Role, h.svc.Now()))
}

// GetAppointment returns the detail with the caller's allowed actions.
func (h *Handler) GetAppointment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	_, user, b := h.current(c)
	d, err := h.svc.Get(c.Request.Context(), b, user, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// WatchAppointment streams the detail as server-sent events until the
// client goes away.
func (h *Handler) WatchAppointment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	_, user, b := h.current(c)
	if _, err := h.svc.Get(c.Request.Context(), b, user, id); err != nil {
		h.fail(c, err)
		return
	}

	details := h.svc.Watch(c.Request.Context(), b, user, id, h.gateRefresh)
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		d, ok := <-details
		if !ok {
			return false
		}
		c.SSEvent("appointment", d)
		return true
	})
}

type transitionRequest struct {
	Action string `json:"action" binding:"required"`
	Reason string `json:"reason"`
}

// TransitionAppointment applies a status machine action.
func (h *Handler) TransitionAppointment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}

	_, user, b := h.current(c)
	d, err := h.svc.Transition(c.Request.Context(), b, user, id, appointment.Action(req.Action), req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type assignInternRequest struct {
	InternID int64 `json:"intern_id" binding:"required,gt=0"`
}

// AssignIntern puts an intern on the appointment.
func (h *Handler) AssignIntern(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req assignInternRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}

	_, user, b := h.current(c)
	d, err := h.svc.AssignIntern(c.Request.Context(), b, user, id, req.InternID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// GetHistory returns the ordered status history.
func (h *Handler) GetHistory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	_, user, b := h.current(c)
	entries, err := h.svc.History(c.Request.Context(), b, user, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if entries == nil {
		entries = []appointment.HistoryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"items": entries})
}
