package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"iesb-saude-portal/internal/parse"
	"iesb-saude-portal/internal/scheduling"
	"iesb-saude-portal/internal/timeslot"
)

// CreateTimeSlots validates the slot form and creates its time slots.
func (h *Handler) CreateTimeSlots(c *gin.Context) {
	var form timeslot.Form
	if err := c.ShouldBindJSON(&form); err != nil {
		h.invalid(c, err)
		return
	}

	_, user, b := h.current(c)
	result, err := h.svc.CreateSlots(c.Request.Context(), b, user, form)
	if err != nil {
		var be *scheduling.BatchError
		if errors.As(err, &be) {
			status, body := errorBody(be.Err)
			body["failed_index"] = be.Index
			body["result"] = result
			c.AbortWithStatusJSON(status, body)
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// PreviewTimeSlots returns the instances a form would create.
func (h *Handler) PreviewTimeSlots(c *gin.Context) {
	var form timeslot.Form
	if err := c.ShouldBindJSON(&form); err != nil {
		h.invalid(c, err)
		return
	}

	events, err := h.svc.Preview(form)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

type deleteSlotRequest struct {
	Scope string `form:"scope" binding:"required,oneof=occurrence series"`
	Date  string `form:"date" binding:"required_if=Scope occurrence,omitempty,portal_date"`
}

// DeleteTimeSlot removes one occurrence or a whole series.
func (h *Handler) DeleteTimeSlot(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req deleteSlotRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.invalid(c, err)
		return
	}

	var date time.Time
	if req.Date != "" {
		date, _ = parse.Date(req.Date, h.svc.Location())
	}

	_, user, b := h.current(c)
	if err := h.svc.DeleteSlot(c.Request.Context(), b, user, id, scheduling.Scope(req.Scope), date); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
