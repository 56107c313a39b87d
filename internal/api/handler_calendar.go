package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"iesb-saude-portal/internal/calendar"
	"iesb-saude-portal/internal/parse"
)

// calendarRequest selects either a whole month or an explicit [start, end)
// date range.
type calendarRequest struct {
	Month       string `form:"month" binding:"required_without=Start,omitempty,portal_month"`
	Start       string `form:"start" binding:"required_without=Month,omitempty,portal_date"`
	End         string `form:"end" binding:"required_with=Start,omitempty,portal_date"`
	SpecialtyID int64  `form:"specialty_id" binding:"gte=0"`
	CampusID    int64  `form:"campus_id" binding:"gte=0"`
}

func (h *Handler) calendarQuery(c *gin.Context) (calendar.Query, bool) {
	var req calendarRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.invalid(c, err)
		return calendar.Query{}, false
	}

	loc := h.svc.Location()
	q := calendar.Query{SpecialtyID: req.SpecialtyID, CampusID: req.CampusID}
	if req.Month != "" {
		month, _ := parse.Month(req.Month, loc)
		q.Start, q.End = month, month.AddDate(0, 1, 0)
	} else {
		q.Start, _ = parse.Date(req.Start, loc)
		q.End, _ = parse.Date(req.End, loc)
	}
	if err := h.svc.CheckRange(q); err != nil {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"errors": gin.H{"end": err.Error()}})
		return calendar.Query{}, false
	}
	return q, true
}

type calendarResponse struct {
	calendar.Availability
	Events []calendar.Event `json:"events"`
}

// GetCalendar returns free and busy instances.
func (h *Handler) GetCalendar(c *gin.Context) {
	q, ok := h.calendarQuery(c)
	if !ok {
		return
	}
	_, _, b := h.current(c)
	av, err := h.svc.Availability(c.Request.Context(), b, q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, calendarResponse{Availability: av, Events: av.Events()})
}

// RefreshCalendar drops the cached months of the query and fetches again.
func (h *Handler) RefreshCalendar(c *gin.Context) {
	q, ok := h.calendarQuery(c)
	if !ok {
		return
	}
	_, _, b := h.current(c)
	av, err := h.svc.Refresh(c.Request.Context(), b, q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, calendarResponse{Availability: av, Events: av.Events()})
}
