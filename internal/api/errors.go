package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"iesb-saude-portal/internal/appointment"
	"iesb-saude-portal/internal/backend"
	"iesb-saude-portal/internal/calendar"
	"iesb-saude-portal/internal/scheduling"
	"iesb-saude-portal/internal/session"
	"iesb-saude-portal/internal/store"
	"iesb-saude-portal/internal/timeslot"
)

// errorBody maps err to a status code and JSON body.
func errorBody(err error) (int, gin.H) {
	var fe timeslot.FieldErrors
	var ve validator.ValidationErrors
	var he *backend.HTTPError

	switch {
	case errors.As(err, &fe):
		return http.StatusUnprocessableEntity, gin.H{"errors": fe}
	case errors.As(err, &ve):
		fields := make(map[string]string, len(ve))
		for _, e := range ve {
			fields[e.Field()] = "failed on " + e.Tag()
		}
		return http.StatusUnprocessableEntity, gin.H{"errors": fields}

	case errors.Is(err, session.ErrUnauthenticated):
		return http.StatusUnauthorized, gin.H{"error": err.Error()}
	case errors.Is(err, scheduling.ErrForbidden),
		errors.Is(err, appointment.ErrActorNotAllowed):
		return http.StatusForbidden, gin.H{"error": err.Error()}
	case errors.Is(err, scheduling.ErrNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, gin.H{"error": err.Error()}
	case errors.Is(err, appointment.ErrTransitionNotAllowed),
		errors.Is(err, appointment.ErrTooEarly),
		errors.Is(err, scheduling.ErrBookingInFlight):
		return http.StatusConflict, gin.H{"error": err.Error()}
	case errors.Is(err, appointment.ErrUnknownAction),
		errors.Is(err, appointment.ErrReasonRequired),
		errors.Is(err, scheduling.ErrObjectiveRequired),
		errors.Is(err, scheduling.ErrInvalidInstance),
		errors.Is(err, scheduling.ErrUnknownScope),
		errors.Is(err, scheduling.ErrDateRequired),
		errors.Is(err, scheduling.ErrInvalidIntern),
		errors.Is(err, calendar.ErrInvalidRange),
		errors.Is(err, calendar.ErrRangeTooLarge):
		return http.StatusUnprocessableEntity, gin.H{"error": err.Error()}

	case errors.As(err, &he):
		switch he.Status {
		case http.StatusUnauthorized:
			return http.StatusUnauthorized, gin.H{"error": "backend session expired", "messages": he.Messages()}
		case http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity:
			return he.Status, gin.H{"error": "backend rejected the request", "messages": he.Messages()}
		}
		return http.StatusBadGateway, gin.H{"error": "backend error", "status": he.Status, "messages": he.Messages()}
	case errors.Is(err, backend.ErrMalformedResponse):
		return http.StatusBadGateway, gin.H{"error": err.Error()}
	}
	return http.StatusInternalServerError, gin.H{"error": "internal error"}
}

// fail writes the error response. Canceled requests get no body and are not
// recorded as errors.
func (h *Handler) fail(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) {
		c.Abort()
		return
	}
	status, body := errorBody(err)
	if status >= http.StatusInternalServerError {
		c.Error(err)
	}
	c.AbortWithStatusJSON(status, body)
}

// invalid answers a request that failed binding: 422 with field messages for
// validation failures, 400 for anything unparseable.
func (h *Handler) invalid(c *gin.Context, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		status, body := errorBody(err)
		c.AbortWithStatusJSON(status, body)
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}
