package mw

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"iesb-saude-portal/internal/appointment"
	"iesb-saude-portal/internal/model"
	"iesb-saude-portal/internal/session"
)

// SessionHeader lets non-browser clients pass the session id without a cookie.
const SessionHeader = "X-Portal-Session"

const sessionKey = "portal.session"

// SessionResolver loads a live session by id. *session.Manager implements it.
type SessionResolver interface {
	Resolve(ctx context.Context, id string) (model.Session, error)
}

// Authenticate resolves the session from the cookie or SessionHeader and
// aborts with 401 when there is none.
func Authenticate(resolver SessionResolver, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(SessionHeader)
		if id == "" {
			id, _ = c.Cookie(cookieName)
		}

		sess, err := resolver.Resolve(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, session.ErrUnauthenticated) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
				return
			}
			c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
			return
		}

		c.Set(sessionKey, sess)
		c.Next()
	}
}

// CurrentSession returns the session set by Authenticate.
func CurrentSession(c *gin.Context) (model.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return model.Session{}, false
	}
	sess, ok := v.(model.Session)
	return sess, ok
}

// RequireRole aborts with 403 unless the session has one of roles.
func RequireRole(roles ...appointment.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := CurrentSession(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if !slices.Contains(roles, appointment.Role(sess.Role)) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not allowed for role " + sess.Role})
			return
		}
		c.Next()
	}
}
