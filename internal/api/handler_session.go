package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"iesb-saude-portal/internal/backend"
	"iesb-saude-portal/internal/model"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type sessionResponse struct {
	SessionID string       `json:"session_id"`
	User      backend.User `json:"user"`
	ExpiresAt time.Time    `json:"expires_at"`
}

func (h *Handler) setCookie(c *gin.Context, sess model.Session) {
	maxAge := int(time.Until(sess.ExpiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, sess.ID, maxAge, "/", "", h.secure, true)
}

// Login signs in against the clinic backend and sets the session cookie.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}

	sess, err := h.sessions.Login(c.Request.Context(), backend.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.setCookie(c, sess)
	c.JSON(http.StatusCreated, sessionResponse{SessionID: sess.ID, User: h.sessions.User(sess), ExpiresAt: sess.ExpiresAt})
}

// Logout ends the current session.
func (h *Handler) Logout(c *gin.Context) {
	sess, _, _ := h.current(c)
	if err := h.sessions.Logout(c.Request.Context(), sess.ID); err != nil {
		h.fail(c, err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, "", -1, "/", "", h.secure, true)
	c.Status(http.StatusNoContent)
}

// RefreshSession swaps the backend token and extends the cookie.
func (h *Handler) RefreshSession(c *gin.Context) {
	sess, _, _ := h.current(c)
	refreshed, err := h.sessions.Refresh(c.Request.Context(), sess.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.setCookie(c, refreshed)
	c.JSON(http.StatusOK, sessionResponse{SessionID: refreshed.ID, User: h.sessions.User(refreshed), ExpiresAt: refreshed.ExpiresAt})
}

// Me returns the signed-in profile.
func (h *Handler) Me(c *gin.Context) {
	sess, user, _ := h.current(c)
	c.JSON(http.StatusOK, sessionResponse{SessionID: sess.ID, User: user, ExpiresAt: sess.ExpiresAt})
}
