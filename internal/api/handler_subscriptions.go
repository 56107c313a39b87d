package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"iesb-saude-portal/internal/model"
)

type putSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

// PutSubscription handles the creation or replacement of a subscription for
// the signed-in user.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}

	sess, _, _ := h.current(c)
	err := h.store.UpsertSubscription(c.Request.Context(), model.PushSubscription{
		Endpoint: req.Endpoint,
		UserID:   sess.UserID,
		Role:     sess.Role,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription handles the deletion of a subscription.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}

	sess, _, _ := h.current(c)
	if err := h.store.DeleteSubscription(c.Request.Context(), sess.UserID, req.Endpoint); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetSubscription reports whether the endpoint is registered for the user.
func (h *Handler) GetSubscription(c *gin.Context) {
	endpoint := c.Query("endpoint")
	if endpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint is required"})
		return
	}

	sess, _, _ := h.current(c)
	sub, err := h.store.GetSubscription(c.Request.Context(), sess.UserID, endpoint)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"endpoint": sub.Endpoint, "created_at": sub.CreatedAt})
}

// GetVAPIDPublicKey tells the browser whether push is on and, when it is,
// which application server key to subscribe with.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true, "public_key": h.webpush.VAPIDPublicKey})
}
