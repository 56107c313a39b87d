package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetSpecialties proxies the specialty catalog.
func (h *Handler) GetSpecialties(c *gin.Context) {
	_, _, b := h.current(c)
	items, err := b.Specialties(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetCampuses proxies the college location catalog.
func (h *Handler) GetCampuses(c *gin.Context) {
	_, _, b := h.current(c)
	items, err := b.CollegeLocations(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
