package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"iesb-saude-portal/internal/appointment"
	"iesb-saude-portal/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(d Deps) *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLogger(d.Logger))

	cfg := d.Config.Server
	if len(cfg.AllowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", mw.SessionHeader},
			ExposeHeaders:    []string{"X-Cache", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	handler := NewHandler(d)

	// Anonymous routes are limited per address, signed-in routes per session.
	// Signed-in traffic also passes a per-address guard ten times wider, which
	// a whole campus behind one NAT can share while it still bounds session
	// id guessing.
	limiter := mw.NewClientLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)
	guard := mw.NewClientLimiter(rate.Limit(cfg.RateLimitPerSec*10), cfg.RateLimitBurst*10)
	byIP := mw.RateLimiter(limiter, mw.ByIP)
	bySession := mw.RateLimiter(limiter, mw.BySession)
	ipGuard := mw.RateLimiter(guard, mw.ByIP)

	// Catalogs are the same for every user.
	cacheStore := cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	caching := mw.Cache(cacheStore, cfg.CacheTTL)

	auth := mw.Authenticate(d.Sessions, d.Config.Session.CookieName)
	manager := mw.RequireRole(appointment.RoleManager)
	patient := mw.RequireRole(appointment.RolePatient)

	api := r.Group("/api")
	{
		api.POST("/session", byIP, handler.Login)
		api.GET("/vapid_public_key", byIP, handler.GetVAPIDPublicKey)

		authed := api.Group("", ipGuard, auth, bySession)
		authed.DELETE("/session", handler.Logout)
		authed.POST("/session/refresh", handler.RefreshSession)
		authed.GET("/me", handler.Me)

		authed.GET("/catalog/specialties", caching, handler.GetSpecialties)
		authed.GET("/catalog/campuses", caching, handler.GetCampuses)

		authed.GET("/calendar", handler.GetCalendar)
		authed.POST("/calendar/refresh", handler.RefreshCalendar)

		authed.POST("/time_slots", manager, handler.CreateTimeSlots)
		authed.POST("/time_slots/preview", manager, handler.PreviewTimeSlots)
		authed.DELETE("/time_slots/:id", manager, handler.DeleteTimeSlot)

		authed.GET("/appointments", handler.ListAppointments)
		authed.POST("/appointments", patient, handler.BookAppointment)
		authed.GET("/appointments/:id", handler.GetAppointment)
		authed.GET("/appointments/:id/watch", handler.WatchAppointment)
		authed.POST("/appointments/:id/transitions", handler.TransitionAppointment)
		authed.PUT("/appointments/:id/interns", manager, handler.AssignIntern)
		authed.GET("/appointments/:id/history", handler.GetHistory)

		authed.GET("/subscriptions", handler.GetSubscription)
		authed.PUT("/subscriptions", handler.PutSubscription)
		authed.DELETE("/subscriptions", handler.DeleteSubscription)
	}

	return r
}
