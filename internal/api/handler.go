package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"iesb-saude-portal/config"
	"iesb-saude-portal/internal/backend"
	"iesb-saude-portal/internal/model"
	"iesb-saude-portal/internal/mw"
	"iesb-saude-portal/internal/scheduling"
	"iesb-saude-portal/internal/store"
)

// Sessions is the session lifecycle the API drives. *session.Manager
// implements it.
type Sessions interface {
	mw.SessionResolver
	Login(ctx context.Context, creds backend.Credentials) (model.Session, error)
	Logout(ctx context.Context, id string) error
	Refresh(ctx context.Context, id string) (model.Session, error)
	User(sess model.Session) backend.User
}

// Backend is the clinic API as seen by one session. *backend.Client
// implements it.
type Backend interface {
	scheduling.Backend
	Specialties(ctx context.Context) ([]backend.CatalogItem, error)
	CollegeLocations(ctx context.Context) ([]backend.CatalogItem, error)
}

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Config     *config.Config
	Sessions   Sessions
	BackendFor func(model.Session) Backend
	Service    *scheduling.Service
	Store      store.Store
	Webpush    *webpush.Options
	Logger     *zap.Logger
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	sessions    Sessions
	backendFor  func(model.Session) Backend
	svc         *scheduling.Service
	store       store.Store
	webpush     *webpush.Options
	logger      *zap.Logger
	cookieName  string
	secure      bool
	gateRefresh time.Duration
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		sessions:    d.Sessions,
		backendFor:  d.BackendFor,
		svc:         d.Service,
		store:       d.Store,
		webpush:     d.Webpush,
		logger:      d.Logger,
		cookieName:  d.Config.Session.CookieName,
		secure:      d.Config.Server.CookieSecure,
		gateRefresh: d.Config.Server.GateRefreshTTL,
	}
}

// current returns the session, its user and a backend client for it.
// Routes using it sit behind mw.Authenticate.
func (h *Handler) current(c *gin.Context) (model.Session, backend.User, Backend) {
	sess, _ := mw.CurrentSession(c)
	return sess, h.sessions.User(sess), h.backendFor(sess)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return 0, false
	}
	return id, true
}
