package api

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"iesb-saude-portal/config"
	"iesb-saude-portal/internal/appointment"
	"iesb-saude-portal/internal/backend"
	"iesb-saude-portal/internal/calendar"
	"iesb-saude-portal/internal/db"
	"iesb-saude-portal/internal/model"
	"iesb-saude-portal/internal/scheduling"
	"iesb-saude-portal/internal/session"
	"iesb-saude-portal/internal/store"
	"iesb-saude-portal/internal/timeslot"
)

var brt = time.FixedZone("BRT", -3*3600)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]model.Session
}

func (f *fakeSessions) Resolve(ctx context.Context, id string) (model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return model.Session{}, session.ErrUnauthenticated
	}
	return s, nil
}

func (f *fakeSessions) Login(ctx context.Context, creds backend.Credentials) (model.Session, error) {
	if creds.Password != "secret" {
		return model.Session{}, &backend.HTTPError{Status: http.StatusUnauthorized, Body: `{"error":"Invalid email or password."}`}
	}
	s := model.Session{ID: "new-session", UserID: 10, Role: "patient", Name: "Ana", Email: creds.Email, ExpiresAt: time.Now().Add(time.Hour)}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = s
	return s, nil
}

func (f *fakeSessions) Logout(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

func (f *fakeSessions) Refresh(ctx context.Context, id string) (model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[id]
	s.ExpiresAt = s.ExpiresAt.Add(time.Hour)
	f.sessions[id] = s
	return s, nil
}

func (f *fakeSessions) User(s model.Session) backend.User {
	return backend.User{ID: s.UserID, Name: s.Name, Email: s.Email, Role: appointment.Role(s.Role)}
}

// stubBackend answers from fixed data.
type stubBackend struct {
	mu           sync.Mutex
	avail        calendar.Availability
	appts        map[int64]appointment.Appointment
	created      []timeslot.CreateRequest
	failCreateAt int
	deleted      []int64
	exceptions   []time.Time
	catalogCalls int
}

func (s *stubBackend) Availability(ctx context.Context, q calendar.Query) (calendar.Availability, error) {
	return s.avail, nil
}

func (s *stubBackend) CreateTimeSlot(ctx context.Context, req timeslot.CreateRequest) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.created) == s.failCreateAt {
		return 0, &backend.HTTPError{Status: http.StatusUnprocessableEntity, Body: `{"errors":["overlapping time slot"]}`}
	}
	s.created = append(s.created, req)
	return int64(100 + len(s.created)), nil
}

func (s *stubBackend) DeleteTimeSlot(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubBackend) CreateTimeSlotException(ctx context.Context, slotID int64, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exceptions = append(s.exceptions, date)
	return nil
}

func (s *stubBackend) CreateAppointment(ctx context.Context, in backend.NewAppointment) (appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := appointment.Appointment{ID: 77, PatientID: 10, TimeSlotID: in.TimeSlotID, Start: in.Start, End: in.End, Status: appointment.Pending, Notes: in.Notes}
	s.appts[a.ID] = a
	return a, nil
}

func (s *stubBackend) UpdateAppointment(ctx context.Context, id int64, u backend.AppointmentUpdate) (appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return appointment.Appointment{}, &backend.HTTPError{Status: http.StatusNotFound}
	}
	if u.Status != nil {
		a.Status = *u.Status
	}
	if u.InternID != nil {
		a.InternIDs = append(a.InternIDs, *u.InternID)
	}
	s.appts[id] = a
	return a, nil
}

func (s *stubBackend) GetAppointment(ctx context.Context, id int64) (appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return appointment.Appointment{}, &backend.HTTPError{Status: http.StatusNotFound}
	}
	return a, nil
}

func (s *stubBackend) ListAppointments(ctx context.Context, q backend.ListQuery) (backend.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page := backend.Page{Page: 1, PerPage: 25}
	for _, a := range s.appts {
		page.Items = append(page.Items, a)
	}
	page.Total = len(page.Items)
	return page, nil
}

func (s *stubBackend) History(ctx context.Context, id int64) ([]appointment.HistoryEntry, error) {
	return []appointment.HistoryEntry{{To: appointment.Pending, Actor: appointment.RolePatient, ActorID: 10}}, nil
}

func (s *stubBackend) Specialties(ctx context.Context) ([]backend.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalogCalls++
	return []backend.CatalogItem{{ID: 5, Name: "Nutrição"}}, nil
}

func (s *stubBackend) CollegeLocations(ctx context.Context) ([]backend.CatalogItem, error) {
	return []backend.CatalogItem{{ID: 3, Name: "Asa Norte"}}, nil
}

type env struct {
	router   *gin.Engine
	backend  *stubBackend
	sessions *fakeSessions
	store    store.Store
}

func newEnv(t *testing.T, opts ...func(*Deps)) *env {
	t.Helper()

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Migrate(gormDB))

	sessions := &fakeSessions{sessions: map[string]model.Session{
		"patient": {ID: "patient", UserID: 10, Role: "patient", Name: "Ana", ExpiresAt: time.Now().Add(time.Hour)},
		"other":   {ID: "other", UserID: 11, Role: "patient", Name: "Bruno", ExpiresAt: time.Now().Add(time.Hour)},
		"manager": {ID: "manager", UserID: 1, Role: "manager", Name: "Gestora", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	stub := &stubBackend{appts: map[int64]appointment.Appointment{}, failCreateAt: -1}

	cfg := &config.Config{
		Server: config.ServerConfig{
			RateLimitPerSec: 1000,
			RateLimitBurst:  1000,
			CacheTTL:        time.Minute,
			GateRefreshTTL:  20 * time.Millisecond,
		},
		Session: config.SessionConfig{CookieName: "portal_session"},
	}
	now := time.Date(2025, 1, 2, 10, 0, 0, 0, brt)
	svc := scheduling.NewService(
		calendar.NewResolver(calendar.NewMonthCache(time.Minute), brt, 0),
		nil, zap.NewNop(),
		scheduling.Options{Location: brt, Now: func() time.Time { return now }},
	)
	st := store.NewGormStore(gormDB)

	deps := Deps{
		Config:     cfg,
		Sessions:   sessions,
		BackendFor: func(model.Session) Backend { return stub },
		Service:    svc,
		Store:      st,
		Logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	router := NewRouter(deps)
	return &env{router: router, backend: stub, sessions: sessions, store: st}
}
