package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"iesb-saude-portal/internal/appointment"
	"iesb-saude-portal/internal/backend"
	"iesb-saude-portal/internal/calendar"
	"iesb-saude-portal/internal/notification"
	"iesb-saude-portal/internal/timeslot"
)

var (
	ErrForbidden         = errors.New("operation not allowed for this role")
	ErrNotFound          = errors.New("appointment not found")
	ErrObjectiveRequired = errors.New("objective text is required")
	ErrBookingInFlight   = errors.New("a booking for this slot is already being submitted")
	ErrInvalidInstance   = errors.New("instance end must be after its start")
	ErrUnknownScope      = errors.New("scope must be occurrence or series")
	ErrDateRequired      = errors.New("date is required to delete a single occurrence")
	ErrInvalidIntern     = errors.New("intern id must be positive")
)

// Backend is the part of the clinic API the service drives. *backend.Client
// implements it.
type Backend interface {
	calendar.Source
	CreateTimeSlot(ctx context.Context, req timeslot.CreateRequest) (int64, error)
	DeleteTimeSlot(ctx context.Context, id int64) error
	CreateTimeSlotException(ctx context.Context, slotID int64, date time.Time) error
	CreateAppointment(ctx context.Context, in backend.NewAppointment) (appointment.Appointment, error)
	UpdateAppointment(ctx context.Context, id int64, u backend.AppointmentUpdate) (appointment.Appointment, error)
	GetAppointment(ctx context.Context, id int64) (appointment.Appointment, error)
	ListAppointments(ctx context.Context, q backend.ListQuery) (backend.Page, error)
	History(ctx context.Context, id int64) ([]appointment.HistoryEntry, error)
}

// Notifier queues user notices. notification.WorkerPool implements it.
type Notifier interface {
	Dispatch(n notification.Notice)
}

// Options tunes a Service.
type Options struct {
	RollbackPartialBatches bool
	Location               *time.Location
	Now                    func() time.Time
}

// Service orchestrates slot management, booking and status transitions on
// top of the clinic backend.
type Service struct {
	resolver *calendar.Resolver
	notifier Notifier
	logger   *zap.Logger
	loc      *time.Location
	now      func() time.Time
	rollback bool

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewService creates a Service. A nil notifier disables notices.
func NewService(resolver *calendar.Resolver, notifier Notifier, logger *zap.Logger, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		resolver: resolver,
		notifier: notifier,
		logger:   logger,
		loc:      opts.Location,
		now:      opts.Now,
		rollback: opts.RollbackPartialBatches,
		inFlight: make(map[string]struct{}),
	}
}

// Location is the clinic timezone used for dates.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Now returns the service clock in the clinic timezone.
func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

// CheckRange reports whether q is a range Availability will serve.
func (s *Service) CheckRange(q calendar.Query) error {
	return s.resolver.Check(q)
}

// Availability returns free and busy instances for q as seen by b.
func (s *Service) Availability(ctx context.Context, b Backend, q calendar.Query) (calendar.Availability, error) {
	return s.resolver.Availability(ctx, b, q)
}

// Refresh drops the cached months of q and queries again.
func (s *Service) Refresh(ctx context.Context, b Backend, q calendar.Query) (calendar.Availability, error) {
	return s.resolver.Refetch(ctx, b, q)
}

// BookRequest selects a free instance and carries the patient's objective.
type BookRequest struct {
	TimeSlotID int64
	Start      time.Time
	End        time.Time
	Objective  string
}

// Book creates a pending appointment for a free instance. A second submit
// for the same patient and instance fails while the first is in flight.
func (s *Service) Book(ctx context.Context, b Backend, user backend.User, req BookRequest) (appointment.Appointment, error) {
	if user.Role != appointment.RolePatient {
		return appointment.Appointment{}, ErrForbidden
	}
	objective := strings.TrimSpace(req.Objective)
	if objective == "" {
		return appointment.Appointment{}, ErrObjectiveRequired
	}
	if !req.End.After(req.Start) {
		return appointment.Appointment{}, ErrInvalidInstance
	}

	key := fmt.Sprintf("%d|%d|%s", user.ID, req.TimeSlotID, req.Start.UTC().Format(time.RFC3339))
	if !s.acquire(key) {
		return appointment.Appointment{}, ErrBookingInFlight
	}
	defer s.release(key)

	a, err := b.CreateAppointment(ctx, backend.NewAppointment{
		TimeSlotID: req.TimeSlotID,
		Start:      req.Start,
		End:        req.End,
		Notes:      objective,
	})
	if err != nil {
		return appointment.Appointment{}, fmt.Errorf("create appointment: %w", err)
	}

	s.resolver.Invalidate(req.Start)
	s.notify(notification.Notice{
		Role:          appointment.RoleManager,
		AppointmentID: a.ID,
		Title:         "Nova solicitação de consulta",
		Body:          fmt.Sprintf("%s solicitou uma consulta em %s.", user.Name, a.Start.In(s.loc).Format("02/01/2006 15:04")),
	})
	s.logger.Info("appointment booked",
		zap.Int64("appointment_id", a.ID),
		zap.Int64("patient_id", user.ID),
		zap.Int64("time_slot_id", req.TimeSlotID))
	return a, nil
}

func (s *Service) acquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[key]; busy {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *Service) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, key)
}

func (s *Service) notify(n notification.Notice) {
	if s.notifier == nil {
		return
	}
	s.notifier.Dispatch(n)
}
