package scheduling

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"iesb-saude-portal/internal/appointment"
	"iesb-saude-portal/internal/backend"
	"iesb-saude-portal/internal/notification"
)

// Detail is an appointment as shown to one user at one instant.
type Detail struct {
	ID            int64                `json:"id"`
	PatientID     int64                `json:"patient_id"`
	InternIDs     []int64              `json:"intern_ids"`
	TimeSlotID    int64                `json:"time_slot_id"`
	Start         time.Time            `json:"start"`
	End           time.Time            `json:"end"`
	Status        appointment.Status   `json:"status"`
	StatusLabel   string               `json:"status_label"`
	Notes         string               `json:"notes"`
	CreatedAt     time.Time            `json:"created_at"`
	Allowed       []appointment.Action `json:"allowed_actions"`
	CompletableAt *time.Time           `json:"completable_at,omitempty"`
}

// Describe builds the detail of a for role at now.
func Describe(a appointment.Appointment, role appointment.Role, now time.Time) Detail {
	d := Detail{
		ID:          a.ID,
		PatientID:   a.PatientID,
		InternIDs:   a.InternIDs,
		TimeSlotID:  a.TimeSlotID,
		Start:       a.Start,
		End:         a.End,
		Status:      a.Status,
		StatusLabel: a.Status.Label(),
		Notes:       a.Notes,
		CreatedAt:   a.CreatedAt,
		Allowed:     appointment.Allowed(a, role, now),
	}
	if d.InternIDs == nil {
		d.InternIDs = []int64{}
	}
	if d.Allowed == nil {
		d.Allowed = []appointment.Action{}
	}
	if at := appointment.CompletableAt(a); !at.IsZero() && role == appointment.RoleManager {
		d.CompletableAt = &at
	}
	return d
}

// Get fetches one appointment the user may see.
func (s *Service) Get(ctx context.Context, b Backend, user backend.User, id int64) (Detail, error) {
	a, err := s.fetchVisible(ctx, b, user, id)
	if err != nil {
		return Detail{}, err
	}
	return Describe(a, user.Role, s.Now()), nil
}

func (s *Service) fetchVisible(ctx context.Context, b Backend, user backend.User, id int64) (appointment.Appointment, error) {
	a, err := b.GetAppointment(ctx, id)
	if err != nil {
		if backend.IsStatus(err, http.StatusNotFound) {
			return appointment.Appointment{}, ErrNotFound
		}
		return appointment.Appointment{}, err
	}
	if !a.VisibleTo(user.Role, user.ID) {
		return appointment.Appointment{}, ErrNotFound
	}
	return a, nil
}

// ListResult is one page of appointment details.
type ListResult struct {
	Items   []Detail `json:"items"`
	Total   int      `json:"total"`
	Page    int      `json:"page"`
	PerPage int      `json:"per_page"`
}

// List pages through the appointments visible to the user.
func (s *Service) List(ctx context.Context, b Backend, user backend.User, q backend.ListQuery) (ListResult, error) {
	page, err := b.ListAppointments(ctx, q)
	if err != nil {
		return ListResult{}, err
	}
	now := s.Now()
	out := ListResult{Items: []Detail{}, Total: page.Total, Page: page.Page, PerPage: page.PerPage}
	dropped := 0
	for _, a := range page.Items {
		if !a.VisibleTo(user.Role, user.ID) {
			dropped++
			continue
		}
		out.Items = append(out.Items, Describe(a, user.Role, now))
	}
	// The backend scopes by role; anything it let through that the user may
	// not see is also taken off the total.
	out.Total -= dropped
	if out.Total < len(out.Items) {
		out.Total = len(out.Items)
	}
	return out, nil
}

// History returns the ordered status history of a visible appointment.
func (s *Service) History(ctx context.Context, b Backend, user backend.User, id int64) ([]appointment.HistoryEntry, error) {
	if _, err := s.fetchVisible(ctx, b, user, id); err != nil {
		return nil, err
	}
	return b.History(ctx, id)
}

// Transition applies action to the appointment after checking it against
// the status machine. Nothing is changed locally when the backend refuses;
// the caller gets the error and may retry.
func (s *Service) Transition(ctx context.Context, b Backend, user backend.User, id int64, action appointment.Action, reason string) (Detail, error) {
	a, err := s.fetchVisible(ctx, b, user, id)
	if err != nil {
		return Detail{}, err
	}

	now := s.Now()
	change, err := appointment.Transition(a, action, user.Role, user.ID, now, reason)
	if err != nil {
		return Detail{}, err
	}
	next := appointment.Apply(a, change)

	update := backend.AppointmentUpdate{Status: &next.Status}
	if r := strings.TrimSpace(reason); r != "" {
		update.Notes = &r
	}
	updated, err := b.UpdateAppointment(ctx, id, update)
	if err != nil {
		return Detail{}, fmt.Errorf("update appointment %d: %w", id, err)
	}

	if a.Status.HoldsSlot() != updated.Status.HoldsSlot() {
		s.resolver.Invalidate(a.Start)
	}
	s.notifyTransition(user, updated, change)
	s.logger.Info("appointment status changed",
		zap.Int64("appointment_id", id),
		zap.String("from", string(a.Status)),
		zap.String("to", string(updated.Status)),
		zap.String("actor", string(user.Role)))
	return Describe(updated, user.Role, s.Now()), nil
}

func (s *Service) notifyTransition(user backend.User, a appointment.Appointment, change appointment.Change) {
	n := notification.Notice{
		AppointmentID: a.ID,
		Title:         "Consulta: " + change.To.Label(),
		Body:          fmt.Sprintf("Sua consulta de %s agora está \"%s\".", a.Start.In(s.loc).Format("02/01/2006 15:04"), change.To.Label()),
	}
	if change.Entry.Reason != "" {
		n.Body += " Motivo: " + change.Entry.Reason
	}

	switch user.Role {
	case appointment.RoleManager:
		n.UserID = a.PatientID
		n.Role = appointment.RolePatient
		s.notify(n)
		for _, intern := range a.InternIDs {
			in := n
			in.UserID = intern
			in.Role = appointment.RoleIntern
			s.notify(in)
		}
	case appointment.RolePatient:
		n.Role = appointment.RoleManager
		n.Body = fmt.Sprintf("%s: consulta de %s agora está \"%s\".", user.Name, a.Start.In(s.loc).Format("02/01/2006 15:04"), change.To.Label())
		s.notify(n)
	}
}

// AssignIntern puts an intern on an appointment.
func (s *Service) AssignIntern(ctx context.Context, b Backend, user backend.User, id, internID int64) (Detail, error) {
	if user.Role != appointment.RoleManager {
		return Detail{}, ErrForbidden
	}
	if internID <= 0 {
		return Detail{}, ErrInvalidIntern
	}

	updated, err := b.UpdateAppointment(ctx, id, backend.AppointmentUpdate{InternID: &internID})
	if err != nil {
		if backend.IsStatus(err, http.StatusNotFound) {
			return Detail{}, ErrNotFound
		}
		return Detail{}, fmt.Errorf("assign intern to appointment %d: %w", id, err)
	}

	s.notify(notification.Notice{
		UserID:        internID,
		Role:          appointment.RoleIntern,
		AppointmentID: id,
		Title:         "Nova consulta atribuída",
		Body:          fmt.Sprintf("Você foi designado para a consulta de %s.", updated.Start.In(s.loc).Format("02/01/2006 15:04")),
	})
	return Describe(updated, user.Role, s.Now()), nil
}
