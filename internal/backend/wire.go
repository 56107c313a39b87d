package backend

import (
	"fmt"
	"time"

	"iesb-saude-portal/internal/appointment"
	"iesb-saude-portal/internal/calendar"
	"iesb-saude-portal/internal/parse"
	"iesb-saude-portal/internal/timeslot"
)

// slotDTO is one instance in the backend calendar response.
type slotDTO struct {
	TimeSlotID int64  `json:"time_slot_id"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Title      string `json:"title"`
	Specialty  string `json:"specialty"`
	Recurring  bool   `json:"recurring"`
}

func (d slotDTO) event(kind calendar.Kind, loc *time.Location) (calendar.Event, error) {
	start, err := parse.DateTime(d.Start, loc)
	if err != nil {
		return calendar.Event{}, fmt.Errorf("%w: slot %d start: %v", ErrMalformedResponse, d.TimeSlotID, err)
	}
	end, err := parse.DateTime(d.End, loc)
	if err != nil {
		return calendar.Event{}, fmt.Errorf("%w: slot %d end: %v", ErrMalformedResponse, d.TimeSlotID, err)
	}
	title := d.Title
	if title == "" {
		title = d.Specialty
	}
	return calendar.Event{
		TimeSlotID: d.TimeSlotID,
		Start:      start,
		End:        end,
		Title:      title,
		Specialty:  d.Specialty,
		Kind:       kind,
		Recurring:  d.Recurring,
	}, nil
}

type calendarDTO struct {
	Free []slotDTO `json:"free"`
	Busy []slotDTO `json:"busy"`
}

// AppointmentDTO is the backend representation of an appointment.
type AppointmentDTO struct {
	ID         int64     `json:"id"`
	PatientID  int64     `json:"patient_id"`
	InternID   *int64    `json:"intern_id,omitempty"`
	InternIDs  []int64   `json:"intern_ids,omitempty"`
	TimeSlotID int64     `json:"time_slot_id"`
	Date       string    `json:"date"`
	StartTime  string    `json:"start_time"`
	EndTime    string    `json:"end_time"`
	Status     string    `json:"status"`
	Notes      string    `json:"notes"`
	CreatedAt  time.Time `json:"created_at"`
}

// Appointment converts the DTO into the domain type.
func (d AppointmentDTO) Appointment(loc *time.Location) (appointment.Appointment, error) {
	status, err := appointment.ParseStatus(d.Status)
	if err != nil {
		return appointment.Appointment{}, fmt.Errorf("%w: appointment %d: %v", ErrMalformedResponse, d.ID, err)
	}
	day, err := parse.Date(d.Date, loc)
	if err != nil {
		return appointment.Appointment{}, fmt.Errorf("%w: appointment %d: %v", ErrMalformedResponse, d.ID, err)
	}
	start, err := parse.Clock(d.StartTime)
	if err != nil {
		return appointment.Appointment{}, fmt.Errorf("%w: appointment %d: %v", ErrMalformedResponse, d.ID, err)
	}
	end, err := parse.Clock(d.EndTime)
	if err != nil {
		return appointment.Appointment{}, fmt.Errorf("%w: appointment %d: %v", ErrMalformedResponse, d.ID, err)
	}

	interns := append([]int64(nil), d.InternIDs...)
	if d.InternID != nil && !containsID(interns, *d.InternID) {
		interns = append(interns, *d.InternID)
	}

	return appointment.Appointment{
		ID:         d.ID,
		PatientID:  d.PatientID,
		InternIDs:  interns,
		TimeSlotID: d.TimeSlotID,
		Start:      timeslot.Clock(start).On(day, loc),
		End:        timeslot.Clock(end).On(day, loc),
		Status:     status,
		Notes:      d.Notes,
		CreatedAt:  d.CreatedAt,
	}, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type historyDTO struct {
	FromStatus    string    `json:"from_status"`
	ToStatus      string    `json:"to_status"`
	ChangedByID   int64     `json:"changed_by_id"`
	ChangedByRole string    `json:"changed_by_role"`
	Reason        string    `json:"reason"`
	CreatedAt     time.Time `json:"created_at"`
}

func (d historyDTO) entry() (appointment.HistoryEntry, error) {
	to, err := appointment.ParseStatus(d.ToStatus)
	if err != nil {
		return appointment.HistoryEntry{}, fmt.Errorf("%w: history: %v", ErrMalformedResponse, err)
	}
	// The first entry of an appointment has no origin status.
	var from appointment.Status
	if d.FromStatus != "" {
		if from, err = appointment.ParseStatus(d.FromStatus); err != nil {
			return appointment.HistoryEntry{}, fmt.Errorf("%w: history: %v", ErrMalformedResponse, err)
		}
	}
	return appointment.HistoryEntry{
		From:    from,
		To:      to,
		Actor:   ParseRole(d.ChangedByRole),
		ActorID: d.ChangedByID,
		At:      d.CreatedAt,
		Reason:  d.Reason,
	}, nil
}

// ParseRole maps backend role names onto portal roles. The backend calls
// managers "admin" or "gestor" in older records.
func ParseRole(raw string) appointment.Role {
	switch raw {
	case "patient", "paciente":
		return appointment.RolePatient
	case "manager", "admin", "gestor":
		return appointment.RoleManager
	case "intern", "estagiario", "estagiário":
		return appointment.RoleIntern
	}
	return appointment.Role(raw)
}

type userDTO struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (d userDTO) user() User {
	return User{ID: d.ID, Name: d.Name, Email: d.Email, Role: ParseRole(d.Role)}
}
