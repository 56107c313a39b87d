package appointment

import "fmt"

// Status is the lifecycle state of an appointment.
type Status string

const (
	Pending          Status = "pending"
	AdminConfirmed   Status = "admin_confirmed"
	PatientConfirmed Status = "patient_confirmed"
	CancelledByAdmin Status = "cancelled_by_admin"
	PatientCancelled Status = "patient_cancelled"
	Rejected         Status = "rejected"
	Completed        Status = "completed"
)

var labels = map[Status]string{
	Pending:          "Aguardando aprovação",
	AdminConfirmed:   "Aguardando confirmação do Paciente",
	PatientConfirmed: "Confirmada",
	CancelledByAdmin: "Cancelada pelo gestor",
	PatientCancelled: "Cancelada pelo paciente",
	Rejected:         "Rejeitada",
	Completed:        "Concluída",
}

// Statuses lists every status in lifecycle order.
var Statuses = []Status{Pending, AdminConfirmed, PatientConfirmed, CancelledByAdmin, PatientCancelled, Rejected, Completed}

// Label returns the Portuguese display label.
func (s Status) Label() string {
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := labels[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == Rejected || s == Completed
}

// HoldsSlot reports whether an appointment in this status keeps its slot
// instance busy. Rejections and both cancellations release it.
func (s Status) HoldsSlot() bool {
	switch s {
	case Rejected, CancelledByAdmin, PatientCancelled:
		return false
	default:
		return true
	}
}

// ParseStatus maps a backend key to a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown appointment status %q", raw)
	}
	return s, nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Role is who acts on an appointment.
type Role string

const (
	RolePatient Role = "patient"
	RoleManager Role = "manager"
	RoleIntern  Role = "intern"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RolePatient || r == RoleManager || r == RoleIntern
}
