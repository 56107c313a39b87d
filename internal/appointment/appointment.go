package appointment

import "time"

// Appointment is a patient's booking of one time slot instance.
type Appointment struct {
	ID         int64
	PatientID  int64
	InternIDs  []int64
	TimeSlotID int64
	Start      time.Time
	End        time.Time
	Status     Status
	Notes      string
	CreatedAt  time.Time
	History    []HistoryEntry
}

// HistoryEntry records one status change.
type HistoryEntry struct {
	From    Status    `json:"from"`
	To      Status    `json:"to"`
	Actor   Role      `json:"actor"`
	ActorID int64     `json:"actor_id,omitempty"`
	At      time.Time `json:"at"`
	Reason  string    `json:"reason,omitempty"`
}

// HasIntern reports whether the intern is assigned to a.
func (a Appointment) HasIntern(id int64) bool {
	for _, i := range a.InternIDs {
		if i == id {
			return true
		}
	}
	return false
}

// VisibleTo reports whether the user may see a. Managers see every
// appointment, patients their own and interns those they are assigned to.
func (a Appointment) VisibleTo(role Role, userID int64) bool {
	switch role {
	case RoleManager:
		return true
	case RolePatient:
		return a.PatientID == userID
	case RoleIntern:
		return a.HasIntern(userID)
	}
	return false
}
