package appointment

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrUnknownAction        = errors.New("unknown action")
	ErrTransitionNotAllowed = errors.New("transition not allowed from current status")
	ErrActorNotAllowed      = errors.New("actor may not perform this transition")
	ErrReasonRequired       = errors.New("a reason is required")
	ErrTooEarly             = errors.New("appointment cannot be completed before its scheduled start")
)

// Action names a status change as requested by a user.
type Action string

const (
	Confirm        Action = "confirm"
	Reject         Action = "reject"
	PatientConfirm Action = "patient_confirm"
	PatientCancel  Action = "patient_cancel"
	Cancel         Action = "cancel"
	Complete       Action = "complete"
	Reopen         Action = "reopen"
)

// Actions lists every action in a stable order.
var Actions = []Action{Confirm, Reject, PatientConfirm, PatientCancel, Cancel, Complete, Reopen}

type rule struct {
	from  []Status
	to    Status
	actor Role
}

func ruleFor(a Action) (rule, bool) {
	switch a {
	case Confirm:
		return rule{from: []Status{Pending}, to: AdminConfirmed, actor: RoleManager}, true
	case Reject:
		return rule{from: []Status{Pending}, to: Rejected, actor: RoleManager}, true
	case PatientConfirm:
		return rule{from: []Status{AdminConfirmed}, to: PatientConfirmed, actor: RolePatient}, true
	case PatientCancel:
		return rule{from: []Status{AdminConfirmed}, to: PatientCancelled, actor: RolePatient}, true
	case Cancel:
		return rule{from: []Status{AdminConfirmed, PatientConfirmed}, to: CancelledByAdmin, actor: RoleManager}, true
	case Complete:
		return rule{from: []Status{PatientConfirmed}, to: Completed, actor: RoleManager}, true
	case Reopen:
		return rule{from: []Status{CancelledByAdmin, PatientCancelled}, to: Pending, actor: RoleManager}, true
	}
	return rule{}, false
}

func (r rule) accepts(s Status) bool {
	for _, f := range r.from {
		if f == s {
			return true
		}
	}
	return false
}

// Change is the outcome of an accepted transition.
type Change struct {
	Action Action
	To     Status
	Entry  HistoryEntry
}

// Transition checks whether actor may apply action to a at now. It never
// mutates a; use Apply with the returned Change once the backend agreed.
func Transition(a Appointment, action Action, actor Role, actorID int64, now time.Time, reason string) (Change, error) {
	r, ok := ruleFor(action)
	if !ok {
		return Change{}, ErrUnknownAction
	}
	if !r.accepts(a.Status) {
		return Change{}, ErrTransitionNotAllowed
	}
	if actor != r.actor {
		return Change{}, ErrActorNotAllowed
	}
	reason = strings.TrimSpace(reason)
	if action == Reject && reason == "" {
		return Change{}, ErrReasonRequired
	}
	if action == Complete && now.Before(a.Start) {
		return Change{}, ErrTooEarly
	}

	return Change{
		Action: action,
		To:     r.to,
		Entry: HistoryEntry{
			From:    a.Status,
			To:      r.to,
			Actor:   actor,
			ActorID: actorID,
			At:      now,
			Reason:  reason,
		},
	}, nil
}

// Apply returns a copy of a in the new status with the change recorded in
// its history.
func Apply(a Appointment, c Change) Appointment {
	out := a
	out.Status = c.To
	out.History = make([]HistoryEntry, len(a.History), len(a.History)+1)
	copy(out.History, a.History)
	out.History = append(out.History, c.Entry)
	return out
}

// Allowed lists the actions actor may take on a at now.
func Allowed(a Appointment, actor Role, now time.Time) []Action {
	var out []Action
	for _, action := range Actions {
		r, _ := ruleFor(action)
		if r.actor != actor || !r.accepts(a.Status) {
			continue
		}
		if action == Complete && now.Before(a.Start) {
			continue
		}
		out = append(out, action)
	}
	return out
}

// CompletableAt is the instant from which a confirmed appointment can be
// completed. It is zero when completion is not reachable from the current
// status.
func CompletableAt(a Appointment) time.Time {
	if a.Status != PatientConfirmed {
		return time.Time{}
	}
	return a.Start
}
