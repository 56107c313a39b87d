package calendar

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"iesb-saude-portal/internal/appointment"
	"iesb-saude-portal/internal/timeslot"
)

var ErrInvalidRange = errors.New("range end must be after its start")

// Kind tells whether an instance can still be booked.
type Kind string

const (
	Free Kind = "free"
	Busy Kind = "busy"
)

// Event is one resolved slot instance.
type Event struct {
	TimeSlotID int64     `json:"time_slot_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Title      string    `json:"title"`
	Specialty  string    `json:"specialty,omitempty"`
	Kind       Kind      `json:"kind"`
	Recurring  bool      `json:"recurring"`
}

// InstanceKey identifies an instance across queries.
type InstanceKey struct {
	TimeSlotID int64
	Start      time.Time
}

func (k InstanceKey) String() string {
	return fmt.Sprintf("%d@%s", k.TimeSlotID, k.Start.Format(time.RFC3339))
}

// Key returns the instance identity of e. Start is normalized to UTC so
// keys compare equal regardless of the zone the instant was read in.
func (e Event) Key() InstanceKey {
	return InstanceKey{TimeSlotID: e.TimeSlotID, Start: e.Start.UTC()}
}

// Range is the half-open interval [Start, End).
type Range struct {
	Start time.Time
	End   time.Time
}

func (r Range) Validate() error {
	if !r.End.After(r.Start) {
		return ErrInvalidRange
	}
	return nil
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// TitleFunc names the events generated from a slot.
type TitleFunc func(timeslot.TimeSlot) string

// Resolve expands slots over r, drops excepted dates and marks every
// instance held by an appointment as busy. It performs no I/O.
func Resolve(slots []timeslot.TimeSlot, exceptions []timeslot.Exception, appts []appointment.Appointment, r Range, loc *time.Location, title TitleFunc) []Event {
	if r.Validate() != nil {
		return nil
	}

	taken := make(map[InstanceKey]bool, len(appts))
	for _, a := range appts {
		if a.Status.HoldsSlot() {
			taken[InstanceKey{TimeSlotID: a.TimeSlotID, Start: a.Start.UTC()}] = true
		}
	}

	excepted := make(map[int64][]timeslot.Exception)
	for _, e := range exceptions {
		excepted[e.TimeSlotID] = append(excepted[e.TimeSlotID], e)
	}

	var out []Event
	for _, slot := range slots {
		name := slot.Specialty
		if title != nil {
			name = title(slot)
		}
	occurrences:
		for _, o := range slot.Occurrences(r.Start, r.End, loc) {
			for _, e := range excepted[slot.ID] {
				if e.Matches(o, loc) {
					continue occurrences
				}
			}
			ev := Event{
				TimeSlotID: o.TimeSlotID,
				Start:      o.Start,
				End:        o.End,
				Title:      name,
				Specialty:  slot.Specialty,
				Kind:       Free,
				Recurring:  o.Recurring,
			}
			if taken[ev.Key()] {
				ev.Kind = Busy
			}
			out = append(out, ev)
		}
	}

	sortEvents(out)
	return out
}

// Availability holds disjoint free and busy instances.
type Availability struct {
	Free []Event `json:"free"`
	Busy []Event `json:"busy"`
}

// Split partitions events by kind. An instance listed as both free and busy
// is reported busy only, and duplicates collapse to one event.
func Split(events []Event) Availability {
	busy := make(map[InstanceKey]bool)
	for _, e := range events {
		if e.Kind == Busy {
			busy[e.Key()] = true
		}
	}

	av := Availability{Free: []Event{}, Busy: []Event{}}
	seen := make(map[InstanceKey]bool, len(events))
	for _, e := range events {
		k := e.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		if busy[k] {
			e.Kind = Busy
			av.Busy = append(av.Busy, e)
		} else {
			e.Kind = Free
			av.Free = append(av.Free, e)
		}
	}
	sortEvents(av.Free)
	sortEvents(av.Busy)
	return av
}

// Events flattens the availability back into one ordered list.
func (a Availability) Events() []Event {
	out := make([]Event, 0, len(a.Free)+len(a.Busy))
	out = append(out, a.Free...)
	out = append(out, a.Busy...)
	sortEvents(out)
	return out
}

// Within keeps only the events that start inside r.
func (a Availability) Within(r Range) Availability {
	out := Availability{Free: []Event{}, Busy: []Event{}}
	for _, e := range a.Free {
		if r.Contains(e.Start) {
			out.Free = append(out.Free, e)
		}
	}
	for _, e := range a.Busy {
		if r.Contains(e.Start) {
			out.Busy = append(out.Busy, e)
		}
	}
	return out
}

func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Start.Equal(events[j].Start) {
			return events[i].Start.Before(events[j].Start)
		}
		return events[i].TimeSlotID < events[j].TimeSlotID
	})
}
