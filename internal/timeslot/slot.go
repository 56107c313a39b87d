package timeslot

import (
	"errors"
	"time"
)

var (
	ErrDateXorWeekDay       = errors.New("time slot must carry exactly one of date or week day")
	ErrRecurrenceMismatch   = errors.New("week day slots need a recurrence rule and dated slots must not have one")
	ErrInvalidWeekDay       = errors.New("week day must be between 0 and 6")
	ErrEmptyInterval        = errors.New("end time must be after start time")
	ErrInvalidRecurrenceEnd = errors.New("recurrence end date must be after its start date")
)

// Frequency of a recurrence rule. Only weekly repetition exists.
type Frequency string

const Weekly Frequency = "weekly"

// RecurrenceRule bounds a weekly slot. Both dates are inclusive calendar days.
type RecurrenceRule struct {
	Frequency Frequency
	StartDate time.Time
	EndDate   time.Time
}

// TimeSlot is a manager-defined availability window, either on a fixed date
// or repeating on a week day inside a recurrence period.
type TimeSlot struct {
	ID                int64
	CollegeLocationID int64
	SpecialtyID       int64
	Specialty         string
	Date              *time.Time
	WeekDay           *int
	Start             Clock
	End               Clock
	Recurrence        *RecurrenceRule
}

// Recurring reports whether the slot repeats weekly.
func (s TimeSlot) Recurring() bool {
	return s.Recurrence != nil
}

// Validate checks the structural invariants of a slot.
func (s TimeSlot) Validate() error {
	if (s.Date == nil) == (s.WeekDay == nil) {
		return ErrDateXorWeekDay
	}
	if (s.WeekDay != nil) != s.Recurring() {
		return ErrRecurrenceMismatch
	}
	if s.WeekDay != nil && (*s.WeekDay < 0 || *s.WeekDay > 6) {
		return ErrInvalidWeekDay
	}
	if s.End <= s.Start {
		return ErrEmptyInterval
	}
	if s.Recurring() && !s.Recurrence.EndDate.After(s.Recurrence.StartDate) {
		return ErrInvalidRecurrenceEnd
	}
	return nil
}

// Occurrence is one concrete dated instance of a slot.
type Occurrence struct {
	TimeSlotID int64
	Start      time.Time
	End        time.Time
	Recurring  bool
}

// Occurrences expands the slot into the instances whose start falls in
// [from, to). Weekly slots yield every matching week day inside both the
// recurrence period and the range.
func (s TimeSlot) Occurrences(from, to time.Time, loc *time.Location) []Occurrence {
	if !to.After(from) {
		return nil
	}

	if !s.Recurring() {
		if s.Date == nil {
			return nil
		}
		o := s.occurrenceOn(*s.Date, loc)
		if o.Start.Before(from) || !o.Start.Before(to) {
			return nil
		}
		return []Occurrence{o}
	}

	if s.WeekDay == nil {
		return nil
	}

	first := midnight(s.Recurrence.StartDate, loc)
	if f := midnight(from, loc); f.After(first) {
		first = f
	}
	last := midnight(s.Recurrence.EndDate, loc)

	offset := (*s.WeekDay - int(first.Weekday()) + 7) % 7
	var out []Occurrence
	for d := first.AddDate(0, 0, offset); !d.After(last); d = d.AddDate(0, 0, 7) {
		o := s.occurrenceOn(d, loc)
		if !o.Start.Before(to) {
			break
		}
		if o.Start.Before(from) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func (s TimeSlot) occurrenceOn(day time.Time, loc *time.Location) Occurrence {
	return Occurrence{
		TimeSlotID: s.ID,
		Start:      s.Start.On(day, loc),
		End:        s.End.On(day, loc),
		Recurring:  s.Recurring(),
	}
}

// Exception removes a single date from a recurring slot.
type Exception struct {
	TimeSlotID int64
	Date       time.Time
}

// Matches reports whether the exception covers the occurrence.
func (e Exception) Matches(o Occurrence, loc *time.Location) bool {
	return e.TimeSlotID == o.TimeSlotID && SameDay(e.Date, o.Start, loc)
}

// SameDay compares calendar days in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

func midnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
