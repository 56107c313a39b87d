package timeslot

import (
	"encoding/json"
	"time"

	"iesb-saude-portal/internal/parse"
)

// Clock is a wall-clock time of day in minutes since midnight.
type Clock int

// ParseClock reads HH:MM (or HH:MM:SS) into a Clock.
func ParseClock(raw string) (Clock, error) {
	m, err := parse.Clock(raw)
	if err != nil {
		return 0, err
	}
	return Clock(m), nil
}

func (c Clock) String() string {
	return parse.FormatClock(int(c))
}

// On places the clock on the calendar day of d, in loc.
func (c Clock) On(d time.Time, loc *time.Location) time.Time {
	y, m, day := d.In(loc).Date()
	return time.Date(y, m, day, int(c)/60, int(c)%60, 0, 0, loc)
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Interval is a half-open [Start, End) span within one day.
type Interval struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

// Valid reports whether End is strictly after Start.
func (i Interval) Valid() bool {
	return i.End > i.Start
}

// Overlaps reports whether the two intervals share any minute. Touching
// intervals such as 09:00-10:00 and 10:00-11:00 do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}
