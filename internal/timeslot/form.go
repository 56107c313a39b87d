package timeslot

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"iesb-saude-portal/internal/parse"
)

// RepeatMode selects between explicit dates and weekly repetition.
type RepeatMode int

const (
	ExplicitDates RepeatMode = 0
	WeeklyRepeat  RepeatMode = 1
)

// Period bounds a weekly form. Dates are YYYY-MM-DD.
type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// FormInterval is one time range of a day entry, as typed by the manager.
type FormInterval struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DayEntry is either an explicit date (ExplicitDates) or a week day 0-6
// (WeeklyRepeat), with one or more time ranges.
type DayEntry struct {
	Date      string         `json:"date,omitempty"`
	WeekDay   *int           `json:"week_day,omitempty"`
	Intervals []FormInterval `json:"intervals"`
}

// Form is the manager's slot definition before it is split into backend
// create requests.
type Form struct {
	CollegeLocationID int64      `json:"college_location_id"`
	RepeatMode        RepeatMode `json:"repeat_mode"`
	Period            Period     `json:"period"`
	Days              []DayEntry `json:"days"`
}

// FieldErrors maps a field path such as "days[0].intervals[1]" to a message.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + fe[k]
	}
	return "invalid time slot form: " + strings.Join(parts, "; ")
}

// Validate checks the form against today's date (its location is used for
// all date parsing). An empty map means the form can be submitted.
func (f Form) Validate(today time.Time) FieldErrors {
	errs := FieldErrors{}
	loc := today.Location()

	if f.CollegeLocationID <= 0 {
		errs["college_location_id"] = "is required"
	}

	switch f.RepeatMode {
	case ExplicitDates:
	case WeeklyRepeat:
		f.validatePeriod(today, errs)
	default:
		errs["repeat_mode"] = "must be 0 (explicit dates) or 1 (weekly)"
		return errs
	}

	if len(f.Days) == 0 {
		errs["days"] = "at least one day is required"
	}

	// Intervals are checked for overlap across every entry naming the same
	// date or week day.
	accepted := make(map[string][]Interval)
	for i, day := range f.Days {
		prefix := fmt.Sprintf("days[%d]", i)
		group := prefix
		if f.RepeatMode == ExplicitDates {
			if day.WeekDay != nil {
				errs[prefix+".week_day"] = "is not allowed for explicit dates"
			}
			if strings.TrimSpace(day.Date) == "" {
				errs[prefix+".date"] = "is required"
			} else if d, err := parse.Date(day.Date, loc); err != nil {
				errs[prefix+".date"] = "must be a date in YYYY-MM-DD format"
			} else {
				group = d.Format(parse.DateLayout)
			}
		} else {
			if day.Date != "" {
				errs[prefix+".date"] = "is not allowed for weekly repetition"
			}
			if day.WeekDay == nil {
				errs[prefix+".week_day"] = "is required"
			} else if *day.WeekDay < 0 || *day.WeekDay > 6 {
				errs[prefix+".week_day"] = "must be between 0 and 6"
			} else {
				group = time.Weekday(*day.WeekDay).String()
			}
		}
		accepted[group] = validateIntervals(prefix, day.Intervals, accepted[group], errs)
	}

	return errs
}

func (f Form) validatePeriod(today time.Time, errs FieldErrors) {
	loc := today.Location()
	var start, end time.Time
	var err error

	if strings.TrimSpace(f.Period.Start) == "" {
		errs["period.start"] = "is required"
	} else if start, err = parse.Date(f.Period.Start, loc); err != nil {
		errs["period.start"] = "must be a date in YYYY-MM-DD format"
	} else if start.Before(midnight(today, loc)) {
		errs["period.start"] = "must not be before today"
	}

	if strings.TrimSpace(f.Period.End) == "" {
		errs["period.end"] = "is required"
	} else if end, err = parse.Date(f.Period.End, loc); err != nil {
		errs["period.end"] = "must be a date in YYYY-MM-DD format"
	} else if !start.IsZero() && !end.After(start) {
		errs["period.end"] = "must be after the start date"
	}
}

// validateIntervals checks intervals against each other and against the ones
// already accepted for the same day, and returns the grown accepted set.
func validateIntervals(prefix string, intervals []FormInterval, accepted []Interval, errs FieldErrors) []Interval {
	if len(intervals) == 0 {
		errs[prefix+".intervals"] = "at least one interval is required"
		return accepted
	}

	for j, raw := range intervals {
		key := fmt.Sprintf("%s.intervals[%d]", prefix, j)
		iv, err := raw.parse()
		if err != nil {
			errs[key] = "start and end must be times in HH:MM format"
			continue
		}
		if !iv.Valid() {
			errs[key] = "end time must be after start time"
			continue
		}
		for _, other := range accepted {
			if iv.Overlaps(other) {
				errs[key] = "overlaps another interval of the same day"
				break
			}
		}
		if _, bad := errs[key]; !bad {
			accepted = append(accepted, iv)
		}
	}
	return accepted
}

func (fi FormInterval) parse() (Interval, error) {
	start, err := ParseClock(fi.Start)
	if err != nil {
		return Interval{}, err
	}
	end, err := ParseClock(fi.End)
	if err != nil {
		return Interval{}, err
	}
	return Interval{Start: start, End: end}, nil
}

// RecurrenceAttributes is the recurrence block attached to weekly requests.
type RecurrenceAttributes struct {
	FrequencyType string `json:"frequency_type"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
}

// CreateRequest is the body of one backend time slot create call. A request
// carries either Date or WeekDay, never both.
type CreateRequest struct {
	CollegeLocationID int64                 `json:"college_location_id"`
	Date              string                `json:"date,omitempty"`
	WeekDay           *int                  `json:"week_day,omitempty"`
	StartTime         string                `json:"start_time"`
	EndTime           string                `json:"end_time"`
	Recurrence        *RecurrenceAttributes `json:"recurrence_rule_attributes,omitempty"`
}

// Requests validates the form and splits it into one create request per day
// entry and interval. Weekly requests share one recurrence block.
func (f Form) Requests(today time.Time) ([]CreateRequest, error) {
	if errs := f.Validate(today); len(errs) > 0 {
		return nil, errs
	}

	var recurrence *RecurrenceAttributes
	if f.RepeatMode == WeeklyRepeat {
		recurrence = &RecurrenceAttributes{
			FrequencyType: string(Weekly),
			StartDate:     strings.TrimSpace(f.Period.Start),
			EndDate:       strings.TrimSpace(f.Period.End),
		}
	}

	var out []CreateRequest
	for _, day := range f.Days {
		for _, raw := range day.Intervals {
			iv, _ := raw.parse()
			req := CreateRequest{
				CollegeLocationID: f.CollegeLocationID,
				StartTime:         iv.Start.String(),
				EndTime:           iv.End.String(),
			}
			if f.RepeatMode == WeeklyRepeat {
				wd := *day.WeekDay
				req.WeekDay = &wd
				req.Recurrence = recurrence
			} else {
				req.Date = strings.TrimSpace(day.Date)
			}
			out = append(out, req)
		}
	}
	return out, nil
}

// TimeSlot converts a request into the slot it would create, with no id.
func (r CreateRequest) TimeSlot(loc *time.Location) (TimeSlot, error) {
	start, err := ParseClock(r.StartTime)
	if err != nil {
		return TimeSlot{}, err
	}
	end, err := ParseClock(r.EndTime)
	if err != nil {
		return TimeSlot{}, err
	}

	slot := TimeSlot{
		CollegeLocationID: r.CollegeLocationID,
		Start:             start,
		End:               end,
	}
	if r.Date != "" {
		d, err := parse.Date(r.Date, loc)
		if err != nil {
			return TimeSlot{}, err
		}
		slot.Date = &d
	}
	if r.WeekDay != nil {
		wd := *r.WeekDay
		slot.WeekDay = &wd
	}
	if r.Recurrence != nil {
		rs, err := parse.Date(r.Recurrence.StartDate, loc)
		if err != nil {
			return TimeSlot{}, err
		}
		re, err := parse.Date(r.Recurrence.EndDate, loc)
		if err != nil {
			return TimeSlot{}, err
		}
		slot.Recurrence = &RecurrenceRule{Frequency: Frequency(r.Recurrence.FrequencyType), StartDate: rs, EndDate: re}
	}
	return slot, slot.Validate()
}
