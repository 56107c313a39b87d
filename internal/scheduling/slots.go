package scheduling

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"iesb-saude-portal/internal/appointment"
	"iesb-saude-portal/internal/backend"
	"iesb-saude-portal/internal/calendar"
	"iesb-saude-portal/internal/timeslot"
)

// BatchResult reports the outcome of a slot batch.
type BatchResult struct {
	Requested   int     `json:"requested"`
	Created     []int64 `json:"created"`
	FailedIndex *int    `json:"failed_index,omitempty"`
	RolledBack  bool    `json:"rolled_back"`
}

// BatchError is returned when a request in the middle of a batch fails.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("time slot request %d failed: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// CreateSlots validates the form and creates one backend slot per day entry
// and interval, in order. A failure stops the batch; slots created before it
// are kept unless rollback of partial batches is enabled.
func (s *Service) CreateSlots(ctx context.Context, b Backend, user backend.User, form timeslot.Form) (BatchResult, error) {
	if user.Role != appointment.RoleManager {
		return BatchResult{}, ErrForbidden
	}

	reqs, err := form.Requests(s.Now())
	if err != nil {
		return BatchResult{}, err
	}

	result := BatchResult{Requested: len(reqs), Created: []int64{}}
	for i, req := range reqs {
		id, err := b.CreateTimeSlot(ctx, req)
		if err != nil {
			idx := i
			result.FailedIndex = &idx
			if s.rollback && len(result.Created) > 0 {
				result.RolledBack = s.rollbackBatch(ctx, b, result.Created)
			}
			s.invalidateRequests(reqs[:i])
			s.logger.Warn("time slot batch stopped",
				zap.Int("index", i),
				zap.Int("created", len(result.Created)),
				zap.Bool("rolled_back", result.RolledBack),
				zap.Error(err))
			return result, &BatchError{Index: i, Err: err}
		}
		result.Created = append(result.Created, id)
	}

	s.invalidateRequests(reqs)
	s.logger.Info("time slots created",
		zap.Int64("college_location_id", form.CollegeLocationID),
		zap.Int("count", len(result.Created)))
	return result, nil
}

func (s *Service) rollbackBatch(ctx context.Context, b Backend, created []int64) bool {
	ok := true
	for i := len(created) - 1; i >= 0; i-- {
		if err := b.DeleteTimeSlot(ctx, created[i]); err != nil {
			s.logger.Error("failed to roll back time slot", zap.Int64("time_slot_id", created[i]), zap.Error(err))
			ok = false
		}
	}
	return ok
}

func (s *Service) invalidateRequests(reqs []timeslot.CreateRequest) {
	for _, req := range reqs {
		from, to, ok := s.requestSpan(req)
		if !ok {
			continue
		}
		for _, m := range s.resolver.Months(calendar.Query{Start: from, End: to}) {
			s.resolver.Invalidate(m)
		}
	}
}

// requestSpan is the calendar range a create request can generate instances in.
func (s *Service) requestSpan(req timeslot.CreateRequest) (time.Time, time.Time, bool) {
	slot, err := req.TimeSlot(s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	if slot.Recurring() {
		return slot.Recurrence.StartDate, slot.Recurrence.EndDate.AddDate(0, 0, 1), true
	}
	return *slot.Date, slot.Date.AddDate(0, 0, 1), true
}

// Preview resolves the instances a form would create, all free, without
// calling the backend.
func (s *Service) Preview(form timeslot.Form) ([]calendar.Event, error) {
	reqs, err := form.Requests(s.Now())
	if err != nil {
		return nil, err
	}

	slots := make([]timeslot.TimeSlot, 0, len(reqs))
	var span calendar.Range
	for i, req := range reqs {
		slot, err := req.TimeSlot(s.loc)
		if err != nil {
			return nil, err
		}
		// Preview slots have no backend id yet; number them by request.
		slot.ID = int64(i + 1)
		slots = append(slots, slot)

		from, to, _ := s.requestSpan(req)
		if span.Start.IsZero() || from.Before(span.Start) {
			span.Start = from
		}
		if to.After(span.End) {
			span.End = to
		}
	}

	events := calendar.Resolve(slots, nil, nil, span, s.loc, nil)
	if events == nil {
		events = []calendar.Event{}
	}
	return events, nil
}

// Scope selects what deleting a slot instance removes.
type Scope string

const (
	ScopeOccurrence Scope = "occurrence"
	ScopeSeries     Scope = "series"
)

// DeleteSlot removes one occurrence of a slot, through an exception, or the
// whole series. Booked appointments are not touched.
func (s *Service) DeleteSlot(ctx context.Context, b Backend, user backend.User, slotID int64, scope Scope, date time.Time) error {
	if user.Role != appointment.RoleManager {
		return ErrForbidden
	}

	switch scope {
	case ScopeOccurrence:
		if date.IsZero() {
			return ErrDateRequired
		}
		if err := b.CreateTimeSlotException(ctx, slotID, date); err != nil {
			return fmt.Errorf("create exception: %w", err)
		}
		s.resolver.Invalidate(date)
	case ScopeSeries:
		if err := b.DeleteTimeSlot(ctx, slotID); err != nil {
			return fmt.Errorf("delete time slot: %w", err)
		}
		// The series may span any month.
		s.resolver.InvalidateAll()
	default:
		return ErrUnknownScope
	}

	s.logger.Info("time slot deleted",
		zap.Int64("time_slot_id", slotID),
		zap.String("scope", string(scope)))
	return nil
}
