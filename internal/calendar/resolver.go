package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"iesb-saude-portal/internal/parse"
)

// Query selects availability for a specialty at a campus over [Start, End).
type Query struct {
	Start       time.Time
	End         time.Time
	SpecialtyID int64
	CampusID    int64
}

func (q Query) Range() Range {
	return Range{Start: q.Start, End: q.End}
}

// Source answers availability queries, typically the clinic backend as seen
// by one signed-in user.
type Source interface {
	Availability(ctx context.Context, q Query) (Availability, error)
}

// DefaultMaxMonths bounds how many months one query may touch.
const DefaultMaxMonths = 3

var ErrRangeTooLarge = errors.New("range spans too many months")

// Resolver serves availability through a MonthCache. Queries are widened to
// whole months so that any range inside a cached month is a hit.
type Resolver struct {
	cache     *MonthCache
	loc       *time.Location
	maxMonths int
}

// NewResolver builds a resolver. maxMonths <= 0 selects DefaultMaxMonths.
func NewResolver(c *MonthCache, loc *time.Location, maxMonths int) *Resolver {
	if maxMonths <= 0 {
		maxMonths = DefaultMaxMonths
	}
	return &Resolver{cache: c, loc: loc, maxMonths: maxMonths}
}

// Check rejects inverted ranges and ranges touching more than the allowed
// number of months. Every backend call and cache entry is per month.
func (r *Resolver) Check(q Query) error {
	if err := q.Range().Validate(); err != nil {
		return err
	}
	if n := r.monthSpan(q); n > r.maxMonths {
		return fmt.Errorf("%w: %d months, at most %d", ErrRangeTooLarge, n, r.maxMonths)
	}
	return nil
}

// monthSpan counts the months overlapping q without walking them.
func (r *Resolver) monthSpan(q Query) int {
	start, end := q.Start.In(r.loc), q.End.In(r.loc)
	n := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if end.After(time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, r.loc)) {
		n++
	}
	return n
}

// Availability returns the disjoint free and busy instances for q.
func (r *Resolver) Availability(ctx context.Context, src Source, q Query) (Availability, error) {
	if err := r.Check(q); err != nil {
		return Availability{}, err
	}

	var events []Event
	for _, month := range r.Months(q) {
		key := MonthKey{Month: month.Format(parse.MonthLayout), SpecialtyID: q.SpecialtyID, CampusID: q.CampusID}
		av, found := r.cache.Get(key)
		if !found {
			var err error
			av, err = src.Availability(ctx, Query{
				Start:       month,
				End:         month.AddDate(0, 1, 0),
				SpecialtyID: q.SpecialtyID,
				CampusID:    q.CampusID,
			})
			if err != nil {
				return Availability{}, fmt.Errorf("availability for %s: %w", key.Month, err)
			}
			av = Split(av.Events())
			r.cache.Set(key, av)
		}
		events = append(events, av.Events()...)
	}

	return Split(events).Within(q.Range()), nil
}

// Refetch invalidates every month q touches and queries again.
func (r *Resolver) Refetch(ctx context.Context, src Source, q Query) (Availability, error) {
	if err := r.Check(q); err != nil {
		return Availability{}, err
	}
	for _, month := range r.Months(q) {
		r.cache.Invalidate(month)
	}
	return r.Availability(ctx, src, q)
}

// Invalidate drops the cached month containing t.
func (r *Resolver) Invalidate(t time.Time) {
	r.cache.Invalidate(t.In(r.loc))
}

// InvalidateAll empties the cache.
func (r *Resolver) InvalidateAll() {
	r.cache.InvalidateAll()
}

// Months lists the first day of every month overlapping q, in the resolver's
// location.
func (r *Resolver) Months(q Query) []time.Time {
	start := q.Start.In(r.loc)
	month := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, r.loc)
	var out []time.Time
	for month.Before(q.End) {
		out = append(out, month)
		month = month.AddDate(0, 1, 0)
	}
	return out
}
