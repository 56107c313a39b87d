package scheduling

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"iesb-saude-portal/internal/appointment"
	"iesb-saude-portal/internal/backend"
	"iesb-saude-portal/internal/fetch"
)

// Watch streams the detail of one appointment. It re-fetches the record
// every tick and, between fetches, re-sends the cached record whenever the
// allowed actions change with the clock. The channel closes when ctx ends.
func (s *Service) Watch(ctx context.Context, b Backend, user backend.User, id int64, every time.Duration) <-chan Detail {
	out := make(chan Detail)

	go func() {
		defer close(out)

		var latest fetch.Latest[appointment.Appointment]
		defer latest.Stop()
		fresh := make(chan struct{}, 1)

		refetch := func() {
			fctx, ticket := latest.Begin(ctx)
			go func() {
				a, err := b.GetAppointment(fctx, id)
				if err != nil {
					latest.Abandon(ticket)
					if !errors.Is(err, context.Canceled) {
						s.logger.Warn("watch refetch failed", zap.Int64("appointment_id", id), zap.Error(err))
					}
					return
				}
				if latest.Commit(ticket, a) {
					select {
					case fresh <- struct{}{}:
					default:
					}
				}
			}()
		}

		var sent []appointment.Action
		send := func(a appointment.Appointment) bool {
			if !a.VisibleTo(user.Role, user.ID) {
				return true
			}
			d := Describe(a, user.Role, s.Now())
			select {
			case out <- d:
				sent = d.Allowed
				return true
			case <-ctx.Done():
				return false
			}
		}

		ticker := time.NewTicker(every)
		defer ticker.Stop()
		refetch()

		for {
			select {
			case <-ctx.Done():
				return
			case <-fresh:
				if a, ok := latest.Value(); ok && !send(a) {
					return
				}
			case <-ticker.C:
				if a, ok := latest.Value(); ok {
					if !slices.Equal(sent, appointment.Allowed(a, user.Role, s.Now())) && !send(a) {
						return
					}
				}
				refetch()
			}
		}
	}()

	return out
}
