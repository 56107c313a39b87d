package scheduling

import (
	"context"
	"errors"
	"sync"
	"time"

	"iesb-saude-portal/internal/appointment"
	"iesb-saude-portal/internal/backend"
	"iesb-saude-portal/internal/calendar"
	"iesb-saude-portal/internal/notification"
	"iesb-saude-portal/internal/timeslot"
)

var brt = time.FixedZone("BRT", -3*3600)

var (
	patient = backend.User{ID: 10, Name: "Ana", Role: appointment.RolePatient}
	other   = backend.User{ID: 11, Name: "Bruno", Role: appointment.RolePatient}
	manager = backend.User{ID: 1, Name: "Gestora", Role: appointment.RoleManager}
	intern  = backend.User{ID: 30, Name: "Caio", Role: appointment.RoleIntern}
)

// fakeBackend keeps slots and appointments in memory and resolves the
// calendar with calendar.Resolve.
type fakeBackend struct {
	mu           sync.Mutex
	nextID       int64
	slots        map[int64]timeslot.TimeSlot
	exceptions   []timeslot.Exception
	appts        map[int64]appointment.Appointment
	created      []timeslot.CreateRequest
	deleted      []int64
	patches      []backend.AppointmentUpdate
	calendarHits int
	gets         int

	failCreateAt int
	failUpdate   error
	failGet      error
	hold         chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		nextID:       100,
		slots:        map[int64]timeslot.TimeSlot{},
		appts:        map[int64]appointment.Appointment{},
		failCreateAt: -1,
	}
}

var errBackend = &backend.HTTPError{Status: 422, Body: `{"errors":["overlapping time slot"]}`}

func (f *fakeBackend) Availability(ctx context.Context, q calendar.Query) (calendar.Availability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calendarHits++

	var slots []timeslot.TimeSlot
	for _, s := range f.slots {
		slots = append(slots, s)
	}
	var appts []appointment.Appointment
	for _, a := range f.appts {
		appts = append(appts, a)
	}
	return calendar.Split(calendar.Resolve(slots, f.exceptions, appts, q.Range(), brt, nil)), nil
}

func (f *fakeBackend) CreateTimeSlot(ctx context.Context, req timeslot.CreateRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateAt == len(f.created) {
		f.created = append(f.created, req)
		return 0, errBackend
	}
	f.created = append(f.created, req)
	slot, err := req.TimeSlot(brt)
	if err != nil {
		return 0, err
	}
	f.nextID++
	slot.ID = f.nextID
	f.slots[slot.ID] = slot
	return slot.ID, nil
}

func (f *fakeBackend) DeleteTimeSlot(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	delete(f.slots, id)
	return nil
}

func (f *fakeBackend) CreateTimeSlotException(ctx context.Context, slotID int64, date time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exceptions = append(f.exceptions, timeslot.Exception{TimeSlotID: slotID, Date: date})
	return nil
}

func (f *fakeBackend) CreateAppointment(ctx context.Context, in backend.NewAppointment) (appointment.Appointment, error) {
	if f.hold != nil {
		select {
		case <-f.hold:
		case <-ctx.Done():
			return appointment.Appointment{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	a := appointment.Appointment{
		ID:         f.nextID,
		PatientID:  patient.ID,
		TimeSlotID: in.TimeSlotID,
		Start:      in.Start,
		End:        in.End,
		Status:     appointment.Pending,
		Notes:      in.Notes,
	}
	f.appts[a.ID] = a
	return a, nil
}

func (f *fakeBackend) UpdateAppointment(ctx context.Context, id int64, u backend.AppointmentUpdate) (appointment.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, u)
	if f.failUpdate != nil {
		return appointment.Appointment{}, f.failUpdate
	}
	a, ok := f.appts[id]
	if !ok {
		return appointment.Appointment{}, &backend.HTTPError{Status: 404, Body: "not found"}
	}
	if u.Status != nil {
		a.Status = *u.Status
	}
	if u.Notes != nil {
		a.Notes = *u.Notes
	}
	if u.InternID != nil {
		a.InternIDs = append(a.InternIDs, *u.InternID)
	}
	f.appts[id] = a
	return a, nil
}

func (f *fakeBackend) GetAppointment(ctx context.Context, id int64) (appointment.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.failGet != nil {
		return appointment.Appointment{}, f.failGet
	}
	a, ok := f.appts[id]
	if !ok {
		return appointment.Appointment{}, &backend.HTTPError{Status: 404, Body: "not found"}
	}
	return a, nil
}

func (f *fakeBackend) ListAppointments(ctx context.Context, q backend.ListQuery) (backend.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page := backend.Page{Page: 1, PerPage: 25}
	for _, a := range f.appts {
		if q.Status == "" || a.Status == q.Status {
			page.Items = append(page.Items, a)
		}
	}
	page.Total = len(page.Items)
	return page, nil
}

func (f *fakeBackend) History(ctx context.Context, id int64) ([]appointment.HistoryEntry, error) {
	return []appointment.HistoryEntry{{To: appointment.Pending, Actor: appointment.RolePatient}}, nil
}

func (f *fakeBackend) put(a appointment.Appointment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appts[a.ID] = a
}

func (f *fakeBackend) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

// recordingNotifier captures dispatched notices.
type recordingNotifier struct {
	mu      sync.Mutex
	notices []notification.Notice
}

func (r *recordingNotifier) Dispatch(n notification.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) all() []notification.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notification.Notice(nil), r.notices...)
}

var errBoom = errors.New("connection reset")
