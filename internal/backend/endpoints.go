package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"iesb-saude-portal/internal/appointment"
	"iesb-saude-portal/internal/calendar"
	"iesb-saude-portal/internal/parse"
	"iesb-saude-portal/internal/timeslot"
)

// Credentials are the login form fields.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string  `json:"token"`
	User  userDTO `json:"user"`
}

// Login exchanges credentials for a token and returns a new Session.
func (c *Client) Login(ctx context.Context, creds Credentials) (*Session, error) {
	var resp tokenResponse
	if err := c.Do(ctx, http.MethodPost, "/api/login", map[string]any{"user": creds}, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("%w: login response has no token", ErrMalformedResponse)
	}
	return NewSession(resp.Token, resp.User.user()), nil
}

// Logout revokes the token on the backend and clears the session.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.Do(ctx, http.MethodDelete, "/api/logout", nil, nil); err != nil {
		return err
	}
	c.session.Clear()
	return nil
}

// Refresh swaps the session token for a fresh one.
func (c *Client) Refresh(ctx context.Context) error {
	var resp tokenResponse
	if err := c.Do(ctx, http.MethodPost, "/api/refresh", nil, &resp); err != nil {
		return err
	}
	if resp.Token == "" {
		return fmt.Errorf("%w: refresh response has no token", ErrMalformedResponse)
	}
	c.session.SetToken(resp.Token)
	return nil
}

// Availability implements calendar.Source against GET /api/calendar.
func (c *Client) Availability(ctx context.Context, q calendar.Query) (calendar.Availability, error) {
	params := url.Values{}
	params.Set("start", q.Start.In(c.loc).Format(parse.DateLayout))
	params.Set("end", q.End.In(c.loc).Format(parse.DateLayout))
	if q.SpecialtyID > 0 {
		params.Set("specialtyId", strconv.FormatInt(q.SpecialtyID, 10))
	}
	if q.CampusID > 0 {
		params.Set("campusId", strconv.FormatInt(q.CampusID, 10))
	}

	var resp calendarDTO
	if err := c.Do(ctx, http.MethodGet, "/api/calendar?"+params.Encode(), nil, &resp); err != nil {
		return calendar.Availability{}, err
	}

	events := make([]calendar.Event, 0, len(resp.Free)+len(resp.Busy))
	for _, d := range resp.Free {
		ev, err := d.event(calendar.Free, c.loc)
		if err != nil {
			return calendar.Availability{}, err
		}
		events = append(events, ev)
	}
	for _, d := range resp.Busy {
		ev, err := d.event(calendar.Busy, c.loc)
		if err != nil {
			return calendar.Availability{}, err
		}
		events = append(events, ev)
	}
	return calendar.Split(events), nil
}

type createdSlot struct {
	ID int64 `json:"id"`
}

// CreateTimeSlot posts one create request and returns the new slot id.
func (c *Client) CreateTimeSlot(ctx context.Context, req timeslot.CreateRequest) (int64, error) {
	var raw json.RawMessage
	body := map[string]any{"time_slots": []timeslot.CreateRequest{req}}
	if err := c.Do(ctx, http.MethodPost, "/api/time_slots", body, &raw); err != nil {
		return 0, err
	}

	// Accept a bare array, {"time_slots": [...]} or a single object.
	var created []createdSlot
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0:
		return 0, fmt.Errorf("%w: empty time slot response", ErrMalformedResponse)
	case trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &created); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	default:
		var wrapped struct {
			TimeSlots []createdSlot `json:"time_slots"`
			ID        int64         `json:"id"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		created = wrapped.TimeSlots
		if wrapped.ID != 0 {
			created = append(created, createdSlot{ID: wrapped.ID})
		}
	}
	if len(created) == 0 || created[0].ID == 0 {
		return 0, fmt.Errorf("%w: time slot response has no id", ErrMalformedResponse)
	}
	return created[0].ID, nil
}

// DeleteTimeSlot removes a slot and every instance it generates.
func (c *Client) DeleteTimeSlot(ctx context.Context, id int64) error {
	return c.Do(ctx, http.MethodDelete, fmt.Sprintf("/api/time_slots/%d", id), nil, nil)
}

// CreateTimeSlotException excludes one date from a recurring slot.
func (c *Client) CreateTimeSlotException(ctx context.Context, slotID int64, date time.Time) error {
	body := map[string]any{
		"time_slot_exception": map[string]any{
			"time_slot_id": slotID,
			"date":         date.In(c.loc).Format(parse.DateLayout),
		},
	}
	return c.Do(ctx, http.MethodPost, "/api/time_slot_exceptions", body, nil)
}

// NewAppointment is a booking of one free instance.
type NewAppointment struct {
	TimeSlotID int64
	Start      time.Time
	End        time.Time
	Notes      string
}

// CreateAppointment books an instance. The backend creates it as pending.
func (c *Client) CreateAppointment(ctx context.Context, in NewAppointment) (appointment.Appointment, error) {
	start := in.Start.In(c.loc)
	body := map[string]any{
		"appointment": map[string]any{
			"time_slot_id": in.TimeSlotID,
			"date":         start.Format(parse.DateLayout),
			"start_time":   start.Format(parse.ClockLayout),
			"end_time":     in.End.In(c.loc).Format(parse.ClockLayout),
			"notes":        in.Notes,
		},
	}
	var resp AppointmentDTO
	if err := c.Do(ctx, http.MethodPost, "/api/appointments", body, &resp); err != nil {
		return appointment.Appointment{}, err
	}
	return resp.Appointment(c.loc)
}

// AppointmentUpdate is the PATCH body. Nil fields are omitted.
type AppointmentUpdate struct {
	Status   *appointment.Status `json:"status,omitempty"`
	Notes    *string             `json:"notes,omitempty"`
	InternID *int64              `json:"intern_id,omitempty"`
}

// UpdateAppointment patches status, notes or intern assignment.
func (c *Client) UpdateAppointment(ctx context.Context, id int64, u AppointmentUpdate) (appointment.Appointment, error) {
	var resp AppointmentDTO
	if err := c.Do(ctx, http.MethodPatch, fmt.Sprintf("/api/appointments/%d", id), map[string]any{"appointment": u}, &resp); err != nil {
		return appointment.Appointment{}, err
	}
	if resp.ID == 0 {
		// Some actions answer 204; read the record back.
		return c.GetAppointment(ctx, id)
	}
	return resp.Appointment(c.loc)
}

func (c *Client) GetAppointment(ctx context.Context, id int64) (appointment.Appointment, error) {
	var resp AppointmentDTO
	if err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/api/appointments/%d", id), nil, &resp); err != nil {
		return appointment.Appointment{}, err
	}
	return resp.Appointment(c.loc)
}

// ListQuery pages through appointments.
type ListQuery struct {
	Page    int
	PerPage int
	Status  appointment.Status
}

// Page is one page of appointments.
type Page struct {
	Items   []appointment.Appointment
	Total   int
	Page    int
	PerPage int
}

func (c *Client) ListAppointments(ctx context.Context, q ListQuery) (Page, error) {
	params := url.Values{}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		params.Set("per_page", strconv.Itoa(q.PerPage))
	}
	if q.Status != "" {
		params.Set("status", string(q.Status))
	}
	path := "/api/appointments"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp struct {
		Appointments []AppointmentDTO `json:"appointments"`
		Meta         struct {
			Total   int `json:"total"`
			Page    int `json:"page"`
			PerPage int `json:"per_page"`
		} `json:"meta"`
	}
	if err := c.Do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return Page{}, err
	}

	page := Page{Items: make([]appointment.Appointment, 0, len(resp.Appointments)), Total: resp.Meta.Total, Page: resp.Meta.Page, PerPage: resp.Meta.PerPage}
	for _, d := range resp.Appointments {
		a, err := d.Appointment(c.loc)
		if err != nil {
			return Page{}, err
		}
		page.Items = append(page.Items, a)
	}
	if page.Total == 0 {
		page.Total = len(page.Items)
	}
	return page, nil
}

// History returns the status transitions of an appointment, oldest first.
func (c *Client) History(ctx context.Context, id int64) ([]appointment.HistoryEntry, error) {
	var resp []historyDTO
	if err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/api/appointments/%d/appointment_status_histories", id), nil, &resp); err != nil {
		return nil, err
	}
	out := make([]appointment.HistoryEntry, 0, len(resp))
	for _, d := range resp {
		e, err := d.entry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

// CatalogItem is a specialty or a campus.
type CatalogItem struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (c *Client) Specialties(ctx context.Context) ([]CatalogItem, error) {
	var out []CatalogItem
	if err := c.Do(ctx, http.MethodGet, "/api/specialties", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CollegeLocations(ctx context.Context) ([]CatalogItem, error) {
	var out []CatalogItem
	if err := c.Do(ctx, http.MethodGet, "/api/college_locations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
