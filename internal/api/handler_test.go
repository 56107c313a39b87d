package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iesb-saude-portal/internal/appointment"
	"iesb-saude-portal/internal/calendar"
	"iesb-saude-portal/internal/mw"
)

func (e *env) do(method, path, sess string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sess != "" {
		req.AddCookie(&http.Cookie{Name: "portal_session", Value: sess})
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestSessionEndpoints(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/api/session", "", map[string]string{"email": "not-an-email", "password": "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"errors":{"email":"failed on email"}}`, w.Body.String())

	w = e.do(http.MethodPost, "/api/session", "", map[string]string{"email": "ana@iesb.br", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, []any{"Invalid email or password."}, decode(t, w)["messages"])

	w = e.do(http.MethodPost, "/api/session", "", map[string]string{"email": "ana@iesb.br", "password": "secret"})
	require.Equal(t, http.StatusCreated, w.Code)
	cookie := w.Result().Cookies()[0]
	assert.Equal(t, "portal_session", cookie.Name)
	assert.Equal(t, "new-session", cookie.Value)
	assert.True(t, cookie.HttpOnly)

	w = e.do(http.MethodGet, "/api/me", "new-session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	user := decode(t, w)["user"].(map[string]any)
	assert.Equal(t, "patient", user["role"])

	assert.Equal(t, http.StatusOK, e.do(http.MethodPost, "/api/session/refresh", "new-session", nil).Code)
	assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/api/session", "new-session", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/me", "new-session", nil).Code)
}

func TestSessionHeader(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set(mw.SessionHeader, "manager")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCatalogIsCached(t *testing.T) {
	e := newEnv(t)

	first := e.do(http.MethodGet, "/api/catalog/specialties", "patient", nil)
	second := e.do(http.MethodGet, "/api/catalog/specialties", "manager", nil)

	require.Equal(t, http.StatusOK, first.Code)
	assert.JSONEq(t, `{"items":[{"id":5,"name":"Nutrição"}]}`, second.Body.String())
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, 1, e.backend.catalogCalls)

	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/catalog/campuses", "patient", nil).Code)
}

func TestCalendar(t *testing.T) {
	e := newEnv(t)
	start := time.Date(2025, 1, 13, 9, 0, 0, 0, brt)
	e.backend.avail = calendar.Availability{
		Free: []calendar.Event{{TimeSlotID: 1, Start: start, End: start.Add(time.Hour), Kind: calendar.Free}},
		Busy: []calendar.Event{},
	}

	testCases := []struct {
		name     string
		query    string
		wantCode int
	}{
		{name: "month", query: "month=2025-01&specialty_id=5&campus_id=3", wantCode: http.StatusOK},
		{name: "explicit range", query: "start=2025-01-01&end=2025-02-01", wantCode: http.StatusOK},
		{name: "nothing selected", query: "", wantCode: http.StatusUnprocessableEntity},
		{name: "bad month", query: "month=2025-13", wantCode: http.StatusUnprocessableEntity},
		{name: "start without end", query: "start=2025-01-01", wantCode: http.StatusUnprocessableEntity},
		{name: "end before start", query: "start=2025-02-01&end=2025-01-01", wantCode: http.StatusUnprocessableEntity},
		{name: "range over the month cap", query: "start=2000-01-01&end=2100-01-01", wantCode: http.StatusUnprocessableEntity},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := e.do(http.MethodGet, "/api/calendar?"+tc.query, "patient", nil)
			assert.Equal(t, tc.wantCode, w.Code, w.Body.String())
			if tc.wantCode == http.StatusOK {
				body := decode(t, w)
				assert.Len(t, body["free"], 1)
				assert.Len(t, body["events"], 1)
			}
		})
	}

	w := e.do(http.MethodPost, "/api/calendar/refresh?month=2025-01", "patient", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func weeklyForm() map[string]any {
	return map[string]any{
		"college_location_id": 3,
		"repeat_mode":         1,
		"period":              map[string]string{"start": "2025-01-06", "end": "2025-01-31"},
		"days": []any{
			map[string]any{"week_day": 1, "intervals": []any{map[string]string{"start": "09:00", "end": "10:00"}}},
		},
	}
}

func TestTimeSlots(t *testing.T) {
	e := newEnv(t)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/api/time_slots", "patient", weeklyForm()).Code)

	bad := weeklyForm()
	bad["days"] = []any{map[string]any{"week_day": 1, "intervals": []any{map[string]string{"start": "10:00", "end": "09:00"}}}}
	w := e.do(http.MethodPost, "/api/time_slots", "manager", bad)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"errors":{"days[0].intervals[0]":"end time must be after start time"}}`, w.Body.String())
	assert.Empty(t, e.backend.created)

	w = e.do(http.MethodPost, "/api/time_slots/preview", "manager", weeklyForm())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["events"], 4)
	assert.Empty(t, e.backend.created)

	w = e.do(http.MethodPost, "/api/time_slots", "manager", weeklyForm())
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"requested":1,"created":[101],"rolled_back":false}`, w.Body.String())

	e.backend.failCreateAt = 2
	two := weeklyForm()
	two["days"] = []any{map[string]any{"week_day": 1, "intervals": []any{
		map[string]string{"start": "09:00", "end": "10:00"},
		map[string]string{"start": "10:00", "end": "11:00"},
	}}}
	w = e.do(http.MethodPost, "/api/time_slots", "manager", two)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["failed_index"])
	assert.Equal(t, []any{"overlapping time slot"}, body["messages"])

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/time_slots", "manager", "{").Code)
}

func TestDeleteTimeSlot(t *testing.T) {
	e := newEnv(t)

	testCases := []struct {
		name     string
		path     string
		wantCode int
	}{
		{name: "scope required", path: "/api/time_slots/7", wantCode: http.StatusUnprocessableEntity},
		{name: "unknown scope", path: "/api/time_slots/7?scope=all", wantCode: http.StatusUnprocessableEntity},
		{name: "occurrence needs a date", path: "/api/time_slots/7?scope=occurrence", wantCode: http.StatusUnprocessableEntity},
		{name: "bad id", path: "/api/time_slots/x?scope=series", wantCode: http.StatusBadRequest},
		{name: "occurrence", path: "/api/time_slots/7?scope=occurrence&date=2025-01-13", wantCode: http.StatusNoContent},
		{name: "series", path: "/api/time_slots/7?scope=series", wantCode: http.StatusNoContent},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := e.do(http.MethodDelete, tc.path, "manager", nil)
			assert.Equal(t, tc.wantCode, w.Code, w.Body.String())
		})
	}

	assert.Equal(t, []int64{7}, e.backend.deleted)
	require.Len(t, e.backend.exceptions, 1)
	assert.Equal(t, 13, e.backend.exceptions[0].Day())
}

func TestAppointmentFlow(t *testing.T) {
	e := newEnv(t)
	start := time.Date(2025, 1, 13, 9, 0, 0, 0, brt)
	book := map[string]any{
		"time_slot_id": 1,
		"start":        start,
		"end":          start.Add(time.Hour),
		"objective":    "Consulta de rotina",
	}

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/api/appointments", "manager", book).Code)

	noObjective := map[string]any{"time_slot_id": 1, "start": start, "end": start.Add(time.Hour)}
	w := e.do(http.MethodPost, "/api/appointments", "patient", noObjective)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"errors":{"objective":"failed on required"}}`, w.Body.String())

	w = e.do(http.MethodPost, "/api/appointments", "patient", book)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, "pending", created["status"])
	assert.Equal(t, "Aguardando aprovação", created["status_label"])
	assert.Equal(t, []any{}, created["allowed_actions"])

	w = e.do(http.MethodGet, "/api/appointments/77", "manager", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"confirm", "reject"}, decode(t, w)["allowed_actions"])

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/appointments/77", "other", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/appointments/999", "patient", nil).Code)

	w = e.do(http.MethodPost, "/api/appointments/77/transitions", "manager", map[string]string{"action": "reject"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = e.do(http.MethodPost, "/api/appointments/77/transitions", "manager", map[string]string{"action": "launch"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = e.do(http.MethodPost, "/api/appointments/77/transitions", "patient", map[string]string{"action": "confirm"})
	assert.Equal(t, http.StatusForbidden, w.Code, "patients cannot confirm a pending request")

	w = e.do(http.MethodPost, "/api/appointments/77/transitions", "manager", map[string]string{"action": "confirm"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin_confirmed", decode(t, w)["status"])

	w = e.do(http.MethodPost, "/api/appointments/77/transitions", "patient", map[string]string{"action": "patient_confirm"})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodPost, "/api/appointments/77/transitions", "manager", map[string]string{"action": "complete"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "before its scheduled start")

	w = e.do(http.MethodPut, "/api/appointments/77/interns", "manager", map[string]int{"intern_id": 30})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{float64(30)}, decode(t, w)["intern_ids"])
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPut, "/api/appointments/77/interns", "patient", map[string]int{"intern_id": 30}).Code)

	w = e.do(http.MethodGet, "/api/appointments/77/history", "patient", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["items"], 1)

	w = e.do(http.MethodGet, "/api/appointments?status=patient_confirmed", "patient", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["items"], 1)
	assert.Equal(t, http.StatusUnprocessableEntity, e.do(http.MethodGet, "/api/appointments?status=done", "patient", nil).Code)
}

func TestWatchAppointment(t *testing.T) {
	e := newEnv(t)
	start := time.Date(2025, 1, 13, 9, 0, 0, 0, brt)
	e.backend.appts[5] = appointment.Appointment{ID: 5, PatientID: 10, Start: start, End: start.Add(time.Hour), Status: appointment.AdminConfirmed}

	server := httptest.NewServer(e.router)
	defer server.Close()

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/appointments/6/watch", "patient", nil).Code)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/appointments/5/watch", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "portal_session", Value: "patient"})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	var event, data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimPrefix(line, "data:")
		}
	}
	assert.Equal(t, "appointment", event)

	var d map[string]any
	require.NoError(t, json.Unmarshal([]byte(data), &d))
	assert.Equal(t, "admin_confirmed", d["status"])
	assert.Equal(t, []any{"patient_confirm", "patient_cancel"}, d["allowed_actions"])
}

func TestSubscriptions(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPut, "/api/subscriptions", "patient", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())

	sub := map[string]string{"endpoint": "https://push.example/abc", "p256dh": "k", "auth": "a"}
	assert.Equal(t, http.StatusCreated, e.do(http.MethodPut, "/api/subscriptions", "patient", sub).Code)

	w = e.do(http.MethodGet, "/api/subscriptions?endpoint=https%3A%2F%2Fpush.example%2Fabc", "patient", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://push.example/abc", decode(t, w)["endpoint"])

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/subscriptions?endpoint=https%3A%2F%2Fpush.example%2Fabc", "other", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/subscriptions", "patient", nil).Code)

	subs, err := e.store.SubscriptionsFor(context.Background(), 10, "patient")
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/api/subscriptions", "patient", map[string]string{"endpoint": "https://push.example/abc"}).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, "/api/subscriptions", "patient", map[string]string{"endpoint": "https://push.example/abc"}).Code)
}

func TestVAPIDPublicKey(t *testing.T) {
	w := newEnv(t).do(http.MethodGet, "/api/vapid_public_key", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"enabled":false}`, w.Body.String())

	e := newEnv(t, func(d *Deps) {
		d.Webpush = &webpush.Options{VAPIDPublicKey: "BPub", VAPIDPrivateKey: "priv"}
	})
	w = e.do(http.MethodGet, "/api/vapid_public_key", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"enabled":true,"public_key":"BPub"}`, w.Body.String())
}
