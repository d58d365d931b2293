package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-scheduling/internal/access"
	"github.com/hackgods/therapy-scheduling/internal/apperr"
	"github.com/hackgods/therapy-scheduling/internal/appointment"
	"github.com/hackgods/therapy-scheduling/internal/auth"
	"github.com/hackgods/therapy-scheduling/internal/availability"
	"github.com/hackgods/therapy-scheduling/internal/db"
	"github.com/hackgods/therapy-scheduling/internal/link"
	"github.com/hackgods/therapy-scheduling/internal/message"
	"github.com/hackgods/therapy-scheduling/internal/user"
)

const testSecret = "router-test-secret"

// -- Fakes --

type fakeAppointments struct {
	err      error
	lastTime time.Time
	calls    []string
}

func (f *fakeAppointments) appt(caller access.Caller, at time.Time) *appointment.Appointment {
	return &appointment.Appointment{ID: uuid.New(), ClientID: caller.ID, Time: at, Status: appointment.StatusPending}
}

func (f *fakeAppointments) RequestAppointment(_ context.Context, caller access.Caller, _ uuid.UUID, at time.Time, _ string) (*appointment.Appointment, error) {
	f.calls = append(f.calls, "request")
	f.lastTime = at
	if f.err != nil {
		return nil, f.err
	}
	return f.appt(caller, at), nil
}

func (f *fakeAppointments) GetAppointment(_ context.Context, caller access.Caller, _ uuid.UUID) (*appointment.Appointment, error) {
	f.calls = append(f.calls, "get")
	if f.err != nil {
		return nil, f.err
	}
	return f.appt(caller, time.Now()), nil
}

func (f *fakeAppointments) ListAppointments(context.Context, access.Caller, appointment.ListFilter) ([]appointment.Appointment, error) {
	f.calls = append(f.calls, "list")
	return nil, f.err
}

func (f *fakeAppointments) SetStatus(_ context.Context, caller access.Caller, _ uuid.UUID, to appointment.AppointmentStatus) (*appointment.Appointment, error) {
	f.calls = append(f.calls, "status:"+string(to))
	if f.err != nil {
		return nil, f.err
	}
	a := f.appt(caller, time.Now())
	a.Status = to
	return a, nil
}

func (f *fakeAppointments) ProposeReschedule(_ context.Context, caller access.Caller, id uuid.UUID, newTime time.Time) (*appointment.RescheduleRequest, error) {
	f.calls = append(f.calls, "propose")
	if f.err != nil {
		return nil, f.err
	}
	return &appointment.RescheduleRequest{AppointmentID: id, ProposedBy: caller.ID, NewTime: newTime}, nil
}

func (f *fakeAppointments) ResolveReschedule(_ context.Context, caller access.Caller, _ uuid.UUID, accept bool) (*appointment.Appointment, error) {
	if accept {
		f.calls = append(f.calls, "accept")
	} else {
		f.calls = append(f.calls, "deny")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.appt(caller, time.Now()), nil
}

func (f *fakeAppointments) Reschedule(_ context.Context, caller access.Caller, _ uuid.UUID, newTime time.Time) (*appointment.Appointment, error) {
	f.calls = append(f.calls, "direct")
	if f.err != nil {
		return nil, f.err
	}
	return f.appt(caller, newTime), nil
}

func (f *fakeAppointments) ListRescheduleRequests(context.Context, access.Caller) ([]appointment.RescheduleRequest, error) {
	return nil, f.err
}

type fakeAvailability struct {
	inputs []availability.SlotInput
}

func (f *fakeAvailability) SetWeeklySchedule(_ context.Context, _ access.Caller, inputs []availability.SlotInput) (int, error) {
	f.inputs = inputs
	return len(inputs), nil
}

func (f *fakeAvailability) GetWeeklySchedule(_ context.Context, _ access.Caller, therapistID uuid.UUID) ([]availability.Slot, error) {
	return []availability.Slot{{ID: uuid.New(), TherapistID: therapistID, Weekday: time.Monday, StartTime: 9 * 60, EndTime: 17 * 60}}, nil
}

func (f *fakeAvailability) DeleteSlot(context.Context, access.Caller, uuid.UUID) error { return nil }

type fakeLinks struct{}

func (fakeLinks) Link(_ context.Context, caller access.Caller, _ uuid.UUID, _ string) (*link.Link, error) {
	return &link.Link{ID: uuid.New(), TherapistID: caller.ID, ClientID: uuid.New()}, nil
}

func (fakeLinks) ListClients(context.Context, access.Caller) ([]user.User, error) { return nil, nil }

func (fakeLinks) TherapistOf(_ context.Context, _ uuid.UUID) (*user.User, error) {
	return &user.User{ID: uuid.New(), Name: "Dr. Fake", Role: access.RoleTherapist}, nil
}

type fakeMessages struct{}

func (fakeMessages) Send(_ context.Context, caller access.Caller, receiverID uuid.UUID, text string) (*message.Message, error) {
	return &message.Message{ID: uuid.New(), SenderID: caller.ID, ReceiverID: receiverID, Text: text}, nil
}

func (fakeMessages) Conversation(context.Context, access.Caller, uuid.UUID, int) ([]message.Message, error) {
	return nil, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

// -- Helpers --

type testServer struct {
	handler      http.Handler
	appointments *fakeAppointments
	availability *fakeAvailability
}

func newTestServer(t *testing.T, mutate func(*RouterConfig)) *testServer {
	t.Helper()
	ts := &testServer{appointments: &fakeAppointments{}, availability: &fakeAvailability{}}
	cfg := RouterConfig{
		Availability:   ts.availability,
		Appointments:   ts.appointments,
		Links:          fakeLinks{},
		Messages:       fakeMessages{},
		Verifier:       auth.NewVerifier(testSecret),
		Location:       time.FixedZone("PRACTICE", 2*3600),
		Postgres:       fakePinger{},
		Redis:          fakePinger{},
		CORSOrigins:    []string{"*"},
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		Env:            "test",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	ts.handler = NewRouter(cfg)
	return ts
}

func token(t *testing.T, role access.Role) string {
	t.Helper()
	tok, err := auth.Sign(testSecret, uuid.New(), "", role, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

// -- Tests --

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	if rr := ts.do(t, http.MethodGet, "/health/live", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("live: %d", rr.Code)
	}
	if rr := ts.do(t, http.MethodGet, "/health/ready", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("ready: %d", rr.Code)
	}

	degraded := newTestServer(t, func(c *RouterConfig) { c.Redis = fakePinger{err: errors.New("down")} })
	rr := degraded.do(t, http.MethodGet, "/health/ready", "", nil)
	var body ReadinessResponse
	_ = json.NewDecoder(rr.Body).Decode(&body)
	if rr.Code != http.StatusOK || body.Status != "degraded" {
		t.Fatalf("redis down: %d %s", rr.Code, body.Status)
	}

	down := newTestServer(t, func(c *RouterConfig) { c.Postgres = fakePinger{err: errors.New("down")} })
	if rr := down.do(t, http.MethodGet, "/health/ready", "", nil); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("postgres down: %d", rr.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, nil)

	if rr := ts.do(t, http.MethodGet, "/appointments", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", rr.Code)
	}
	if rr := ts.do(t, http.MethodGet, "/appointments", "garbage", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", rr.Code)
	}
	if rr := ts.do(t, http.MethodGet, "/appointments", token(t, access.RoleClient), nil); rr.Code != http.StatusOK {
		t.Fatalf("valid token: %d", rr.Code)
	}
}

func TestCreateAppointment(t *testing.T) {
	ts := newTestServer(t, nil)
	tok := token(t, access.RoleClient)

	rr := ts.do(t, http.MethodPost, "/appointments", tok, CreateAppointmentRequest{
		TherapistID: uuid.NewString(),
		Time:        "2025-01-06T10:00",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	// zone-less times are read on the practice clock (UTC+2)
	want := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	if !ts.appointments.lastTime.Equal(want) {
		t.Errorf("expected %s, got %s", want, ts.appointments.lastTime)
	}

	rr = ts.do(t, http.MethodPost, "/appointments", tok, CreateAppointmentRequest{TherapistID: "nope", Time: "2025-01-06T10:00:00Z"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad therapist id: %d", rr.Code)
	}
	rr = ts.do(t, http.MethodPost, "/appointments", tok, CreateAppointmentRequest{TherapistID: uuid.NewString(), Time: "monday"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad time: %d", rr.Code)
	}
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		body string
	}{
		{"validation", apperr.Validation("bad"), http.StatusBadRequest, "validation_error"},
		{"forbidden", apperr.Forbidden("no"), http.StatusForbidden, "forbidden"},
		{"not found", appointment.ErrAppointmentNotFound, http.StatusNotFound, "not_found"},
		{"already booked", appointment.ErrSlotAlreadyBooked, http.StatusConflict, "slot_already_booked"},
		{"outside availability", appointment.ErrOutsideAvailability, http.StatusConflict, "outside_availability"},
		{"invalid transition", apperr.New(apperr.ErrInvalidTransition, "nope"), http.StatusConflict, "invalid_status_transition"},
		{"transient", db.Classify(context.DeadlineExceeded), http.StatusServiceUnavailable, "transient_error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.appointments.err = tt.err

			rr := ts.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), token(t, access.RoleTherapist), nil)
			if rr.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rr.Code)
			}
			var body ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Error != tt.body {
				t.Errorf("expected code %s, got %s", tt.body, body.Error)
			}
		})
	}
}

func TestStatusEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	tok := token(t, access.RoleTherapist)
	base := "/appointments/" + uuid.NewString()

	if rr := ts.do(t, http.MethodPost, base+"/approve", tok, nil); rr.Code != http.StatusOK {
		t.Fatalf("approve: %d", rr.Code)
	}
	if rr := ts.do(t, http.MethodPost, base+"/deny", tok, nil); rr.Code != http.StatusOK {
		t.Fatalf("deny: %d", rr.Code)
	}
	if rr := ts.do(t, http.MethodPost, base+"/status", tok, SetStatusRequest{Status: "completed"}); rr.Code != http.StatusOK {
		t.Fatalf("status: %d", rr.Code)
	}
	if rr := ts.do(t, http.MethodPost, base+"/status", tok, SetStatusRequest{Status: "archived"}); rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown status: %d", rr.Code)
	}

	want := []string{"status:CONFIRMED", "status:CANCELLED", "status:COMPLETED"}
	if len(ts.appointments.calls) != len(want) {
		t.Fatalf("calls = %v", ts.appointments.calls)
	}
	for i := range want {
		if ts.appointments.calls[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, ts.appointments.calls[i], want[i])
		}
	}
}

func TestRescheduleRouting(t *testing.T) {
	ts := newTestServer(t, nil)
	path := "/appointments/" + uuid.NewString() + "/reschedule"
	body := RescheduleRequest{NewTime: "2025-01-06T14:00:00Z"}

	rr := ts.do(t, http.MethodPost, path, token(t, access.RoleClient), body)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("client propose: %d", rr.Code)
	}
	rr = ts.do(t, http.MethodPost, path, token(t, access.RoleTherapist), body)
	if rr.Code != http.StatusOK {
		t.Fatalf("therapist direct: %d", rr.Code)
	}
	if got := ts.appointments.calls; len(got) != 2 || got[0] != "propose" || got[1] != "direct" {
		t.Fatalf("calls = %v", got)
	}

	rr = ts.do(t, http.MethodPost, path+"/resolve", token(t, access.RoleTherapist), map[string]any{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing accept: %d", rr.Code)
	}
	rr = ts.do(t, http.MethodPost, path+"/resolve", token(t, access.RoleTherapist), map[string]any{"accept": false})
	if rr.Code != http.StatusOK || ts.appointments.calls[len(ts.appointments.calls)-1] != "deny" {
		t.Fatalf("deny: %d %v", rr.Code, ts.appointments.calls)
	}
}

func TestAvailabilityEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	tok := token(t, access.RoleTherapist)

	rr := ts.do(t, http.MethodPost, "/availability", tok, SetAvailabilityRequest{Slots: []SlotRequest{
		{Weekday: 1, StartTime: "09:00", EndTime: "12:00"},
		{Weekday: 3, StartTime: "13:00", EndTime: "17:00"},
	}})
	var count SetAvailabilityResponse
	_ = json.NewDecoder(rr.Body).Decode(&count)
	if rr.Code != http.StatusOK || count.Count != 2 {
		t.Fatalf("set: %d %+v", rr.Code, count)
	}

	rr = ts.do(t, http.MethodGet, "/availability/me", tok, nil)
	var slots []SlotResponse
	_ = json.NewDecoder(rr.Body).Decode(&slots)
	if rr.Code != http.StatusOK || len(slots) != 1 || slots[0].StartTime != "09:00" || slots[0].Weekday != 1 {
		t.Fatalf("me: %d %+v", rr.Code, slots)
	}

	if rr := ts.do(t, http.MethodDelete, "/availability/"+uuid.NewString(), tok, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rr.Code)
	}
	if rr := ts.do(t, http.MethodGet, "/therapists/not-a-uuid/availability", tok, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", rr.Code)
	}
}

func TestMyTherapist(t *testing.T) {
	ts := newTestServer(t, nil)
	rr := ts.do(t, http.MethodGet, "/links/therapist", token(t, access.RoleClient), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var got UserResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Role != string(access.RoleTherapist) {
		t.Errorf("role = %q", got.Role)
	}
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(c *RouterConfig) {
		c.RateLimitRPS = 0.001
		c.RateLimitBurst = 1
	})
	tok := token(t, access.RoleClient)

	if rr := ts.do(t, http.MethodGet, "/appointments", tok, nil); rr.Code != http.StatusOK {
		t.Fatalf("first: %d", rr.Code)
	}
	if rr := ts.do(t, http.MethodGet, "/appointments", tok, nil); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second: %d", rr.Code)
	}
}

func TestParseTime(t *testing.T) {
	loc := time.FixedZone("X", -5*3600)
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2025-01-06T10:00:00Z", time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC), true},
		{"2025-01-06T10:00:00+02:00", time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC), true},
		{"2025-01-06T10:00", time.Date(2025, 1, 6, 15, 0, 0, 0, time.UTC), true},
		{"2025-01-06 10:00:30", time.Date(2025, 1, 6, 15, 0, 30, 0, time.UTC), true},
		{"10:00", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := parseTime(tt.in, loc)
		if ok != tt.ok || !got.Equal(tt.want) {
			t.Errorf("parseTime(%q) = %s, %v", tt.in, got, ok)
		}
	}
}
