package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/appointment-booking-saga/internal/appointment"
	"github.com/hackgods/appointment-booking-saga/internal/consultation"
	"github.com/hackgods/appointment-booking-saga/internal/discovery"
	"github.com/hackgods/appointment-booking-saga/internal/provider"
)

type mockAppointments struct {
	mock.Mock
}

func (m *mockAppointments) CreateAppointment(ctx context.Context, req appointment.CreateRequest) (*appointment.Booking, error) {
	args := m.Called(ctx, req)
	b, _ := args.Get(0).(*appointment.Booking)
	return b, args.Error(1)
}

func (m *mockAppointments) GetAppointment(ctx context.Context, id int64) (*appointment.Appointment, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(*appointment.Appointment)
	return a, args.Error(1)
}

func (m *mockAppointments) ListAppointments(ctx context.Context, f appointment.Filter) ([]appointment.Appointment, error) {
	args := m.Called(ctx, f)
	list, _ := args.Get(0).([]appointment.Appointment)
	return list, args.Error(1)
}

func (m *mockAppointments) UpdateStatus(ctx context.Context, id int64, status appointment.Status) (*appointment.Appointment, error) {
	args := m.Called(ctx, id, status)
	a, _ := args.Get(0).(*appointment.Appointment)
	return a, args.Error(1)
}

type mockProviders struct {
	mock.Mock
}

func (m *mockProviders) Create(ctx context.Context, p provider.Provider) (*provider.Provider, error) {
	args := m.Called(ctx, p)
	out, _ := args.Get(0).(*provider.Provider)
	return out, args.Error(1)
}

func (m *mockProviders) Get(ctx context.Context, id int64) (*provider.Provider, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).(*provider.Provider)
	return out, args.Error(1)
}

func (m *mockProviders) List(ctx context.Context, specialty string) ([]provider.Provider, error) {
	args := m.Called(ctx, specialty)
	list, _ := args.Get(0).([]provider.Provider)
	return list, args.Error(1)
}

func (m *mockProviders) Update(ctx context.Context, p provider.Provider) (*provider.Provider, error) {
	args := m.Called(ctx, p)
	out, _ := args.Get(0).(*provider.Provider)
	return out, args.Error(1)
}

func (m *mockProviders) SetAvailability(ctx context.Context, id int64, available bool) (*provider.Provider, error) {
	args := m.Called(ctx, id, available)
	out, _ := args.Get(0).(*provider.Provider)
	return out, args.Error(1)
}

type mockConsultations struct {
	mock.Mock
}

func (m *mockConsultations) Create(ctx context.Context, req consultation.CreateRequest) (*consultation.Consultation, error) {
	args := m.Called(ctx, req)
	out, _ := args.Get(0).(*consultation.Consultation)
	return out, args.Error(1)
}

func (m *mockConsultations) Get(ctx context.Context, id int64) (*consultation.Consultation, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).(*consultation.Consultation)
	return out, args.Error(1)
}

func (m *mockConsultations) List(ctx context.Context, f consultation.Filter) ([]consultation.Consultation, error) {
	args := m.Called(ctx, f)
	list, _ := args.Get(0).([]consultation.Consultation)
	return list, args.Error(1)
}

func (m *mockConsultations) UpdateNotes(ctx context.Context, id int64, notes string) (*consultation.Consultation, error) {
	args := m.Called(ctx, id, notes)
	out, _ := args.Get(0).(*consultation.Consultation)
	return out, args.Error(1)
}

func testRouterConfig() RouterConfig {
	return RouterConfig{Log: zap.NewNop(), Env: "test"}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

var bookingDate = time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC)

func TestCreateAppointment_Created(t *testing.T) {
	svc := new(mockAppointments)
	router := NewSchedulingRouter(testRouterConfig(), svc)

	svc.On("CreateAppointment", mock.Anything, appointment.CreateRequest{
		Date:      bookingDate,
		Specialty: "cardio",
		PatientID: 5,
	}).Return(&appointment.Booking{
		Appointment: appointment.Appointment{
			ID: 17, Date: bookingDate, DoctorID: 1, Specialty: "cardio", PatientID: 5, Status: appointment.StatusUpcoming,
		},
		Provider: appointment.ProviderSummary{ID: 1, Name: "Dr. A", Specialty: "cardio"},
	}, nil).Once()

	rec := do(t, router, http.MethodPost, "/appointments",
		`{"date":"2026-02-15T10:00:00Z","specialty":"cardio","patientId":5}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(17), resp.ID)
	assert.Equal(t, int64(1), resp.DoctorID)
	assert.Equal(t, "UPCOMING", resp.Status)
	require.NotNil(t, resp.Provider)
	assert.Equal(t, "Dr. A", resp.Provider.Name)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	svc.AssertExpectations(t)
}

func TestCreateAppointment_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid request", fmt.Errorf("%w: date is required", appointment.ErrInvalidRequest), http.StatusBadRequest, "invalid_request"},
		{"no provider", fmt.Errorf("%w for specialty %q", appointment.ErrNoProviderAvailable, "cardio"), http.StatusNotFound, "no_provider_available"},
		{"discovery down", fmt.Errorf("discover provider: %w", discovery.ErrUnavailable), http.StatusInternalServerError, "discovery_unavailable"},
		{"write failed", fmt.Errorf("%w: %w", appointment.ErrPersistenceFailure, errors.New("tx aborted")), http.StatusInternalServerError, "persistence_failure"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(mockAppointments)
			svc.On("CreateAppointment", mock.Anything, mock.Anything).Return(nil, tc.err).Once()

			rec := do(t, NewSchedulingRouter(testRouterConfig(), svc), http.MethodPost, "/appointments",
				`{"date":"2026-02-15T10:00:00Z","specialty":"cardio","patientId":5}`)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decodeError(t, rec).Error)
		})
	}
}

func TestCreateAppointment_MalformedBody(t *testing.T) {
	svc := new(mockAppointments)
	rec := do(t, NewSchedulingRouter(testRouterConfig(), svc), http.MethodPost, "/appointments", `{"date":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "CreateAppointment", mock.Anything, mock.Anything)
}

func TestUpdateAppointmentStatus(t *testing.T) {
	svc := new(mockAppointments)
	router := NewSchedulingRouter(testRouterConfig(), svc)

	svc.On("UpdateStatus", mock.Anything, int64(17), appointment.StatusDone).
		Return(&appointment.Appointment{ID: 17, Status: appointment.StatusDone}, nil).Once()
	svc.On("UpdateStatus", mock.Anything, int64(17), appointment.Status("ARCHIVED")).
		Return(nil, fmt.Errorf("%w: %q", appointment.ErrInvalidStatus, "ARCHIVED")).Once()
	svc.On("UpdateStatus", mock.Anything, int64(99), appointment.StatusDone).
		Return(nil, appointment.ErrAppointmentNotFound).Once()

	rec := do(t, router, http.MethodPatch, "/appointments/17/status", `{"status":"DONE"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPatch, "/appointments/17/status", `{"status":"ARCHIVED"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_status", decodeError(t, rec).Error)

	rec = do(t, router, http.MethodPatch, "/appointments/99/status", `{"status":"DONE"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPatch, "/appointments/abc/status", `{"status":"DONE"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.AssertExpectations(t)
}

func TestListAppointments_ParsesFilter(t *testing.T) {
	svc := new(mockAppointments)
	router := NewSchedulingRouter(testRouterConfig(), svc)

	svc.On("ListAppointments", mock.Anything, appointment.Filter{PatientID: 5}).
		Return([]appointment.Appointment{{ID: 1}, {ID: 2}}, nil).Once()
	svc.On("ListAppointments", mock.Anything, appointment.Filter{Status: appointment.StatusCancelled}).
		Return([]appointment.Appointment{}, nil).Once()

	rec := do(t, router, http.MethodGet, "/appointments?patientId=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp AppointmentListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)

	rec = do(t, router, http.MethodGet, "/appointments?status=cancelled", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/appointments?patientId=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.AssertExpectations(t)
}

// The staffing router and the discovery client must agree on the wire shape.
func TestStaffingRouter_ServesDiscoveryClient(t *testing.T) {
	svc := new(mockProviders)
	svc.On("List", mock.Anything, "cardio").Return([]provider.Provider{
		{ID: 1, Name: "Dr. A", Specialty: "cardio", Available: true},
		{ID: 2, Name: "Dr. B", Specialty: "cardio", Available: true},
	}, nil).Once()

	srv := httptest.NewServer(NewStaffingRouter(testRouterConfig(), svc))
	defer srv.Close()

	p, err := discovery.NewClient(srv.URL, time.Second).FindProvider(context.Background(), "cardio")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(1), p.ID)
	assert.Equal(t, "Dr. A", p.Name)
}

func TestStaffingRouter_Availability(t *testing.T) {
	svc := new(mockProviders)
	router := NewStaffingRouter(testRouterConfig(), svc)

	svc.On("SetAvailability", mock.Anything, int64(1), false).
		Return(&provider.Provider{ID: 1, Name: "Dr. A", Specialty: "cardio"}, nil).Once()

	rec := do(t, router, http.MethodPatch, "/providers/1/availability", `{"available":false}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPatch, "/providers/1/availability", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.AssertExpectations(t)
}

func TestStaffingRouter_CreateDefaultsToAvailable(t *testing.T) {
	svc := new(mockProviders)
	router := NewStaffingRouter(testRouterConfig(), svc)

	svc.On("Create", mock.Anything, provider.Provider{Name: "Dr. A", Specialty: "cardio", Available: true}).
		Return(&provider.Provider{ID: 1, Name: "Dr. A", Specialty: "cardio", Available: true}, nil).Once()

	rec := do(t, router, http.MethodPost, "/providers", `{"name":"Dr. A","specialty":"cardio"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	svc.AssertExpectations(t)
}

func TestConsultationRouter(t *testing.T) {
	svc := new(mockConsultations)
	router := NewConsultationRouter(testRouterConfig(), svc)

	svc.On("Create", mock.Anything, mock.Anything).Return(nil, consultation.ErrConsultationExists).Once()
	svc.On("List", mock.Anything, consultation.Filter{AppointmentID: 42}).
		Return([]consultation.Consultation{{ID: 3, AppointmentID: 42}}, nil).Once()
	svc.On("UpdateNotes", mock.Anything, int64(3), "").
		Return(nil, fmt.Errorf("%w: notes are required", consultation.ErrInvalidRequest)).Once()
	svc.On("Get", mock.Anything, int64(8)).Return(nil, consultation.ErrConsultationNotFound).Once()

	rec := do(t, router, http.MethodPost, "/consultations",
		`{"doctorId":1,"patientId":5,"specialty":"cardio","appointmentId":42,"consultationDate":"2026-02-15T10:00:00Z"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodGet, "/consultations?appointmentId=42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list ConsultationListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	rec = do(t, router, http.MethodPatch, "/consultations/3/notes", `{"notes":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/consultations/8", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	svc.AssertExpectations(t)
}

func TestReadiness(t *testing.T) {
	down := func(context.Context) error { return errors.New("down") }
	up := func(context.Context) error { return nil }

	cfg := testRouterConfig()
	cfg.Dependencies = []Dependency{
		{Name: "postgres", Check: up, Critical: true},
		{Name: "redis", Check: down},
	}
	rec := do(t, NewSchedulingRouter(cfg, new(mockAppointments)), http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "down", resp.Dependencies["redis"])

	cfg.Dependencies = append(cfg.Dependencies, Dependency{Name: "rabbitmq", Check: StateCheck(func() bool { return false }), Critical: true})
	rec = do(t, NewSchedulingRouter(cfg, new(mockAppointments)), http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, NewSchedulingRouter(cfg, new(mockAppointments)), http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
