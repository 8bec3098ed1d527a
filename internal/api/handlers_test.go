package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebook/hospital-scheduling/internal/scheduling"
)

type passthroughLocker struct{}

func (passthroughLocker) WithRequestLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type dropAudit struct{}

func (dropAudit) RecordChangeEvent(context.Context, scheduling.ChangeEvent) error { return nil }

type dropSink struct{}

func (dropSink) Notify(context.Context, scheduling.Notification) error { return nil }

type testEnv struct {
	store    *scheduling.MemStore
	server   *httptest.Server
	doctorID uuid.UUID
	patient  uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := scheduling.NewMemStore()
	log := zerolog.Nop()
	ledger := scheduling.NewSlotLedger(log)

	router := NewRouter(RouterConfig{
		Store:        store,
		Booking:      scheduling.NewBookingService(store, ledger, log),
		Cancellation: scheduling.NewCancellationService(store, ledger, log),
		Completion:   scheduling.NewCompletionSequencer(store, ledger, log),
		Availability: scheduling.NewAvailabilityChangeProcessor(store, dropAudit{}, dropSink{}, passthroughLocker{}, log),
		Log:          log,
		Env:          "test",
		Version:      "test",
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	doctorID := uuid.New()
	patientID := uuid.New()
	store.PutDoctor(scheduling.Doctor{ID: doctorID, Name: "Dr. Osei"})
	store.PutPatient(scheduling.Patient{ID: patientID, Name: "Ama Mensah"})

	return &testEnv{store: store, server: srv, doctorID: doctorID, patient: patientID}
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) book(t *testing.T, date, timeOfDay string) uuid.UUID {
	t.Helper()
	resp := e.post(t, "/appointments", CreateAppointmentRequest{
		DoctorID:      e.doctorID.String(),
		PatientID:     e.patient.String(),
		Date:          date,
		Time:          timeOfDay,
		PaymentAmount: 500,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[CreateAppointmentResponse](t, resp).AppointmentID
}

func TestCreateEndpointConflict(t *testing.T) {
	env := newTestEnv(t)

	env.book(t, "2025-03-10", "09:00")

	resp := env.post(t, "/appointments", CreateAppointmentRequest{
		DoctorID:      env.doctorID.String(),
		PatientID:     env.patient.String(),
		Date:          "2025-03-10",
		Time:          "9:00 AM",
		PaymentAmount: 500,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, "slot_already_booked", body.Error)
}

func TestCreateEndpointValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/appointments", CreateAppointmentRequest{
		DoctorID:  "not-a-uuid",
		PatientID: env.patient.String(),
		Date:      "2025-03-10",
		Time:      "09:00",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.post(t, "/appointments", CreateAppointmentRequest{
		DoctorID:  env.doctorID.String(),
		PatientID: env.patient.String(),
		Date:      "2025-03-10",
		Time:      "whenever",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, "invalid_slot", body.Error)
}

func TestRescheduleEndpoint(t *testing.T) {
	env := newTestEnv(t)
	id := env.book(t, "2025-03-10", "09:00")

	resp := env.post(t, fmt.Sprintf("/appointments/%s/reschedule", id), RescheduleRequest{
		RequesterID: env.patient.String(),
		NewDate:     "2025-03-12",
		NewTime:     "10:00",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// A stranger cannot move someone else's booking.
	resp = env.post(t, fmt.Sprintf("/appointments/%s/reschedule", id), RescheduleRequest{
		RequesterID: uuid.NewString(),
		NewDate:     "2025-03-13",
		NewTime:     "10:00",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = env.post(t, fmt.Sprintf("/appointments/%s/reschedule", uuid.New()), RescheduleRequest{
		RequesterID: env.patient.String(),
		NewDate:     "2025-03-13",
		NewTime:     "10:00",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestCancelEndpoint(t *testing.T) {
	env := newTestEnv(t)
	id := env.book(t, "2099-03-10", "09:00")

	resp := env.post(t, fmt.Sprintf("/appointments/%s/cancel", id), CancelRequest{
		ActorID:   env.patient.String(),
		ActorRole: "patient",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[CancelResponse](t, resp)
	// Far in the future, so the free window applies.
	assert.Equal(t, int64(500), body.RefundAmount)
	assert.Equal(t, int64(0), body.Fee)
	assert.NotEmpty(t, body.RefundTransactionID)
}

func TestCompleteEndpointOrdering(t *testing.T) {
	env := newTestEnv(t)
	first := env.book(t, "2025-03-10", "09:00")
	second := env.book(t, "2025-03-10", "10:00")
	doctor := uuid.NewString()

	resp := env.post(t, fmt.Sprintf("/appointments/%s/complete", second), CompleteRequest{
		Diagnosis: []string{"flu"},
		ActorID:   doctor,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, "ordering_violation", body.Error)

	resp = env.post(t, fmt.Sprintf("/appointments/%s/complete", first), CompleteRequest{
		Diagnosis: []string{"flu"},
		ActorID:   doctor,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.post(t, fmt.Sprintf("/appointments/%s/complete", second), CompleteRequest{
		ActorID: doctor,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body = decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, "diagnosis_required", body.Error)
}

func TestApproveEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.book(t, "2025-04-01", "09:00")
	env.book(t, "2025-04-01", "10:00")

	reqID := uuid.New()
	env.store.PutChangeRequest(scheduling.ScheduleChangeRequest{
		ID:           reqID,
		DoctorID:     env.doctorID,
		RequestType:  scheduling.RequestBlockedDates,
		BlockedDates: []string{"2025-04-01"},
		Status:       scheduling.RequestPending,
	})

	resp := env.post(t, fmt.Sprintf("/schedule-changes/%s/approve", reqID), struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[ApproveResponse](t, resp)
	assert.Equal(t, 2, body.Conflicts)
	assert.Equal(t, 2, body.AwaitingCount)
	assert.Equal(t, 0, body.CancelledCount)

	// A doubled approval is rejected, not re-applied.
	resp = env.post(t, fmt.Sprintf("/schedule-changes/%s/approve", reqID), struct{}{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	errBody := decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, "request_already_approved", errBody.Error)
}

func TestGetAppointmentEndpoint(t *testing.T) {
	env := newTestEnv(t)
	id := env.book(t, "2025-03-10", "9:00 AM")

	resp, err := http.Get(env.server.URL + "/appointments/" + id.String())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[AppointmentResponse](t, resp)
	assert.Equal(t, id, body.ID)
	assert.Equal(t, "09:00", body.Time)
	assert.Equal(t, scheduling.StatusConfirmed, body.Status)

	resp, err = http.Get(env.server.URL + "/appointments/" + uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
