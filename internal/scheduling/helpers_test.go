package scheduling

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// noopLocker satisfies RequestLocker without any coordination; the
// MemStore's mutex already serializes transactions.
type noopLocker struct{}

func (noopLocker) WithRequestLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type recordingAudit struct {
	mu     sync.Mutex
	events []ChangeEvent
	fail   error
}

func (a *recordingAudit) RecordChangeEvent(_ context.Context, ev ChangeEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail != nil {
		return a.fail
	}
	a.events = append(a.events, ev)
	return nil
}

type recordingSink struct {
	mu            sync.Mutex
	notifications []Notification
	fail          error
}

func (s *recordingSink) Notify(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.notifications = append(s.notifications, n)
	return nil
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// seedDoctorPatient puts a doctor and patient into the store and returns
// their ids.
func seedDoctorPatient(store *MemStore) (uuid.UUID, uuid.UUID) {
	doctorID := uuid.New()
	patientID := uuid.New()
	store.PutDoctor(Doctor{ID: doctorID, Name: "Dr. Osei"})
	store.PutPatient(Patient{ID: patientID, Name: "Ama Mensah"})
	return doctorID, patientID
}

// bookConfirmed books a confirmed appointment through the booking service.
func bookConfirmed(store *MemStore, doctorID, patientID uuid.UUID, date, timeOfDay string, payment int64) (uuid.UUID, error) {
	svc := NewBookingService(store, NewSlotLedger(testLogger()), testLogger())
	return svc.Create(context.Background(), BookingDraft{
		DoctorID:      doctorID,
		PatientID:     patientID,
		Date:          date,
		Time:          timeOfDay,
		PaymentAmount: payment,
	})
}
