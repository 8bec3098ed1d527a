package scheduling

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store for tests and local development. A
// transaction holds the store mutex for its whole duration and rolls
// back by restoring a snapshot, which makes every transaction trivially
// serializable: exactly the isolation contract PgStore provides.
type MemStore struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]Appointment
	slotLocks    map[string]SlotLock
	doctors      map[uuid.UUID]Doctor
	patients     map[uuid.UUID]Patient
	requests     map[uuid.UUID]ScheduleChangeRequest
}

func NewMemStore() *MemStore {
	return &MemStore{
		appointments: make(map[uuid.UUID]Appointment),
		slotLocks:    make(map[string]SlotLock),
		doctors:      make(map[uuid.UUID]Doctor),
		patients:     make(map[uuid.UUID]Patient),
		requests:     make(map[uuid.UUID]ScheduleChangeRequest),
	}
}

// Seed helpers, outside any transaction.

func (s *MemStore) PutDoctor(d Doctor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doctors[d.ID] = d
}

func (s *MemStore) PutPatient(p Patient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[p.ID] = p
}

func (s *MemStore) PutChangeRequest(r ScheduleChangeRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.ID] = r
}

// SlotLockCount reports how many locks are held, for invariant checks.
func (s *MemStore) SlotLockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slotLocks)
}

// SlotLockFor returns the lock currently held on key, if any.
func (s *MemStore) SlotLockFor(key string) (SlotLock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.slotLocks[key]
	return lock, ok
}

func (s *MemStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	if err := fn(&memTx{store: s}); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

type memSnapshot struct {
	appointments map[uuid.UUID]Appointment
	slotLocks    map[string]SlotLock
	doctors      map[uuid.UUID]Doctor
	requests     map[uuid.UUID]ScheduleChangeRequest
}

func (s *MemStore) snapshot() memSnapshot {
	snap := memSnapshot{
		appointments: make(map[uuid.UUID]Appointment, len(s.appointments)),
		slotLocks:    make(map[string]SlotLock, len(s.slotLocks)),
		doctors:      make(map[uuid.UUID]Doctor, len(s.doctors)),
		requests:     make(map[uuid.UUID]ScheduleChangeRequest, len(s.requests)),
	}
	for k, v := range s.appointments {
		snap.appointments[k] = v
	}
	for k, v := range s.slotLocks {
		snap.slotLocks[k] = v
	}
	for k, v := range s.doctors {
		snap.doctors[k] = v
	}
	for k, v := range s.requests {
		snap.requests[k] = v
	}
	return snap
}

func (s *MemStore) restore(snap memSnapshot) {
	s.appointments = snap.appointments
	s.slotLocks = snap.slotLocks
	s.doctors = snap.doctors
	s.requests = snap.requests
}

func (s *MemStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &appt, nil
}

func (s *MemStore) GetChangeRequest(ctx context.Context, id uuid.UUID) (*ScheduleChangeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return &req, nil
}

func (s *MemStore) ListConfirmedByDoctorDates(ctx context.Context, doctorID uuid.UUID, dates []string) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dateSet := make(map[string]bool, len(dates))
	for _, d := range dates {
		dateSet[d] = true
	}

	var result []Appointment
	for _, appt := range s.appointments {
		if appt.DoctorID == doctorID && appt.Status == StatusConfirmed && dateSet[appt.Date] {
			result = append(result, appt)
		}
	}
	return result, nil
}

func (s *MemStore) ListConfirmedEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []Appointment
	for _, appt := range s.appointments {
		if appt.Status != StatusConfirmed {
			continue
		}
		at, err := slotDateTime(&appt)
		if err != nil {
			continue
		}
		if at.Before(cutoff) {
			result = append(result, appt)
			if len(result) == limit {
				break
			}
		}
	}
	return result, nil
}

// memTx runs against the store while InTx holds the mutex.
type memTx struct {
	store *MemStore
}

func (t *memTx) GetSlotLock(ctx context.Context, key string) (*SlotLock, error) {
	lock, ok := t.store.slotLocks[key]
	if !ok {
		return nil, ErrSlotLockNotFound
	}
	return &lock, nil
}

func (t *memTx) InsertSlotLock(ctx context.Context, lock SlotLock) error {
	if _, exists := t.store.slotLocks[lock.Key]; exists {
		return ErrSlotTaken
	}
	t.store.slotLocks[lock.Key] = lock
	return nil
}

func (t *memTx) DeleteSlotLock(ctx context.Context, key string) error {
	delete(t.store.slotLocks, key)
	return nil
}

func (t *memTx) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, ok := t.store.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &appt, nil
}

func (t *memTx) InsertAppointment(ctx context.Context, appt Appointment) error {
	t.store.appointments[appt.ID] = appt
	return nil
}

func (t *memTx) UpdateAppointmentSlot(ctx context.Context, id uuid.UUID, date, timeOfDay string) error {
	appt, ok := t.store.appointments[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	appt.Date = date
	appt.TimeOfDay = timeOfDay
	appt.Status = StatusConfirmed
	appt.AffectedByRequestID = nil
	appt.ConflictDetectedAt = nil
	appt.UpdatedAt = time.Now()
	t.store.appointments[id] = appt
	return nil
}

func (t *memTx) ApplyCancellation(ctx context.Context, id uuid.UUID, upd CancellationUpdate) error {
	appt, ok := t.store.appointments[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	appt.Status = upd.Status
	appt.RefundAmount = &upd.RefundAmount
	appt.CancellationFee = &upd.CancellationFee
	appt.RefundTransactionID = &upd.RefundTransactionID
	appt.RefundProcessedAt = &upd.ProcessedAt
	cancelledBy := upd.CancelledBy
	appt.CancelledBy = &cancelledBy
	appt.CancellationPolicy = upd.Policy
	hours := upd.HoursBefore
	appt.HoursBeforeCancellation = &hours
	appt.UpdatedAt = time.Now()
	t.store.appointments[id] = appt
	return nil
}

func (t *memTx) ApplyCompletion(ctx context.Context, id uuid.UUID, upd CompletionUpdate) error {
	appt, ok := t.store.appointments[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	appt.Status = StatusCompleted
	appt.FinalDiagnosis = upd.FinalDiagnosis
	history := make([]DiagnosisEntry, len(appt.DiagnosisHistory), len(appt.DiagnosisHistory)+1)
	copy(history, appt.DiagnosisHistory)
	appt.DiagnosisHistory = append(history, upd.HistoryEntry)
	appt.Medicine = upd.Medicine
	appt.Notes = upd.Notes
	appt.UpdatedAt = upd.CompletedAt
	t.store.appointments[id] = appt
	return nil
}

func (t *memTx) MarkAwaitingReschedule(ctx context.Context, id, requestID uuid.UUID, detectedAt time.Time) (bool, error) {
	appt, ok := t.store.appointments[id]
	if !ok || appt.Status != StatusConfirmed {
		return false, nil
	}
	appt.Status = StatusAwaitingReschedule
	reqID := requestID
	appt.AffectedByRequestID = &reqID
	at := detectedAt
	appt.ConflictDetectedAt = &at
	appt.UpdatedAt = time.Now()
	t.store.appointments[id] = appt
	return true, nil
}

func (t *memTx) MarkNotAttended(ctx context.Context, id uuid.UUID) (bool, error) {
	appt, ok := t.store.appointments[id]
	if !ok || appt.Status != StatusConfirmed {
		return false, nil
	}
	appt.Status = StatusNotAttended
	appt.UpdatedAt = time.Now()
	t.store.appointments[id] = appt
	return true, nil
}

func (t *memTx) ListConfirmedByDoctorDate(ctx context.Context, doctorID uuid.UUID, date string) ([]Appointment, error) {
	var result []Appointment
	for _, appt := range t.store.appointments {
		if appt.DoctorID == doctorID && appt.Date == date && appt.Status == StatusConfirmed {
			result = append(result, appt)
		}
	}
	return result, nil
}

func (t *memTx) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, ok := t.store.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (t *memTx) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := t.store.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (t *memTx) UpdateDoctorAvailability(ctx context.Context, doctorID uuid.UUID, hours map[string]string, blocked []string, applyHours, applyBlocked bool) error {
	d, ok := t.store.doctors[doctorID]
	if !ok {
		return ErrDoctorNotFound
	}
	if applyHours {
		d.VisitingHours = hours
	}
	if applyBlocked {
		d.BlockedDates = blocked
	}
	d.UpdatedAt = time.Now()
	t.store.doctors[doctorID] = d
	return nil
}

func (t *memTx) GetChangeRequest(ctx context.Context, id uuid.UUID) (*ScheduleChangeRequest, error) {
	req, ok := t.store.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return &req, nil
}

func (t *memTx) FinalizeChangeRequest(ctx context.Context, id uuid.UUID, conflicts, awaiting int, approvedAt time.Time) error {
	req, ok := t.store.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	if req.Status != RequestPending {
		return ErrRequestNotPending
	}
	req.Status = RequestApproved
	req.ConflictsDetected = conflicts
	req.AwaitingCount = awaiting
	at := approvedAt
	req.ApprovedAt = &at
	req.UpdatedAt = time.Now()
	t.store.requests[id] = req
	return nil
}
