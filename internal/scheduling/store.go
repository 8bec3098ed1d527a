package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSlotTaken           = errors.New("slot already booked")
	ErrInvalidSlot         = errors.New("invalid slot")
	ErrSlotLockNotFound    = errors.New("slot lock not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrDoctorUnavailable   = errors.New("doctor is unavailable on that date")
	ErrRequestNotFound     = errors.New("schedule change request not found")
	ErrRequestNotPending   = errors.New("schedule change request already processed")
	ErrUnauthorized        = errors.New("requester does not own this appointment")
	ErrOrderingViolation   = errors.New("complete earlier appointments first")
	ErrDiagnosisRequired   = errors.New("at least one diagnosis is required")
	ErrAlreadyFinalized    = errors.New("appointment already finalized")
)

// CancellationUpdate carries every field a cancellation writes to an
// appointment; the store applies it together with the status change.
type CancellationUpdate struct {
	Status              AppointmentStatus
	RefundAmount        int64
	CancellationFee     int64
	RefundTransactionID string
	ProcessedAt         time.Time
	CancelledBy         uuid.UUID
	Policy              string
	HoursBefore         float64
}

type CompletionUpdate struct {
	FinalDiagnosis []string
	HistoryEntry   DiagnosisEntry
	Medicine       string
	Notes          string
	CompletedAt    time.Time
}

// Tx is the bounded set of reads and writes a single serializable
// transaction may perform. Every mutating service operation runs its whole
// read-check-write sequence against one Tx, so the writes commit together
// or not at all.
type Tx interface {
	GetSlotLock(ctx context.Context, key string) (*SlotLock, error)
	InsertSlotLock(ctx context.Context, lock SlotLock) error
	DeleteSlotLock(ctx context.Context, key string) error

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	InsertAppointment(ctx context.Context, appt Appointment) error

	// UpdateAppointmentSlot moves an appointment to a new date/time and
	// restores confirmed status, clearing any pending conflict markers.
	// Callers must have rejected finalized appointments first.
	UpdateAppointmentSlot(ctx context.Context, id uuid.UUID, date, timeOfDay string) error
	ApplyCancellation(ctx context.Context, id uuid.UUID, upd CancellationUpdate) error
	ApplyCompletion(ctx context.Context, id uuid.UUID, upd CompletionUpdate) error

	// MarkAwaitingReschedule transitions confirmed -> awaiting_reschedule
	// and reports whether the row actually changed, so callers can exclude
	// appointments that left confirmed between scan and commit.
	MarkAwaitingReschedule(ctx context.Context, id, requestID uuid.UUID, detectedAt time.Time) (bool, error)

	// MarkNotAttended transitions confirmed -> not_attended, same
	// conditional contract as MarkAwaitingReschedule.
	MarkNotAttended(ctx context.Context, id uuid.UUID) (bool, error)

	ListConfirmedByDoctorDate(ctx context.Context, doctorID uuid.UUID, date string) ([]Appointment, error)

	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	UpdateDoctorAvailability(ctx context.Context, doctorID uuid.UUID, hours map[string]string, blocked []string, applyHours, applyBlocked bool) error

	GetChangeRequest(ctx context.Context, id uuid.UUID) (*ScheduleChangeRequest, error)
	FinalizeChangeRequest(ctx context.Context, id uuid.UUID, conflicts, awaiting int, approvedAt time.Time) error
}

// Store opens serializable transactions and serves the handful of reads
// that deliberately run outside one (the availability scan and the
// not-attended sweep). Constructed once and passed to each service, never
// a package-level singleton.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetChangeRequest(ctx context.Context, id uuid.UUID) (*ScheduleChangeRequest, error)

	// ListConfirmedByDoctorDates matches at most maxDatesPerQuery dates per
	// call; callers chunk larger sets.
	ListConfirmedByDoctorDates(ctx context.Context, doctorID uuid.UUID, dates []string) ([]Appointment, error)

	// ListConfirmedEndedBefore returns confirmed appointments whose slot
	// instant is older than cutoff, for the sweep worker.
	ListConfirmedEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Appointment, error)
}

// AuditTrail persists immutable change events. Invoked fire-and-forget;
// a failure is logged by the caller, never surfaced as an operation error.
type AuditTrail interface {
	RecordChangeEvent(ctx context.Context, ev ChangeEvent) error
}

// NotificationSink delivers patient-facing messages, best effort.
type NotificationSink interface {
	Notify(ctx context.Context, n Notification) error
}
