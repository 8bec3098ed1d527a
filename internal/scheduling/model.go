package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusConfirmed          AppointmentStatus = "confirmed"
	StatusCompleted          AppointmentStatus = "completed"
	StatusCancelled          AppointmentStatus = "cancelled"
	StatusDoctorCancelled    AppointmentStatus = "doctor_cancelled"
	StatusNotAttended        AppointmentStatus = "not_attended"
	StatusAwaitingReschedule AppointmentStatus = "awaiting_reschedule"
)

// IsTerminal reports whether a status can no longer transition back to
// confirmed except through an explicit reschedule onto a new slot.
func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusDoctorCancelled, StatusNotAttended:
		return true
	case StatusConfirmed, StatusAwaitingReschedule:
		return false
	}
	return false
}

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleStaff   Role = "staff"
)

// Actor identifies who triggered a mutation, for policy and audit purposes.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

type DiagnosisEntry struct {
	Diagnoses []string  `json:"diagnoses"`
	UpdatedBy uuid.UUID `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Appointment struct {
	ID       uuid.UUID
	DoctorID uuid.UUID
	PatientID uuid.UUID

	// Date is a calendar date (2006-01-02); TimeOfDay is always the
	// normalized 24-hour HH:MM form.
	Date      string
	TimeOfDay string

	Status        AppointmentStatus
	Reason        string
	PaymentAmount int64

	RefundAmount        *int64
	CancellationFee     *int64
	RefundTransactionID *string
	RefundProcessedAt   *time.Time

	CancelledBy             *uuid.UUID
	CancellationPolicy      string
	HoursBeforeCancellation *float64

	Medicine         string
	Notes            string
	FinalDiagnosis   []string
	DiagnosisHistory []DiagnosisEntry

	AffectedByRequestID *uuid.UUID
	ConflictDetectedAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SlotLock marks exclusive ownership of a (doctor, date, time) slot.
// At most one lock exists per key at any time.
type SlotLock struct {
	Key           string
	AppointmentID uuid.UUID
	DoctorID      uuid.UUID
	Date          string
	TimeOfDay     string
	CreatedAt     time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID            uuid.UUID
	Name          string
	Specialty     *string
	VisitingHours map[string]string
	BlockedDates  []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type RequestType string

const (
	RequestVisitingHours RequestType = "visiting_hours"
	RequestBlockedDates  RequestType = "blocked_dates"
	RequestBoth          RequestType = "both"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
)

type ScheduleChangeRequest struct {
	ID            uuid.UUID
	DoctorID      uuid.UUID
	RequestType   RequestType
	VisitingHours map[string]string
	BlockedDates  []string
	Status        RequestStatus

	ConflictsDetected int
	AwaitingCount     int
	ApprovedAt        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChangeEvent is an immutable audit record of a status transition.
type ChangeEvent struct {
	Type          string
	AppointmentID uuid.UUID
	DoctorID      uuid.UUID
	PatientID     uuid.UUID
	RequestID     uuid.UUID
	PrevStatus    AppointmentStatus
	NextStatus    AppointmentStatus
	CreatedAt     time.Time
}

const EventAwaitingReschedule = "APPOINTMENT_AWAITING_RESCHEDULE"

type Notification struct {
	UserID        uuid.UUID `json:"user_id"`
	Type          string    `json:"type"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	CreatedAt     time.Time `json:"created_at"`
	Read          bool      `json:"read"`
}
