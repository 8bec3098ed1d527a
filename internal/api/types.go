package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/carebook/hospital-scheduling/internal/scheduling"
)

type CreateAppointmentRequest struct {
	DoctorID      string `json:"doctor_id"`
	PatientID     string `json:"patient_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Reason        string `json:"reason"`
	PaymentAmount int64  `json:"payment_amount"`
}

type CreateAppointmentResponse struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
}

type RescheduleRequest struct {
	RequesterID string `json:"requester_id"`
	NewDate     string `json:"new_date"`
	NewTime     string `json:"new_time"`
}

type CancelRequest struct {
	ActorID   string `json:"actor_id"`
	ActorRole string `json:"actor_role"`
}

type CancelResponse struct {
	RefundAmount        int64  `json:"refund_amount"`
	Fee                 int64  `json:"fee"`
	RefundTransactionID string `json:"refund_transaction_id"`
}

type CompleteRequest struct {
	Diagnosis []string `json:"diagnosis"`
	Medicine  string   `json:"medicine"`
	Notes     string   `json:"notes"`
	ActorID   string   `json:"actor_id"`
}

type ApproveResponse struct {
	Conflicts      int `json:"conflicts"`
	AwaitingCount  int `json:"awaiting_count"`
	CancelledCount int `json:"cancelled_count"`
}

type OkResponse struct {
	Ok bool `json:"ok"`
}

type AppointmentResponse struct {
	ID            uuid.UUID                    `json:"id"`
	DoctorID      uuid.UUID                    `json:"doctor_id"`
	PatientID     uuid.UUID                    `json:"patient_id"`
	Date          string                       `json:"date"`
	Time          string                       `json:"time"`
	Status        scheduling.AppointmentStatus `json:"status"`
	PaymentAmount int64                        `json:"payment_amount"`
	CreatedAt     time.Time                    `json:"created_at"`
	UpdatedAt     time.Time                    `json:"updated_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
