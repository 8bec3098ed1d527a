package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// FlatCancellationFee is charged when a patient cancels inside the
	// free window, floored at the original payment.
	FlatCancellationFee int64 = 100

	// FreeCancellationWindow is how far ahead a cancellation must be to
	// avoid the flat fee.
	FreeCancellationWindow = 10 * time.Hour

	PolicyFreeWindow      = "free_window"
	PolicyLateFlatFee     = "late_flat_fee"
	PolicyDoctorCancelled = "doctor_cancelled"
)

// RefundPolicy is the outcome of the tiered cancellation policy.
type RefundPolicy struct {
	Fee    int64
	Refund int64
	Name   string
}

// ComputeRefund applies the tiered policy: at or beyond the free window
// the refund is the full payment; inside it the flat fee is deducted,
// floored at the payment so the refund never goes negative. Pure so it is
// independently testable.
func ComputeRefund(paymentAmount int64, hoursUntil float64) RefundPolicy {
	if hoursUntil >= FreeCancellationWindow.Hours() {
		return RefundPolicy{Fee: 0, Refund: paymentAmount, Name: PolicyFreeWindow}
	}
	fee := FlatCancellationFee
	if fee > paymentAmount {
		fee = paymentAmount
	}
	return RefundPolicy{Fee: fee, Refund: paymentAmount - fee, Name: PolicyLateFlatFee}
}

type CancellationResult struct {
	RefundAmount        int64
	Fee                 int64
	RefundTransactionID string
}

// CancellationService computes refund policy and releases the held slot.
// Ownership checks are delegated to the caller layer; the service only
// needs the actor for bookkeeping and the doctor-cancel policy.
type CancellationService struct {
	store  Store
	ledger *SlotLedger
	log    zerolog.Logger
	now    func() time.Time
}

func NewCancellationService(store Store, ledger *SlotLedger, log zerolog.Logger) *CancellationService {
	return &CancellationService{
		store:  store,
		ledger: ledger,
		log:    log.With().Str("component", "cancellation").Logger(),
		now:    time.Now,
	}
}

// Cancel finalizes an appointment and frees its slot in one transaction.
// A doctor cancelling refunds the full payment regardless of timing.
func (s *CancellationService) Cancel(ctx context.Context, appointmentID uuid.UUID, actor Actor) (CancellationResult, error) {
	var result CancellationResult

	err := s.store.InTx(ctx, func(tx Tx) error {
		appt, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if appt.Status.IsTerminal() {
			return ErrAlreadyFinalized
		}

		now := s.now()
		var hoursUntil float64
		if at, err := slotDateTime(appt); err == nil {
			hoursUntil = at.Sub(now).Hours()
		} else {
			s.log.Warn().Err(err).
				Str("appointment_id", appt.ID.String()).
				Msg("slot instant underivable, treating as immediate cancellation")
		}

		var policy RefundPolicy
		status := StatusCancelled
		if actor.Role == RoleDoctor {
			policy = RefundPolicy{Fee: 0, Refund: appt.PaymentAmount, Name: PolicyDoctorCancelled}
			status = StatusDoctorCancelled
		} else {
			policy = ComputeRefund(appt.PaymentAmount, hoursUntil)
		}

		txnID := "refund_" + uuid.NewString()
		upd := CancellationUpdate{
			Status:              status,
			RefundAmount:        policy.Refund,
			CancellationFee:     policy.Fee,
			RefundTransactionID: txnID,
			ProcessedAt:         now,
			CancelledBy:         actor.ID,
			Policy:              policy.Name,
			HoursBefore:         hoursUntil,
		}
		if err := tx.ApplyCancellation(ctx, appt.ID, upd); err != nil {
			return fmt.Errorf("apply cancellation: %w", err)
		}

		if err := s.ledger.releaseCurrent(ctx, tx, appt); err != nil {
			return err
		}

		result = CancellationResult{
			RefundAmount:        policy.Refund,
			Fee:                 policy.Fee,
			RefundTransactionID: txnID,
		}
		return nil
	})
	if err != nil {
		return CancellationResult{}, err
	}

	s.log.Info().
		Str("appointment_id", appointmentID.String()).
		Int64("refund", result.RefundAmount).
		Int64("fee", result.Fee).
		Msg("appointment cancelled")
	return result, nil
}
