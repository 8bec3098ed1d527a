package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxDatesPerQuery bounds the arity of a blocked-dates match; larger sets
// are chunked and the results concatenated.
const maxDatesPerQuery = 10

// RequestLocker serializes cascades for the same change request. Slot
// creates never take such a lock; this only guards the approval
// scan-then-batch sequence against a doubled submit.
type RequestLocker interface {
	WithRequestLock(ctx context.Context, requestID uuid.UUID, fn func(ctx context.Context) error) error
}

type ApprovalResult struct {
	Conflicts      int
	AwaitingCount  int
	CancelledCount int
}

// AvailabilityChangeProcessor drives a ScheduleChangeRequest from pending
// to approved, reconciling the doctor's new availability against existing
// confirmed bookings. Affected appointments are never auto-cancelled; they
// move to awaiting_reschedule so the patient keeps the choice to rebook.
type AvailabilityChangeProcessor struct {
	store  Store
	audit  AuditTrail
	sink   NotificationSink
	locker RequestLocker
	log    zerolog.Logger
	now    func() time.Time
}

func NewAvailabilityChangeProcessor(store Store, audit AuditTrail, sink NotificationSink, locker RequestLocker, log zerolog.Logger) *AvailabilityChangeProcessor {
	return &AvailabilityChangeProcessor{
		store:  store,
		audit:  audit,
		sink:   sink,
		locker: locker,
		log:    log.With().Str("component", "availability").Logger(),
		now:    time.Now,
	}
}

// Approve applies the request's availability change, transitions every
// conflicting confirmed appointment to awaiting_reschedule and finalizes
// the request, all in one transaction. Audit events and notifications go
// out after commit, fire-and-forget.
func (p *AvailabilityChangeProcessor) Approve(ctx context.Context, requestID uuid.UUID) (ApprovalResult, error) {
	var result ApprovalResult
	var affected []Appointment
	var req *ScheduleChangeRequest

	err := p.locker.WithRequestLock(ctx, requestID, func(ctx context.Context) error {
		var err error
		req, err = p.store.GetChangeRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != RequestPending {
			return ErrRequestNotPending
		}

		// Scan phase, outside the transaction. A booking landing in the
		// blocked window between this scan and the commit below is not
		// covered; the in-transaction re-check before each transition
		// excludes appointments that changed state, but cannot see rows
		// created after the scan.
		candidates, err := p.scanAffected(ctx, req)
		if err != nil {
			return err
		}

		return p.store.InTx(ctx, func(tx Tx) error {
			applyHours := req.RequestType == RequestVisitingHours || req.RequestType == RequestBoth
			applyBlocked := req.RequestType == RequestBlockedDates || req.RequestType == RequestBoth
			if err := tx.UpdateDoctorAvailability(ctx, req.DoctorID, req.VisitingHours, req.BlockedDates, applyHours, applyBlocked); err != nil {
				return fmt.Errorf("update doctor availability: %w", err)
			}

			detectedAt := p.now()
			affected = affected[:0]
			for _, appt := range candidates {
				changed, err := tx.MarkAwaitingReschedule(ctx, appt.ID, req.ID, detectedAt)
				if err != nil {
					return fmt.Errorf("mark awaiting reschedule %s: %w", appt.ID, err)
				}
				if !changed {
					// Left confirmed since the scan; excluded from the
					// cascade and the counters.
					continue
				}
				affected = append(affected, appt)
			}

			result = ApprovalResult{
				Conflicts:      len(affected),
				AwaitingCount:  len(affected),
				CancelledCount: 0,
			}
			return tx.FinalizeChangeRequest(ctx, req.ID, result.Conflicts, result.AwaitingCount, detectedAt)
		})
	})
	if err != nil {
		return ApprovalResult{}, err
	}

	p.emitSideEffects(ctx, req, affected)

	p.log.Info().
		Str("request_id", requestID.String()).
		Int("conflicts", result.Conflicts).
		Msg("schedule change approved")
	return result, nil
}

// scanAffected finds confirmed appointments on the newly blocked dates,
// chunked at maxDatesPerQuery per query.
func (p *AvailabilityChangeProcessor) scanAffected(ctx context.Context, req *ScheduleChangeRequest) ([]Appointment, error) {
	if req.RequestType == RequestVisitingHours || len(req.BlockedDates) == 0 {
		return nil, nil
	}

	var all []Appointment
	dates := req.BlockedDates
	for start := 0; start < len(dates); start += maxDatesPerQuery {
		end := start + maxDatesPerQuery
		if end > len(dates) {
			end = len(dates)
		}
		batch, err := p.store.ListConfirmedByDoctorDates(ctx, req.DoctorID, dates[start:end])
		if err != nil {
			return nil, fmt.Errorf("scan affected appointments: %w", err)
		}
		all = append(all, batch...)
	}
	return all, nil
}

// emitSideEffects records audit events and patient notifications for the
// committed cascade. Failures are logged and swallowed: delivery is best
// effort and must never unwind the scheduling state.
func (p *AvailabilityChangeProcessor) emitSideEffects(ctx context.Context, req *ScheduleChangeRequest, affected []Appointment) {
	for _, appt := range affected {
		ev := ChangeEvent{
			Type:          EventAwaitingReschedule,
			AppointmentID: appt.ID,
			DoctorID:      appt.DoctorID,
			PatientID:     appt.PatientID,
			RequestID:     req.ID,
			PrevStatus:    StatusConfirmed,
			NextStatus:    StatusAwaitingReschedule,
			CreatedAt:     p.now(),
		}
		if err := p.audit.RecordChangeEvent(ctx, ev); err != nil {
			p.log.Error().Err(err).
				Str("appointment_id", appt.ID.String()).
				Msg("record change event failed")
		}

		n := Notification{
			UserID:        appt.PatientID,
			Type:          "appointment_conflict",
			Title:         "Your appointment needs rescheduling",
			Message:       fmt.Sprintf("Your appointment on %s at %s is affected by a change in the doctor's availability. Please pick a new slot.", appt.Date, appt.TimeOfDay),
			AppointmentID: appt.ID,
			CreatedAt:     p.now(),
		}
		if err := p.sink.Notify(ctx, n); err != nil {
			p.log.Error().Err(err).
				Str("patient_id", appt.PatientID.String()).
				Msg("notification delivery failed")
		}
	}
}
