package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BookingDraft is the caller-supplied shape of a new appointment. Time may
// arrive in any accepted rendering; it is normalized before key derivation.
type BookingDraft struct {
	DoctorID      uuid.UUID
	PatientID     uuid.UUID
	Date          string
	Time          string
	Reason        string
	PaymentAmount int64
}

// BookingService creates and reschedules appointments against the
// SlotLedger. Both operations are single serializable transactions: the
// appointment write and its slot lock commit together or neither does.
type BookingService struct {
	store  Store
	ledger *SlotLedger
	log    zerolog.Logger
	now    func() time.Time
}

func NewBookingService(store Store, ledger *SlotLedger, log zerolog.Logger) *BookingService {
	return &BookingService{
		store:  store,
		ledger: ledger,
		log:    log.With().Str("component", "booking").Logger(),
		now:    time.Now,
	}
}

// Create books a confirmed appointment. A held slot surfaces ErrSlotTaken;
// the caller re-presents a different slot, the core never retries.
func (s *BookingService) Create(ctx context.Context, draft BookingDraft) (uuid.UUID, error) {
	date, err := ParseDate(draft.Date)
	if err != nil {
		return uuid.Nil, err
	}
	timeOfDay, err := NormalizeTime(draft.Time)
	if err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	key := SlotKey(draft.DoctorID, date, timeOfDay)

	err = s.store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.GetPatient(ctx, draft.PatientID); err != nil {
			return fmt.Errorf("load patient: %w", err)
		}
		doctor, err := tx.GetDoctor(ctx, draft.DoctorID)
		if err != nil {
			return fmt.Errorf("load doctor: %w", err)
		}
		for _, blocked := range doctor.BlockedDates {
			if blocked == date {
				return ErrDoctorUnavailable
			}
		}

		if err := s.ledger.TryAcquire(ctx, tx, key, id, draft.DoctorID, date, timeOfDay); err != nil {
			return err
		}

		now := s.now()
		appt := Appointment{
			ID:            id,
			DoctorID:      draft.DoctorID,
			PatientID:     draft.PatientID,
			Date:          date,
			TimeOfDay:     timeOfDay,
			Status:        StatusConfirmed,
			Reason:        draft.Reason,
			PaymentAmount: draft.PaymentAmount,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	s.log.Info().
		Str("appointment_id", id.String()).
		Str("slot_key", key).
		Msg("appointment booked")
	return id, nil
}

// Reschedule moves an appointment to a new slot. The old lock delete, new
// lock insert and date/time update are one transaction, so no observer
// ever sees the appointment holding zero or two slots. Finalized
// appointments cannot move; an awaiting_reschedule appointment re-enters
// confirmed once its new slot is assigned.
func (s *BookingService) Reschedule(ctx context.Context, appointmentID, requesterID uuid.UUID, newDate, newTime string) error {
	date, err := ParseDate(newDate)
	if err != nil {
		return err
	}
	timeOfDay, err := NormalizeTime(newTime)
	if err != nil {
		return err
	}

	err = s.store.InTx(ctx, func(tx Tx) error {
		appt, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if appt.PatientID != requesterID {
			return ErrUnauthorized
		}
		if appt.Status.IsTerminal() {
			return ErrAlreadyFinalized
		}

		doctor, err := tx.GetDoctor(ctx, appt.DoctorID)
		if err != nil {
			return fmt.Errorf("load doctor: %w", err)
		}
		for _, blocked := range doctor.BlockedDates {
			if blocked == date {
				return ErrDoctorUnavailable
			}
		}

		oldKey, ok := slotKeyOf(appt)
		if !ok {
			oldKey = ""
		}
		newKey := SlotKey(appt.DoctorID, date, timeOfDay)

		if err := s.ledger.Move(ctx, tx, oldKey, newKey, appt.ID, appt.DoctorID, date, timeOfDay); err != nil {
			return err
		}
		if err := tx.UpdateAppointmentSlot(ctx, appt.ID, date, timeOfDay); err != nil {
			return fmt.Errorf("update appointment slot: %w", err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrSlotTaken) && !errors.Is(err, ErrAppointmentNotFound) &&
			!errors.Is(err, ErrUnauthorized) && !errors.Is(err, ErrAlreadyFinalized) &&
			!errors.Is(err, ErrDoctorUnavailable) {
			s.log.Error().Err(err).
				Str("appointment_id", appointmentID.String()).
				Msg("reschedule failed")
		}
		return err
	}

	s.log.Info().
		Str("appointment_id", appointmentID.String()).
		Str("new_date", date).
		Str("new_time", timeOfDay).
		Msg("appointment rescheduled")
	return nil
}
