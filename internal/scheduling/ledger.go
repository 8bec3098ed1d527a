package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SlotLedger owns exclusivity of slot keys. All three operations run
// against the caller's transaction so the lock row commits or rolls back
// together with the appointment write that motivated it.
type SlotLedger struct {
	log zerolog.Logger
}

func NewSlotLedger(log zerolog.Logger) *SlotLedger {
	return &SlotLedger{log: log.With().Str("component", "slot_ledger").Logger()}
}

// TryAcquire claims key for appointmentID. A held key yields ErrSlotTaken;
// that is an expected outcome, not a failure, and is never retried here.
func (l *SlotLedger) TryAcquire(ctx context.Context, tx Tx, key string, appointmentID, doctorID uuid.UUID, date, timeOfDay string) error {
	existing, err := tx.GetSlotLock(ctx, key)
	if err != nil && !errors.Is(err, ErrSlotLockNotFound) {
		return fmt.Errorf("read slot lock %s: %w", key, err)
	}
	if existing != nil {
		return ErrSlotTaken
	}

	lock := SlotLock{
		Key:           key,
		AppointmentID: appointmentID,
		DoctorID:      doctorID,
		Date:          date,
		TimeOfDay:     timeOfDay,
		CreatedAt:     time.Now(),
	}
	if err := tx.InsertSlotLock(ctx, lock); err != nil {
		// The insert races the read above; a duplicate key here means the
		// slot was claimed in between and is the same conflict outcome.
		if errors.Is(err, ErrSlotTaken) {
			return ErrSlotTaken
		}
		return fmt.Errorf("insert slot lock %s: %w", key, err)
	}
	return nil
}

// Release frees key. Releasing an absent key is not an error: the
// appointment may have been rescheduled away concurrently.
func (l *SlotLedger) Release(ctx context.Context, tx Tx, key string) error {
	if err := tx.DeleteSlotLock(ctx, key); err != nil {
		return fmt.Errorf("delete slot lock %s: %w", key, err)
	}
	return nil
}

// Move atomically transfers an appointment from oldKey to newKey. The
// delete and insert share the caller's transaction, so a crash can never
// leave the slot silently freed or double-held. oldKey may be empty when
// the current slot key could not be derived; the new key must still be
// acquired.
func (l *SlotLedger) Move(ctx context.Context, tx Tx, oldKey, newKey string, appointmentID, doctorID uuid.UUID, date, timeOfDay string) error {
	existing, err := tx.GetSlotLock(ctx, newKey)
	if err != nil && !errors.Is(err, ErrSlotLockNotFound) {
		return fmt.Errorf("read slot lock %s: %w", newKey, err)
	}
	if existing != nil {
		if existing.AppointmentID == appointmentID {
			// Rescheduling onto the slot already held: nothing to move.
			return nil
		}
		return ErrSlotTaken
	}

	if oldKey != "" {
		if err := tx.DeleteSlotLock(ctx, oldKey); err != nil {
			return fmt.Errorf("delete slot lock %s: %w", oldKey, err)
		}
	} else {
		l.log.Warn().
			Str("appointment_id", appointmentID.String()).
			Msg("old slot key underivable, skipping release")
	}

	lock := SlotLock{
		Key:           newKey,
		AppointmentID: appointmentID,
		DoctorID:      doctorID,
		Date:          date,
		TimeOfDay:     timeOfDay,
		CreatedAt:     time.Now(),
	}
	if err := tx.InsertSlotLock(ctx, lock); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return ErrSlotTaken
		}
		return fmt.Errorf("insert slot lock %s: %w", newKey, err)
	}
	return nil
}

// releaseCurrent frees the slot an appointment currently holds, deriving
// the key from its stored fields. An underivable key is logged and
// skipped, never an error: cancellation and completion must not fail on
// corrupt slot data.
func (l *SlotLedger) releaseCurrent(ctx context.Context, tx Tx, appt *Appointment) error {
	key, ok := slotKeyOf(appt)
	if !ok {
		l.log.Warn().
			Str("appointment_id", appt.ID.String()).
			Str("date", appt.Date).
			Str("time", appt.TimeOfDay).
			Msg("slot key underivable, skipping release")
		return nil
	}
	return l.Release(ctx, tx, key)
}
