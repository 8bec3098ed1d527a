package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CompletionSequencer enforces the per-doctor, per-day FIFO consultation
// order and records diagnosis history.
type CompletionSequencer struct {
	store  Store
	ledger *SlotLedger
	log    zerolog.Logger
	now    func() time.Time
}

func NewCompletionSequencer(store Store, ledger *SlotLedger, log zerolog.Logger) *CompletionSequencer {
	return &CompletionSequencer{
		store:  store,
		ledger: ledger,
		log:    log.With().Str("component", "completion").Logger(),
		now:    time.Now,
	}
}

// Complete marks an appointment completed. Every confirmed sibling on the
// same doctor and date with an earlier time must already be finalized,
// otherwise ErrOrderingViolation.
func (s *CompletionSequencer) Complete(ctx context.Context, appointmentID uuid.UUID, diagnoses []string, medicine, notes string, actor Actor) error {
	if len(diagnoses) == 0 {
		return ErrDiagnosisRequired
	}

	err := s.store.InTx(ctx, func(tx Tx) error {
		appt, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if appt.Status != StatusConfirmed {
			return ErrAlreadyFinalized
		}

		siblings, err := tx.ListConfirmedByDoctorDate(ctx, appt.DoctorID, appt.Date)
		if err != nil {
			return fmt.Errorf("list same-day appointments: %w", err)
		}
		for _, sib := range siblings {
			if sib.ID == appt.ID {
				continue
			}
			if earlierTime(sib.TimeOfDay, appt.TimeOfDay) {
				return ErrOrderingViolation
			}
		}

		now := s.now()
		upd := CompletionUpdate{
			FinalDiagnosis: diagnoses,
			HistoryEntry: DiagnosisEntry{
				Diagnoses: diagnoses,
				UpdatedBy: actor.ID,
				UpdatedAt: now,
			},
			// The store rejects null text columns; absent values persist
			// as empty strings.
			Medicine:    medicine,
			Notes:       notes,
			CompletedAt: now,
		}
		if err := tx.ApplyCompletion(ctx, appt.ID, upd); err != nil {
			return fmt.Errorf("apply completion: %w", err)
		}

		return s.ledger.releaseCurrent(ctx, tx, appt)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("appointment_id", appointmentID.String()).
		Msg("appointment completed")
	return nil
}

// earlierTime compares two normalized HH:MM strings. Lexicographic order
// is chronological order for the 24-hour form; anything unparseable sorts
// last so corrupt rows never block completion.
func earlierTime(a, b string) bool {
	na, errA := NormalizeTime(a)
	nb, errB := NormalizeTime(b)
	if errA != nil {
		return false
	}
	if errB != nil {
		return true
	}
	return na < nb
}
