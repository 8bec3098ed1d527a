package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper marks confirmed appointments whose slot passed without
// completion as not_attended and frees their locks. Run periodically by
// the sweep worker.
type Sweeper struct {
	store  Store
	ledger *SlotLedger
	log    zerolog.Logger
	grace  time.Duration
	now    func() time.Time
}

func NewSweeper(store Store, ledger *SlotLedger, grace time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:  store,
		ledger: ledger,
		log:    log.With().Str("component", "sweeper").Logger(),
		grace:  grace,
		now:    time.Now,
	}
}

const sweepBatchSize = 200

// SweepNotAttended processes one batch and returns how many appointments
// it transitioned. Each appointment gets its own transaction so one bad
// row cannot hold up the rest.
func (s *Sweeper) SweepNotAttended(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.grace)
	candidates, err := s.store.ListConfirmedEndedBefore(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list overdue appointments: %w", err)
	}

	swept := 0
	for _, appt := range candidates {
		appt := appt
		var changed bool
		err := s.store.InTx(ctx, func(tx Tx) error {
			var err error
			changed, err = tx.MarkNotAttended(ctx, appt.ID)
			if err != nil {
				return err
			}
			if !changed {
				// Completed or cancelled since the scan.
				return nil
			}
			return s.ledger.releaseCurrent(ctx, tx, &appt)
		})
		if err != nil {
			s.log.Error().Err(err).
				Str("appointment_id", appt.ID.String()).
				Msg("mark not attended failed")
			continue
		}
		if changed {
			swept++
		}
	}

	if swept > 0 {
		s.log.Info().Int("count", swept).Msg("overdue appointments marked not attended")
	}
	return swept, nil
}
