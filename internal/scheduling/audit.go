package scheduling

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgAuditTrail appends change events to the change_events table. It
// writes outside the caller's transaction on purpose: audit persistence
// is best effort and must never roll back a committed operation.
type PgAuditTrail struct {
	pool *pgxpool.Pool
}

func NewPgAuditTrail(pool *pgxpool.Pool) *PgAuditTrail {
	return &PgAuditTrail{pool: pool}
}

func (a *PgAuditTrail) RecordChangeEvent(ctx context.Context, ev ChangeEvent) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO change_events (
			event_type, appointment_id, doctor_id, patient_id, request_id,
			prev_status, next_status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, ev.Type, ev.AppointmentID, ev.DoctorID, ev.PatientID, ev.RequestID,
		ev.PrevStatus, ev.NextStatus, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert change event: %w", err)
	}
	return nil
}
