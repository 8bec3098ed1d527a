package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PgStore is the Postgres-backed Store. Transactions run serializable;
// the slot_locks primary key is the derived slot key, so a racing insert
// that slips past the in-transaction read still fails with a unique
// violation and maps to the same conflict outcome.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PgStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return getAppointment(ctx, s.pool, id)
}

func (s *PgStore) GetChangeRequest(ctx context.Context, id uuid.UUID) (*ScheduleChangeRequest, error) {
	return getChangeRequest(ctx, s.pool, id)
}

func (s *PgStore) ListConfirmedByDoctorDates(ctx context.Context, doctorID uuid.UUID, dates []string) ([]Appointment, error) {
	if len(dates) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND status = 'confirmed'
		  AND appointment_date = ANY($2)
		ORDER BY appointment_date, appointment_time
	`, doctorID, dates)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (s *PgStore) ListConfirmedEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Appointment, error) {
	// Slot date/time columns are zone-naive wall-clock values in the
	// worker's zone, so the cutoff is rendered naive in that same zone
	// rather than letting the session TimeZone shift the comparison.
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'confirmed'
		  AND (appointment_date || ' ' || appointment_time)::timestamp < $1::timestamp
		ORDER BY appointment_date, appointment_time
		LIMIT $2
	`, cutoff.In(time.Local).Format("2006-01-02 15:04:05"), limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// querier is the read surface shared by the pool and an open transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type pgTx struct {
	tx pgx.Tx
}

// Slot locks

func (t *pgTx) GetSlotLock(ctx context.Context, key string) (*SlotLock, error) {
	var lock SlotLock
	err := t.tx.QueryRow(ctx, `
		SELECT key, appointment_id, doctor_id, slot_date, slot_time, created_at
		FROM slot_locks
		WHERE key = $1
	`, key).Scan(&lock.Key, &lock.AppointmentID, &lock.DoctorID, &lock.Date, &lock.TimeOfDay, &lock.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotLockNotFound
		}
		return nil, err
	}
	return &lock, nil
}

func (t *pgTx) InsertSlotLock(ctx context.Context, lock SlotLock) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO slot_locks (key, appointment_id, doctor_id, slot_date, slot_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, lock.Key, lock.AppointmentID, lock.DoctorID, lock.Date, lock.TimeOfDay, lock.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrSlotTaken
		}
		return err
	}
	return nil
}

func (t *pgTx) DeleteSlotLock(ctx context.Context, key string) error {
	// Deleting an absent key is a no-op: idempotent release.
	_, err := t.tx.Exec(ctx, `DELETE FROM slot_locks WHERE key = $1`, key)
	return err
}

// Appointments

const appointmentColumns = `
	id, doctor_id, patient_id, appointment_date, appointment_time, status,
	reason, payment_amount,
	refund_amount, cancellation_fee, refund_transaction_id, refund_processed_at,
	cancelled_by, cancellation_policy, hours_before_cancellation,
	medicine, notes, final_diagnosis, diagnosis_history,
	affected_by_request_id, conflict_detected_at,
	created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var history []byte

	err := row.Scan(
		&a.ID, &a.DoctorID, &a.PatientID, &a.Date, &a.TimeOfDay, &a.Status,
		&a.Reason, &a.PaymentAmount,
		&a.RefundAmount, &a.CancellationFee, &a.RefundTransactionID, &a.RefundProcessedAt,
		&a.CancelledBy, &a.CancellationPolicy, &a.HoursBeforeCancellation,
		&a.Medicine, &a.Notes, &a.FinalDiagnosis, &history,
		&a.AffectedByRequestID, &a.ConflictDetectedAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if len(history) > 0 {
		if err := json.Unmarshal(history, &a.DiagnosisHistory); err != nil {
			return nil, fmt.Errorf("decode diagnosis history for %s: %w", a.ID, err)
		}
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func getAppointment(ctx context.Context, q querier, id uuid.UUID) (*Appointment, error) {
	row := q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (t *pgTx) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return getAppointment(ctx, t.tx, id)
}

func (t *pgTx) InsertAppointment(ctx context.Context, appt Appointment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments (
			id, doctor_id, patient_id, appointment_date, appointment_time,
			status, reason, payment_amount, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, appt.ID, appt.DoctorID, appt.PatientID, appt.Date, appt.TimeOfDay,
		appt.Status, appt.Reason, appt.PaymentAmount, appt.CreatedAt, appt.UpdatedAt)
	return err
}

func (t *pgTx) UpdateAppointmentSlot(ctx context.Context, id uuid.UUID, date, timeOfDay string) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET appointment_date = $2,
		    appointment_time = $3,
		    status = 'confirmed',
		    affected_by_request_id = NULL,
		    conflict_detected_at = NULL,
		    updated_at = now()
		WHERE id = $1
	`, id, date, timeOfDay)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (t *pgTx) ApplyCancellation(ctx context.Context, id uuid.UUID, upd CancellationUpdate) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
		    refund_amount = $3,
		    cancellation_fee = $4,
		    refund_transaction_id = $5,
		    refund_processed_at = $6,
		    cancelled_by = $7,
		    cancellation_policy = $8,
		    hours_before_cancellation = $9,
		    updated_at = now()
		WHERE id = $1
	`, id, upd.Status, upd.RefundAmount, upd.CancellationFee, upd.RefundTransactionID,
		upd.ProcessedAt, upd.CancelledBy, upd.Policy, upd.HoursBefore)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (t *pgTx) ApplyCompletion(ctx context.Context, id uuid.UUID, upd CompletionUpdate) error {
	entry, err := json.Marshal([]DiagnosisEntry{upd.HistoryEntry})
	if err != nil {
		return fmt.Errorf("encode diagnosis history entry: %w", err)
	}

	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'completed',
		    final_diagnosis = $2,
		    diagnosis_history = diagnosis_history || $3::jsonb,
		    medicine = $4,
		    notes = $5,
		    updated_at = $6
		WHERE id = $1
	`, id, upd.FinalDiagnosis, entry, upd.Medicine, upd.Notes, upd.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (t *pgTx) MarkAwaitingReschedule(ctx context.Context, id, requestID uuid.UUID, detectedAt time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'awaiting_reschedule',
		    affected_by_request_id = $2,
		    conflict_detected_at = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'confirmed'
	`, id, requestID, detectedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *pgTx) MarkNotAttended(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'not_attended',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'confirmed'
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *pgTx) ListConfirmedByDoctorDate(ctx context.Context, doctorID uuid.UUID, date string) ([]Appointment, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2
		  AND status = 'confirmed'
		ORDER BY appointment_time
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// Doctors and patients

func (t *pgTx) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var d Doctor
	var hours []byte
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, specialty, visiting_hours, blocked_dates, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id).Scan(&d.ID, &d.Name, &d.Specialty, &hours, &d.BlockedDates, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	if len(hours) > 0 {
		if err := json.Unmarshal(hours, &d.VisitingHours); err != nil {
			return nil, fmt.Errorf("decode visiting hours for %s: %w", d.ID, err)
		}
	}
	return &d, nil
}

func (t *pgTx) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (t *pgTx) UpdateDoctorAvailability(ctx context.Context, doctorID uuid.UUID, hours map[string]string, blocked []string, applyHours, applyBlocked bool) error {
	if applyHours {
		encoded, err := json.Marshal(hours)
		if err != nil {
			return fmt.Errorf("encode visiting hours: %w", err)
		}
		tag, err := t.tx.Exec(ctx, `
			UPDATE doctors SET visiting_hours = $2, updated_at = now() WHERE id = $1
		`, doctorID, encoded)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrDoctorNotFound
		}
	}
	if applyBlocked {
		if blocked == nil {
			blocked = []string{}
		}
		tag, err := t.tx.Exec(ctx, `
			UPDATE doctors SET blocked_dates = $2, updated_at = now() WHERE id = $1
		`, doctorID, blocked)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrDoctorNotFound
		}
	}
	return nil
}

// Schedule change requests

func scanChangeRequest(row pgx.Row) (*ScheduleChangeRequest, error) {
	var r ScheduleChangeRequest
	var hours []byte
	err := row.Scan(
		&r.ID, &r.DoctorID, &r.RequestType, &hours, &r.BlockedDates,
		&r.Status, &r.ConflictsDetected, &r.AwaitingCount, &r.ApprovedAt,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if len(hours) > 0 {
		if err := json.Unmarshal(hours, &r.VisitingHours); err != nil {
			return nil, fmt.Errorf("decode visiting hours for request %s: %w", r.ID, err)
		}
	}
	return &r, nil
}

func getChangeRequest(ctx context.Context, q querier, id uuid.UUID) (*ScheduleChangeRequest, error) {
	row := q.QueryRow(ctx, `
		SELECT id, doctor_id, request_type, visiting_hours, blocked_dates,
		       status, conflicts_detected, awaiting_count, approved_at,
		       created_at, updated_at
		FROM schedule_change_requests
		WHERE id = $1
	`, id)
	return scanChangeRequest(row)
}

func (t *pgTx) GetChangeRequest(ctx context.Context, id uuid.UUID) (*ScheduleChangeRequest, error) {
	return getChangeRequest(ctx, t.tx, id)
}

func (t *pgTx) FinalizeChangeRequest(ctx context.Context, id uuid.UUID, conflicts, awaiting int, approvedAt time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE schedule_change_requests
		SET status = 'approved',
		    conflicts_detected = $2,
		    awaiting_count = $3,
		    approved_at = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'pending'
	`, id, conflicts, awaiting, approvedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRequestNotPending
	}
	return nil
}
