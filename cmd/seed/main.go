package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebook/hospital-scheduling/internal/db"
	"github.com/carebook/hospital-scheduling/internal/logging"
	"github.com/carebook/hospital-scheduling/internal/scheduling"
)

func main() {
	log := logging.New("seed", "dev")
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatal().Err(err).Msg("apply schema")
	}

	gofakeit.Seed(time.Now().UnixNano())

	doctors, err := seedDoctors(context.Background(), pool, 25)
	if err != nil {
		log.Fatal().Err(err).Msg("seed doctors")
	}
	patients, err := seedPatients(context.Background(), pool, 2000)
	if err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedAppointments(context.Background(), pool, doctors, patients); err != nil {
		log.Fatal().Err(err).Msg("seed appointments")
	}

	log.Info().Msg("seed complete")
}

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, visiting_hours, created_at, updated_at)
			VALUES ($1, $2, $3, '{"mon-fri": "09:00-17:00"}', now(), now())
		`, id, name, spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	const batchSize = 500

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// seedAppointments books each doctor a run of half-hour slots tomorrow,
// writing the appointment and its slot lock together the way the booking
// service does.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, doctors, patients []uuid.UUID) error {
	date := time.Now().AddDate(0, 0, 1).Format("2006-01-02")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, doctorID := range doctors {
		slots := gofakeit.Number(3, 8)
		for i := 0; i < slots; i++ {
			timeOfDay := fmt.Sprintf("%02d:%02d", 9+i/2, (i%2)*30)
			patientID := patients[gofakeit.Number(0, len(patients)-1)]
			apptID := uuid.New()
			key := scheduling.SlotKey(doctorID, date, timeOfDay)

			_, err := tx.Exec(ctx, `
				INSERT INTO appointments (
					id, doctor_id, patient_id, appointment_date, appointment_time,
					status, reason, payment_amount, created_at, updated_at
				) VALUES ($1, $2, $3, $4, $5, 'confirmed', $6, $7, now(), now())
			`, apptID, doctorID, patientID, date, timeOfDay,
				gofakeit.Sentence(4), int64(gofakeit.Number(200, 900)))
			if err != nil {
				return err
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO slot_locks (key, appointment_id, doctor_id, slot_date, slot_time, created_at)
				VALUES ($1, $2, $3, $4, $5, now())
			`, key, apptID, doctorID, date, timeOfDay)
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}
