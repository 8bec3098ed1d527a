// simulate drives concurrent booking traffic at a running api-server to
// exercise slot contention: many workers race to book a small set of
// slots, so most attempts should observe slot_already_booked while each
// slot is won exactly once.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebook/hospital-scheduling/internal/config"
	"github.com/carebook/hospital-scheduling/internal/db"
	"github.com/carebook/hospital-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL string
	Duration   time.Duration
	Workers    int
	SlotLimit  int
}

type Metrics struct {
	Total    int64
	Booked   int64
	Conflict int64
	Error    int64
}

type slot struct {
	DoctorID uuid.UUID
	Date     string
	Time     string
}

func main() {
	log := logging.New("simulate", "dev")
	log.Info().Msg("simulator starting")

	baseCfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	cfg := SimConfig{
		APIBaseURL: getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:   getDuration("SIM_DURATION", 30*time.Second),
		Workers:    getInt("SIM_WORKERS", 10),
		SlotLimit:  getInt("SIM_SLOT_LIMIT", 50),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	doctors, patients, err := loadIDs(ctx, pgPool)
	if err != nil {
		log.Fatal().Err(err).Msg("load doctors and patients")
	}
	if len(doctors) == 0 || len(patients) == 0 {
		log.Fatal().Msg("no doctors or patients seeded, run cmd/seed first")
	}

	slots := buildSlots(doctors, cfg.SlotLimit)
	log.Info().
		Int("workers", cfg.Workers).
		Int("slots", len(slots)).
		Dur("duration", cfg.Duration).
		Msg("racing workers over a narrow slot set")

	var metrics Metrics
	client := &http.Client{Timeout: 10 * time.Second}

	deadline := time.Now().Add(cfg.Duration)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for time.Now().Before(deadline) {
				s := slots[rng.Intn(len(slots))]
				patient := patients[rng.Intn(len(patients))]
				bookOnce(client, cfg.APIBaseURL, s, patient, &metrics)
			}
		}(time.Now().UnixNano() + int64(w))
	}
	wg.Wait()

	total := atomic.LoadInt64(&metrics.Total)
	booked := atomic.LoadInt64(&metrics.Booked)
	conflicts := atomic.LoadInt64(&metrics.Conflict)
	errs := atomic.LoadInt64(&metrics.Error)

	log.Info().
		Int64("attempts", total).
		Int64("booked", booked).
		Int64("conflicts", conflicts).
		Int64("errors", errs).
		Msg("simulation finished")

	if booked > int64(len(slots)) {
		log.Error().
			Int64("booked", booked).
			Int("slots", len(slots)).
			Msg("UNIQUENESS VIOLATED: more bookings than slots")
		os.Exit(1)
	}
	log.Info().Msg("uniqueness held: bookings never exceeded distinct slots")
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, []uuid.UUID, error) {
	doctors, err := loadColumn(ctx, pool, `SELECT id FROM doctors LIMIT 200`)
	if err != nil {
		return nil, nil, err
	}
	patients, err := loadColumn(ctx, pool, `SELECT id FROM patients LIMIT 2000`)
	if err != nil {
		return nil, nil, err
	}
	return doctors, patients, nil
}

func loadColumn(ctx context.Context, pool *pgxpool.Pool, sql string) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func buildSlots(doctors []uuid.UUID, limit int) []slot {
	date := time.Now().AddDate(0, 0, 2).Format("2006-01-02")
	var slots []slot
	for _, d := range doctors {
		for hour := 9; hour < 17 && len(slots) < limit; hour++ {
			slots = append(slots, slot{
				DoctorID: d,
				Date:     date,
				Time:     fmt.Sprintf("%02d:00", hour),
			})
		}
		if len(slots) >= limit {
			break
		}
	}
	return slots
}

func bookOnce(client *http.Client, baseURL string, s slot, patient uuid.UUID, m *Metrics) {
	atomic.AddInt64(&m.Total, 1)

	body, _ := json.Marshal(map[string]any{
		"doctor_id":      s.DoctorID.String(),
		"patient_id":     patient.String(),
		"date":           s.Date,
		"time":           s.Time,
		"reason":         "load test visit",
		"payment_amount": 500,
	})

	resp, err := client.Post(baseURL+"/appointments", "application/json", bytes.NewReader(body))
	if err != nil {
		atomic.AddInt64(&m.Error, 1)
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		atomic.AddInt64(&m.Booked, 1)
	case http.StatusConflict:
		atomic.AddInt64(&m.Conflict, 1)
	default:
		atomic.AddInt64(&m.Error, 1)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
