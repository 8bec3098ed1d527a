package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebook/hospital-scheduling/internal/config"
	"github.com/carebook/hospital-scheduling/internal/db"
	"github.com/carebook/hospital-scheduling/internal/logging"
	"github.com/carebook/hospital-scheduling/internal/scheduling"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("sweep-worker", "dev")
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := logging.New("sweep-worker", cfg.Env)
	log.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.SweepInterval).
		Dur("grace", cfg.SweepGrace).
		Msg("sweep-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	store := scheduling.NewPgStore(pgPool)
	ledger := scheduling.NewSlotLedger(log)
	sweeper := scheduling.NewSweeper(store, ledger, cfg.SweepGrace, log)

	// Run once at startup
	runOnce(rootCtx, sweeper, log)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping sweep worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, sweeper, log)
		}
	}
}

func runOnce(ctx context.Context, sweeper *scheduling.Sweeper, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	swept, err := sweeper.SweepNotAttended(runCtx)
	if err != nil {
		log.Error().Err(err).Msg("sweep run error")
		return
	}
	log.Info().Int("swept", swept).Dur("took", time.Since(start)).Msg("sweep run complete")
}
