package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepMarksOverdueConfirmed(t *testing.T) {
	store := NewMemStore()
	doctorID, patientID := seedDoctorPatient(store)

	past, err := bookConfirmed(store, doctorID, patientID, "2025-03-10", "09:00", 500)
	require.NoError(t, err)
	future, err := bookConfirmed(store, doctorID, patientID, "2025-03-20", "09:00", 500)
	require.NoError(t, err)

	sweeper := NewSweeper(store, NewSlotLedger(testLogger()), 2*time.Hour, testLogger())
	sweeper.now = fixedClock(time.Date(2025, 3, 12, 12, 0, 0, 0, time.Local))

	swept, err := sweeper.SweepNotAttended(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	pastAppt, err := store.GetAppointment(context.Background(), past)
	require.NoError(t, err)
	assert.Equal(t, StatusNotAttended, pastAppt.Status)

	futureAppt, err := store.GetAppointment(context.Background(), future)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, futureAppt.Status)

	// Only the overdue slot was freed.
	assert.Equal(t, 1, store.SlotLockCount())
}

func TestSweepRespectsGracePeriod(t *testing.T) {
	store := NewMemStore()
	doctorID, patientID := seedDoctorPatient(store)

	_, err := bookConfirmed(store, doctorID, patientID, "2025-03-10", "09:00", 500)
	require.NoError(t, err)

	sweeper := NewSweeper(store, NewSlotLedger(testLogger()), 2*time.Hour, testLogger())
	// One hour past the slot: still inside the grace window.
	sweeper.now = fixedClock(time.Date(2025, 3, 10, 10, 0, 0, 0, time.Local))

	swept, err := sweeper.SweepNotAttended(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, swept)
}

func TestSweepIsIdempotent(t *testing.T) {
	store := NewMemStore()
	doctorID, patientID := seedDoctorPatient(store)

	_, err := bookConfirmed(store, doctorID, patientID, "2025-03-10", "09:00", 500)
	require.NoError(t, err)

	sweeper := NewSweeper(store, NewSlotLedger(testLogger()), 2*time.Hour, testLogger())
	sweeper.now = fixedClock(time.Date(2025, 3, 12, 12, 0, 0, 0, time.Local))

	swept, err := sweeper.SweepNotAttended(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	swept, err = sweeper.SweepNotAttended(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, swept)
}
