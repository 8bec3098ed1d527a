package scheduling

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeRefund(t *testing.T) {
	cases := []struct {
		name       string
		payment    int64
		hoursUntil float64
		wantFee    int64
		wantRefund int64
		wantPolicy string
	}{
		{"well ahead", 500, 13, 0, 500, PolicyFreeWindow},
		{"exactly at the window", 500, 10, 0, 500, PolicyFreeWindow},
		{"inside the window", 500, 6, 100, 400, PolicyLateFlatFee},
		{"at the slot", 500, 0, 100, 400, PolicyLateFlatFee},
		{"after the slot", 500, -2, 100, 400, PolicyLateFlatFee},
		{"fee floored at payment", 50, 1, 50, 0, PolicyLateFlatFee},
		{"zero payment", 0, 1, 0, 0, PolicyLateFlatFee},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeRefund(tc.payment, tc.hoursUntil)
			assert.Equal(t, tc.wantFee, got.Fee)
			assert.Equal(t, tc.wantRefund, got.Refund)
			assert.Equal(t, tc.wantPolicy, got.Name)
		})
	}
}

// For a fixed payment the refund never shrinks as the cancellation moves
// further ahead of the slot.
func TestRefundMonotonicInHoursUntil(t *testing.T) {
	prev := int64(-1)
	for h := -5.0; h <= 24; h += 0.5 {
		refund := ComputeRefund(500, h).Refund
		assert.GreaterOrEqual(t, refund, prev, "hoursUntil=%v", h)
		prev = refund
	}
	assert.Equal(t, int64(500), ComputeRefund(500, 24).Refund)
}

func cancellationFixture(t *testing.T, payment int64) (*MemStore, *CancellationService, uuid.UUID, uuid.UUID) {
	t.Helper()
	store := NewMemStore()
	doctorID, patientID := seedDoctorPatient(store)

	id, err := bookConfirmed(store, doctorID, patientID, "2025-03-10", "09:00", payment)
	require.NoError(t, err)

	svc := NewCancellationService(store, NewSlotLedger(testLogger()), testLogger())
	return store, svc, id, patientID
}

func TestCancelLateChargesFlatFee(t *testing.T) {
	store, svc, id, patientID := cancellationFixture(t, 500)
	// 6 hours before the 09:00 slot.
	svc.now = fixedClock(time.Date(2025, 3, 10, 3, 0, 0, 0, time.Local))

	result, err := svc.Cancel(context.Background(), id, Actor{ID: patientID, Role: RolePatient})
	require.NoError(t, err)
	assert.Equal(t, int64(100), result.Fee)
	assert.Equal(t, int64(400), result.RefundAmount)
	assert.True(t, strings.HasPrefix(result.RefundTransactionID, "refund_"))

	appt, err := store.GetAppointment(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, appt.Status)
	assert.Equal(t, PolicyLateFlatFee, appt.CancellationPolicy)
	require.NotNil(t, appt.HoursBeforeCancellation)
	assert.InDelta(t, 6.0, *appt.HoursBeforeCancellation, 0.01)
	assert.Equal(t, 0, store.SlotLockCount())
}

func TestCancelEarlyRefundsInFull(t *testing.T) {
	store, svc, id, patientID := cancellationFixture(t, 500)
	// 13 hours before the slot: the evening before.
	svc.now = fixedClock(time.Date(2025, 3, 9, 20, 0, 0, 0, time.Local))

	result, err := svc.Cancel(context.Background(), id, Actor{ID: patientID, Role: RolePatient})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Fee)
	assert.Equal(t, int64(500), result.RefundAmount)

	appt, err := store.GetAppointment(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, PolicyFreeWindow, appt.CancellationPolicy)
	assert.Equal(t, 0, store.SlotLockCount())
}

func TestDoctorCancelRefundsInFullRegardlessOfTiming(t *testing.T) {
	store, svc, id, _ := cancellationFixture(t, 500)
	svc.now = fixedClock(time.Date(2025, 3, 10, 8, 0, 0, 0, time.Local))

	result, err := svc.Cancel(context.Background(), id, Actor{ID: uuid.New(), Role: RoleDoctor})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Fee)
	assert.Equal(t, int64(500), result.RefundAmount)

	appt, err := store.GetAppointment(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusDoctorCancelled, appt.Status)
	assert.Equal(t, PolicyDoctorCancelled, appt.CancellationPolicy)
}

func TestCancelTwiceRejectedButDoesNotError(t *testing.T) {
	_, svc, id, patientID := cancellationFixture(t, 500)
	svc.now = fixedClock(time.Date(2025, 3, 9, 20, 0, 0, 0, time.Local))
	actor := Actor{ID: patientID, Role: RolePatient}

	_, err := svc.Cancel(context.Background(), id, actor)
	require.NoError(t, err)

	// The second cancel finds a finalized appointment; the slot release
	// underneath stays idempotent either way.
	_, err = svc.Cancel(context.Background(), id, actor)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestCancelNotFound(t *testing.T) {
	store := NewMemStore()
	svc := NewCancellationService(store, NewSlotLedger(testLogger()), testLogger())

	_, err := svc.Cancel(context.Background(), uuid.New(), Actor{ID: uuid.New(), Role: RolePatient})
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}
