package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthHandlerWith(storeErr, redisErr error) *HealthHandler {
	return &HealthHandler{
		env:     "test",
		version: "test",
		probes: []dependencyProbe{
			{
				name:     "appointment-store",
				critical: true,
				ping:     func(context.Context) error { return storeErr },
			},
			{
				name: "approval-lock-redis",
				ping: func(context.Context) error { return redisErr },
			},
		},
	}
}

func readiness(t *testing.T, h *HealthHandler) (int, ReadinessResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	return rec.Code, decodeBody[ReadinessResponse](t, rec.Result())
}

func TestReadinessAllUp(t *testing.T) {
	code, body := readiness(t, healthHandlerWith(nil, nil))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.Dependencies["appointment-store"])
	assert.Equal(t, "ok", body.Dependencies["approval-lock-redis"])
}

// Redis loss degrades readiness but keeps the instance in rotation;
// booking does not depend on it.
func TestReadinessDegradedWithoutRedis(t *testing.T) {
	code, body := readiness(t, healthHandlerWith(nil, errors.New("connection refused")))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "down", body.Dependencies["approval-lock-redis"])
}

func TestReadinessErrorWithoutStore(t *testing.T) {
	code, body := readiness(t, healthHandlerWith(errors.New("dial timeout"), nil))
	require.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, "down", body.Dependencies["appointment-store"])
}
