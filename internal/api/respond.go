package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/carebook/hospital-scheduling/internal/scheduling"
	redisclient "github.com/carebook/hospital-scheduling/internal/redis"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeDomainError maps the core's sentinel errors onto the wire
// taxonomy. Conflicts and rule violations are 4xx outcomes, never
// retried here; anything unrecognized is an infrastructure failure.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_already_booked", "that slot already has a confirmed appointment")
	case errors.Is(err, scheduling.ErrInvalidSlot):
		writeError(w, http.StatusBadRequest, "invalid_slot", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, scheduling.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, scheduling.ErrDoctorUnavailable):
		writeError(w, http.StatusConflict, "doctor_unavailable", err.Error())
	case errors.Is(err, scheduling.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.Is(err, scheduling.ErrOrderingViolation):
		writeError(w, http.StatusConflict, "ordering_violation", err.Error())
	case errors.Is(err, scheduling.ErrDiagnosisRequired):
		writeError(w, http.StatusBadRequest, "diagnosis_required", err.Error())
	case errors.Is(err, scheduling.ErrAlreadyFinalized):
		writeError(w, http.StatusConflict, "appointment_finalized", err.Error())
	case errors.Is(err, scheduling.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "request_not_found", err.Error())
	case errors.Is(err, scheduling.ErrRequestNotPending):
		writeError(w, http.StatusConflict, "request_already_approved", err.Error())
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "request_being_processed", "this change request is being processed, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
