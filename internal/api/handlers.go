package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/carebook/hospital-scheduling/internal/scheduling"
)

func createAppointmentHandler(svc *scheduling.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		id, err := svc.Create(r.Context(), scheduling.BookingDraft{
			DoctorID:      doctorID,
			PatientID:     patientID,
			Date:          req.Date,
			Time:          req.Time,
			Reason:        req.Reason,
			PaymentAmount: req.PaymentAmount,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, CreateAppointmentResponse{AppointmentID: id})
	}
}

func rescheduleAppointmentHandler(svc *scheduling.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		requesterID, err := uuid.Parse(req.RequesterID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_requester_id", "requester_id must be a valid UUID")
			return
		}

		if err := svc.Reschedule(r.Context(), id, requesterID, req.NewDate, req.NewTime); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, OkResponse{Ok: true})
	}
}

func cancelAppointmentHandler(svc *scheduling.CancellationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req CancelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		actorID, err := uuid.Parse(req.ActorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_actor_id", "actor_id must be a valid UUID")
			return
		}

		role := scheduling.Role(req.ActorRole)
		switch role {
		case scheduling.RolePatient, scheduling.RoleDoctor, scheduling.RoleStaff:
		default:
			writeError(w, http.StatusBadRequest, "invalid_actor_role", "actor_role must be patient, doctor or staff")
			return
		}

		result, err := svc.Cancel(r.Context(), id, scheduling.Actor{ID: actorID, Role: role})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, CancelResponse{
			RefundAmount:        result.RefundAmount,
			Fee:                 result.Fee,
			RefundTransactionID: result.RefundTransactionID,
		})
	}
}

func completeAppointmentHandler(svc *scheduling.CompletionSequencer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req CompleteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		actorID, err := uuid.Parse(req.ActorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_actor_id", "actor_id must be a valid UUID")
			return
		}

		actor := scheduling.Actor{ID: actorID, Role: scheduling.RoleDoctor}
		if err := svc.Complete(r.Context(), id, req.Diagnosis, req.Medicine, req.Notes, actor); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, OkResponse{Ok: true})
	}
}

func approveScheduleChangeHandler(svc *scheduling.AvailabilityChangeProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		result, err := svc.Approve(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ApproveResponse{
			Conflicts:      result.Conflicts,
			AwaitingCount:  result.AwaitingCount,
			CancelledCount: result.CancelledCount,
		})
	}
}

func getAppointmentHandler(store scheduling.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		appt, err := store.GetAppointment(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentResponse{
			ID:            appt.ID,
			DoctorID:      appt.DoctorID,
			PatientID:     appt.PatientID,
			Date:          appt.Date,
			Time:          appt.TimeOfDay,
			Status:        appt.Status,
			PaymentAmount: appt.PaymentAmount,
			CreatedAt:     appt.CreatedAt,
			UpdatedAt:     appt.UpdatedAt,
		})
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
