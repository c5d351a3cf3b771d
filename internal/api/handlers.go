package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medibook/appointment-portal/internal/auth"
	"github.com/medibook/appointment-portal/internal/booking"
	"github.com/medibook/appointment-portal/internal/directory"
)

func loginHandler(svc *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "invalid_credentials_format", "email and password are required")
			return
		}

		token, ident, err := svc.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				writeError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})

		writeJSON(w, http.StatusOK, LoginResponse{
			Token: token,
			Name:  ident.Name,
			Role:  ident.Role.String(),
		})
	}
}

func logoutHandler(svc *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token := bearerToken(r); token != "" {
			_ = svc.Logout(r.Context(), token)
		}
		http.SetCookie(w, &http.Cookie{
			Name:   sessionCookie,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

func searchDoctorsHandler(dir directory.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := directory.SearchFilter{
			Specialty: q.Get("specialty"),
			City:      q.Get("city"),
			Hospital:  q.Get("hospital"),
			Limit:     queryInt(q.Get("limit"), 20),
			Offset:    queryInt(q.Get("offset"), 0),
		}

		doctors, err := dir.Search(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]DoctorResponse, 0, len(doctors))
		for _, d := range doctors {
			resp = append(resp, DoctorResponse{
				ID:              d.ID,
				Name:            d.Name,
				Specialty:       d.Specialty,
				Hospital:        d.HospitalName,
				City:            d.City,
				ConsultationFee: d.ConsultationFee,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		slots, err := svc.ListSlots(r.Context(), doctorID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, SlotResponse{
				ID:        s.ID,
				DoctorID:  s.DoctorID,
				StartTime: s.StartTime,
				EndTime:   s.EndTime,
				Capacity:  s.MaxCapacity,
				Remaining: s.Remaining(),
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := GetIdentity(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
			return
		}

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
		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}

		var dob time.Time
		if req.Patient.DateOfBirth != "" {
			dob, err = time.Parse("2006-01-02", req.Patient.DateOfBirth)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date_of_birth", "date_of_birth must be YYYY-MM-DD")
				return
			}
		}

		appt, err := svc.Create(r.Context(), booking.CreateAppointmentInput{
			DoctorID: doctorID,
			SlotID:   slotID,
			Patient: booking.PatientDetails{
				Name:        req.Patient.Name,
				Phone:       req.Patient.Phone,
				NationalID:  req.Patient.NationalID,
				DateOfBirth: dob,
				Gender:      req.Patient.Gender,
				Age:         req.Patient.Age,
			},
			PaymentRef:     req.PaymentRef,
			RefundEligible: req.RefundEligible,
		}, caller)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := GetIdentity(r.Context())

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Get(r.Context(), id, caller)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := GetIdentity(r.Context())
		q := r.URL.Query()

		filter := booking.ListFilter{
			Search:   q.Get("search"),
			Status:   booking.AppointmentStatus(q.Get("status")),
			Hospital: q.Get("hospital"),
			Limit:    queryInt(q.Get("limit"), 20),
			Offset:   queryInt(q.Get("offset"), 0),
		}
		if v := q.Get("agent_id"); v != "" {
			agentID, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_agent_id", "agent_id must be a valid UUID")
				return
			}
			filter.BookedBy = agentID
		}
		if v := q.Get("date"); v != "" {
			d, err := time.Parse("2006-01-02", v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
			filter.Date = &d
		}

		appts, err := svc.List(r.Context(), filter, caller)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func confirmAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := GetIdentity(r.Context())

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req ConfirmAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.PaymentRef == "" {
			writeError(w, http.StatusBadRequest, "missing_payment_ref", "payment_ref is required")
			return
		}

		appt, err := svc.Confirm(r.Context(), id, req.PaymentRef, caller)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := GetIdentity(r.Context())

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Cancel(r.Context(), id, caller)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func completeAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := GetIdentity(r.Context())

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Complete(r.Context(), id, caller)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentEventsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := GetIdentity(r.Context())

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		events, err := svc.Events(r.Context(), id, caller)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := make([]EventResponse, 0, len(events))
		for _, e := range events {
			resp = append(resp, EventResponse{
				ID:        e.ID,
				EventType: string(e.EventType),
				Actor:     e.Actor,
				Payload:   json.RawMessage(e.Payload),
				CreatedAt: e.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listAgentsHandler(svc *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		agents, err := svc.ListAgents(r.Context(), queryInt(q.Get("limit"), 20), queryInt(q.Get("offset"), 0))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]AgentResponse, 0, len(agents))
		for _, a := range agents {
			resp = append(resp, AgentResponse{
				ID:        a.ID,
				Name:      a.Name,
				Email:     a.Email,
				Role:      a.Role.String(),
				CreatedAt: a.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listPaymentsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := GetIdentity(r.Context())
		q := r.URL.Query()

		payments, err := svc.ListPayments(r.Context(), booking.PaymentFilter{
			Status: booking.PaymentStatus(q.Get("status")),
			Limit:  queryInt(q.Get("limit"), 20),
			Offset: queryInt(q.Get("offset"), 0),
		}, caller)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := make([]PaymentResponse, 0, len(payments))
		for _, p := range payments {
			resp = append(resp, PaymentResponse{
				ID:            p.ID,
				AppointmentID: p.AppointmentID,
				Status:        string(p.Status),
				TxnRef:        p.TxnRef,
				Amount:        p.Amount,
				CreatedAt:     p.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleBookingError maps each domain error to one stable status/code pair so
// UI layers can tell "slot full" from "already cancelled" from "not yours".
// Storage errors surface as a generic 500; the transaction already rolled back.
func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, booking.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotFull):
		writeError(w, http.StatusConflict, "slot_full", err.Error())
	case errors.Is(err, booking.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "already_cancelled", err.Error())
	case errors.Is(err, booking.ErrNotCancellable):
		writeError(w, http.StatusConflict, "not_cancellable", err.Error())
	case errors.Is(err, booking.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, booking.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
