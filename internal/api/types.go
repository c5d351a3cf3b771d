package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/medibook/appointment-portal/internal/booking"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type PatientPayload struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	NationalID  string `json:"national_id"`
	DateOfBirth string `json:"date_of_birth"` // YYYY-MM-DD
	Gender      string `json:"gender"`
	Age         int    `json:"age"`
}

type CreateAppointmentRequest struct {
	DoctorID       string         `json:"doctor_id"`
	SlotID         string         `json:"slot_id"`
	Patient        PatientPayload `json:"patient"`
	PaymentRef     string         `json:"payment_ref,omitempty"`
	RefundEligible bool           `json:"refund_eligible"`
}

type ConfirmAppointmentRequest struct {
	PaymentRef string `json:"payment_ref"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	SlotID          uuid.UUID `json:"slot_id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	DoctorName      string    `json:"doctor_name"`
	DoctorSpecialty string    `json:"doctor_specialty"`
	HospitalName    string    `json:"hospital_name"`
	PatientName     string    `json:"patient_name"`
	PatientPhone    string    `json:"patient_phone"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	TotalAmount     int64     `json:"total_amount"`
	RefundEligible  bool      `json:"refund_eligible"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		SlotID:          a.SlotID,
		DoctorID:        a.DoctorID,
		DoctorName:      a.DoctorName,
		DoctorSpecialty: a.DoctorSpecialty,
		HospitalName:    a.HospitalName,
		PatientName:     a.Patient.Name,
		PatientPhone:    a.Patient.Phone,
		ScheduledAt:     a.ScheduledAt,
		TotalAmount:     a.TotalAmount,
		RefundEligible:  a.RefundEligible,
		Status:          string(a.Status),
		CreatedAt:       a.CreatedAt,
	}
}

type PaymentResponse struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Status        string    `json:"status"`
	TxnRef        string    `json:"txn_ref,omitempty"`
	Amount        int64     `json:"amount"`
	CreatedAt     time.Time `json:"created_at"`
}

type EventResponse struct {
	ID        int64           `json:"id"`
	EventType string          `json:"event_type"`
	Actor     uuid.UUID       `json:"actor"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type SlotResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Capacity  int       `json:"capacity"`
	Remaining int       `json:"remaining"`
}

type DoctorResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Specialty       string    `json:"specialty"`
	Hospital        string    `json:"hospital"`
	City            string    `json:"city"`
	ConsultationFee int64     `json:"consultation_fee"`
}

type AgentResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
