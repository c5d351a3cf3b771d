package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// Terminal reports whether no further status transition is permitted.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
	// PaymentCancelled is the terminal state for a payment that was never
	// collected: the booking was cancelled or expired while still unpaid.
	PaymentCancelled PaymentStatus = "cancelled"
)

// AvailabilitySlot is a doctor's bookable time window with finite capacity.
// Invariant: 0 <= BookedCount <= MaxCapacity, enforced transactionally by the
// ledger and backed by a CHECK constraint.
type AvailabilitySlot struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	StartTime   time.Time
	EndTime     time.Time
	MaxCapacity int
	BookedCount int
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s *AvailabilitySlot) Remaining() int {
	if n := s.MaxCapacity - s.BookedCount; n > 0 {
		return n
	}
	return 0
}

// PatientDetails is captured onto the appointment at booking time. The portal
// books on behalf of walk-in patients, so there is no patient account.
type PatientDetails struct {
	Name        string
	Phone       string
	NationalID  string
	DateOfBirth time.Time
	Gender      string
	Age         int
}

func (p PatientDetails) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: patient name is required", ErrValidation)
	}
	if strings.TrimSpace(p.Phone) == "" {
		return fmt.Errorf("%w: patient phone is required", ErrValidation)
	}
	if p.Age < 0 || p.Age > 150 {
		return fmt.Errorf("%w: patient age out of range", ErrValidation)
	}
	return nil
}

// DoctorProfile is the read-only directory snapshot copied onto an
// appointment when it is created. ConsultationFee is in the smallest
// currency unit.
type DoctorProfile struct {
	ID              uuid.UUID
	Name            string
	Specialty       string
	HospitalName    string
	ConsultationFee int64
}

// Appointment references exactly one slot and one booking identity. Doctor
// and patient fields are denormalized at booking time so later directory
// edits never rewrite history.
type Appointment struct {
	ID              uuid.UUID
	SlotID          uuid.UUID
	DoctorID        uuid.UUID
	BookedBy        uuid.UUID
	Patient         PatientDetails
	DoctorName      string
	DoctorSpecialty string
	HospitalName    string
	ScheduledAt     time.Time
	TotalAmount     int64
	RefundEligible  bool
	Status          AppointmentStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Payment is one-to-one with an appointment and only ever mutated inside the
// same transaction as the appointment it belongs to.
type Payment struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Status        PaymentStatus
	TxnRef        string
	Amount        int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type EventType string

const (
	EventBooked    EventType = "booked"
	EventConfirmed EventType = "confirmed"
	EventCancelled EventType = "cancelled"
	EventRefunded  EventType = "refunded"
	EventCompleted EventType = "completed"
	EventExpired   EventType = "expired"
)

// AppointmentEvent is one row of the audit trail. Events are inserted in the
// same transaction as the transition they record, so the trail never shows a
// transition that rolled back.
type AppointmentEvent struct {
	ID            int64
	AppointmentID uuid.UUID
	EventType     EventType
	Actor         uuid.UUID // account that drove the transition; Nil for the worker
	Payload       []byte    // JSON context, e.g. the txn ref or expiry reason
	CreatedAt     time.Time
}
