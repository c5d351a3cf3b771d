package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrSlotFull            = errors.New("slot has no remaining capacity")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPaymentNotFound     = errors.New("payment not found")
)

// Tx is the transaction-scoped view of the datastore. Everything called on
// one Tx commits or rolls back together; no partial appointment, reservation,
// or payment is ever left visible.
type Tx interface {
	Ledger

	DoctorByID(ctx context.Context, id uuid.UUID) (*DoctorProfile, error)
	SlotForDoctor(ctx context.Context, slotID, doctorID uuid.UUID) (*AvailabilitySlot, error)

	InsertAppointment(ctx context.Context, appt *Appointment) error
	// AppointmentForUpdate locks the row for the rest of the transaction, so
	// concurrent cancels on the same appointment serialize here.
	AppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// SetAppointmentStatus is a compare-and-set on status; it fails with
	// ErrAppointmentNotFound when the row is not in the expected state.
	SetAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) error

	InsertPayment(ctx context.Context, p *Payment) error
	MarkPaymentPaid(ctx context.Context, appointmentID uuid.UUID, txnRef string) error
	MarkPaymentRefunded(ctx context.Context, appointmentID uuid.UUID) error
	// CancelPendingPayment moves a still-pending payment to cancelled and
	// reports whether a row changed, so the caller can fall through to the
	// refund path when the payment had already been collected.
	CancelPendingPayment(ctx context.Context, appointmentID uuid.UUID) (bool, error)

	InsertEvent(ctx context.Context, e *AppointmentEvent) error
}

// ListFilter narrows the admin appointment review. Zero values mean "any".
type ListFilter struct {
	Search   string // patient name/phone or doctor name, substring match
	BookedBy uuid.UUID
	Status   AppointmentStatus
	Date     *time.Time // calendar date of the slot the booking is against
	Hospital string
	Limit    int
	Offset   int
}

type PaymentFilter struct {
	Status PaymentStatus
	Limit  int
	Offset int
}

// Repository contains all DB interactions needed by the lifecycle manager.
// Reads run against the pool; every mutation goes through InTx.
type Repository interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	AppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	PaymentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error)
	ListPayments(ctx context.Context, f PaymentFilter) ([]Payment, error)
	SlotsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]AvailabilitySlot, error)
	EventsByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]AppointmentEvent, error)

	// Expiry worker
	FindStalePending(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}
