package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/medibook/appointment-portal/internal/auth"
)

var (
	ErrValidation              = errors.New("invalid input")
	ErrForbidden               = errors.New("appointment belongs to another account")
	ErrAlreadyCancelled        = errors.New("appointment is already cancelled")
	ErrNotCancellable          = errors.New("completed appointments cannot be cancelled")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// Service is the appointment lifecycle manager. It never caches slot or
// appointment state across requests; every operation re-reads and
// re-validates inside its own transaction.
type Service struct {
	repo    Repository
	refunds RefundPolicy
	now     func() time.Time
}

func NewService(repo Repository, refunds RefundPolicy) *Service {
	return &Service{
		repo:    repo,
		refunds: refunds,
		now:     time.Now,
	}
}

// logEvent appends one audit-trail row inside the caller's transaction. An
// insert failure rolls the whole transition back with it.
func (s *Service) logEvent(ctx context.Context, tx Tx, appointmentID uuid.UUID, eventType EventType, actor uuid.UUID, payload map[string]any) error {
	var data []byte
	if len(payload) > 0 {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			log.Printf("failed to marshal event payload for %s: %v", eventType, err)
			data = nil
		}
	}

	return tx.InsertEvent(ctx, &AppointmentEvent{
		AppointmentID: appointmentID,
		EventType:     eventType,
		Actor:         actor,
		Payload:       data,
		CreatedAt:     s.now().UTC(),
	})
}

type CreateAppointmentInput struct {
	DoctorID uuid.UUID
	SlotID   uuid.UUID
	Patient  PatientDetails
	// PaymentRef is the gateway reference when the fee was collected up
	// front. Present: the appointment starts confirmed with a paid payment.
	// Absent: both start pending until Confirm arrives or the expiry worker
	// reclaims the slot.
	PaymentRef     string
	RefundEligible bool
}

// Create books one unit of slot capacity and the appointment/payment pair in
// a single transaction. Any failure rolls the whole thing back.
func (s *Service) Create(ctx context.Context, in CreateAppointmentInput, caller auth.Identity) (*Appointment, error) {
	if err := in.Patient.Validate(); err != nil {
		return nil, err
	}

	var created *Appointment

	err := s.repo.InTx(ctx, func(tx Tx) error {
		doctor, err := tx.DoctorByID(ctx, in.DoctorID)
		if err != nil {
			return err
		}

		slot, err := tx.SlotForDoctor(ctx, in.SlotID, in.DoctorID)
		if err != nil {
			return err
		}
		if !slot.Active {
			return ErrSlotNotFound
		}

		if err := tx.Reserve(ctx, slot.ID); err != nil {
			return err
		}

		now := s.now().UTC()
		status := StatusPending
		payStatus := PaymentPending
		if in.PaymentRef != "" {
			status = StatusConfirmed
			payStatus = PaymentPaid
		}

		appt := &Appointment{
			ID:              uuid.New(),
			SlotID:          slot.ID,
			DoctorID:        doctor.ID,
			BookedBy:        caller.UserID,
			Patient:         in.Patient,
			DoctorName:      doctor.Name,
			DoctorSpecialty: doctor.Specialty,
			HospitalName:    doctor.HospitalName,
			ScheduledAt:     slot.StartTime,
			TotalAmount:     doctor.ConsultationFee,
			RefundEligible:  in.RefundEligible,
			Status:          status,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return err
		}

		payment := &Payment{
			ID:            uuid.New(),
			AppointmentID: appt.ID,
			Status:        payStatus,
			TxnRef:        in.PaymentRef,
			Amount:        doctor.ConsultationFee,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}

		if err := s.logEvent(ctx, tx, appt.ID, EventBooked, caller.UserID, nil); err != nil {
			return err
		}
		if status == StatusConfirmed {
			err := s.logEvent(ctx, tx, appt.ID, EventConfirmed, caller.UserID, map[string]any{
				"txn_ref": in.PaymentRef,
			})
			if err != nil {
				return err
			}
		}

		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// Cancel moves an appointment to its terminal cancelled state, releases the
// slot capacity exactly once, and refunds the payment when the policy allows.
// All three writes commit atomically or none do.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, caller auth.Identity) (*Appointment, error) {
	var cancelled *Appointment

	err := s.repo.InTx(ctx, func(tx Tx) error {
		appt, err := tx.AppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if !caller.Role.ManagesAllBookings() && appt.BookedBy != caller.UserID {
			return ErrForbidden
		}

		switch appt.Status {
		case StatusCancelled:
			return ErrAlreadyCancelled
		case StatusCompleted:
			return ErrNotCancellable
		}

		if err := tx.SetAppointmentStatus(ctx, appt.ID, appt.Status, StatusCancelled); err != nil {
			return err
		}
		if err := tx.Release(ctx, appt.SlotID); err != nil {
			return err
		}
		if err := s.logEvent(ctx, tx, appt.ID, EventCancelled, caller.UserID, nil); err != nil {
			return err
		}

		// A never-collected payment just cancels; a collected one refunds
		// when the policy allows.
		wasPending, err := tx.CancelPendingPayment(ctx, appt.ID)
		if err != nil {
			return err
		}
		if !wasPending && s.refunds.Eligible(appt, s.now()) {
			if err := tx.MarkPaymentRefunded(ctx, appt.ID); err != nil {
				return err
			}
			if err := s.logEvent(ctx, tx, appt.ID, EventRefunded, caller.UserID, nil); err != nil {
				return err
			}
		}

		appt.Status = StatusCancelled
		cancelled = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	return cancelled, nil
}

// Confirm records the payment arriving for a pending booking.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, txnRef string, caller auth.Identity) (*Appointment, error) {
	var confirmed *Appointment

	err := s.repo.InTx(ctx, func(tx Tx) error {
		appt, err := tx.AppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if !caller.Role.ManagesAllBookings() && appt.BookedBy != caller.UserID {
			return ErrForbidden
		}
		if appt.Status != StatusPending {
			return ErrInvalidStatusTransition
		}

		if err := tx.SetAppointmentStatus(ctx, appt.ID, StatusPending, StatusConfirmed); err != nil {
			return err
		}
		if err := tx.MarkPaymentPaid(ctx, appt.ID, txnRef); err != nil {
			return err
		}
		err = s.logEvent(ctx, tx, appt.ID, EventConfirmed, caller.UserID, map[string]any{
			"txn_ref": txnRef,
		})
		if err != nil {
			return err
		}

		appt.Status = StatusConfirmed
		confirmed = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	return confirmed, nil
}

// Complete marks a confirmed appointment as done. Administrative action.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, caller auth.Identity) (*Appointment, error) {
	if !caller.Role.ManagesAllBookings() {
		return nil, ErrForbidden
	}

	var completed *Appointment

	err := s.repo.InTx(ctx, func(tx Tx) error {
		appt, err := tx.AppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if appt.Status != StatusConfirmed {
			return ErrInvalidStatusTransition
		}

		if err := tx.SetAppointmentStatus(ctx, appt.ID, StatusConfirmed, StatusCompleted); err != nil {
			return err
		}
		if err := s.logEvent(ctx, tx, appt.ID, EventCompleted, caller.UserID, nil); err != nil {
			return err
		}

		appt.Status = StatusCompleted
		completed = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	return completed, nil
}

// Get returns a single appointment, scoped to the caller.
func (s *Service) Get(ctx context.Context, id uuid.UUID, caller auth.Identity) (*Appointment, error) {
	appt, err := s.repo.AppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Role.ManagesAllBookings() && appt.BookedBy != caller.UserID {
		return nil, ErrForbidden
	}
	return appt, nil
}

// List is the review read path. Administrators filter across everything;
// agents only ever see their own bookings, whatever filter they send.
func (s *Service) List(ctx context.Context, f ListFilter, caller auth.Identity) ([]Appointment, error) {
	if !caller.Role.ManagesAllBookings() {
		f.BookedBy = caller.UserID
	}

	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	return s.repo.ListAppointments(ctx, f)
}

// ListPayments backs the admin payment-review page.
func (s *Service) ListPayments(ctx context.Context, f PaymentFilter, caller auth.Identity) ([]Payment, error) {
	if !caller.Role.ManagesAllBookings() {
		return nil, ErrForbidden
	}

	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	return s.repo.ListPayments(ctx, f)
}

// Events returns the audit trail for one appointment, scoped like Get.
func (s *Service) Events(ctx context.Context, id uuid.UUID, caller auth.Identity) ([]AppointmentEvent, error) {
	appt, err := s.repo.AppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Role.ManagesAllBookings() && appt.BookedBy != caller.UserID {
		return nil, ErrForbidden
	}
	return s.repo.EventsByAppointment(ctx, id)
}

// ListSlots returns the bookable slots for a doctor's public schedule.
func (s *Service) ListSlots(ctx context.Context, doctorID uuid.UUID) ([]AvailabilitySlot, error) {
	slots, err := s.repo.SlotsByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// ExpireStalePending is called by the worker. It cancels pending bookings
// older than ttl whose payment never arrived, releasing their capacity. Each
// appointment is reclaimed in its own transaction; a booking confirmed
// between the scan and the reclaim is left alone by the status re-check.
func (s *Service) ExpireStalePending(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := s.now().Add(-ttl)

	ids, err := s.repo.FindStalePending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stale pending appointments: %w", err)
	}

	reclaimed := 0
	for _, id := range ids {
		didCancel := false
		err := s.repo.InTx(ctx, func(tx Tx) error {
			appt, err := tx.AppointmentForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if appt.Status != StatusPending {
				return nil
			}
			if err := tx.SetAppointmentStatus(ctx, appt.ID, StatusPending, StatusCancelled); err != nil {
				return err
			}
			if err := tx.Release(ctx, appt.SlotID); err != nil {
				return err
			}
			// The payment was never collected; leave it terminal, not pending.
			if _, err := tx.CancelPendingPayment(ctx, appt.ID); err != nil {
				return err
			}
			err = s.logEvent(ctx, tx, appt.ID, EventExpired, uuid.Nil, map[string]any{
				"reason": "worker",
			})
			if err != nil {
				return err
			}
			didCancel = true
			return nil
		})
		if err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				log.Printf("failed to expire appointment %s: %v", id, err)
			}
			continue
		}
		if didCancel {
			reclaimed++
		}
	}

	return reclaimed, nil
}
