package booking

import "time"

// RefundPolicy decides at cancellation time whether the payment comes back.
// The booking-time RefundEligible flag is an input to the decision, not the
// whole answer.
type RefundPolicy interface {
	Eligible(appt *Appointment, at time.Time) bool
}

// WindowRefundPolicy refunds eligible bookings cancelled at least Window
// before the slot starts. A zero Window refunds any eligible booking.
type WindowRefundPolicy struct {
	Window time.Duration
}

func (p WindowRefundPolicy) Eligible(appt *Appointment, at time.Time) bool {
	if !appt.RefundEligible {
		return false
	}
	if p.Window <= 0 {
		return true
	}
	return at.Before(appt.ScheduledAt.Add(-p.Window))
}
