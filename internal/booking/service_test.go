package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibook/appointment-portal/internal/auth"
)

var testBase = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func newTestService(store *fakeStore) *Service {
	svc := NewService(store, WindowRefundPolicy{Window: time.Hour})
	svc.now = func() time.Time { return testBase }
	return svc
}

func agentIdentity() auth.Identity {
	return auth.Identity{UserID: uuid.New(), Name: "Test Agent", Role: auth.RoleAgent}
}

func adminIdentity() auth.Identity {
	return auth.Identity{UserID: uuid.New(), Name: "Test Admin", Role: auth.RoleAdmin}
}

// seedDoctorAndSlot registers a doctor with one active slot starting two days
// out, comfortably inside the refund window.
func seedDoctorAndSlot(store *fakeStore, capacity int) (DoctorProfile, AvailabilitySlot) {
	doctor := DoctorProfile{
		ID:              uuid.New(),
		Name:            "Dr. Reyes",
		Specialty:       "Cardiology",
		HospitalName:    "Riverside General Hospital",
		ConsultationFee: 7500,
	}
	store.addDoctor(doctor)

	slot := AvailabilitySlot{
		ID:          uuid.New(),
		DoctorID:    doctor.ID,
		StartTime:   testBase.Add(48 * time.Hour),
		EndTime:     testBase.Add(49 * time.Hour),
		MaxCapacity: capacity,
		Active:      true,
	}
	store.addSlot(slot)

	return doctor, slot
}

func validPatient() PatientDetails {
	return PatientDetails{
		Name:        "Amina Yusuf",
		Phone:       "+15550001111",
		NationalID:  "A1234567",
		DateOfBirth: time.Date(1990, 5, 2, 0, 0, 0, 0, time.UTC),
		Gender:      "female",
		Age:         35,
	}
}

func createInput(doctor DoctorProfile, slot AvailabilitySlot, paymentRef string) CreateAppointmentInput {
	return CreateAppointmentInput{
		DoctorID:       doctor.ID,
		SlotID:         slot.ID,
		Patient:        validPatient(),
		PaymentRef:     paymentRef,
		RefundEligible: true,
	}
}

func TestCreateConfirmedWithUpfrontPayment(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 3)
	agent := agentIdentity()

	appt, err := svc.Create(context.Background(), createInput(doctor, slot, "txn-100"), agent)
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, appt.Status)
	assert.Equal(t, agent.UserID, appt.BookedBy)
	assert.Equal(t, doctor.Name, appt.DoctorName)
	assert.Equal(t, doctor.Specialty, appt.DoctorSpecialty)
	assert.Equal(t, doctor.HospitalName, appt.HospitalName)
	assert.Equal(t, doctor.ConsultationFee, appt.TotalAmount)
	assert.Equal(t, slot.StartTime, appt.ScheduledAt)

	assert.Equal(t, 1, store.slot(slot.ID).BookedCount)

	payment := store.payment(appt.ID)
	assert.Equal(t, PaymentPaid, payment.Status)
	assert.Equal(t, "txn-100", payment.TxnRef)
	assert.Equal(t, doctor.ConsultationFee, payment.Amount)
}

func TestCreatePendingWithoutPayment(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 3)

	appt, err := svc.Create(context.Background(), createInput(doctor, slot, ""), agentIdentity())
	require.NoError(t, err)

	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, PaymentPending, store.payment(appt.ID).Status)
	assert.Equal(t, 1, store.slot(slot.ID).BookedCount)
}

func TestCreateSlotFull(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 1)

	_, err := svc.Create(context.Background(), createInput(doctor, slot, "txn-1"), agentIdentity())
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), createInput(doctor, slot, "txn-2"), agentIdentity())
	require.ErrorIs(t, err, ErrSlotFull)

	assert.Equal(t, 1, store.slot(slot.ID).BookedCount)
}

func TestCreateUnknownDoctor(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	_, slot := seedDoctorAndSlot(store, 1)

	in := CreateAppointmentInput{
		DoctorID: uuid.New(),
		SlotID:   slot.ID,
		Patient:  validPatient(),
	}
	_, err := svc.Create(context.Background(), in, agentIdentity())
	require.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestCreateSlotBelongsToOtherDoctor(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, _ := seedDoctorAndSlot(store, 1)
	_, otherSlot := seedDoctorAndSlot(store, 1)

	in := createInput(doctor, otherSlot, "txn-1")
	_, err := svc.Create(context.Background(), in, agentIdentity())
	require.ErrorIs(t, err, ErrSlotNotFound)
	assert.Equal(t, 0, store.slot(otherSlot.ID).BookedCount)
}

func TestCreateInactiveSlot(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 1)
	slot.Active = false
	store.addSlot(slot)

	_, err := svc.Create(context.Background(), createInput(doctor, slot, "txn-1"), agentIdentity())
	require.ErrorIs(t, err, ErrSlotNotFound)
}

func TestCreateRejectsInvalidPatient(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 1)

	in := createInput(doctor, slot, "txn-1")
	in.Patient.Name = "  "
	_, err := svc.Create(context.Background(), in, agentIdentity())
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, store.slot(slot.ID).BookedCount)
}

func TestCreateRollsBackOnStorageError(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 3)
	store.failInsertPayment = errors.New("connection reset")

	_, err := svc.Create(context.Background(), createInput(doctor, slot, "txn-1"), agentIdentity())
	require.Error(t, err)

	// Nothing from the failed transaction is visible: no reservation, no
	// appointment, no payment.
	assert.Equal(t, 0, store.slot(slot.ID).BookedCount)
	appts, err := store.ListAppointments(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, appts)
}

func TestCancelReleasesCapacityAndRefunds(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 1)
	agent := agentIdentity()

	appt, err := svc.Create(context.Background(), createInput(doctor, slot, "txn-1"), agent)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), appt.ID, agent)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, StatusCancelled, store.appointment(appt.ID).Status)
	assert.Equal(t, 0, store.slot(slot.ID).BookedCount)
	assert.Equal(t, PaymentRefunded, store.payment(appt.ID).Status)
}

func TestCancelUnpaidBookingCancelsPayment(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 1)
	agent := agentIdentity()

	appt, err := svc.Create(context.Background(), createInput(doctor, slot, ""), agent)
	require.NoError(t, err)
	require.Equal(t, PaymentPending, store.payment(appt.ID).Status)

	_, err = svc.Cancel(context.Background(), appt.ID, agent)
	require.NoError(t, err)

	// Nothing was ever collected, so the payment terminates as cancelled
	// rather than refunded.
	assert.Equal(t, PaymentCancelled, store.payment(appt.ID).Status)
	assert.Equal(t, 0, store.slot(slot.ID).BookedCount)
}

func TestAuditTrailFollowsLifecycle(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 1)
	agent := agentIdentity()

	appt, err := svc.Create(context.Background(), createInput(doctor, slot, "txn-1"), agent)
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventBooked, EventConfirmed}, store.eventTypes(appt.ID))

	_, err = svc.Cancel(context.Background(), appt.ID, agent)
	require.NoError(t, err)
	assert.Equal(t,
		[]EventType{EventBooked, EventConfirmed, EventCancelled, EventRefunded},
		store.eventTypes(appt.ID))

	events, err := svc.Events(context.Background(), appt.ID, agent)
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, agent.UserID, events[0].Actor)

	// Scoped like Get: another agent's trail is off limits.
	_, err = svc.Events(context.Background(), appt.ID, agentIdentity())
	require.ErrorIs(t, err, ErrForbidden)
}

func TestAuditTrailSurvivesFailedCancel(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 1)
	agent := agentIdentity()

	appt, err := svc.Create(context.Background(), createInput(doctor, slot, "txn-1"), agent)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), appt.ID, agentIdentity())
	require.ErrorIs(t, err, ErrForbidden)

	// The rejected cancel left no trace in the trail.
	assert.Equal(t, []EventType{EventBooked, EventConfirmed}, store.eventTypes(appt.ID))
}

func TestCancelTwiceReleasesOnce(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 2)
	agent := agentIdentity()

	appt, err := svc.Create(context.Background(), createInput(doctor, slot, "txn-1"), agent)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), appt.ID, agent)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), appt.ID, agent)
	require.ErrorIs(t, err, ErrAlreadyCancelled)

	// Net release is exactly one.
	assert.Equal(t, 0, store.slot(slot.ID).BookedCount)
}

func TestConcurrentCancelsReleaseOnce(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 2)
	agent := agentIdentity()

	appt, err := svc.Create(context.Background(), createInput(doctor, slot, "txn-1"), agent)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Cancel(context.Background(), appt.ID, agent)
		}(i)
	}
	wg.Wait()

	// The cancels serialize on the appointment row: exactly one wins, the
	// loser observes the terminal state.
	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrAlreadyCancelled):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)
	assert.Equal(t, 0, store.slot(slot.ID).BookedCount)
	assert.Equal(t, PaymentRefunded, store.payment(appt.ID).Status)
}

func TestCancelForbiddenForForeignBooking(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 1)
	owner := agentIdentity()

	appt, err := svc.Create(context.Background(), createInput(doctor, slot, "txn-1"), owner)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), appt.ID, agentIdentity())
	require.ErrorIs(t, err, ErrForbidden)

	// No state change.
	assert.Equal(t, StatusConfirmed, store.appointment(appt.ID).Status)
	assert.Equal(t, 1, store.slot(slot.ID).BookedCount)
	assert.Equal(t, PaymentPaid, store.payment(appt.ID).Status)
}

func TestAdminCanCancelAnyBooking(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 1)

	appt, err := svc.Create(context.Background(), createInput(doctor, slot, "txn-1"), agentIdentity())
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), appt.ID, adminIdentity())
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, store.appointment(appt.ID).Status)
}

func TestCancelCompletedAppointment(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 1)
	agent := agentIdentity()
	admin := adminIdentity()

	appt, err := svc.Create(context.Background(), createInput(doctor, slot, "txn-1"), agent)
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), appt.ID, admin)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), appt.ID, agent)
	require.ErrorIs(t, err, ErrNotCancellable)
	assert.Equal(t, 1, store.slot(slot.ID).BookedCount)
}

func TestCancelUnknownAppointment(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	seedDoctorAndSlot(store, 1)

	_, err := svc.Cancel(context.Background(), uuid.New(), agentIdentity())
	require.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestCancelOutsideRefundWindowKeepsPayment(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 1)
	agent := agentIdentity()

	// Slot starts in 30 minutes; the policy wants an hour of lead time.
	slot.StartTime = testBase.Add(30 * time.Minute)
	store.addSlot(slot)

	appt, err := svc.Create(context.Background(), createInput(doctor, slot, "txn-1"), agent)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), appt.ID, agent)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, 0, store.slot(slot.ID).BookedCount)
	assert.Equal(t, PaymentPaid, store.payment(appt.ID).Status)
}

func TestCancelIneligibleBookingKeepsPayment(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 1)
	agent := agentIdentity()

	in := createInput(doctor, slot, "txn-1")
	in.RefundEligible = false
	appt, err := svc.Create(context.Background(), in, agent)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), appt.ID, agent)
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, store.payment(appt.ID).Status)
}

// The capacity-1 walkthrough: book, reject the rival, cancel, rebook.
func TestCapacityOneLifecycle(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 1)
	agent := agentIdentity()

	apptA, err := svc.Create(context.Background(), createInput(doctor, slot, "txn-a"), agent)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, apptA.Status)
	assert.Equal(t, 1, store.slot(slot.ID).BookedCount)

	_, err = svc.Create(context.Background(), createInput(doctor, slot, "txn-b"), agent)
	require.ErrorIs(t, err, ErrSlotFull)

	_, err = svc.Cancel(context.Background(), apptA.ID, agent)
	require.NoError(t, err)
	assert.Equal(t, 0, store.slot(slot.ID).BookedCount)
	assert.Equal(t, StatusCancelled, store.appointment(apptA.ID).Status)
	assert.Equal(t, PaymentRefunded, store.payment(apptA.ID).Status)

	apptB, err := svc.Create(context.Background(), createInput(doctor, slot, "txn-b"), agent)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, apptB.Status)
	assert.Equal(t, 1, store.slot(slot.ID).BookedCount)
}

func TestCreateThenCancelRoundTrip(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 5)
	agent := agentIdentity()

	slot.BookedCount = 2
	store.addSlot(slot)

	appt, err := svc.Create(context.Background(), createInput(doctor, slot, "txn-1"), agent)
	require.NoError(t, err)
	assert.Equal(t, 3, store.slot(slot.ID).BookedCount)

	_, err = svc.Cancel(context.Background(), appt.ID, agent)
	require.NoError(t, err)
	assert.Equal(t, 2, store.slot(slot.ID).BookedCount)
}

func TestConcurrentCreatesRespectCapacity(t *testing.T) {
	const capacity = 3
	const attempts = 8

	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, capacity)

	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), createInput(doctor, slot, "txn-c"), agentIdentity())
		}(i)
	}
	wg.Wait()

	var succeeded, full int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrSlotFull):
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, capacity, succeeded)
	assert.Equal(t, attempts-capacity, full)

	got := store.slot(slot.ID)
	assert.Equal(t, capacity, got.BookedCount)
	assert.LessOrEqual(t, got.BookedCount, got.MaxCapacity)
}

func TestConfirmPendingMarksPaymentPaid(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 1)
	agent := agentIdentity()

	appt, err := svc.Create(context.Background(), createInput(doctor, slot, ""), agent)
	require.NoError(t, err)
	require.Equal(t, StatusPending, appt.Status)

	confirmed, err := svc.Confirm(context.Background(), appt.ID, "txn-late", agent)
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, confirmed.Status)
	payment := store.payment(appt.ID)
	assert.Equal(t, PaymentPaid, payment.Status)
	assert.Equal(t, "txn-late", payment.TxnRef)
}

func TestConfirmNonPendingAppointment(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 1)
	agent := agentIdentity()

	appt, err := svc.Create(context.Background(), createInput(doctor, slot, "txn-1"), agent)
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), appt.ID, "txn-2", agent)
	require.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestCompleteRequiresAdmin(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 1)
	agent := agentIdentity()

	appt, err := svc.Create(context.Background(), createInput(doctor, slot, "txn-1"), agent)
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), appt.ID, agent)
	require.ErrorIs(t, err, ErrForbidden)

	completed, err := svc.Complete(context.Background(), appt.ID, adminIdentity())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)
}

func TestListScopedToCaller(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 4)
	agentA := agentIdentity()
	agentB := agentIdentity()

	_, err := svc.Create(context.Background(), createInput(doctor, slot, "txn-a"), agentA)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), createInput(doctor, slot, "txn-b"), agentB)
	require.NoError(t, err)

	// Agent A asking for agent B's bookings still only sees their own.
	appts, err := svc.List(context.Background(), ListFilter{BookedBy: agentB.UserID}, agentA)
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, agentA.UserID, appts[0].BookedBy)

	// Admins see everything.
	appts, err = svc.List(context.Background(), ListFilter{}, adminIdentity())
	require.NoError(t, err)
	assert.Len(t, appts, 2)
}

func TestListPaymentsAdminOnly(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 1)

	_, err := svc.Create(context.Background(), createInput(doctor, slot, "txn-1"), agentIdentity())
	require.NoError(t, err)

	_, err = svc.ListPayments(context.Background(), PaymentFilter{}, agentIdentity())
	require.ErrorIs(t, err, ErrForbidden)

	payments, err := svc.ListPayments(context.Background(), PaymentFilter{Status: PaymentPaid}, adminIdentity())
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestExpireStalePendingReclaimsCapacity(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doctor, slot := seedDoctorAndSlot(store, 4)
	agent := agentIdentity()

	// Booked two hours ago, never paid.
	svc.now = func() time.Time { return testBase.Add(-2 * time.Hour) }
	stale, err := svc.Create(context.Background(), createInput(doctor, slot, ""), agent)
	require.NoError(t, err)

	// Booked just now, also unpaid, but still within the TTL.
	svc.now = func() time.Time { return testBase }
	fresh, err := svc.Create(context.Background(), createInput(doctor, slot, ""), agent)
	require.NoError(t, err)

	reclaimed, err := svc.ExpireStalePending(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	assert.Equal(t, StatusCancelled, store.appointment(stale.ID).Status)
	assert.Equal(t, StatusPending, store.appointment(fresh.ID).Status)
	assert.Equal(t, 1, store.slot(slot.ID).BookedCount)

	// The uncollected payment terminates with the booking instead of lingering
	// as pending, and the reclaim lands in the trail with no actor.
	assert.Equal(t, PaymentCancelled, store.payment(stale.ID).Status)
	assert.Equal(t, PaymentPending, store.payment(fresh.ID).Status)
	assert.Equal(t, []EventType{EventBooked, EventExpired}, store.eventTypes(stale.ID))

	events, err := store.EventsByAppointment(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, events[1].Actor)
}
