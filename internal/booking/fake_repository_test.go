package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fakeStore is an in-memory Repository with real transaction semantics: each
// InTx runs against a shadow copy under a store-wide lock and only publishes
// on success, so rollback and contention behavior match the pg implementation
// closely enough for service-level tests.
type fakeStore struct {
	mu           sync.Mutex
	doctors      map[uuid.UUID]DoctorProfile
	slots        map[uuid.UUID]AvailabilitySlot
	appointments map[uuid.UUID]Appointment
	payments     map[uuid.UUID]Payment            // keyed by appointment id
	events       map[uuid.UUID][]AppointmentEvent // keyed by appointment id
	nextEventID  int64

	failInsertPayment error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		doctors:      make(map[uuid.UUID]DoctorProfile),
		slots:        make(map[uuid.UUID]AvailabilitySlot),
		appointments: make(map[uuid.UUID]Appointment),
		payments:     make(map[uuid.UUID]Payment),
		events:       make(map[uuid.UUID][]AppointmentEvent),
	}
}

func (s *fakeStore) addDoctor(d DoctorProfile) {
	s.doctors[d.ID] = d
}

func (s *fakeStore) addSlot(slot AvailabilitySlot) {
	s.slots[slot.ID] = slot
}

func (s *fakeStore) slot(id uuid.UUID) AvailabilitySlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[id]
}

func (s *fakeStore) payment(appointmentID uuid.UUID) Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payments[appointmentID]
}

func (s *fakeStore) appointment(id uuid.UUID) Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appointments[id]
}

func (s *fakeStore) eventTypes(appointmentID uuid.UUID) []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	var types []EventType
	for _, e := range s.events[appointmentID] {
		types = append(types, e.EventType)
	}
	return types
}

type fakeTx struct {
	store        *fakeStore
	slots        map[uuid.UUID]AvailabilitySlot
	appointments map[uuid.UUID]Appointment
	payments     map[uuid.UUID]Payment
	events       map[uuid.UUID][]AppointmentEvent
	nextEventID  int64
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *fakeStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &fakeTx{
		store:        s,
		slots:        cloneMap(s.slots),
		appointments: cloneMap(s.appointments),
		payments:     cloneMap(s.payments),
		events:       cloneMap(s.events),
		nextEventID:  s.nextEventID,
	}

	if err := fn(tx); err != nil {
		return err
	}

	s.slots = tx.slots
	s.appointments = tx.appointments
	s.payments = tx.payments
	s.events = tx.events
	s.nextEventID = tx.nextEventID
	return nil
}

// Tx methods

func (t *fakeTx) Reserve(ctx context.Context, slotID uuid.UUID) error {
	slot, ok := t.slots[slotID]
	if !ok || !slot.Active {
		return ErrSlotNotFound
	}
	if slot.BookedCount >= slot.MaxCapacity {
		return ErrSlotFull
	}
	slot.BookedCount++
	t.slots[slotID] = slot
	return nil
}

func (t *fakeTx) Release(ctx context.Context, slotID uuid.UUID) error {
	slot, ok := t.slots[slotID]
	if !ok {
		return ErrSlotNotFound
	}
	if slot.BookedCount > 0 {
		slot.BookedCount--
	}
	t.slots[slotID] = slot
	return nil
}

func (t *fakeTx) DoctorByID(ctx context.Context, id uuid.UUID) (*DoctorProfile, error) {
	d, ok := t.store.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (t *fakeTx) SlotForDoctor(ctx context.Context, slotID, doctorID uuid.UUID) (*AvailabilitySlot, error) {
	slot, ok := t.slots[slotID]
	if !ok || slot.DoctorID != doctorID {
		return nil, ErrSlotNotFound
	}
	return &slot, nil
}

func (t *fakeTx) InsertAppointment(ctx context.Context, a *Appointment) error {
	t.appointments[a.ID] = *a
	return nil
}

func (t *fakeTx) AppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := t.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (t *fakeTx) SetAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) error {
	a, ok := t.appointments[id]
	if !ok || a.Status != from {
		return ErrAppointmentNotFound
	}
	a.Status = to
	t.appointments[id] = a
	return nil
}

func (t *fakeTx) InsertPayment(ctx context.Context, p *Payment) error {
	if t.store.failInsertPayment != nil {
		return t.store.failInsertPayment
	}
	t.payments[p.AppointmentID] = *p
	return nil
}

func (t *fakeTx) MarkPaymentPaid(ctx context.Context, appointmentID uuid.UUID, txnRef string) error {
	p, ok := t.payments[appointmentID]
	if !ok {
		return ErrPaymentNotFound
	}
	p.Status = PaymentPaid
	p.TxnRef = txnRef
	t.payments[appointmentID] = p
	return nil
}

func (t *fakeTx) MarkPaymentRefunded(ctx context.Context, appointmentID uuid.UUID) error {
	p, ok := t.payments[appointmentID]
	if !ok {
		return ErrPaymentNotFound
	}
	p.Status = PaymentRefunded
	t.payments[appointmentID] = p
	return nil
}

func (t *fakeTx) CancelPendingPayment(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	p, ok := t.payments[appointmentID]
	if !ok || p.Status != PaymentPending {
		return false, nil
	}
	p.Status = PaymentCancelled
	t.payments[appointmentID] = p
	return true, nil
}

func (t *fakeTx) InsertEvent(ctx context.Context, e *AppointmentEvent) error {
	t.nextEventID++
	stored := *e
	stored.ID = t.nextEventID

	trail := make([]AppointmentEvent, len(t.events[e.AppointmentID]), len(t.events[e.AppointmentID])+1)
	copy(trail, t.events[e.AppointmentID])
	t.events[e.AppointmentID] = append(trail, stored)
	return nil
}

// Pool reads

func (s *fakeStore) AppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (s *fakeStore) PaymentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[appointmentID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return &p, nil
}

func (s *fakeStore) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []Appointment
	for _, a := range s.appointments {
		if f.BookedBy != uuid.Nil && a.BookedBy != f.BookedBy {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Hospital != "" && a.HospitalName != f.Hospital {
			continue
		}
		result = append(result, a)
	}
	return result, nil
}

func (s *fakeStore) ListPayments(ctx context.Context, f PaymentFilter) ([]Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []Payment
	for _, p := range s.payments {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		result = append(result, p)
	}
	return result, nil
}

func (s *fakeStore) SlotsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]AvailabilitySlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []AvailabilitySlot
	for _, slot := range s.slots {
		if slot.DoctorID == doctorID && slot.Active {
			result = append(result, slot)
		}
	}
	return result, nil
}

func (s *fakeStore) EventsByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]AppointmentEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[appointmentID], nil
}

func (s *fakeStore) FindStalePending(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uuid.UUID
	for id, a := range s.appointments {
		if a.Status != StatusPending || !a.CreatedAt.Before(cutoff) {
			continue
		}
		if p, ok := s.payments[id]; ok && p.Status == PaymentPending {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
