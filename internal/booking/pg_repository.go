package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const appointmentColumns = `
	id, slot_id, doctor_id, booked_by,
	patient_name, patient_phone, patient_national_id, patient_dob, patient_gender, patient_age,
	doctor_name, doctor_specialty, hospital_name,
	scheduled_at, total_amount, refund_eligible, status, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// pgTx is the transaction-scoped repository view handed to InTx callbacks.
// Its ledger methods live in ledger.go.
type pgTx struct {
	tx pgx.Tx
}

func (r *PgRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

// Scan helpers

func scanSlot(row pgx.Row) (*AvailabilitySlot, error) {
	var s AvailabilitySlot

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.StartTime,
		&s.EndTime,
		&s.MaxCapacity,
		&s.BookedCount,
		&s.Active,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.SlotID,
		&a.DoctorID,
		&a.BookedBy,
		&a.Patient.Name,
		&a.Patient.Phone,
		&a.Patient.NationalID,
		&a.Patient.DateOfBirth,
		&a.Patient.Gender,
		&a.Patient.Age,
		&a.DoctorName,
		&a.DoctorSpecialty,
		&a.HospitalName,
		&a.ScheduledAt,
		&a.TotalAmount,
		&a.RefundEligible,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment

	err := row.Scan(
		&p.ID,
		&p.AppointmentID,
		&p.Status,
		&p.TxnRef,
		&p.Amount,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	return &p, nil
}

// Tx methods

func (t *pgTx) DoctorByID(ctx context.Context, id uuid.UUID) (*DoctorProfile, error) {
	var d DoctorProfile

	err := t.tx.QueryRow(ctx, `
		SELECT d.id, d.name, d.specialty, h.name, d.consultation_fee
		FROM doctors d
		JOIN hospitals h ON h.id = d.hospital_id
		WHERE d.id = $1
	`, id).Scan(&d.ID, &d.Name, &d.Specialty, &d.HospitalName, &d.ConsultationFee)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	return &d, nil
}

func (t *pgTx) SlotForDoctor(ctx context.Context, slotID, doctorID uuid.UUID) (*AvailabilitySlot, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, doctor_id, start_time, end_time, max_capacity, booked_count, active, created_at, updated_at
		FROM availability_slots
		WHERE id = $1 AND doctor_id = $2
	`, slotID, doctorID)
	return scanSlot(row)
}

func (t *pgTx) InsertAppointment(ctx context.Context, a *Appointment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`,
		a.ID, a.SlotID, a.DoctorID, a.BookedBy,
		a.Patient.Name, a.Patient.Phone, a.Patient.NationalID, a.Patient.DateOfBirth, a.Patient.Gender, a.Patient.Age,
		a.DoctorName, a.DoctorSpecialty, a.HospitalName,
		a.ScheduledAt, a.TotalAmount, a.RefundEligible, a.Status, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (t *pgTx) AppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

func (t *pgTx) SetAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
	`, id, to, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (t *pgTx) InsertPayment(ctx context.Context, p *Payment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payments (id, appointment_id, status, txn_ref, amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.AppointmentID, p.Status, p.TxnRef, p.Amount, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (t *pgTx) MarkPaymentPaid(ctx context.Context, appointmentID uuid.UUID, txnRef string) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE payments
		SET status = 'paid',
		    txn_ref = $2,
		    updated_at = now()
		WHERE appointment_id = $1
	`, appointmentID, txnRef)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (t *pgTx) MarkPaymentRefunded(ctx context.Context, appointmentID uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE payments
		SET status = 'refunded',
		    updated_at = now()
		WHERE appointment_id = $1
	`, appointmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (t *pgTx) CancelPendingPayment(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE payments
		SET status = 'cancelled',
		    updated_at = now()
		WHERE appointment_id = $1
		  AND status = 'pending'
	`, appointmentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) InsertEvent(ctx context.Context, e *AppointmentEvent) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointment_events (appointment_id, event_type, actor, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, e.AppointmentID, e.EventType, e.Actor, e.Payload, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Pool reads

func (r *PgRepository) AppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) PaymentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, appointment_id, status, txn_ref, amount, created_at, updated_at
		FROM payments
		WHERE appointment_id = $1
	`, appointmentID)
	return scanPayment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) int {
		args = append(args, v)
		return len(args)
	}

	if f.Search != "" {
		n := arg("%" + f.Search + "%")
		where = append(where, fmt.Sprintf(
			"(patient_name ILIKE $%d OR patient_phone ILIKE $%d OR doctor_name ILIKE $%d)", n, n, n))
	}
	if f.BookedBy != uuid.Nil {
		where = append(where, fmt.Sprintf("booked_by = $%d", arg(f.BookedBy)))
	}
	if f.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", arg(f.Status)))
	}
	if f.Hospital != "" {
		where = append(where, fmt.Sprintf("hospital_name ILIKE $%d", arg("%"+f.Hospital+"%")))
	}
	if f.Date != nil {
		where = append(where, fmt.Sprintf("scheduled_at::date = $%d::date", arg(*f.Date)))
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY scheduled_at DESC LIMIT $%d OFFSET $%d", arg(f.Limit), arg(f.Offset))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	return result, rows.Err()
}

func (r *PgRepository) ListPayments(ctx context.Context, f PaymentFilter) ([]Payment, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) int {
		args = append(args, v)
		return len(args)
	}

	if f.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", arg(f.Status)))
	}

	query := `SELECT id, appointment_id, status, txn_ref, amount, created_at, updated_at FROM payments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", arg(f.Limit), arg(f.Offset))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	return result, rows.Err()
}

func (r *PgRepository) SlotsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]AvailabilitySlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, start_time, end_time, max_capacity, booked_count, active, created_at, updated_at
		FROM availability_slots
		WHERE doctor_id = $1
		  AND active
		  AND start_time > now()
		ORDER BY start_time
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilitySlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	return result, rows.Err()
}

func (r *PgRepository) EventsByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]AppointmentEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, event_type, actor, payload, created_at
		FROM appointment_events
		WHERE appointment_id = $1
		ORDER BY id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AppointmentEvent
	for rows.Next() {
		var e AppointmentEvent
		if err := rows.Scan(&e.ID, &e.AppointmentID, &e.EventType, &e.Actor, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}

	return result, rows.Err()
}

func (r *PgRepository) FindStalePending(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id
		FROM appointments a
		JOIN payments p ON p.appointment_id = a.id
		WHERE a.status = 'pending'
		  AND p.status = 'pending'
		  AND a.created_at < $1
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
