package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema is the one-shot database setup used by cmd/seed. The CHECK on
// availability_slots backs the ledger invariant at the storage layer.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS hospitals (
		id         uuid PRIMARY KEY,
		name       text NOT NULL,
		city       text NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS doctors (
		id               uuid PRIMARY KEY,
		name             text NOT NULL,
		specialty        text NOT NULL,
		hospital_id      uuid NOT NULL REFERENCES hospitals(id),
		consultation_fee bigint NOT NULL DEFAULT 0,
		created_at       timestamptz NOT NULL DEFAULT now(),
		updated_at       timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id            uuid PRIMARY KEY,
		name          text NOT NULL,
		email         text NOT NULL UNIQUE,
		password_hash text NOT NULL,
		role          text NOT NULL CHECK (role IN ('superadmin', 'admin', 'agent')),
		created_at    timestamptz NOT NULL DEFAULT now(),
		updated_at    timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS availability_slots (
		id           uuid PRIMARY KEY,
		doctor_id    uuid NOT NULL REFERENCES doctors(id),
		start_time   timestamptz NOT NULL,
		end_time     timestamptz NOT NULL,
		max_capacity integer NOT NULL CHECK (max_capacity > 0),
		booked_count integer NOT NULL DEFAULT 0,
		active       boolean NOT NULL DEFAULT true,
		created_at   timestamptz NOT NULL DEFAULT now(),
		updated_at   timestamptz NOT NULL DEFAULT now(),
		CHECK (booked_count >= 0 AND booked_count <= max_capacity)
	)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id                  uuid PRIMARY KEY,
		slot_id             uuid NOT NULL REFERENCES availability_slots(id),
		doctor_id           uuid NOT NULL REFERENCES doctors(id),
		booked_by           uuid NOT NULL REFERENCES users(id),
		patient_name        text NOT NULL,
		patient_phone       text NOT NULL,
		patient_national_id text NOT NULL DEFAULT '',
		patient_dob         timestamptz NOT NULL,
		patient_gender      text NOT NULL DEFAULT '',
		patient_age         integer NOT NULL DEFAULT 0,
		doctor_name         text NOT NULL,
		doctor_specialty    text NOT NULL,
		hospital_name       text NOT NULL,
		scheduled_at        timestamptz NOT NULL,
		total_amount        bigint NOT NULL DEFAULT 0,
		refund_eligible     boolean NOT NULL DEFAULT false,
		status              text NOT NULL CHECK (status IN ('pending', 'confirmed', 'cancelled', 'completed')),
		created_at          timestamptz NOT NULL DEFAULT now(),
		updated_at          timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id             uuid PRIMARY KEY,
		appointment_id uuid NOT NULL UNIQUE REFERENCES appointments(id),
		status         text NOT NULL CHECK (status IN ('pending', 'paid', 'refunded', 'cancelled')),
		txn_ref        text NOT NULL DEFAULT '',
		amount         bigint NOT NULL DEFAULT 0,
		created_at     timestamptz NOT NULL DEFAULT now(),
		updated_at     timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS appointment_events (
		id             bigserial PRIMARY KEY,
		appointment_id uuid NOT NULL REFERENCES appointments(id),
		event_type     text NOT NULL,
		actor          uuid NOT NULL,
		payload        jsonb,
		created_at     timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_slots_doctor ON availability_slots (doctor_id, start_time)`,
	`CREATE INDEX IF NOT EXISTS idx_events_appointment ON appointment_events (appointment_id, id)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_booked_by ON appointments (booked_by, scheduled_at)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_status ON appointments (status, created_at)`,
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
