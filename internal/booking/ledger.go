package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Ledger is the capacity accounting over availability slots. Both operations
// must run inside the same transaction as the appointment write they pair
// with; the Tx interface embeds it for exactly that reason.
type Ledger interface {
	// Reserve takes one unit of capacity. The capacity check and the
	// increment are a single conditional statement, never a read followed by
	// a write, so two concurrent reservations cannot both win the last unit.
	Reserve(ctx context.Context, slotID uuid.UUID) error
	// Release returns one unit of capacity, floored at zero. At-most-once
	// invocation per appointment is the caller's responsibility, gated on
	// the appointment status compare-and-set.
	Release(ctx context.Context, slotID uuid.UUID) error
}

func (t *pgTx) Reserve(ctx context.Context, slotID uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE availability_slots
		SET booked_count = booked_count + 1,
		    updated_at = now()
		WHERE id = $1
		  AND active
		  AND booked_count < max_capacity
	`, slotID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Zero rows affected: the slot is either absent/inactive or full at the
	// instant of the update, regardless of what an earlier read observed.
	var active bool
	err = t.tx.QueryRow(ctx, `
		SELECT active FROM availability_slots WHERE id = $1
	`, slotID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrSlotNotFound
	}
	if err != nil {
		return err
	}
	if !active {
		return ErrSlotNotFound
	}
	return ErrSlotFull
}

func (t *pgTx) Release(ctx context.Context, slotID uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE availability_slots
		SET booked_count = GREATEST(booked_count - 1, 0),
		    updated_at = now()
		WHERE id = $1
	`, slotID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}
