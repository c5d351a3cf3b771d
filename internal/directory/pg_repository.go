package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const doctorColumns = `
	d.id, d.name, d.specialty, d.hospital_id, h.name, h.city, d.consultation_fee, d.created_at, d.updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialty,
		&d.HospitalID,
		&d.HospitalName,
		&d.City,
		&d.ConsultationFee,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	return &d, nil
}

func (r *PgRepository) DoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors d
		JOIN hospitals h ON h.id = d.hospital_id
		WHERE d.id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) Search(ctx context.Context, f SearchFilter) ([]Doctor, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) int {
		args = append(args, v)
		return len(args)
	}

	if f.Specialty != "" {
		where = append(where, fmt.Sprintf("d.specialty ILIKE $%d", arg("%"+f.Specialty+"%")))
	}
	if f.City != "" {
		where = append(where, fmt.Sprintf("h.city ILIKE $%d", arg("%"+f.City+"%")))
	}
	if f.Hospital != "" {
		where = append(where, fmt.Sprintf("h.name ILIKE $%d", arg("%"+f.Hospital+"%")))
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

	query := `SELECT ` + doctorColumns + ` FROM doctors d JOIN hospitals h ON h.id = d.hospital_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY d.name LIMIT $%d OFFSET $%d", arg(f.Limit), arg(f.Offset))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	return result, rows.Err()
}
