package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrDoctorNotFound = errors.New("doctor not found")

// SearchFilter narrows the doctor search page. Zero values mean "any".
type SearchFilter struct {
	Specialty string
	City      string
	Hospital  string
	Limit     int
	Offset    int
}

// Repository is the read-only doctor/hospital directory.
type Repository interface {
	DoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	Search(ctx context.Context, f SearchFilter) ([]Doctor, error)
}
