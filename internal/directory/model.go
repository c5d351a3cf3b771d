package directory

import (
	"time"

	"github.com/google/uuid"
)

// Hospital and Doctor are immutable reference data as far as the booking
// flow is concerned; only administrative tooling edits them.

type Hospital struct {
	ID        uuid.UUID
	Name      string
	City      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID              uuid.UUID
	Name            string
	Specialty       string
	HospitalID      uuid.UUID
	HospitalName    string
	City            string
	ConsultationFee int64 // smallest currency unit
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
