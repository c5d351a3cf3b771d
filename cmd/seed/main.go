package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/medibook/appointment-portal/internal/db"
)

// One-shot database setup: schema plus demo hospitals, doctors, slots, and
// portal accounts. Safe to re-run; accounts upsert on email.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	password := os.Getenv("SEED_PASSWORD")
	if password == "" {
		password = "changeme"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.EnsureSchema(context.Background(), pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}
	log.Println("schema ready")

	gofakeit.Seed(time.Now().UnixNano())

	hospitals, err := seedHospitals(context.Background(), pool, 10)
	if err != nil {
		log.Fatalf("seed hospitals: %v", err)
	}
	doctors, err := seedDoctors(context.Background(), pool, hospitals, 120)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedSlots(context.Background(), pool, doctors); err != nil {
		log.Fatalf("seed slots: %v", err)
	}
	if err := seedAccounts(context.Background(), pool, password, 40); err != nil {
		log.Fatalf("seed accounts: %v", err)
	}

	log.Println("seed complete")
}

func seedHospitals(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d hospitals", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.LastName() + " " + gofakeit.RandomString([]string{"General Hospital", "Medical Center", "Clinic", "Specialty Hospital"})

		_, err := tx.Exec(ctx, `
			INSERT INTO hospitals (id, name, city, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, gofakeit.City())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("hospitals seeded")
	return ids, nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, hospitals []uuid.UUID, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		hospital := hospitals[gofakeit.Number(0, len(hospitals)-1)]
		// Fee in cents, 20 to 150 currency units
		fee := int64(gofakeit.Number(20, 150)) * 100

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, hospital_id, consultation_fee, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, id, name, spec, hospital, fee)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return ids, nil
}

// seedSlots gives every doctor two weeks of hourly morning slots.
func seedSlots(ctx context.Context, pool *pgxpool.Pool, doctors []uuid.UUID) error {
	log.Printf("seeding slots for %d doctors", len(doctors))

	const batchSize = 20

	for offset := 0; offset < len(doctors); offset += batchSize {
		end := offset + batchSize
		if end > len(doctors) {
			end = len(doctors)
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for _, doctorID := range doctors[offset:end] {
			for day := 1; day <= 14; day++ {
				base := time.Now().AddDate(0, 0, day).Truncate(24 * time.Hour)
				for hour := 9; hour < 13; hour++ {
					start := base.Add(time.Duration(hour) * time.Hour)
					capacity := gofakeit.Number(1, 4)

					_, err := tx.Exec(ctx, `
						INSERT INTO availability_slots
							(id, doctor_id, start_time, end_time, max_capacity, booked_count, active, created_at, updated_at)
						VALUES ($1, $2, $3, $4, $5, 0, true, now(), now())
					`, uuid.New(), doctorID, start, start.Add(time.Hour), capacity)
					if err != nil {
						_ = tx.Rollback(ctx)
						return err
					}
				}
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("slots seeded: %d/%d doctors", end, len(doctors))
	}

	log.Println("slots seeded")
	return nil
}

func seedAccounts(ctx context.Context, pool *pgxpool.Pool, password string, agents int) error {
	log.Printf("seeding %d agents plus admin accounts", agents)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	upsert := func(id uuid.UUID, name, email, role string) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, name, email, password_hash, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
			ON CONFLICT (email) DO UPDATE
			SET password_hash = EXCLUDED.password_hash,
			    updated_at = now()
		`, id, name, email, string(hash), role)
		return err
	}

	if err := upsert(uuid.New(), "Portal Superadmin", "superadmin@portal.local", "superadmin"); err != nil {
		return err
	}
	if err := upsert(uuid.New(), "Portal Admin", "admin@portal.local", "admin"); err != nil {
		return err
	}

	for i := 0; i < agents; i++ {
		name := gofakeit.Name()
		email := gofakeit.Email()
		if err := upsert(uuid.New(), name, email, "agent"); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("accounts seeded")
	return nil
}
