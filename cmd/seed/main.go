// Command seed loads demo doctors, schedules, and patients for local
// development and load drills.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/lanternhealth/clinic-concierge/internal/patients"
	"github.com/lanternhealth/clinic-concierge/internal/scheduling"
)

var departments = []string{
	"Cardiology",
	"Dermatology",
	"General Medicine",
	"Neurology",
	"Orthopedics",
	"Pediatrics",
	"Ophthalmology",
	"ENT",
}

var titles = []string{"Attending Physician", "Chief Physician", "Resident Physician"}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	_ = godotenv.Load()

	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping postgres: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	ledger := scheduling.NewPgLedger(pool)
	patientRepo := patients.NewPostgresRepository(pool)

	doctors, err := seedDoctors(ctx, ledger, 12)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedSchedules(ctx, ledger, doctors, 14); err != nil {
		log.Fatalf("seed schedules: %v", err)
	}
	if err := seedPatients(ctx, patientRepo, 50); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, ledger *scheduling.PgLedger, count int) ([]scheduling.Doctor, error) {
	log.Printf("seeding %d doctors", count)

	doctors := make([]scheduling.Doctor, 0, count)
	for i := 0; i < count; i++ {
		d, err := ledger.CreateDoctor(ctx, scheduling.Doctor{
			Name:       gofakeit.Name(),
			Department: departments[gofakeit.Number(0, len(departments)-1)],
			Title:      titles[gofakeit.Number(0, len(titles)-1)],
		})
		if err != nil {
			return nil, err
		}
		doctors = append(doctors, *d)
	}
	return doctors, nil
}

func seedSchedules(ctx context.Context, ledger *scheduling.PgLedger, doctors []scheduling.Doctor, days int) error {
	log.Printf("seeding schedules for %d doctors over %d days", len(doctors), days)

	bands := []scheduling.TimeBand{
		scheduling.TimeBandMorning,
		scheduling.TimeBandAfternoon,
		scheduling.TimeBandEvening,
	}

	today := scheduling.DateOnly(time.Now())
	created := 0
	for _, doc := range doctors {
		for day := 0; day < days; day++ {
			for _, band := range bands {
				// Sparse coverage so broadened searches have something to do.
				if gofakeit.Number(0, 2) == 0 {
					continue
				}
				total := gofakeit.Number(3, 10)
				_, err := ledger.CreateSchedule(ctx, scheduling.Schedule{
					DoctorID:       doc.ID,
					Date:           today.AddDate(0, 0, day),
					TimeBand:       band,
					TotalSlots:     total,
					AvailableSlots: total,
				})
				if err != nil {
					return err
				}
				created++
			}
		}
	}
	log.Printf("%d schedules seeded", created)
	return nil
}

func seedPatients(ctx context.Context, repo *patients.PostgresRepository, count int) error {
	log.Printf("seeding %d patients", count)

	for i := 0; i < count; i++ {
		dob := gofakeit.DateRange(
			time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2015, 12, 31, 0, 0, 0, 0, time.UTC),
		)
		_, err := repo.Create(ctx, &patients.CreatePatientRequest{
			Name:        gofakeit.Name(),
			Gender:      gofakeit.Gender(),
			DateOfBirth: &dob,
			Phone:       gofakeit.Phone(),
			IDCard:      fmt.Sprintf("%d", gofakeit.Number(100000000, 999999999)),
			Address:     gofakeit.Address().Address,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
