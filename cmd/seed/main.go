package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stillpoint/booking-service/internal/booking"
	"github.com/stillpoint/booking-service/internal/db"
)

// Seeds four weeks of open slots plus a handful of demo bookings so the
// calendar and the admin views have something to show.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	repo := booking.NewPgRepository(pool)

	created, err := seedSlots(context.Background(), repo, 28)
	if err != nil {
		log.Fatalf("seed slots: %v", err)
	}
	log.Printf("seeded %d open slots", len(created))

	if err := seedBookings(context.Background(), pool, created, 12); err != nil {
		log.Fatalf("seed bookings: %v", err)
	}

	log.Println("seed complete")
}

func seedSlots(ctx context.Context, repo *booking.PgRepository, days int) ([]booking.Slot, error) {
	times := []string{"08:00", "09:30", "11:00", "13:00", "14:30", "16:00", "17:30"}

	var specs []booking.SlotSpec
	start := time.Now().AddDate(0, 0, 1)
	for d := 0; d < days; d++ {
		day := start.AddDate(0, 0, d)
		if day.Weekday() == time.Sunday {
			continue
		}
		for _, t := range times {
			// Leave gaps so the calendar looks lived-in
			if gofakeit.Bool() && gofakeit.Bool() {
				continue
			}
			specs = append(specs, booking.SlotSpec{
				Date:      day.Format("2006-01-02"),
				TimeOfDay: t,
			})
		}
	}

	return repo.CreateSlots(ctx, specs)
}

func seedBookings(ctx context.Context, pool *pgxpool.Pool, slots []booking.Slot, count int) error {
	log.Printf("seeding %d demo bookings", count)

	sessionTypes := []string{
		"private yoga",
		"restorative yoga",
		"chocolate tasting",
		"prenatal yoga",
	}

	repo := booking.NewPgRepository(pool)

	booked := 0
	for _, slot := range slots {
		if booked >= count {
			break
		}
		if gofakeit.Bool() {
			continue
		}

		details := booking.BookingDetails{
			UserID:      uuid.New(),
			FirstName:   gofakeit.FirstName(),
			LastName:    gofakeit.LastName(),
			Email:       gofakeit.Email(),
			SessionType: gofakeit.RandomString(sessionTypes),
			Message:     gofakeit.Sentence(8),
		}

		if _, err := repo.ReserveSlot(ctx, slot.ID, details); err != nil {
			return err
		}
		booked++
	}

	log.Printf("seeded %d bookings", booked)
	return nil
}
