package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const slotColumns = `id, date, time_of_day, is_booked,
	user_id, first_name, last_name, email, session_type, message,
	status, title, duration_minutes, location, link,
	created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanSlot(row pgx.Row, notFound error) (*Slot, error) {
	var s Slot
	var status *string

	err := row.Scan(
		&s.ID,
		&s.Date,
		&s.TimeOfDay,
		&s.IsBooked,
		&s.UserID,
		&s.FirstName,
		&s.LastName,
		&s.Email,
		&s.SessionType,
		&s.Message,
		&status,
		&s.Title,
		&s.DurationMinutes,
		&s.Location,
		&s.Link,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		return nil, err
	}

	if status != nil {
		st := BookingStatus(*status)
		s.Status = &st
	}
	return &s, nil
}

func collectSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows, ErrSlotNotFound)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) CreateSlots(ctx context.Context, specs []SlotSpec) ([]Slot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create slots: %w", err)
	}
	defer tx.Rollback(ctx)

	created := make([]Slot, 0, len(specs))
	for _, spec := range specs {
		row := tx.QueryRow(ctx, `
			INSERT INTO slots (id, date, time_of_day, is_booked, created_at, updated_at)
			VALUES ($1, $2, $3, FALSE, now(), now())
			RETURNING `+slotColumns+`
		`, uuid.New(), spec.Date, spec.TimeOfDay)

		s, err := scanSlot(row, ErrSlotNotFound)
		if err != nil {
			return nil, fmt.Errorf("insert slot %s %s: %w", spec.Date, spec.TimeOfDay, err)
		}
		created = append(created, *s)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create slots: %w", err)
	}

	return created, nil
}

func (r *PgRepository) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row, ErrSlotNotFound)
}

func (r *PgRepository) ListAvailable(ctx context.Context) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE is_booked = FALSE
		ORDER BY date, time_of_day
	`)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (r *PgRepository) ListBooked(ctx context.Context, filter BookedFilter) ([]Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE is_booked = TRUE`
	args := []any{}

	switch {
	case filter.UserID != nil:
		query += ` AND user_id = $1`
		args = append(args, *filter.UserID)
	case filter.Email != "":
		// Emails were stored with inconsistent casing
		query += ` AND LOWER(email) = LOWER($1)`
		args = append(args, filter.Email)
	}

	query += ` ORDER BY date, time_of_day`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

// ReserveSlot books the slot only when it is still available. The WHERE
// clause makes the check-and-set a single atomic statement, so two
// concurrent reservations of the same slot cannot both succeed.
func (r *PgRepository) ReserveSlot(ctx context.Context, id uuid.UUID, d BookingDetails) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET is_booked    = TRUE,
		    user_id      = $2,
		    first_name   = $3,
		    last_name    = $4,
		    email        = $5,
		    session_type = NULLIF($6, ''),
		    message      = NULLIF($7, ''),
		    status       = 'scheduled',
		    updated_at   = now()
		WHERE id = $1
		  AND is_booked = FALSE
		RETURNING `+slotColumns+`
	`, id, d.UserID, d.FirstName, d.LastName, d.Email, d.SessionType, d.Message)

	slot, err := scanSlot(row, ErrSlotNotFound)
	if err == nil {
		return slot, nil
	}
	if !errors.Is(err, ErrSlotNotFound) {
		return nil, fmt.Errorf("reserve slot: %w", err)
	}

	// Zero rows updated: distinguish a missing slot from a lost race.
	existing, getErr := r.GetSlotByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if existing.IsBooked {
		return nil, ErrSlotAlreadyBooked
	}
	return nil, ErrSlotNotFound
}

// RescheduleBooking keeps the appointment's identity on the original slot
// row (it moves to the new date/time with status 'rescheduled') and consumes
// the target slot to mark the new time unavailable. Both rows are locked and
// written in one transaction.
func (r *PgRepository) RescheduleBooking(ctx context.Context, bookingID, newSlotID uuid.UUID, newDate, newTime string) (*Slot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reschedule: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
		FOR UPDATE
	`, bookingID)
	current, err := scanSlot(row, ErrBookingNotFound)
	if err != nil {
		return nil, err
	}
	if !current.IsBooked {
		return nil, ErrBookingNotFound
	}

	row = tx.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
		FOR UPDATE
	`, newSlotID)
	target, err := scanSlot(row, ErrSlotNotFound)
	if err != nil {
		return nil, err
	}
	if target.IsBooked {
		return nil, ErrSlotUnavailable
	}

	row = tx.QueryRow(ctx, `
		UPDATE slots
		SET date        = $2,
		    time_of_day = $3,
		    status      = 'rescheduled',
		    updated_at  = now()
		WHERE id = $1
		RETURNING `+slotColumns+`
	`, bookingID, newDate, newTime)
	updated, err := scanSlot(row, ErrBookingNotFound)
	if err != nil {
		return nil, fmt.Errorf("move booking: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE slots
		SET is_booked        = TRUE,
		    user_id          = $2,
		    first_name       = $3,
		    last_name        = $4,
		    email            = $5,
		    session_type     = $6,
		    message          = $7,
		    status           = 'scheduled',
		    title            = $8,
		    duration_minutes = $9,
		    location         = $10,
		    link             = $11,
		    updated_at       = now()
		WHERE id = $1
	`, newSlotID,
		current.UserID, current.FirstName, current.LastName, current.Email,
		current.SessionType, current.Message,
		current.Title, current.DurationMinutes, current.Location, current.Link)
	if err != nil {
		return nil, fmt.Errorf("consume target slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reschedule: %w", err)
	}

	return updated, nil
}
