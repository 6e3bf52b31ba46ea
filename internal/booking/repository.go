package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrSlotNotFound      = errors.New("slot not found")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrSlotAlreadyBooked = errors.New("slot is already booked")
	ErrSlotUnavailable   = errors.New("slot is not available")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	CreateSlots(ctx context.Context, specs []SlotSpec) ([]Slot, error)
	DeleteSlot(ctx context.Context, id uuid.UUID) error
	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)

	// Read projections, each sorted ascending by (date, time)
	ListAvailable(ctx context.Context) ([]Slot, error)
	ListBooked(ctx context.Context, filter BookedFilter) ([]Slot, error)

	// ReserveSlot is a compare-and-set: it books the slot only if it is
	// currently available, so concurrent attempts resolve to one winner.
	ReserveSlot(ctx context.Context, id uuid.UUID, details BookingDetails) (*Slot, error)

	// RescheduleBooking moves the booking row to the new date/time and
	// consumes the target slot, in one transaction.
	RescheduleBooking(ctx context.Context, bookingID, newSlotID uuid.UUID, newDate, newTime string) (*Slot, error)
}
