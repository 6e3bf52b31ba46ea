package booking

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	StatusScheduled   BookingStatus = "scheduled"
	StatusRescheduled BookingStatus = "rescheduled"
	StatusCancelled   BookingStatus = "cancelled"
)

// Slot is a bookable time window. Date and TimeOfDay are stored as
// zero-padded strings (YYYY-MM-DD, HH:MM) so that lexicographic order is
// chronological order. An available slot carries no booking metadata; once
// booked the metadata fields are populated together.
type Slot struct {
	ID        uuid.UUID
	Date      string // YYYY-MM-DD
	TimeOfDay string // HH:MM
	IsBooked  bool

	UserID          *uuid.UUID
	FirstName       *string
	LastName        *string
	Email           *string
	SessionType     *string
	Message         *string
	Status          *BookingStatus
	Title           *string
	DurationMinutes *int
	Location        *string
	Link            *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SlotSpec is a concrete date/time pair accepted by the store. Repeat rules
// are expanded into specs before they reach the store.
type SlotSpec struct {
	Date      string
	TimeOfDay string
}

// BookingDetails is the guest snapshot written onto a slot at reservation
// time. It is denormalized on purpose: later profile edits do not touch
// existing bookings.
type BookingDetails struct {
	UserID      uuid.UUID
	FirstName   string
	LastName    string
	Email       string
	SessionType string
	Message     string
}

// BookedFilter narrows ListBooked. Email matching is case-insensitive
// because stored emails have inconsistent casing.
type BookedFilter struct {
	UserID *uuid.UUID
	Email  string
}
