package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/stillpoint/booking-service/internal/booking"
)

type CreateSlotsRequest struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Repeat string `json:"repeat,omitempty"` // none, daily, weekly
	Count  int    `json:"count,omitempty"`
}

type ReserveSlotRequest struct {
	UserID      string `json:"user_id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	SessionType string `json:"session_type,omitempty"`
	Message     string `json:"message,omitempty"`
}

type RescheduleRequest struct {
	NewSlotID string `json:"new_slot_id"`
	NewDate   string `json:"new_date"`
	NewTime   string `json:"new_time"`
}

type SlotResponse struct {
	ID              uuid.UUID  `json:"id"`
	Date            string     `json:"date"`
	Time            string     `json:"time"`
	IsBooked        bool       `json:"is_booked"`
	UserID          *uuid.UUID `json:"user_id,omitempty"`
	FirstName       *string    `json:"first_name,omitempty"`
	LastName        *string    `json:"last_name,omitempty"`
	Email           *string    `json:"email,omitempty"`
	SessionType     *string    `json:"session_type,omitempty"`
	Message         *string    `json:"message,omitempty"`
	Status          *string    `json:"status,omitempty"`
	Title           *string    `json:"title,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	Location        *string    `json:"location,omitempty"`
	Link            *string    `json:"link,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toSlotResponse(s booking.Slot) SlotResponse {
	var status *string
	if s.Status != nil {
		v := string(*s.Status)
		status = &v
	}
	return SlotResponse{
		ID:              s.ID,
		Date:            s.Date,
		Time:            s.TimeOfDay,
		IsBooked:        s.IsBooked,
		UserID:          s.UserID,
		FirstName:       s.FirstName,
		LastName:        s.LastName,
		Email:           s.Email,
		SessionType:     s.SessionType,
		Message:         s.Message,
		Status:          status,
		Title:           s.Title,
		DurationMinutes: s.DurationMinutes,
		Location:        s.Location,
		Link:            s.Link,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func toSlotResponses(slots []booking.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotResponse(s))
	}
	return out
}

type ReservationResponse struct {
	Slot        SlotResponse `json:"slot"`
	EmailSent   bool         `json:"email_sent"`
	EmailErrors []string     `json:"email_errors,omitempty"`
}

type RescheduleResponse struct {
	Booking     SlotResponse `json:"booking"`
	EmailSent   bool         `json:"email_sent"`
	EmailErrors []string     `json:"email_errors,omitempty"`
}

type AllSlotsResponse struct {
	Available []SlotResponse `json:"available"`
	Booked    []SlotResponse `json:"booked"`
}

type UserBookingsResponse struct {
	Upcoming []SlotResponse `json:"upcoming"`
	Passed   []SlotResponse `json:"passed"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
