package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stillpoint/booking-service/internal/booking"
	"github.com/stillpoint/booking-service/internal/redisclient"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func listAvailableSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slots, err := svc.AvailableSlots(r.Context(), time.Now())
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func reserveSlotHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		var req ReserveSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		// An empty user id falls through to service validation as uuid.Nil;
		// a malformed one is rejected here.
		userID := uuid.Nil
		if req.UserID != "" {
			userID, err = uuid.Parse(req.UserID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_user_id", "user_id must be a valid UUID")
				return
			}
		}

		result, err := svc.Reserve(r.Context(), booking.ReserveRequest{
			SlotID:      slotID,
			UserID:      userID,
			FirstName:   req.FirstName,
			LastName:    req.LastName,
			Email:       req.Email,
			SessionType: req.SessionType,
			Message:     req.Message,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ReservationResponse{
			Slot:        toSlotResponse(*result.Slot),
			EmailSent:   result.EmailSent,
			EmailErrors: result.EmailErrors,
		})
	}
}

func rescheduleBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_booking_id", "id must be a valid UUID")
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		newSlotID := uuid.Nil
		if req.NewSlotID != "" {
			newSlotID, err = uuid.Parse(req.NewSlotID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_new_slot_id", "new_slot_id must be a valid UUID")
				return
			}
		}

		result, err := svc.Reschedule(r.Context(), booking.RescheduleRequest{
			BookingID: bookingID,
			NewSlotID: newSlotID,
			NewDate:   req.NewDate,
			NewTime:   req.NewTime,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, RescheduleResponse{
			Booking:     toSlotResponse(*result.Booking),
			EmailSent:   result.EmailSent,
			EmailErrors: result.EmailErrors,
		})
	}
}

func listUserBookingsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user_id", "id must be a valid UUID")
			return
		}

		buckets, err := svc.UserBookings(r.Context(), userID, time.Now())
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, UserBookingsResponse{
			Upcoming: toSlotResponses(buckets.Upcoming),
			Passed:   toSlotResponses(buckets.Passed),
		})
	}
}

func adminCreateSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		count := req.Count
		if count == 0 {
			count = 1
		}

		created, err := svc.CreateSlots(r.Context(), req.Date, req.Time, booking.RepeatRule(req.Repeat), count)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSlotResponses(created))
	}
}

func adminDeleteSlotHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		if err := svc.DeleteSlot(r.Context(), id); err != nil {
			handleBookingError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func adminListSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		available, booked, err := svc.AllSlots(r.Context())
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AllSlotsResponse{
			Available: toSlotResponses(available),
			Booked:    toSlotResponses(booked),
		})
	}
}

func adminListBookingsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var filter booking.BookedFilter

		if v := r.URL.Query().Get("user_id"); v != "" {
			userID, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_user_id", "user_id must be a valid UUID")
				return
			}
			filter.UserID = &userID
		}
		filter.Email = r.URL.Query().Get("email")

		slots, err := svc.BookedSlots(r.Context(), filter)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, booking.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, booking.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "booking_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotAlreadyBooked):
		writeError(w, http.StatusConflict, "slot_already_booked", "slot already booked, please pick another time")
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "slot is no longer available, please pick another time")
	case errors.Is(err, booking.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong, please try again later")
	}
}
