package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stillpoint/booking-service/internal/broadcast"
	"github.com/stillpoint/booking-service/internal/config"
	"github.com/stillpoint/booking-service/internal/notify"
	"github.com/stillpoint/booking-service/internal/redisclient"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrSlotBeingBooked = errors.New("slot is currently being booked, please retry")
)

type Service struct {
	repo        Repository
	locker      redisclient.Locker
	notifier    notify.Notifier
	broadcaster broadcast.Broadcaster
	cfg         config.Config
}

func NewService(repo Repository, locker redisclient.Locker, notifier notify.Notifier, broadcaster broadcast.Broadcaster, cfg config.Config) *Service {
	return &Service{
		repo:        repo,
		locker:      locker,
		notifier:    notifier,
		broadcaster: broadcaster,
		cfg:         cfg,
	}
}

type ReserveRequest struct {
	SlotID      uuid.UUID
	UserID      uuid.UUID
	FirstName   string
	LastName    string
	Email       string
	SessionType string
	Message     string
}

func (r ReserveRequest) validate() error {
	var missing []string
	if r.SlotID == uuid.Nil {
		missing = append(missing, "slotId")
	}
	if r.UserID == uuid.Nil {
		missing = append(missing, "userId")
	}
	if strings.TrimSpace(r.FirstName) == "" {
		missing = append(missing, "firstName")
	}
	if strings.TrimSpace(r.LastName) == "" {
		missing = append(missing, "lastName")
	}
	if strings.TrimSpace(r.Email) == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// ReservationResult reports the committed slot plus the soft outcome of the
// notification step. EmailSent is false whenever any send failed; the
// reservation itself stands regardless.
type ReservationResult struct {
	Slot        *Slot
	EmailSent   bool
	EmailErrors []string
}

// Reserve converts an available slot into a booked one on behalf of a user.
// The per-slot Redis lock keeps concurrent attempts from piling onto the
// database; the conditional update in the repository is the correctness
// guarantee, so at most one concurrent attempt succeeds either way.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (*ReservationResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	details := BookingDetails{
		UserID:      req.UserID,
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		Email:       strings.TrimSpace(req.Email),
		SessionType: strings.TrimSpace(req.SessionType),
		Message:     strings.TrimSpace(req.Message),
	}

	var booked *Slot
	err := s.locker.WithSlotLock(ctx, req.SlotID, func(lockCtx context.Context) error {
		slot, err := s.repo.ReserveSlot(lockCtx, req.SlotID, details)
		if err != nil {
			return err
		}
		booked = slot
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.broadcaster.SlotBooked(ctx, booked.ID)

	emailSent, emailErrors := s.sendPair(ctx,
		reservationGuestMessage(booked),
		reservationOperatorMessage(booked, s.cfg.OperatorEmail),
	)

	return &ReservationResult{
		Slot:        booked,
		EmailSent:   emailSent,
		EmailErrors: emailErrors,
	}, nil
}

type RescheduleRequest struct {
	BookingID uuid.UUID
	NewSlotID uuid.UUID
	NewDate   string
	NewTime   string
}

func (r RescheduleRequest) validate() error {
	var missing []string
	if r.BookingID == uuid.Nil {
		missing = append(missing, "bookingId")
	}
	if r.NewSlotID == uuid.Nil {
		missing = append(missing, "newSlotId")
	}
	if r.NewDate == "" {
		missing = append(missing, "newDate")
	}
	if r.NewTime == "" {
		missing = append(missing, "newTime")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", "))
	}
	if err := ValidateSpec(SlotSpec{Date: r.NewDate, TimeOfDay: r.NewTime}); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

type RescheduleResult struct {
	Booking     *Slot
	EmailSent   bool
	EmailErrors []string
}

// Reschedule moves a booked appointment to a different available slot. The
// appointment keeps the original slot row's identity; the target slot is
// consumed to mark the new time unavailable.
func (s *Service) Reschedule(ctx context.Context, req RescheduleRequest) (*RescheduleResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var moved *Slot
	err := s.locker.WithSlotLock(ctx, req.NewSlotID, func(lockCtx context.Context) error {
		b, err := s.repo.RescheduleBooking(lockCtx, req.BookingID, req.NewSlotID, req.NewDate, req.NewTime)
		if err != nil {
			return err
		}
		moved = b
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	userID := uuid.Nil
	if moved.UserID != nil {
		userID = *moved.UserID
	}
	s.broadcaster.SlotRescheduled(ctx, req.BookingID, req.NewSlotID, userID)
	s.broadcaster.BookingUpdated(ctx, userID)

	emailSent, emailErrors := s.sendPair(ctx,
		rescheduleGuestMessage(moved),
		rescheduleOperatorMessage(moved, s.cfg.OperatorEmail),
	)

	return &RescheduleResult{
		Booking:     moved,
		EmailSent:   emailSent,
		EmailErrors: emailErrors,
	}, nil
}

// CreateSlots expands an optional repeat rule and inserts the resulting
// concrete slots. Duplicate (date, time) pairs are permitted; the schedule
// has never enforced slot uniqueness.
func (s *Service) CreateSlots(ctx context.Context, date, timeOfDay string, rule RepeatRule, count int) ([]Slot, error) {
	specs, err := ExpandRepeat(date, timeOfDay, rule, count)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s.repo.CreateSlots(ctx, specs)
}

func (s *Service) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteSlot(ctx, id)
}

// AvailableSlots returns the bookable view: available slots strictly in the
// future, ascending. Recomputed on every read.
func (s *Service) AvailableSlots(ctx context.Context, now time.Time) ([]Slot, error) {
	slots, err := s.repo.ListAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}
	return CategorizeAvailable(slots, now), nil
}

// AllSlots returns both raw projections for the admin calendar.
func (s *Service) AllSlots(ctx context.Context) (available, booked []Slot, err error) {
	available, err = s.repo.ListAvailable(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list available slots: %w", err)
	}
	booked, err = s.repo.ListBooked(ctx, BookedFilter{})
	if err != nil {
		return nil, nil, fmt.Errorf("list booked slots: %w", err)
	}
	return available, booked, nil
}

// BookedSlots lists booked slots, optionally narrowed by owner. Email
// matching is case-insensitive.
func (s *Service) BookedSlots(ctx context.Context, filter BookedFilter) ([]Slot, error) {
	return s.repo.ListBooked(ctx, filter)
}

// UserBookings returns one user's bookings split into upcoming and passed.
func (s *Service) UserBookings(ctx context.Context, userID uuid.UUID, now time.Time) (BookedBuckets, error) {
	slots, err := s.repo.ListBooked(ctx, BookedFilter{UserID: &userID})
	if err != nil {
		return BookedBuckets{}, fmt.Errorf("list user bookings: %w", err)
	}
	return CategorizeBooked(slots, now), nil
}

// sendPair emails the guest and the operator. Each failure is independent
// and soft: logged, recorded in the result, never escalated. A committed
// booking is never undone because an email bounced.
func (s *Service) sendPair(ctx context.Context, guest, operator notify.Message) (bool, []string) {
	var emailErrors []string

	if err := s.notifier.Send(ctx, guest); err != nil {
		log.Printf("failed to send booking email to guest %s: %v", guest.To, err)
		emailErrors = append(emailErrors, "user email")
	}
	if err := s.notifier.Send(ctx, operator); err != nil {
		log.Printf("failed to send booking email to operator %s: %v", operator.To, err)
		emailErrors = append(emailErrors, "operator email")
	}

	return len(emailErrors) == 0, emailErrors
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func guestName(s *Slot) string {
	return strings.TrimSpace(deref(s.FirstName) + " " + deref(s.LastName))
}

func sessionLabel(s *Slot) string {
	if t := deref(s.SessionType); t != "" {
		return t
	}
	return "private session"
}

func reservationGuestMessage(s *Slot) notify.Message {
	return notify.Message{
		To:      deref(s.Email),
		Subject: fmt.Sprintf("Booking confirmed for %s at %s", s.Date, s.TimeOfDay),
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour %s is confirmed for %s at %s.\n\nSee you then!\n",
			deref(s.FirstName), sessionLabel(s), s.Date, s.TimeOfDay),
	}
}

func reservationOperatorMessage(s *Slot, operator string) notify.Message {
	return notify.Message{
		To:      operator,
		Subject: fmt.Sprintf("New booking: %s on %s at %s", guestName(s), s.Date, s.TimeOfDay),
		Body: fmt.Sprintf(
			"%s (%s) booked a %s on %s at %s.\n\nNote: %s\n",
			guestName(s), deref(s.Email), sessionLabel(s), s.Date, s.TimeOfDay, deref(s.Message)),
	}
}

func rescheduleGuestMessage(s *Slot) notify.Message {
	return notify.Message{
		To:      deref(s.Email),
		Subject: fmt.Sprintf("Booking moved to %s at %s", s.Date, s.TimeOfDay),
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour %s has been moved to %s at %s.\n\nSee you then!\n",
			deref(s.FirstName), sessionLabel(s), s.Date, s.TimeOfDay),
	}
}

func rescheduleOperatorMessage(s *Slot, operator string) notify.Message {
	return notify.Message{
		To:      operator,
		Subject: fmt.Sprintf("Booking rescheduled: %s to %s at %s", guestName(s), s.Date, s.TimeOfDay),
		Body: fmt.Sprintf(
			"%s (%s) moved their %s to %s at %s.\n",
			guestName(s), deref(s.Email), sessionLabel(s), s.Date, s.TimeOfDay),
	}
}
