package booking_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stillpoint/booking-service/internal/booking"
	"github.com/stillpoint/booking-service/internal/config"
	"github.com/stillpoint/booking-service/internal/notify"
)

// fakeRepo mirrors the conditional-update semantics of the Postgres
// repository over an in-memory map, so the reservation race can be exercised
// with plain goroutines.
type fakeRepo struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*booking.Slot
	calls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{slots: make(map[uuid.UUID]*booking.Slot)}
}

func (r *fakeRepo) add(s booking.Slot) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := s
	r.slots[s.ID] = &cp
	return s.ID
}

func (r *fakeRepo) CreateSlots(_ context.Context, specs []booking.SlotSpec) ([]booking.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	var out []booking.Slot
	for _, spec := range specs {
		s := booking.Slot{ID: uuid.New(), Date: spec.Date, TimeOfDay: spec.TimeOfDay}
		r.slots[s.ID] = &s
		out = append(out, s)
	}
	return out, nil
}

func (r *fakeRepo) DeleteSlot(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if _, ok := r.slots[id]; !ok {
		return booking.ErrSlotNotFound
	}
	delete(r.slots, id)
	return nil
}

func (r *fakeRepo) GetSlotByID(_ context.Context, id uuid.UUID) (*booking.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	s, ok := r.slots[id]
	if !ok {
		return nil, booking.ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeRepo) ListAvailable(_ context.Context) ([]booking.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	var out []booking.Slot
	for _, s := range r.slots {
		if !s.IsBooked {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListBooked(_ context.Context, filter booking.BookedFilter) ([]booking.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	var out []booking.Slot
	for _, s := range r.slots {
		if !s.IsBooked {
			continue
		}
		if filter.UserID != nil && (s.UserID == nil || *s.UserID != *filter.UserID) {
			continue
		}
		if filter.Email != "" && (s.Email == nil || !strings.EqualFold(*s.Email, filter.Email)) {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (r *fakeRepo) ReserveSlot(_ context.Context, id uuid.UUID, d booking.BookingDetails) (*booking.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	s, ok := r.slots[id]
	if !ok {
		return nil, booking.ErrSlotNotFound
	}
	if s.IsBooked {
		return nil, booking.ErrSlotAlreadyBooked
	}

	status := booking.StatusScheduled
	userID := d.UserID
	s.IsBooked = true
	s.UserID = &userID
	s.FirstName = &d.FirstName
	s.LastName = &d.LastName
	s.Email = &d.Email
	if d.SessionType != "" {
		s.SessionType = &d.SessionType
	}
	if d.Message != "" {
		s.Message = &d.Message
	}
	s.Status = &status

	cp := *s
	return &cp, nil
}

func (r *fakeRepo) RescheduleBooking(_ context.Context, bookingID, newSlotID uuid.UUID, newDate, newTime string) (*booking.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++

	current, ok := r.slots[bookingID]
	if !ok || !current.IsBooked {
		return nil, booking.ErrBookingNotFound
	}
	target, ok := r.slots[newSlotID]
	if !ok {
		return nil, booking.ErrSlotNotFound
	}
	if target.IsBooked {
		return nil, booking.ErrSlotUnavailable
	}

	rescheduled := booking.StatusRescheduled
	current.Date = newDate
	current.TimeOfDay = newTime
	current.Status = &rescheduled

	scheduled := booking.StatusScheduled
	target.IsBooked = true
	target.UserID = current.UserID
	target.FirstName = current.FirstName
	target.LastName = current.LastName
	target.Email = current.Email
	target.SessionType = current.SessionType
	target.Message = current.Message
	target.Title = current.Title
	target.DurationMinutes = current.DurationMinutes
	target.Location = current.Location
	target.Link = current.Link
	target.Status = &scheduled

	cp := *current
	return &cp, nil
}

func (r *fakeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// passLocker runs the critical section directly; lock contention is covered
// by the conditional update underneath.
type passLocker struct{}

func (passLocker) WithSlotLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeNotifier struct {
	mu      sync.Mutex
	sent    []notify.Message
	failFor map[string]error // keyed by recipient
}

func (n *fakeNotifier) Send(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err, ok := n.failFor[msg.To]; ok {
		return err
	}
	n.sent = append(n.sent, msg)
	return nil
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *fakeBroadcaster) SlotBooked(_ context.Context, slotID uuid.UUID) {
	b.record(fmt.Sprintf("slot_booked:%s", slotID))
}

func (b *fakeBroadcaster) SlotRescheduled(_ context.Context, oldID, newID, userID uuid.UUID) {
	b.record(fmt.Sprintf("slot_rescheduled:%s:%s:%s", oldID, newID, userID))
}

func (b *fakeBroadcaster) BookingUpdated(_ context.Context, userID uuid.UUID) {
	b.record(fmt.Sprintf("booking_updated:%s", userID))
}

func (b *fakeBroadcaster) record(ev string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

const operatorEmail = "owner@studio.test"

func newTestService(repo *fakeRepo, notifier *fakeNotifier, bc *fakeBroadcaster) *booking.Service {
	if notifier == nil {
		notifier = &fakeNotifier{}
	}
	if bc == nil {
		bc = &fakeBroadcaster{}
	}
	cfg := config.Config{OperatorEmail: operatorEmail}
	return booking.NewService(repo, passLocker{}, notifier, bc, cfg)
}

func validReserve(slotID uuid.UUID) booking.ReserveRequest {
	return booking.ReserveRequest{
		SlotID:    slotID,
		UserID:    uuid.New(),
		FirstName: "Jane",
		LastName:  "Okafor",
		Email:     "jane@example.com",
	}
}

func TestReserveValidationRejectsBeforeStoreAccess(t *testing.T) {
	repo := newFakeRepo()
	notifier := &fakeNotifier{}
	svc := newTestService(repo, notifier, nil)

	req := validReserve(uuid.New())
	req.Email = ""

	_, err := svc.Reserve(context.Background(), req)

	require.ErrorIs(t, err, booking.ErrValidation)
	assert.Contains(t, err.Error(), "email")
	assert.Zero(t, repo.calls, "validation failures must not touch the store")
	assert.Empty(t, notifier.sent, "validation failures must not send email")
}

func TestReserveBooksAvailableSlot(t *testing.T) {
	repo := newFakeRepo()
	slotID := repo.add(mkSlot("2025-03-01", "10:00", false))
	notifier := &fakeNotifier{}
	bc := &fakeBroadcaster{}
	svc := newTestService(repo, notifier, bc)

	req := validReserve(slotID)
	req.SessionType = "private yoga"
	result, err := svc.Reserve(context.Background(), req)

	require.NoError(t, err)
	require.NotNil(t, result.Slot)
	assert.True(t, result.Slot.IsBooked)
	require.NotNil(t, result.Slot.UserID)
	assert.Equal(t, req.UserID, *result.Slot.UserID)
	assert.Equal(t, "jane@example.com", *result.Slot.Email)
	assert.Equal(t, booking.StatusScheduled, *result.Slot.Status)

	assert.True(t, result.EmailSent)
	assert.Empty(t, result.EmailErrors)
	require.Len(t, notifier.sent, 2)
	assert.Equal(t, "jane@example.com", notifier.sent[0].To)
	assert.Equal(t, operatorEmail, notifier.sent[1].To)

	require.Len(t, bc.events, 1)
	assert.Equal(t, "slot_booked:"+slotID.String(), bc.events[0])
}

func TestReserveRejectsBookedSlot(t *testing.T) {
	repo := newFakeRepo()
	slotID := repo.add(mkSlot("2025-03-01", "10:00", false))
	svc := newTestService(repo, nil, nil)

	_, err := svc.Reserve(context.Background(), validReserve(slotID))
	require.NoError(t, err)

	_, err = svc.Reserve(context.Background(), validReserve(slotID))
	require.ErrorIs(t, err, booking.ErrSlotAlreadyBooked)
}

func TestReserveMissingSlot(t *testing.T) {
	svc := newTestService(newFakeRepo(), nil, nil)

	_, err := svc.Reserve(context.Background(), validReserve(uuid.New()))
	require.ErrorIs(t, err, booking.ErrSlotNotFound)
}

func TestReserveSurvivesEmailFailure(t *testing.T) {
	repo := newFakeRepo()
	slotID := repo.add(mkSlot("2025-03-01", "10:00", false))
	notifier := &fakeNotifier{failFor: map[string]error{
		"jane@example.com": errors.New("mailbox unavailable"),
	}}
	svc := newTestService(repo, notifier, nil)

	result, err := svc.Reserve(context.Background(), validReserve(slotID))

	require.NoError(t, err, "email failure must never fail the reservation")
	assert.True(t, result.Slot.IsBooked)
	assert.False(t, result.EmailSent)
	assert.Equal(t, []string{"user email"}, result.EmailErrors)

	// Operator mail still went out independently.
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, operatorEmail, notifier.sent[0].To)
}

func TestReserveConcurrentAttemptsOneWinner(t *testing.T) {
	repo := newFakeRepo()
	slotID := repo.add(mkSlot("2025-03-01", "10:00", false))
	svc := newTestService(repo, nil, nil)

	const attempts = 32
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(context.Background(), validReserve(slotID))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, booking.ErrSlotAlreadyBooked):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)
}

func TestReschedulePreservesAppointmentIdentity(t *testing.T) {
	repo := newFakeRepo()
	bookingID := repo.add(mkSlot("2025-03-01", "10:00", false))
	targetID := repo.add(mkSlot("2025-03-01", "11:00", false))
	bc := &fakeBroadcaster{}
	svc := newTestService(repo, nil, bc)

	reserveReq := validReserve(bookingID)
	_, err := svc.Reserve(context.Background(), reserveReq)
	require.NoError(t, err)

	before := repo.count()
	result, err := svc.Reschedule(context.Background(), booking.RescheduleRequest{
		BookingID: bookingID,
		NewSlotID: targetID,
		NewDate:   "2025-03-01",
		NewTime:   "11:00",
	})
	require.NoError(t, err)

	// The appointment keeps the original row's identity at the new time.
	assert.Equal(t, bookingID, result.Booking.ID)
	assert.Equal(t, "2025-03-01", result.Booking.Date)
	assert.Equal(t, "11:00", result.Booking.TimeOfDay)
	assert.Equal(t, booking.StatusRescheduled, *result.Booking.Status)

	// The target slot was consumed, metadata copied over.
	target, err := repo.GetSlotByID(context.Background(), targetID)
	require.NoError(t, err)
	assert.True(t, target.IsBooked)
	assert.Equal(t, booking.StatusScheduled, *target.Status)
	require.NotNil(t, target.UserID)
	assert.Equal(t, reserveReq.UserID, *target.UserID)

	// No third record appeared.
	assert.Equal(t, before, repo.count())

	// The consumed slot can no longer be reserved.
	_, err = svc.Reserve(context.Background(), validReserve(targetID))
	require.ErrorIs(t, err, booking.ErrSlotAlreadyBooked)

	require.Len(t, bc.events, 3) // slot_booked, slot_rescheduled, booking_updated
	assert.Contains(t, bc.events[1], "slot_rescheduled:"+bookingID.String())
	assert.Contains(t, bc.events[2], "booking_updated:"+reserveReq.UserID.String())
}

func TestRescheduleRejectsBookedTarget(t *testing.T) {
	repo := newFakeRepo()
	bookingID := repo.add(mkSlot("2025-03-01", "10:00", false))
	targetID := repo.add(mkSlot("2025-03-01", "11:00", false))
	svc := newTestService(repo, nil, nil)

	_, err := svc.Reserve(context.Background(), validReserve(bookingID))
	require.NoError(t, err)
	_, err = svc.Reserve(context.Background(), validReserve(targetID))
	require.NoError(t, err)

	_, err = svc.Reschedule(context.Background(), booking.RescheduleRequest{
		BookingID: bookingID,
		NewSlotID: targetID,
		NewDate:   "2025-03-01",
		NewTime:   "11:00",
	})
	require.ErrorIs(t, err, booking.ErrSlotUnavailable)
}

func TestRescheduleUnknownBooking(t *testing.T) {
	repo := newFakeRepo()
	targetID := repo.add(mkSlot("2025-03-01", "11:00", false))
	svc := newTestService(repo, nil, nil)

	_, err := svc.Reschedule(context.Background(), booking.RescheduleRequest{
		BookingID: uuid.New(),
		NewSlotID: targetID,
		NewDate:   "2025-03-01",
		NewTime:   "11:00",
	})
	require.ErrorIs(t, err, booking.ErrBookingNotFound)
}

func TestRescheduleValidatesDateFormat(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil, nil)

	_, err := svc.Reschedule(context.Background(), booking.RescheduleRequest{
		BookingID: uuid.New(),
		NewSlotID: uuid.New(),
		NewDate:   "March 1st",
		NewTime:   "11:00",
	})
	require.ErrorIs(t, err, booking.ErrValidation)
	assert.Zero(t, repo.calls)
}

func TestBookedSlotsEmailLookupIsCaseInsensitive(t *testing.T) {
	repo := newFakeRepo()
	slotID := repo.add(mkSlot("2025-03-01", "10:00", false))
	svc := newTestService(repo, nil, nil)

	req := validReserve(slotID)
	req.Email = "Jane@Example.com"
	_, err := svc.Reserve(context.Background(), req)
	require.NoError(t, err)

	lower, err := svc.BookedSlots(context.Background(), booking.BookedFilter{Email: "jane@example.com"})
	require.NoError(t, err)
	mixed, err := svc.BookedSlots(context.Background(), booking.BookedFilter{Email: "JANE@EXAMPLE.COM"})
	require.NoError(t, err)

	require.Len(t, lower, 1)
	require.Len(t, mixed, 1)
	assert.Equal(t, lower[0].ID, mixed[0].ID)
}

func TestCreateSlotsExpandsRepeatRule(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil, nil)

	created, err := svc.CreateSlots(context.Background(), "2025-03-01", "10:00", booking.RepeatWeekly, 3)
	require.NoError(t, err)
	require.Len(t, created, 3)
	assert.Equal(t, "2025-03-15", created[2].Date)

	_, err = svc.CreateSlots(context.Background(), "bad-date", "10:00", booking.RepeatDaily, 2)
	require.ErrorIs(t, err, booking.ErrValidation)
}
