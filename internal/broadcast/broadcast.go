package broadcast

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	EventSlotBooked      = "slot_booked"
	EventSlotRescheduled = "slot_rescheduled"
	EventBookingUpdated  = "booking_updated"
)

// Event is the JSON envelope published for every slot-state change. Each
// event is self-contained; consumers need no ordering across events.
type Event struct {
	Event     string    `json:"event"`
	SlotID    string    `json:"slot_id,omitempty"`
	OldSlotID string    `json:"old_slot_id,omitempty"`
	NewSlotID string    `json:"new_slot_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	At        time.Time `json:"at"`
}

// Broadcaster fans out slot-state changes to live clients. Delivery is
// best-effort and at-most-once; a failed publish is logged, never returned.
type Broadcaster interface {
	SlotBooked(ctx context.Context, slotID uuid.UUID)
	SlotRescheduled(ctx context.Context, oldSlotID, newSlotID, userID uuid.UUID)
	BookingUpdated(ctx context.Context, userID uuid.UUID)
}

type RedisBroadcaster struct {
	client  *redis.Client
	channel string
}

func NewRedisBroadcaster(client *redis.Client, channel string) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, channel: channel}
}

func (b *RedisBroadcaster) SlotBooked(ctx context.Context, slotID uuid.UUID) {
	b.publish(ctx, Event{
		Event:  EventSlotBooked,
		SlotID: slotID.String(),
	})
}

func (b *RedisBroadcaster) SlotRescheduled(ctx context.Context, oldSlotID, newSlotID, userID uuid.UUID) {
	b.publish(ctx, Event{
		Event:     EventSlotRescheduled,
		OldSlotID: oldSlotID.String(),
		NewSlotID: newSlotID.String(),
		UserID:    userID.String(),
	})
}

func (b *RedisBroadcaster) BookingUpdated(ctx context.Context, userID uuid.UUID) {
	b.publish(ctx, Event{
		Event:  EventBookingUpdated,
		UserID: userID.String(),
	})
}

func (b *RedisBroadcaster) publish(ctx context.Context, ev Event) {
	ev.At = time.Now().UTC()

	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("failed to marshal %s event: %v", ev.Event, err)
		return
	}

	// Detached from the request: a cancelled request must not lose the
	// event for a write that already committed.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := b.client.Publish(pubCtx, b.channel, data).Err(); err != nil {
		log.Printf("failed to publish %s event: %v", ev.Event, err)
	}
}
