package models

import "time"

// BookingEventType names a successful lifecycle mutation.
type BookingEventType string

const (
	EventSlotPublished   BookingEventType = "slot.published"
	EventSlotCancelled   BookingEventType = "slot.cancelled"
	EventBookingClaimed  BookingEventType = "booking.claimed"
	EventBookingDecided  BookingEventType = "booking.decided"
	EventBookingCanceled BookingEventType = "booking.cancelled"
)

// BookingEvent is published after a mutation commits.
type BookingEvent struct {
	Type         BookingEventType `json:"type"`
	ActorID      string           `json:"actor_id"`
	CounsellorID string           `json:"counsellor_id"`
	SlotID       string           `json:"slot_id"`
	BookingID    string           `json:"booking_id,omitempty"`
	Status       BookingStatus    `json:"status,omitempty"`
	OccurredAt   time.Time        `json:"occurred_at"`
}
