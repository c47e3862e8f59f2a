package models

import "time"

// Slot is a counsellor availability window on [StartAt, EndAt).
type Slot struct {
	ID           string     `db:"id" json:"id"`
	CounsellorID string     `db:"counsellor_id" json:"counsellor_id"`
	StartAt      time.Time  `db:"start_at" json:"start_at"`
	EndAt        time.Time  `db:"end_at" json:"end_at"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	CancelledAt  *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// Cancelled reports whether the slot was withdrawn.
func (s Slot) Cancelled() bool {
	return s.CancelledAt != nil
}

// Overlaps reports whether [start, end) intersects the slot.
func (s Slot) Overlaps(start, end time.Time) bool {
	return s.StartAt.Before(end) && start.Before(s.EndAt)
}

// SlotFilter narrows slot listings. From/To keep slots intersecting [From, To).
type SlotFilter struct {
	CounsellorID     string
	From             *time.Time
	To               *time.Time
	IncludeCancelled bool
}
