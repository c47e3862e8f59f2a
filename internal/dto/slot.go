package dto

import "time"

// PublishSlotRequest opens an availability window. CounsellorID defaults to
// the caller for counsellors; admins must name one.
type PublishSlotRequest struct {
	CounsellorID string    `json:"counsellor_id" validate:"omitempty,max=64"`
	StartAt      time.Time `json:"start_at"`
	EndAt        time.Time `json:"end_at"`
}

// SlotQuery holds slot listing query parameters.
type SlotQuery struct {
	CounsellorID     string `form:"counsellor_id"`
	From             string `form:"from"`
	To               string `form:"to"`
	IncludeCancelled bool   `form:"include_cancelled"`
}
