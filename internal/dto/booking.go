package dto

import "github.com/noah-isme/mindcare-booking-api/internal/models"

// ClaimSlotRequest carries the student reference for front-desk claims.
// Students claim with the PRN from their token and may omit it.
type ClaimSlotRequest struct {
	StudentRef string `json:"student_ref" validate:"omitempty,max=64"`
}

// DecisionRequest records a counsellor's outcome for a pending booking.
type DecisionRequest struct {
	Outcome models.BookingStatus `json:"outcome" validate:"required,oneof=APPROVED REJECTED"`
}

// BookingListQuery holds admin listing query parameters.
type BookingListQuery struct {
	Status       []string `form:"status"`
	CounsellorID string   `form:"counsellor_id"`
	StudentRef   string   `form:"student_ref"`
	Page         int      `form:"page"`
	PageSize     int      `form:"page_size"`
}

// BookingListItem is a ledger row enriched with directory names.
type BookingListItem struct {
	models.Booking
	CounsellorName string `json:"counsellor_name"`
	StudentDisplay string `json:"student_display"`
}
