package models

import "time"

// BookingStatus enumerates the lifecycle of a claim.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusApproved  BookingStatus = "APPROVED"
	BookingStatusRejected  BookingStatus = "REJECTED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// Active reports whether the status still holds the slot.
func (s BookingStatus) Active() bool {
	return s == BookingStatusPending || s == BookingStatusApproved
}

// Valid reports whether s is a known status.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusApproved, BookingStatusRejected, BookingStatusCancelled:
		return true
	}
	return false
}

// Booking is a student's claim on a slot.
type Booking struct {
	ID           string        `db:"id" json:"id"`
	SlotID       string        `db:"slot_id" json:"slot_id"`
	CounsellorID string        `db:"counsellor_id" json:"counsellor_id"`
	StudentRef   string        `db:"student_ref" json:"student_ref"`
	Status       BookingStatus `db:"status" json:"status"`
	RequestedAt  time.Time     `db:"requested_at" json:"requested_at"`
	DecidedAt    *time.Time    `db:"decided_at" json:"decided_at,omitempty"`
	DecidedBy    *string       `db:"decided_by" json:"decided_by,omitempty"`
}

// BookingFilter captures admin listing criteria.
type BookingFilter struct {
	Status       []BookingStatus
	CounsellorID string
	StudentRef   string
	Page         int
	PageSize     int
}

// BookingSummary counts bookings per status.
type BookingSummary struct {
	CounsellorID string `json:"counsellor_id,omitempty"`
	Pending      int    `json:"pending"`
	Approved     int    `json:"approved"`
	Rejected     int    `json:"rejected"`
	Cancelled    int    `json:"cancelled"`
	Total        int    `json:"total"`
}

// Add increments the counter for status.
func (s *BookingSummary) Add(status BookingStatus, count int) {
	switch status {
	case BookingStatusPending:
		s.Pending += count
	case BookingStatusApproved:
		s.Approved += count
	case BookingStatusRejected:
		s.Rejected += count
	case BookingStatusCancelled:
		s.Cancelled += count
	default:
		return
	}
	s.Total += count
}

// BookingView joins a booking with its slot and directory names.
type BookingView struct {
	Slot           Slot    `json:"slot"`
	Booking        Booking `json:"booking"`
	CounsellorName string  `json:"counsellor_name"`
	StudentDisplay string  `json:"student_display"`
}
