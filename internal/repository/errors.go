package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Conflict outcomes detected inside repository transactions.
var (
	ErrSlotOverlap    = errors.New("slot overlaps an existing slot")
	ErrSlotClosed     = errors.New("slot cancelled or already ended")
	ErrSlotTaken      = errors.New("slot has an active booking")
	ErrDuplicateClaim = errors.New("student already holds an active booking on slot")
)

const (
	pqUniqueViolation    = "23505"
	pqExclusionViolation = "23P01"
)

func hasPQCode(err error, code string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == code
}
