package repository

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/mindcare-booking-api/internal/models"
)

const bookingColumns = `id, slot_id, counsellor_id, student_ref, status, requested_at, decided_at, decided_by`

// BookingRepository persists the booking ledger.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs the repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Claim inserts a pending booking for the slot. The slot row is locked for
// the duration of the transaction and the partial unique index on active
// bookings rejects any claim that slips past the check.
func (r *BookingRepository) Claim(ctx context.Context, slotID, studentRef string, now time.Time) (booking *models.Booking, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var slot models.Slot
	if err = tx.GetContext(ctx, &slot, `SELECT `+slotColumns+` FROM slots WHERE id = $1 FOR UPDATE`, slotID); err != nil {
		return nil, err
	}
	if slot.Cancelled() || !slot.EndAt.After(now) {
		return nil, ErrSlotClosed
	}

	var holders []string
	const activeQuery = `SELECT student_ref FROM bookings WHERE slot_id = $1 AND status IN ('PENDING', 'APPROVED')`
	if err = tx.SelectContext(ctx, &holders, activeQuery, slotID); err != nil {
		return nil, fmt.Errorf("check active bookings: %w", err)
	}
	for _, holder := range holders {
		if holder == studentRef {
			return nil, ErrDuplicateClaim
		}
	}
	if len(holders) > 0 {
		return nil, ErrSlotTaken
	}

	booking = &models.Booking{
		ID:           uuid.NewString(),
		SlotID:       slot.ID,
		CounsellorID: slot.CounsellorID,
		StudentRef:   studentRef,
		Status:       models.BookingStatusPending,
		RequestedAt:  now,
	}
	const insertQuery = `INSERT INTO bookings (id, slot_id, counsellor_id, student_ref, status, requested_at)
VALUES (:id, :slot_id, :counsellor_id, :student_ref, :status, :requested_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, booking); err != nil {
		if hasPQCode(err, pqUniqueViolation) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return booking, nil
}

// GetByID fetches a booking by identifier.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// UpdateBookingStatusParams groups the columns written by a transition.
type UpdateBookingStatusParams struct {
	ID        string
	Status    models.BookingStatus
	DecidedBy string
	DecidedAt time.Time
}

// UpdateStatus moves a pending booking to a terminal status. It returns
// sql.ErrNoRows when the booking is no longer pending.
func (r *BookingRepository) UpdateStatus(ctx context.Context, params UpdateBookingStatusParams) error {
	query := fmt.Sprintf(`UPDATE bookings SET status = :status, decided_by = :decided_by, decided_at = :decided_at
WHERE id = :id AND status = '%s'`, models.BookingStatusPending)
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":         params.ID,
		"status":     params.Status,
		"decided_by": params.DecidedBy,
		"decided_at": params.DecidedAt,
	})
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check booking update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByCounsellor streams bookings on a counsellor's slots, newest first.
func (r *BookingRepository) ListByCounsellor(ctx context.Context, counsellorID string) iter.Seq2[models.Booking, error] {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE counsellor_id = $1 ORDER BY requested_at DESC, id ASC`
	return scanSeq[models.Booking](ctx, r.db, query, counsellorID)
}

// ListByStudent streams a student's bookings, newest first.
func (r *BookingRepository) ListByStudent(ctx context.Context, studentRef string) iter.Seq2[models.Booking, error] {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE student_ref = $1 ORDER BY requested_at DESC, id ASC`
	return scanSeq[models.Booking](ctx, r.db, query, studentRef)
}

// Stream returns every booking matching the filter without pagination.
func (r *BookingRepository) Stream(ctx context.Context, filter models.BookingFilter) iter.Seq2[models.Booking, error] {
	where, args := bookingConditions(filter)
	query := `SELECT ` + bookingColumns + ` FROM bookings` + where + ` ORDER BY requested_at DESC, id ASC`
	return scanSeq[models.Booking](ctx, r.db, query, args...)
}

// List returns one page of bookings and the total matching count.
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	where, args := bookingConditions(filter)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM bookings`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM bookings%s ORDER BY requested_at DESC, id ASC LIMIT %d OFFSET %d`,
		bookingColumns, where, size, (page-1)*size)

	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, total, nil
}

// Summary counts bookings per status, optionally for one counsellor.
func (r *BookingRepository) Summary(ctx context.Context, counsellorID string) (*models.BookingSummary, error) {
	where, args := bookingConditions(models.BookingFilter{CounsellorID: counsellorID})

	var rows []struct {
		Status models.BookingStatus `db:"status"`
		Count  int                  `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM bookings`+where+` GROUP BY status`, args...); err != nil {
		return nil, fmt.Errorf("summarise bookings: %w", err)
	}

	summary := &models.BookingSummary{CounsellorID: counsellorID}
	for _, row := range rows {
		summary.Add(row.Status, row.Count)
	}
	return summary, nil
}

func bookingConditions(filter models.BookingFilter) (string, []interface{}) {
	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 3)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CounsellorID != "" {
		args = append(args, filter.CounsellorID)
		conditions = append(conditions, fmt.Sprintf("counsellor_id = $%d", len(args)))
	}
	if filter.StudentRef != "" {
		args = append(args, filter.StudentRef)
		conditions = append(conditions, fmt.Sprintf("student_ref = $%d", len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
