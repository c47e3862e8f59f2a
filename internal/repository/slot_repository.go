package repository

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/mindcare-booking-api/internal/models"
)

const slotColumns = `id, counsellor_id, start_at, end_at, created_at, cancelled_at`

// SlotRepository persists counsellor availability windows.
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository constructs the repository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// Create inserts a slot while holding the counsellor's advisory lock so
// concurrent publishes for one counsellor are serialised. The exclusion
// constraint on slots backs up the overlap check.
func (r *SlotRepository) Create(ctx context.Context, slot *models.Slot) (err error) {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin slot transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, slot.CounsellorID); err != nil {
		return fmt.Errorf("lock counsellor slots: %w", err)
	}

	var overlapping bool
	const overlapQuery = `SELECT EXISTS (
	SELECT 1 FROM slots
	WHERE counsellor_id = $1 AND start_at < $3 AND end_at > $2)`
	if err = tx.GetContext(ctx, &overlapping, overlapQuery, slot.CounsellorID, slot.StartAt, slot.EndAt); err != nil {
		return fmt.Errorf("check slot overlap: %w", err)
	}
	if overlapping {
		return ErrSlotOverlap
	}

	const insertQuery = `INSERT INTO slots (id, counsellor_id, start_at, end_at, created_at)
VALUES ($1, $2, $3, $4, $5)`
	if _, err = tx.ExecContext(ctx, insertQuery, slot.ID, slot.CounsellorID, slot.StartAt, slot.EndAt, slot.CreatedAt); err != nil {
		if hasPQCode(err, pqExclusionViolation) {
			return ErrSlotOverlap
		}
		return fmt.Errorf("insert slot: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit slot: %w", err)
	}
	return nil
}

// GetByID fetches a slot by identifier.
func (r *SlotRepository) GetByID(ctx context.Context, id string) (*models.Slot, error) {
	var slot models.Slot
	if err := r.db.GetContext(ctx, &slot, `SELECT `+slotColumns+` FROM slots WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// Cancel withdraws an unclaimed slot. The slot row is locked so the check
// serialises with concurrent claims. changed is false when the slot was
// already cancelled.
func (r *SlotRepository) Cancel(ctx context.Context, id string, at time.Time) (slot *models.Slot, changed bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin slot cancel transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.Slot
	if err = tx.GetContext(ctx, &current, `SELECT `+slotColumns+` FROM slots WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, false, err
	}
	if current.Cancelled() {
		if err = tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit slot cancel: %w", err)
		}
		return &current, false, nil
	}

	var claimed bool
	const claimedQuery = `SELECT EXISTS (SELECT 1 FROM bookings WHERE slot_id = $1 AND status IN ('PENDING', 'APPROVED'))`
	if err = tx.GetContext(ctx, &claimed, claimedQuery, id); err != nil {
		return nil, false, fmt.Errorf("check slot bookings: %w", err)
	}
	if claimed {
		return nil, false, ErrSlotTaken
	}

	if _, err = tx.ExecContext(ctx, `UPDATE slots SET cancelled_at = $2 WHERE id = $1`, id, at); err != nil {
		return nil, false, fmt.Errorf("cancel slot: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit slot cancel: %w", err)
	}
	current.CancelledAt = &at
	return &current, true, nil
}

// List streams a counsellor's slots ordered by start time then id.
func (r *SlotRepository) List(ctx context.Context, filter models.SlotFilter) iter.Seq2[models.Slot, error] {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + slotColumns + ` FROM slots WHERE counsellor_id = $1`)
	args := []interface{}{filter.CounsellorID}

	if !filter.IncludeCancelled {
		builder.WriteString(" AND cancelled_at IS NULL")
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		builder.WriteString(fmt.Sprintf(" AND start_at < $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		builder.WriteString(fmt.Sprintf(" AND end_at > $%d", len(args)))
	}
	builder.WriteString(" ORDER BY start_at ASC, id ASC")

	return scanSeq[models.Slot](ctx, r.db, builder.String(), args...)
}
