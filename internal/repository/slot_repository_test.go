package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mindcare-booking-api/internal/models"
)

var slotCols = []string{"id", "counsellor_id", "start_at", "end_at", "created_at", "cancelled_at"}

func TestSlotRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("c-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE counsellor_id = $1 AND start_at < $3 AND end_at > $2)")).
		WithArgs("c-1", start, start.Add(30*time.Minute)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO slots")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	slot := &models.Slot{CounsellorID: "c-1", StartAt: start, EndAt: start.Add(30 * time.Minute)}
	require.NoError(t, repo.Create(context.Background(), slot))
	assert.NotEmpty(t, slot.ID)
	assert.False(t, slot.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryCreateOverlap(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	start := time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Slot{CounsellorID: "c-1", StartAt: start, EndAt: start.Add(30 * time.Minute)})
	assert.ErrorIs(t, err, ErrSlotOverlap)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryCreateExclusionViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO slots")).
		WillReturnError(&pq.Error{Code: "23P01", Constraint: "slots_no_overlap"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Slot{CounsellorID: "c-1", StartAt: start, EndAt: start.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrSlotOverlap)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryCancel(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	now := start.Add(-time.Hour)

	t.Run("unclaimed", func(t *testing.T) {
		db, mock, cleanup := newRepoMock(t)
		defer cleanup()
		repo := NewSlotRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FROM slots WHERE id = $1 FOR UPDATE")).
			WithArgs("slot-1").
			WillReturnRows(sqlmock.NewRows(slotCols).AddRow("slot-1", "c-1", start, start.Add(30*time.Minute), now, nil))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM bookings")).
			WithArgs("slot-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE slots SET cancelled_at")).
			WithArgs("slot-1", now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		slot, changed, err := repo.Cancel(context.Background(), "slot-1", now)
		require.NoError(t, err)
		assert.True(t, changed)
		require.NotNil(t, slot.CancelledAt)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("claimed", func(t *testing.T) {
		db, mock, cleanup := newRepoMock(t)
		defer cleanup()
		repo := NewSlotRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
			WillReturnRows(sqlmock.NewRows(slotCols).AddRow("slot-1", "c-1", start, start.Add(30*time.Minute), now, nil))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM bookings")).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		_, _, err := repo.Cancel(context.Background(), "slot-1", now)
		assert.ErrorIs(t, err, ErrSlotTaken)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already cancelled", func(t *testing.T) {
		db, mock, cleanup := newRepoMock(t)
		defer cleanup()
		repo := NewSlotRepository(db)

		cancelledAt := now.Add(-time.Minute)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
			WillReturnRows(sqlmock.NewRows(slotCols).AddRow("slot-1", "c-1", start, start.Add(30*time.Minute), now, cancelledAt))
		mock.ExpectCommit()

		slot, changed, err := repo.Cancel(context.Background(), "slot-1", now)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.True(t, slot.CancelledAt.Equal(cancelledAt))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSlotRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	from := start
	to := start.Add(4 * time.Hour)
	rows := sqlmock.NewRows(slotCols).
		AddRow("a", "c-1", start, start.Add(time.Hour), start, nil).
		AddRow("b", "c-1", start.Add(time.Hour), start.Add(2*time.Hour), start, nil)
	mock.ExpectQuery(regexp.QuoteMeta("cancelled_at IS NULL AND start_at < $2 AND end_at > $3 ORDER BY start_at ASC, id ASC")).
		WithArgs("c-1", to, from).
		WillReturnRows(rows)

	var ids []string
	for slot, err := range repo.List(context.Background(), models.SlotFilter{CounsellorID: "c-1", From: &from, To: &to}) {
		require.NoError(t, err)
		ids = append(ids, slot.ID)
	}
	assert.Equal(t, []string{"a", "b"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryListYieldsQueryError(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM slots")).WillReturnError(context.DeadlineExceeded)

	var errs int
	for _, err := range repo.List(context.Background(), models.SlotFilter{CounsellorID: "c-1"}) {
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		errs++
	}
	assert.Equal(t, 1, errs)
}
