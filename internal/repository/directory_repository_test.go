package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mindcare-booking-api/internal/models"
	appErrors "github.com/noah-isme/mindcare-booking-api/pkg/errors"
)

func TestDirectoryRepositoryFindStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDirectoryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE prn = $1")).
		WithArgs("S1").
		WillReturnRows(sqlmock.NewRows([]string{"prn", "full_name", "college", "created_at"}).AddRow("S1", "Asha Rao", "Engineering", time.Now()))

	student, err := repo.FindStudent(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", student.FullName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectoryRepositoryFindCounsellorMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDirectoryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM counsellors WHERE id = $1")).
		WithArgs("c-9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "email", "created_at"}))

	_, err := repo.FindCounsellor(context.Background(), "c-9")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestAuditRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).WillReturnResult(sqlmock.NewResult(1, 1))

	log := &models.AuditLog{Action: models.AuditActionBookingClaim, Resource: "booking"}
	require.NoError(t, repo.CreateAuditLog(context.Background(), log))
	assert.NotEmpty(t, log.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheRepositoryNilClientMisses(t *testing.T) {
	repo := NewCacheRepository(nil)
	var dest map[string]int
	assert.ErrorIs(t, repo.Get(context.Background(), "k", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "k", 1, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(context.Background(), "k*"))
}
