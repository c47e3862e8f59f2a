package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/mindcare-booking-api/internal/models"
)

// DirectoryRepository reads the counsellor and student rosters.
type DirectoryRepository struct {
	db *sqlx.DB
}

// NewDirectoryRepository constructs the repository.
func NewDirectoryRepository(db *sqlx.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// FindCounsellor returns sql.ErrNoRows when the id is unknown.
func (r *DirectoryRepository) FindCounsellor(ctx context.Context, id string) (*models.Counsellor, error) {
	var counsellor models.Counsellor
	const query = `SELECT id, full_name, COALESCE(email, '') AS email, created_at FROM counsellors WHERE id = $1`
	if err := r.db.GetContext(ctx, &counsellor, query, id); err != nil {
		return nil, err
	}
	return &counsellor, nil
}

// FindStudent returns sql.ErrNoRows when the PRN is unknown.
func (r *DirectoryRepository) FindStudent(ctx context.Context, prn string) (*models.Student, error) {
	var student models.Student
	const query = `SELECT prn, full_name, COALESCE(college, '') AS college, created_at FROM students WHERE prn = $1`
	if err := r.db.GetContext(ctx, &student, query, prn); err != nil {
		return nil, err
	}
	return &student, nil
}
