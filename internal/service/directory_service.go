package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/mindcare-booking-api/internal/models"
)

// UnknownCounsellor is shown when a counsellor id cannot be resolved.
const UnknownCounsellor = "Unknown"

type directoryStore interface {
	FindCounsellor(ctx context.Context, id string) (*models.Counsellor, error)
	FindStudent(ctx context.Context, prn string) (*models.Student, error)
}

// DirectoryService resolves display names from the rosters. Lookups never
// fail the caller; failures degrade to placeholder values.
type DirectoryService struct {
	store  directoryStore
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewDirectoryService constructs the directory adapter.
func NewDirectoryService(store directoryStore, cache *CacheService, ttl time.Duration, logger *zap.Logger) *DirectoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryService{store: store, cache: cache, ttl: ttl, logger: logger}
}

// ResolveCounsellorName returns the counsellor's full name or "Unknown".
func (s *DirectoryService) ResolveCounsellorName(ctx context.Context, counsellorID string) string {
	if strings.TrimSpace(counsellorID) == "" {
		return UnknownCounsellor
	}
	key := fmt.Sprintf("directory:counsellor:%s", counsellorID)
	var name string
	if s.cache.Get(ctx, key, &name) && name != "" {
		return name
	}

	counsellor, err := s.store.FindCounsellor(ctx, counsellorID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("counsellor lookup failed", zap.String("counsellor_id", counsellorID), zap.Error(err))
		}
		return UnknownCounsellor
	}
	name = strings.TrimSpace(counsellor.FullName)
	if name == "" {
		return UnknownCounsellor
	}
	s.cache.Set(ctx, key, name, s.ttl)
	return name
}

// ResolveStudentDisplay returns "<name> (<prn>)" or the bare PRN.
func (s *DirectoryService) ResolveStudentDisplay(ctx context.Context, studentRef string) string {
	if strings.TrimSpace(studentRef) == "" {
		return studentRef
	}
	key := fmt.Sprintf("directory:student:%s", studentRef)
	var name string
	if !s.cache.Get(ctx, key, &name) || name == "" {
		student, err := s.store.FindStudent(ctx, studentRef)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				s.logger.Warn("student lookup failed", zap.String("student_ref", studentRef), zap.Error(err))
			}
			return studentRef
		}
		name = strings.TrimSpace(student.FullName)
		if name == "" {
			return studentRef
		}
		s.cache.Set(ctx, key, name, s.ttl)
	}
	return fmt.Sprintf("%s (%s)", name, studentRef)
}
