package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/mindcare-booking-api/internal/dto"
	"github.com/noah-isme/mindcare-booking-api/internal/models"
	"github.com/noah-isme/mindcare-booking-api/internal/repository"
	appErrors "github.com/noah-isme/mindcare-booking-api/pkg/errors"
)

const summaryCachePattern = "bookings:summary:*"

type bookingStore interface {
	Claim(ctx context.Context, slotID, studentRef string, now time.Time) (*models.Booking, error)
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	UpdateStatus(ctx context.Context, params repository.UpdateBookingStatusParams) error
	ListByCounsellor(ctx context.Context, counsellorID string) iter.Seq2[models.Booking, error]
	ListByStudent(ctx context.Context, studentRef string) iter.Seq2[models.Booking, error]
	Stream(ctx context.Context, filter models.BookingFilter) iter.Seq2[models.Booking, error]
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error)
	Summary(ctx context.Context, counsellorID string) (*models.BookingSummary, error)
}

type slotReader interface {
	GetByID(ctx context.Context, id string) (*models.Slot, error)
}

type directoryResolver interface {
	ResolveCounsellorName(ctx context.Context, counsellorID string) string
	ResolveStudentDisplay(ctx context.Context, studentRef string) string
}

// BookingService is the ledger of claims on slots and their decisions.
type BookingService struct {
	store     bookingStore
	slots     slotReader
	directory directoryResolver
	cache     *CacheService
	events    eventPublisher
	metrics   *MetricsService
	opts      BookingOptions
	logger    *zap.Logger
}

// NewBookingService constructs the booking ledger.
func NewBookingService(store bookingStore, slots slotReader, directory directoryResolver, cache *CacheService, events eventPublisher, metrics *MetricsService, opts BookingOptions, logger *zap.Logger) *BookingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		store:     store,
		slots:     slots,
		directory: directory,
		cache:     cache,
		events:    events,
		metrics:   metrics,
		opts:      opts.withDefaults(),
		logger:    logger,
	}
}

// Claim records a pending booking of slotID for studentRef. The slot
// itself is not modified.
func (s *BookingService) Claim(ctx context.Context, actor *models.JWTClaims, slotID, studentRef string) (*models.Booking, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	studentRef = strings.TrimSpace(studentRef)
	if studentRef == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_ref is required")
	}

	ctx, cancel := s.opts.context(ctx)
	defer cancel()

	start := time.Now()
	booking, err := s.store.Claim(ctx, slotID, studentRef, s.opts.Now())
	s.metrics.ObserveStore("booking_claim", err, time.Since(start))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		case errors.Is(err, repository.ErrDuplicateClaim):
			return nil, s.reject("claim", appErrors.ErrDuplicateClaim)
		case errors.Is(err, repository.ErrSlotTaken), errors.Is(err, repository.ErrSlotClosed):
			return nil, s.reject("claim", appErrors.ErrSlotUnavailable)
		}
		return nil, storeError(err, "failed to claim slot")
	}

	s.logger.Info("slot claimed",
		zap.String("booking_id", booking.ID),
		zap.String("slot_id", booking.SlotID),
		zap.String("student_ref", booking.StudentRef),
	)
	s.events.Publish(ctx, models.BookingEvent{
		Type:         models.EventBookingClaimed,
		ActorID:      actor.UserID,
		CounsellorID: booking.CounsellorID,
		SlotID:       booking.SlotID,
		BookingID:    booking.ID,
		Status:       booking.Status,
		OccurredAt:   booking.RequestedAt,
	})
	return booking, nil
}

// Decide approves or rejects a pending booking. Only the slot's counsellor
// or an admin may decide.
func (s *BookingService) Decide(ctx context.Context, bookingID string, actor *models.JWTClaims, outcome models.BookingStatus) (*models.Booking, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if outcome != models.BookingStatusApproved && outcome != models.BookingStatusRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, "outcome must be APPROVED or REJECTED")
	}
	ctx, cancel := s.opts.context(ctx)
	defer cancel()

	booking, err := s.get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !(actor.Role == models.RoleCounsellor && actor.UserID == booking.CounsellorID) {
		return nil, s.reject("decide", appErrors.ErrNotAuthorized)
	}
	return s.transition(ctx, "decide", booking, outcome, actor, models.EventBookingDecided)
}

// Cancel withdraws a pending booking on behalf of the claiming student or
// an admin, freeing the slot.
func (s *BookingService) Cancel(ctx context.Context, bookingID string, actor *models.JWTClaims) (*models.Booking, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	ctx, cancel := s.opts.context(ctx)
	defer cancel()

	booking, err := s.get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !(actor.Role == models.RoleStudent && actor.PRN != "" && actor.PRN == booking.StudentRef) {
		return nil, s.reject("cancel_booking", appErrors.ErrNotAuthorized)
	}
	return s.transition(ctx, "cancel_booking", booking, models.BookingStatusCancelled, actor, models.EventBookingCanceled)
}

func (s *BookingService) transition(ctx context.Context, operation string, booking *models.Booking, status models.BookingStatus, actor *models.JWTClaims, event models.BookingEventType) (*models.Booking, error) {
	if booking.Status != models.BookingStatusPending {
		return nil, s.reject(operation, appErrors.ErrAlreadyDecided)
	}

	now := s.opts.Now()
	start := time.Now()
	err := s.store.UpdateStatus(ctx, repository.UpdateBookingStatusParams{
		ID:        booking.ID,
		Status:    status,
		DecidedBy: actor.UserID,
		DecidedAt: now,
	})
	s.metrics.ObserveStore("booking_"+operation, err, time.Since(start))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.reject(operation, appErrors.ErrAlreadyDecided)
		}
		return nil, storeError(err, "failed to update booking")
	}

	decidedBy := actor.UserID
	booking.Status = status
	booking.DecidedAt = &now
	booking.DecidedBy = &decidedBy

	s.logger.Info("booking transitioned",
		zap.String("booking_id", booking.ID),
		zap.String("status", string(status)),
		zap.String("actor_id", actor.UserID),
	)
	s.events.Publish(ctx, models.BookingEvent{
		Type:         event,
		ActorID:      actor.UserID,
		CounsellorID: booking.CounsellorID,
		SlotID:       booking.SlotID,
		BookingID:    booking.ID,
		Status:       status,
		OccurredAt:   now,
	})
	return booking, nil
}

// Get returns a single booking.
func (s *BookingService) Get(ctx context.Context, bookingID string) (*models.Booking, error) {
	ctx, cancel := s.opts.context(ctx)
	defer cancel()
	return s.get(ctx, bookingID)
}

func (s *BookingService) get(ctx context.Context, bookingID string) (*models.Booking, error) {
	booking, err := retryRead(ctx, s.opts.ReadRetryBackoff, func(ctx context.Context) (*models.Booking, error) {
		return s.store.GetByID(ctx, bookingID)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, storeError(err, "failed to load booking")
	}
	return booking, nil
}

// ListForCounsellor streams bookings on a counsellor's slots, newest first.
func (s *BookingService) ListForCounsellor(ctx context.Context, counsellorID string) iter.Seq2[models.Booking, error] {
	return s.seq(ctx, func(ctx context.Context) iter.Seq2[models.Booking, error] {
		return s.store.ListByCounsellor(ctx, counsellorID)
	})
}

// ListForStudent streams a student's bookings, newest first.
func (s *BookingService) ListForStudent(ctx context.Context, studentRef string) iter.Seq2[models.Booking, error] {
	return s.seq(ctx, func(ctx context.Context) iter.Seq2[models.Booking, error] {
		return s.store.ListByStudent(ctx, studentRef)
	})
}

// Stream yields every booking matching filter, newest first.
func (s *BookingService) Stream(ctx context.Context, filter models.BookingFilter) iter.Seq2[models.Booking, error] {
	return s.seq(ctx, func(ctx context.Context) iter.Seq2[models.Booking, error] {
		return s.store.Stream(ctx, filter)
	})
}

func (s *BookingService) seq(ctx context.Context, open func(context.Context) iter.Seq2[models.Booking, error]) iter.Seq2[models.Booking, error] {
	return func(yield func(models.Booking, error) bool) {
		ctx, cancel := s.opts.context(ctx)
		defer cancel()
		for booking, err := range retrySeq(ctx, s.opts.ReadRetryBackoff, open) {
			if !yield(booking, err) {
				return
			}
		}
	}
}

// ListAll returns one page of the ledger enriched with directory names.
func (s *BookingService) ListAll(ctx context.Context, filter models.BookingFilter) ([]dto.BookingListItem, *models.Pagination, error) {
	for _, status := range filter.Status {
		if !status.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", status))
		}
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 200 {
		filter.PageSize = 50
	}

	ctx, cancel := s.opts.context(ctx)
	defer cancel()

	type page struct {
		items []models.Booking
		total int
	}
	result, err := retryRead(ctx, s.opts.ReadRetryBackoff, func(ctx context.Context) (page, error) {
		items, total, err := s.store.List(ctx, filter)
		return page{items: items, total: total}, err
	})
	if err != nil {
		return nil, nil, storeError(err, "failed to list bookings")
	}

	items := make([]dto.BookingListItem, 0, len(result.items))
	for _, booking := range result.items {
		items = append(items, dto.BookingListItem{
			Booking:        booking,
			CounsellorName: s.directory.ResolveCounsellorName(ctx, booking.CounsellorID),
			StudentDisplay: s.directory.ResolveStudentDisplay(ctx, booking.StudentRef),
		})
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: result.total}, nil
}

// Summary counts bookings per status. Results are cached briefly and
// invalidated by booking events.
func (s *BookingService) Summary(ctx context.Context, counsellorID string) (*models.BookingSummary, error) {
	key := "bookings:summary:all"
	if counsellorID != "" {
		key = fmt.Sprintf("bookings:summary:%s", counsellorID)
	}

	var cached models.BookingSummary
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	ctx, cancel := s.opts.context(ctx)
	defer cancel()

	summary, err := retryRead(ctx, s.opts.ReadRetryBackoff, func(ctx context.Context) (*models.BookingSummary, error) {
		return s.store.Summary(ctx, counsellorID)
	})
	if err != nil {
		return nil, storeError(err, "failed to summarise bookings")
	}
	s.cache.Set(ctx, key, summary, s.opts.SummaryCacheTTL)
	return summary, nil
}

// BookingView joins a booking with its slot and resolved display names.
func (s *BookingService) BookingView(ctx context.Context, bookingID string) (*models.BookingView, error) {
	ctx, cancel := s.opts.context(ctx)
	defer cancel()

	booking, err := s.get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	slot, err := retryRead(ctx, s.opts.ReadRetryBackoff, func(ctx context.Context) (*models.Slot, error) {
		return s.slots.GetByID(ctx, booking.SlotID)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, storeError(err, "failed to load slot")
	}

	return &models.BookingView{
		Slot:           *slot,
		Booking:        *booking,
		CounsellorName: s.directory.ResolveCounsellorName(ctx, slot.CounsellorID),
		StudentDisplay: s.directory.ResolveStudentDisplay(ctx, booking.StudentRef),
	}, nil
}

func (s *BookingService) reject(operation string, kind *appErrors.Error) error {
	s.metrics.RecordRejection(operation, kind.Code)
	return appErrors.Clone(kind, "")
}
