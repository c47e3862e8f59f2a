package service

import (
	"context"
	"database/sql"
	"errors"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/mindcare-booking-api/internal/models"
	"github.com/noah-isme/mindcare-booking-api/internal/repository"
	appErrors "github.com/noah-isme/mindcare-booking-api/pkg/errors"
)

type slotStore interface {
	Create(ctx context.Context, slot *models.Slot) error
	GetByID(ctx context.Context, id string) (*models.Slot, error)
	Cancel(ctx context.Context, id string, at time.Time) (*models.Slot, bool, error)
	List(ctx context.Context, filter models.SlotFilter) iter.Seq2[models.Slot, error]
}

type eventPublisher interface {
	Publish(ctx context.Context, event models.BookingEvent)
}

// SlotService is the registry of counsellor availability windows.
type SlotService struct {
	store   slotStore
	events  eventPublisher
	metrics *MetricsService
	opts    BookingOptions
	logger  *zap.Logger
}

// NewSlotService constructs the slot registry.
func NewSlotService(store slotStore, events eventPublisher, metrics *MetricsService, opts BookingOptions, logger *zap.Logger) *SlotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotService{store: store, events: events, metrics: metrics, opts: opts.withDefaults(), logger: logger}
}

// Publish opens a new slot for counsellorID. Counsellors publish for
// themselves; admins may publish on behalf of any counsellor.
func (s *SlotService) Publish(ctx context.Context, actor *models.JWTClaims, counsellorID string, startAt, endAt time.Time) (*models.Slot, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	counsellorID = strings.TrimSpace(counsellorID)
	if counsellorID == "" && actor.Role == models.RoleCounsellor {
		counsellorID = actor.UserID
	}
	if counsellorID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "counsellor_id is required")
	}
	if !startAt.Before(endAt) {
		return nil, s.reject("publish", appErrors.ErrInvalidInterval)
	}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleCounsellor:
		if counsellorID != actor.UserID {
			return nil, s.reject("publish", appErrors.ErrNotOwner)
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only counsellors and admins publish slots")
	}

	ctx, cancel := s.opts.context(ctx)
	defer cancel()

	slot := &models.Slot{
		CounsellorID: counsellorID,
		StartAt:      startAt.UTC(),
		EndAt:        endAt.UTC(),
		CreatedAt:    s.opts.Now(),
	}
	start := time.Now()
	err := s.store.Create(ctx, slot)
	s.metrics.ObserveStore("slot_publish", err, time.Since(start))
	if err != nil {
		if errors.Is(err, repository.ErrSlotOverlap) {
			return nil, s.reject("publish", appErrors.ErrOverlapConflict)
		}
		return nil, storeError(err, "failed to publish slot")
	}

	s.logger.Info("slot published",
		zap.String("slot_id", slot.ID),
		zap.String("counsellor_id", slot.CounsellorID),
		zap.Time("start_at", slot.StartAt),
		zap.Time("end_at", slot.EndAt),
	)
	s.events.Publish(ctx, models.BookingEvent{
		Type:         models.EventSlotPublished,
		ActorID:      actor.UserID,
		CounsellorID: slot.CounsellorID,
		SlotID:       slot.ID,
		OccurredAt:   slot.CreatedAt,
	})
	return slot, nil
}

// Cancel withdraws an unclaimed slot. Only the publishing counsellor may
// cancel; cancelling twice is a no-op.
func (s *SlotService) Cancel(ctx context.Context, slotID string, actor *models.JWTClaims) (*models.Slot, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	ctx, cancel := s.opts.context(ctx)
	defer cancel()

	current, err := s.get(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if current.CounsellorID != actor.UserID {
		return nil, s.reject("cancel_slot", appErrors.ErrNotOwner)
	}

	start := time.Now()
	slot, changed, err := s.store.Cancel(ctx, slotID, s.opts.Now())
	s.metrics.ObserveStore("slot_cancel", err, time.Since(start))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		case errors.Is(err, repository.ErrSlotTaken):
			return nil, s.reject("cancel_slot", appErrors.ErrSlotClaimed)
		}
		return nil, storeError(err, "failed to cancel slot")
	}

	if changed {
		s.logger.Info("slot cancelled", zap.String("slot_id", slot.ID), zap.String("counsellor_id", slot.CounsellorID))
		s.events.Publish(ctx, models.BookingEvent{
			Type:         models.EventSlotCancelled,
			ActorID:      actor.UserID,
			CounsellorID: slot.CounsellorID,
			SlotID:       slot.ID,
			OccurredAt:   *slot.CancelledAt,
		})
	}
	return slot, nil
}

// Get returns a single slot.
func (s *SlotService) Get(ctx context.Context, slotID string) (*models.Slot, error) {
	ctx, cancel := s.opts.context(ctx)
	defer cancel()
	return s.get(ctx, slotID)
}

func (s *SlotService) get(ctx context.Context, slotID string) (*models.Slot, error) {
	slot, err := retryRead(ctx, s.opts.ReadRetryBackoff, func(ctx context.Context) (*models.Slot, error) {
		return s.store.GetByID(ctx, slotID)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, storeError(err, "failed to load slot")
	}
	return slot, nil
}

// List streams a counsellor's slots ordered by start time, ties by id. The
// sequence queries the store each time it is ranged over.
func (s *SlotService) List(ctx context.Context, filter models.SlotFilter) iter.Seq2[models.Slot, error] {
	filter.CounsellorID = strings.TrimSpace(filter.CounsellorID)
	if filter.CounsellorID == "" {
		return errSeq[models.Slot](appErrors.Clone(appErrors.ErrValidation, "counsellor_id is required"))
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return errSeq[models.Slot](appErrors.ErrInvalidInterval)
	}

	return func(yield func(models.Slot, error) bool) {
		ctx, cancel := s.opts.context(ctx)
		defer cancel()
		for slot, err := range retrySeq(ctx, s.opts.ReadRetryBackoff, func(ctx context.Context) iter.Seq2[models.Slot, error] {
			return s.store.List(ctx, filter)
		}) {
			if !yield(slot, err) {
				return
			}
		}
	}
}

func (s *SlotService) reject(operation string, kind *appErrors.Error) error {
	s.metrics.RecordRejection(operation, kind.Code)
	return appErrors.Clone(kind, "")
}
