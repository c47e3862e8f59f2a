package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/mindcare-booking-api/internal/models"
	"github.com/noah-isme/mindcare-booking-api/pkg/jobs"
)

const bookingEventsQueue = "booking-events"

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// BookingEventService fans committed mutations out to the audit trail and
// cache invalidation on a background queue.
type BookingEventService struct {
	audit   auditWriter
	cache   *CacheService
	metrics *MetricsService
	queue   *jobs.Queue
	logger  *zap.Logger
}

// NewBookingEventService constructs the event service and its worker queue.
func NewBookingEventService(audit auditWriter, cache *CacheService, metrics *MetricsService, cfg jobs.QueueConfig, logger *zap.Logger) *BookingEventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &BookingEventService{audit: audit, cache: cache, metrics: metrics, logger: logger}
	cfg.Logger = logger
	svc.queue = jobs.NewQueue(bookingEventsQueue, svc.handle, cfg)
	metrics.RegisterQueue(bookingEventsQueue, svc.queue.Stats)
	return svc
}

// Start launches the workers.
func (s *BookingEventService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains accepted events and stops the workers.
func (s *BookingEventService) Stop() {
	s.queue.Stop()
}

// Publish records the transition and enqueues follow-up work. It never
// blocks and never fails the originating mutation.
func (s *BookingEventService) Publish(ctx context.Context, event models.BookingEvent) {
	s.metrics.RecordTransition(event.Type)
	job := jobs.Job{ID: uuid.NewString(), Type: string(event.Type), Payload: event}
	if err := s.queue.TryEnqueue(job); err != nil {
		s.logger.Warn("booking event dropped",
			zap.String("type", string(event.Type)),
			zap.String("slot_id", event.SlotID),
			zap.String("booking_id", event.BookingID),
			zap.Error(err),
		)
	}
}

func (s *BookingEventService) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.BookingEvent)
	if !ok {
		s.logger.Error("unexpected booking event payload", zap.String("job_id", job.ID))
		return nil
	}

	if s.audit != nil {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal booking event: %w", err)
		}
		action, resource, resourceID := auditTarget(event)
		actorID := event.ActorID
		log := &models.AuditLog{
			UserID:     &actorID,
			Action:     action,
			Resource:   resource,
			ResourceID: &resourceID,
			NewValues:  payload,
			IPAddress:  "system",
			UserAgent:  bookingEventsQueue,
			CreatedAt:  event.OccurredAt,
		}
		if err := s.audit.CreateAuditLog(ctx, log); err != nil {
			return fmt.Errorf("write audit log: %w", err)
		}
	}

	// Cache failures are logged by CacheService and must not trigger a retry.
	if event.BookingID != "" {
		_ = s.cache.Invalidate(ctx, summaryCachePattern)
	}
	return nil
}

func auditTarget(event models.BookingEvent) (action, resource, resourceID string) {
	switch event.Type {
	case models.EventSlotPublished:
		return models.AuditActionSlotPublish, "slot", event.SlotID
	case models.EventSlotCancelled:
		return models.AuditActionSlotCancel, "slot", event.SlotID
	case models.EventBookingClaimed:
		return models.AuditActionBookingClaim, "booking", event.BookingID
	case models.EventBookingDecided:
		return models.AuditActionBookingDecide, "booking", event.BookingID
	default:
		return models.AuditActionBookingCancel, "booking", event.BookingID
	}
}
