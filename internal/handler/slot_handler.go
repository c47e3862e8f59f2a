package handler

import (
	"context"
	"iter"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/mindcare-booking-api/internal/dto"
	"github.com/noah-isme/mindcare-booking-api/internal/models"
	appErrors "github.com/noah-isme/mindcare-booking-api/pkg/errors"
	"github.com/noah-isme/mindcare-booking-api/pkg/response"
)

type slotService interface {
	Publish(ctx context.Context, actor *models.JWTClaims, counsellorID string, startAt, endAt time.Time) (*models.Slot, error)
	Cancel(ctx context.Context, slotID string, actor *models.JWTClaims) (*models.Slot, error)
	Get(ctx context.Context, slotID string) (*models.Slot, error)
	List(ctx context.Context, filter models.SlotFilter) iter.Seq2[models.Slot, error]
}

// SlotHandler exposes the slot registry.
type SlotHandler struct {
	service  slotService
	validate *validator.Validate
}

// NewSlotHandler builds a new handler.
func NewSlotHandler(service slotService, validate *validator.Validate) *SlotHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &SlotHandler{service: service, validate: validate}
}

// Publish godoc
// @Summary Publish an availability slot
// @Tags Slots
// @Accept json
// @Produce json
// @Param payload body dto.PublishSlotRequest true "Slot window"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /slots [post]
func (h *SlotHandler) Publish(c *gin.Context) {
	var req dto.PublishSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, validationError(err, "invalid slot payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, validationError(err, "invalid slot payload"))
		return
	}
	if req.StartAt.IsZero() || req.EndAt.IsZero() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "start_at and end_at are required"))
		return
	}

	slot, err := h.service.Publish(c.Request.Context(), claimsFromContext(c), req.CounsellorID, req.StartAt, req.EndAt)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// List godoc
// @Summary List a counsellor's slots
// @Tags Slots
// @Produce json
// @Param counsellor_id query string true "Counsellor ID"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Param include_cancelled query bool false "Include withdrawn slots"
// @Success 200 {object} response.Envelope
// @Router /slots [get]
func (h *SlotHandler) List(c *gin.Context) {
	var query dto.SlotQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, validationError(err, "invalid slot query"))
		return
	}
	filter := models.SlotFilter{CounsellorID: query.CounsellorID, IncludeCancelled: query.IncludeCancelled}
	if filter.CounsellorID == "" {
		if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleCounsellor {
			filter.CounsellorID = claims.UserID
		}
	}

	var err error
	if filter.From, err = parseTimeQuery(c, "from"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.To, err = parseTimeQuery(c, "to"); err != nil {
		response.Error(c, err)
		return
	}

	slots, err := collect(h.service.List(c.Request.Context(), filter))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Get godoc
// @Summary Get a slot
// @Tags Slots
// @Produce json
// @Param id path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /slots/{id} [get]
func (h *SlotHandler) Get(c *gin.Context) {
	slot, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Cancel godoc
// @Summary Withdraw an unclaimed slot
// @Tags Slots
// @Produce json
// @Param id path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /slots/{id} [delete]
func (h *SlotHandler) Cancel(c *gin.Context) {
	slot, err := h.service.Cancel(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}
