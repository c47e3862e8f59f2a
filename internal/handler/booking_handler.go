package handler

import (
	"context"
	"iter"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/mindcare-booking-api/internal/dto"
	"github.com/noah-isme/mindcare-booking-api/internal/models"
	appErrors "github.com/noah-isme/mindcare-booking-api/pkg/errors"
	"github.com/noah-isme/mindcare-booking-api/pkg/response"
)

type bookingService interface {
	Claim(ctx context.Context, actor *models.JWTClaims, slotID, studentRef string) (*models.Booking, error)
	Decide(ctx context.Context, bookingID string, actor *models.JWTClaims, outcome models.BookingStatus) (*models.Booking, error)
	Cancel(ctx context.Context, bookingID string, actor *models.JWTClaims) (*models.Booking, error)
	Get(ctx context.Context, bookingID string) (*models.Booking, error)
	BookingView(ctx context.Context, bookingID string) (*models.BookingView, error)
	ListForCounsellor(ctx context.Context, counsellorID string) iter.Seq2[models.Booking, error]
	ListForStudent(ctx context.Context, studentRef string) iter.Seq2[models.Booking, error]
	ListAll(ctx context.Context, filter models.BookingFilter) ([]dto.BookingListItem, *models.Pagination, error)
	Summary(ctx context.Context, counsellorID string) (*models.BookingSummary, error)
}

// BookingHandler exposes the booking ledger.
type BookingHandler struct {
	service  bookingService
	validate *validator.Validate
}

// NewBookingHandler builds a new handler.
func NewBookingHandler(service bookingService, validate *validator.Validate) *BookingHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &BookingHandler{service: service, validate: validate}
}

// Claim godoc
// @Summary Claim a slot for a student
// @Description Students claim with the PRN carried by their token; staff must supply student_ref.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body dto.ClaimSlotRequest false "Student reference"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /slots/{id}/claims [post]
func (h *BookingHandler) Claim(c *gin.Context) {
	var req dto.ClaimSlotRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, validationError(err, "invalid claim payload"))
			return
		}
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, validationError(err, "invalid claim payload"))
		return
	}

	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	studentRef := req.StudentRef
	if claims.Role == models.RoleStudent {
		if claims.PRN == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "token carries no student reference"))
			return
		}
		if studentRef != "" && studentRef != claims.PRN {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "students may only claim for themselves"))
			return
		}
		studentRef = claims.PRN
	}
	if studentRef == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "student_ref is required"))
		return
	}

	booking, err := h.service.Claim(c.Request.Context(), claims, c.Param("id"), studentRef)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, booking)
}

// Decide godoc
// @Summary Approve or reject a pending booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.DecisionRequest true "Outcome"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings/{id}/decision [post]
func (h *BookingHandler) Decide(c *gin.Context) {
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, validationError(err, "invalid decision payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, validationError(err, "outcome must be APPROVED or REJECTED"))
		return
	}

	booking, err := h.service.Decide(c.Request.Context(), c.Param("id"), claimsFromContext(c), req.Outcome)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Cancel godoc
// @Summary Cancel a pending booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c *gin.Context) {
	booking, err := h.service.Cancel(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Get godoc
// @Summary Get a booking with its slot and display names
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Description Bookings outside the caller's reach answer 404 like missing ones.
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /bookings/{id} [get]
func (h *BookingHandler) Get(c *gin.Context) {
	booking, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !canView(claimsFromContext(c), booking) {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "booking not found"))
		return
	}
	view, err := h.service.BookingView(c.Request.Context(), booking.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// List godoc
// @Summary List the booking ledger
// @Tags Bookings
// @Produce json
// @Param status query []string false "Status filter" collectionFormat(multi)
// @Param counsellor_id query string false "Counsellor ID"
// @Param student_ref query string false "Student PRN"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /bookings [get]
func (h *BookingHandler) List(c *gin.Context) {
	var query dto.BookingListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, validationError(err, "invalid booking query"))
		return
	}
	items, pagination, err := h.service.ListAll(c.Request.Context(), bookingFilter(query))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Summary godoc
// @Summary Count bookings per status
// @Description Counsellors always receive their own summary.
// @Tags Bookings
// @Produce json
// @Param counsellor_id query string false "Counsellor ID (admin only)"
// @Success 200 {object} response.Envelope
// @Router /bookings/summary [get]
func (h *BookingHandler) Summary(c *gin.Context) {
	counsellorID := c.Query("counsellor_id")
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleCounsellor {
		counsellorID = claims.UserID
	}
	summary, err := h.service.Summary(c.Request.Context(), counsellorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// ListForCounsellor godoc
// @Summary List bookings on a counsellor's slots
// @Tags Bookings
// @Produce json
// @Param id path string true "Counsellor ID"
// @Success 200 {object} response.Envelope
// @Router /counsellors/{id}/bookings [get]
func (h *BookingHandler) ListForCounsellor(c *gin.Context) {
	counsellorID := c.Param("id")
	claims := claimsFromContext(c)
	if claims == nil || (!claims.IsAdmin() && claims.UserID != counsellorID) {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "counsellors may only list their own bookings"))
		return
	}
	bookings, err := collect(h.service.ListForCounsellor(c.Request.Context(), counsellorID))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bookings, nil)
}

// ListForStudent godoc
// @Summary List a student's bookings
// @Tags Bookings
// @Produce json
// @Param prn path string true "Student PRN"
// @Success 200 {object} response.Envelope
// @Router /students/{prn}/bookings [get]
func (h *BookingHandler) ListForStudent(c *gin.Context) {
	prn := c.Param("prn")
	claims := claimsFromContext(c)
	if claims == nil || (claims.Role == models.RoleStudent && claims.PRN != prn) {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "students may only list their own bookings"))
		return
	}
	bookings, err := collect(h.service.ListForStudent(c.Request.Context(), prn))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bookings, nil)
}

func canView(claims *models.JWTClaims, booking *models.Booking) bool {
	if claims == nil {
		return false
	}
	switch claims.Role {
	case models.RoleAdmin:
		return true
	case models.RoleCounsellor:
		return claims.UserID == booking.CounsellorID
	case models.RoleStudent:
		return claims.PRN != "" && claims.PRN == booking.StudentRef
	}
	return false
}

func bookingFilter(query dto.BookingListQuery) models.BookingFilter {
	filter := models.BookingFilter{
		CounsellorID: query.CounsellorID,
		StudentRef:   query.StudentRef,
		Page:         query.Page,
		PageSize:     query.PageSize,
	}
	for _, status := range query.Status {
		filter.Status = append(filter.Status, models.BookingStatus(status))
	}
	return filter
}
