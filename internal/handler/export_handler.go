package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mindcare-booking-api/internal/dto"
	"github.com/noah-isme/mindcare-booking-api/internal/models"
	"github.com/noah-isme/mindcare-booking-api/pkg/response"
)

type exportService interface {
	Export(ctx context.Context, format dto.ExportFormat, filter models.BookingFilter) (*dto.ExportFile, error)
}

// ExportHandler streams ledger exports.
type ExportHandler struct {
	service exportService
}

// NewExportHandler builds a new handler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// Export godoc
// @Summary Download the booking ledger
// @Tags Bookings
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" Enums(csv, pdf)
// @Param status query []string false "Status filter" collectionFormat(multi)
// @Param counsellor_id query string false "Counsellor ID"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /bookings/export [get]
func (h *ExportHandler) Export(c *gin.Context) {
	var query dto.BookingListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, validationError(err, "invalid export query"))
		return
	}
	format := dto.ExportFormat(strings.ToLower(c.Query("format")))
	file, err := h.service.Export(c.Request.Context(), format, bookingFilter(query))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}
