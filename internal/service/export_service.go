package service

import (
	"context"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/mindcare-booking-api/internal/dto"
	"github.com/noah-isme/mindcare-booking-api/internal/models"
	appErrors "github.com/noah-isme/mindcare-booking-api/pkg/errors"
	"github.com/noah-isme/mindcare-booking-api/pkg/export"
)

var ledgerHeaders = []string{"Booking ID", "Requested At", "Status", "Counsellor", "Student", "Decided At", "Decided By"}

type bookingStreamer interface {
	Stream(ctx context.Context, filter models.BookingFilter) iter.Seq2[models.Booking, error]
}

type renderer interface {
	ContentType() string
	Extension() string
	Render(data export.Dataset) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	MaxRows int
	Now     func() time.Time
}

// ExportService renders the booking ledger for download.
type ExportService struct {
	bookings  bookingStreamer
	directory directoryResolver
	renderers map[dto.ExportFormat]renderer
	cfg       ExportConfig
	logger    *zap.Logger
}

// NewExportService constructs an ExportService. Nil renderers fall back to
// the default CSV and PDF exporters.
func NewExportService(bookings bookingStreamer, directory directoryResolver, cfg ExportConfig, logger *zap.Logger, csv, pdf renderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 5000
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		bookings:  bookings,
		directory: directory,
		renderers: map[dto.ExportFormat]renderer{dto.ExportFormatCSV: csv, dto.ExportFormatPDF: pdf},
		cfg:       cfg,
		logger:    logger,
	}
}

// Export renders bookings matching filter, newest first, capped at MaxRows.
func (s *ExportService) Export(ctx context.Context, format dto.ExportFormat, filter models.BookingFilter) (*dto.ExportFile, error) {
	if format == "" {
		format = dto.ExportFormatCSV
	}
	r, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	for _, status := range filter.Status {
		if !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", status))
		}
	}

	generatedAt := s.cfg.Now()
	dataset := export.Dataset{
		Title:   fmt.Sprintf("Counselling bookings %s", generatedAt.Format("2006-01-02")),
		Headers: ledgerHeaders,
	}
	for booking, err := range s.bookings.Stream(ctx, filter) {
		if err != nil {
			return nil, err
		}
		dataset.Rows = append(dataset.Rows, s.row(ctx, booking))
		if len(dataset.Rows) >= s.cfg.MaxRows {
			s.logger.Warn("booking export truncated", zap.Int("max_rows", s.cfg.MaxRows))
			break
		}
	}

	body, err := r.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Info("booking export generated", zap.String("format", string(format)), zap.Int("rows", len(dataset.Rows)))
	return &dto.ExportFile{
		Filename:    fmt.Sprintf("bookings-%s.%s", generatedAt.Format("20060102-150405"), r.Extension()),
		ContentType: r.ContentType(),
		Body:        body,
	}, nil
}

func (s *ExportService) row(ctx context.Context, booking models.Booking) map[string]string {
	row := map[string]string{
		"Booking ID":   booking.ID,
		"Requested At": booking.RequestedAt.UTC().Format(time.RFC3339),
		"Status":       string(booking.Status),
		"Counsellor":   s.directory.ResolveCounsellorName(ctx, booking.CounsellorID),
		"Student":      s.directory.ResolveStudentDisplay(ctx, booking.StudentRef),
	}
	if booking.DecidedAt != nil {
		row["Decided At"] = booking.DecidedAt.UTC().Format(time.RFC3339)
	}
	if booking.DecidedBy != nil {
		row["Decided By"] = *booking.DecidedBy
	}
	return row
}
