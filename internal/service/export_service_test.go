package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mindcare-booking-api/internal/dto"
	"github.com/noah-isme/mindcare-booking-api/internal/models"
	appErrors "github.com/noah-isme/mindcare-booking-api/pkg/errors"
)

func seededHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness()
	ctx := context.Background()
	for i, prn := range []string{"S1", "S2", "S3"} {
		slot, err := h.slots.Publish(ctx, counsellorC1, "C1", at(9+i, 0), at(9+i, 30))
		require.NoError(t, err)
		_, err = h.bookings.Claim(ctx, adminClaims, slot.ID, prn)
		require.NoError(t, err)
	}
	return h
}

func TestExportServiceCSV(t *testing.T) {
	h := seededHarness(t)
	fixed := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	svc := NewExportService(h.bookings, h.bookings.directory, ExportConfig{Now: func() time.Time { return fixed }}, nil, nil, nil)

	file, err := svc.Export(context.Background(), dto.ExportFormatCSV, models.BookingFilter{})
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Equal(t, "bookings-20260302-120000.csv", file.Filename)

	lines := strings.Split(strings.TrimSpace(string(file.Body)), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "Booking ID")
	assert.Contains(t, lines[3], "Asha Rao (S1)", "oldest claim is last")
	assert.Contains(t, lines[1], "Dr. Meera Iyer")
}

func TestExportServiceCapsRows(t *testing.T) {
	h := seededHarness(t)
	svc := NewExportService(h.bookings, h.bookings.directory, ExportConfig{MaxRows: 2}, nil, nil, nil)

	file, err := svc.Export(context.Background(), dto.ExportFormatCSV, models.BookingFilter{})
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(file.Body)), "\n"), 3)
}

func TestExportServicePDF(t *testing.T) {
	h := seededHarness(t)
	svc := NewExportService(h.bookings, h.bookings.directory, ExportConfig{}, nil, nil, nil)

	file, err := svc.Export(context.Background(), dto.ExportFormatPDF, models.BookingFilter{CounsellorID: "C1"})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, strings.HasPrefix(string(file.Body), "%PDF"))
}

func TestExportServiceRejectsUnknownFormat(t *testing.T) {
	h := newHarness()
	svc := NewExportService(h.bookings, h.bookings.directory, ExportConfig{}, nil, nil, nil)

	_, err := svc.Export(context.Background(), dto.ExportFormat("xlsx"), models.BookingFilter{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestExportServiceRejectsUnknownStatus(t *testing.T) {
	h := seededHarness(t)
	svc := NewExportService(h.bookings, h.bookings.directory, ExportConfig{}, nil, nil, nil)

	file, err := svc.Export(context.Background(), dto.ExportFormatCSV, models.BookingFilter{
		Status: []models.BookingStatus{models.BookingStatusPending, "ARCHIVED"},
	})
	assert.Nil(t, file)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
