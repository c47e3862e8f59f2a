package service

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/mindcare-booking-api/pkg/errors"
)

func TestStoreErrorKinds(t *testing.T) {
	assert.ErrorIs(t, storeError(fmt.Errorf("select: %w", context.DeadlineExceeded), "x"), appErrors.ErrTimeout)
	assert.ErrorIs(t, storeError(&pq.Error{Code: "57014"}, "x"), appErrors.ErrTimeout)
	assert.ErrorIs(t, storeError(driver.ErrBadConn, "x"), appErrors.ErrStoreUnavailable)
	assert.ErrorIs(t, storeError(&pq.Error{Code: "08006"}, "x"), appErrors.ErrStoreUnavailable)
	assert.ErrorIs(t, storeError(errors.New("boom"), "x"), appErrors.ErrInternal)
	assert.ErrorIs(t, storeError(appErrors.ErrNotOwner, "x"), appErrors.ErrNotOwner)
}

func TestRetryReadDoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	_, err := retryRead(context.Background(), time.Millisecond, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("syntax error")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryReadRetriesOnce(t *testing.T) {
	calls := 0
	value, err := retryRead(context.Background(), time.Millisecond, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, driver.ErrBadConn
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, value)
	assert.Equal(t, 2, calls)
}
