package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneKeepsKindIdentity(t *testing.T) {
	err := Clone(ErrSlotUnavailable, "slot already taken by another student")

	assert.True(t, stdErrors.Is(err, ErrSlotUnavailable))
	assert.False(t, stdErrors.Is(err, ErrDuplicateClaim))
	assert.Equal(t, http.StatusConflict, err.Status)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(fmt.Errorf("boom"))
	require.NotNil(t, appErr)
	assert.Equal(t, ErrInternal.Code, appErr.Code)

	typed := FromError(fmt.Errorf("ctx: %w", ErrTimeout))
	assert.Equal(t, ErrTimeout.Code, typed.Code)
}

func TestCauseUnwraps(t *testing.T) {
	err := Cause(ErrTimeout, context.DeadlineExceeded)

	assert.True(t, stdErrors.Is(err, context.DeadlineExceeded))
	assert.True(t, stdErrors.Is(err, ErrTimeout))
	assert.Contains(t, err.Error(), "deadline exceeded")
}
