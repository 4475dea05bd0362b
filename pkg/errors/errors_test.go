package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneMatchesTemplate(t *testing.T) {
	err := Clone(ErrInvalidTransition, "enrollment already decided")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.False(t, errors.Is(err, ErrStaleVersion))
	assert.Equal(t, "enrollment already decided", err.Error())
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(fmt.Errorf("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
}

func TestIsRetryable(t *testing.T) {
	wrapped := fmt.Errorf("record payment: %w", Wrap(errors.New("dial tcp"), ErrStorageUnavailable, ""))
	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsRetryable(ErrOverpaymentRejected))
	assert.False(t, IsRetryable(errors.New("plain")))
}
