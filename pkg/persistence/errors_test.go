package persistence_test

import (
	"errors"
	"testing"

	"github.com/dukex/querygate/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestRequestError(t *testing.T) {
	t.Parallel()

	err := persistence.NewRequestError("Transition", "req-123", persistence.ErrStatusConflict)

	assert.Contains(t, err.Error(), "Transition")
	assert.Contains(t, err.Error(), "req-123")
	assert.True(t, persistence.IsStatusConflict(err))
	assert.False(t, persistence.IsRequestNotFound(err))
	assert.True(t, errors.Is(err, persistence.ErrStatusConflict))

	wrapped := persistence.NewRequestError("GetByID", "req-9", persistence.ErrRequestNotFound)
	assert.True(t, persistence.IsRequestNotFound(wrapped))
	assert.False(t, persistence.IsExecutionNotFound(wrapped))
}
