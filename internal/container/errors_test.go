package container

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "closed",
			err:  NewClosedError("c1"),
			want: "CLOSED: container is closed (container=c1)",
		},
		{
			name: "queue full",
			err:  NewQueueFullError("c1", 8),
			want: "QUEUE_FULL: pending operation limit reached (8) (container=c1)",
		},
		{
			name: "operation failed",
			err:  NewOperationError("c1", 3, errors.New("boom")),
			want: "OPERATION_FAILED: operation failed (container=c1, operation=3): boom",
		},
		{
			name: "outside operation",
			err:  newOutsideOperationError("c1", 7),
			want: "OUTSIDE_OPERATION: syntax used after its operation returned (container=c1, operation=7)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_HelpersSeeThroughWrapping(t *testing.T) {
	cause := errors.New("boom")
	wrapped := fmt.Errorf("submit: %w", NewOperationError("c1", 1, cause))

	assert.True(t, IsOperationFailed(wrapped))
	assert.False(t, IsClosed(wrapped))
	assert.False(t, IsQueueFull(wrapped))
	assert.False(t, IsOutsideOperation(wrapped))
	assert.ErrorIs(t, wrapped, cause)

	var ce *Error
	require.ErrorAs(t, wrapped, &ce)
	assert.Equal(t, int64(1), ce.OperationID)
}

func TestError_HelpersOnForeignErrors(t *testing.T) {
	assert.False(t, IsClosed(nil))
	assert.False(t, IsClosed(errors.New("CLOSED")))
}
