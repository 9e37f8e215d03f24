package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{name: "with cause", err: NewError(CodePublishFailed, "failed to publish result", ErrTimeout), want: "[PUBLISH_FAILED] failed to publish result: operation timed out"},
		{name: "without cause", err: NewError(CodeInvalidMessage, "job has no node type", nil), want: "[INVALID_MESSAGE] job has no node type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.EqualError(t, tt.err, tt.want)
		})
	}
}

func TestHelpers(t *testing.T) {
	wrapped := fmt.Errorf("publish: %w", NewError(CodePublishFailed, "gave up", ErrTimeout))

	require.True(t, IsTimeout(wrapped))
	require.False(t, IsNotConnected(wrapped))
	require.Equal(t, CodePublishFailed, CodeOf(wrapped))
	require.Empty(t, CodeOf(errors.New("plain")))
	require.True(t, IsNotConnected(NewError(CodeConnectionFailed, "connect", ErrNotConnected)))
}
