package longrunning

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockNotifier stands in for *server.MCPServer.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendNotificationToClient(ctx context.Context, method string, params map[string]any) error {
	args := m.Called(ctx, method, params)
	return args.Error(0)
}

func TestMCPSessionPayload(t *testing.T) {
	ctx := context.Background()

	t.Run("includes the declared total", func(t *testing.T) {
		notifier := &MockNotifier{}
		notifier.On("SendNotificationToClient", ctx, MethodProgress, map[string]any{
			"progressToken": "op-42",
			"progress":      3.0,
			"total":         10.0,
		}).Return(nil)

		err := NewMCPSession(notifier).SendProgressNotification(ctx, "op-42", 3, floatPtr(10))
		require.NoError(t, err)
		notifier.AssertExpectations(t)
	})

	t.Run("omits an absent total", func(t *testing.T) {
		notifier := &MockNotifier{}
		notifier.On("SendNotificationToClient", ctx, MethodProgress, mock.MatchedBy(func(params map[string]any) bool {
			_, hasTotal := params["total"]
			return params["progressToken"] == 7 && params["progress"] == 1.5 && !hasTotal
		})).Return(nil)

		err := NewMCPSession(notifier).SendProgressNotification(ctx, 7, 1.5, nil)
		require.NoError(t, err)
		notifier.AssertExpectations(t)
	})

	t.Run("returns notifier errors", func(t *testing.T) {
		notifier := &MockNotifier{}
		boom := errors.New("notification channel blocked")
		notifier.On("SendNotificationToClient", mock.Anything, MethodProgress, mock.Anything).Return(boom)

		tracker := newTracker(NewMCPSession(notifier), "blocked", nil)
		err := tracker.Increment(ctx, 1)
		assert.ErrorIs(t, err, boom)
		assert.True(t, IsTransportError(err))
	})
}

func TestNewRequestContext(t *testing.T) {
	session := &recordingSession{}

	req := mcp.CallToolRequest{}
	req.Params.Name = "long_running_operation"
	rc := NewRequestContext(session, req)
	assert.False(t, rc.HasProgressToken())
	assert.Nil(t, rc.ProgressToken())

	req.Params.Meta = &mcp.Meta{ProgressToken: "abc"}
	rc = NewRequestContext(session, req)
	assert.True(t, rc.HasProgressToken())
	assert.Equal(t, mcp.ProgressToken("abc"), rc.ProgressToken())
	assert.Same(t, session, rc.Session)
}
