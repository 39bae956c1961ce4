package longrunning

import (
	"context"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// Task is the manager's record of a running progress scope. It exists so
// the operation can be cancelled from outside; progress itself lives on the
// Tracker and is only touched by the operation.
type Task struct {
	// Identity
	id            string
	progressToken mcp.ProgressToken
	sessionID     string
	requestKey    string

	// State
	startTime    time.Time
	cancelled    bool
	cancelReason string

	// Context management
	ctx    context.Context
	cancel context.CancelFunc

	mu sync.RWMutex
}

// ID returns the task's identifier, the string form of its progress token
func (t *Task) ID() string {
	return t.id
}

// ProgressToken returns the token the task reports under
func (t *Task) ProgressToken() mcp.ProgressToken {
	return t.progressToken
}

// SessionID returns the session this task belongs to
func (t *Task) SessionID() string {
	return t.sessionID
}

// Context returns the task's context for cancellation
func (t *Task) Context() context.Context {
	return t.ctx
}

// Cancel cancels the task's context. The scope still finalizes when the
// operation returns.
func (t *Task) Cancel(reason string) {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	t.cancelReason = reason
	t.mu.Unlock()

	t.cancel()
}

// IsCancelled returns whether the task has been cancelled
func (t *Task) IsCancelled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cancelled
}

// CancelReason returns the reason given to Cancel
func (t *Task) CancelReason() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cancelReason
}

// Duration returns how long the task has been running
func (t *Task) Duration() time.Duration {
	return time.Since(t.startTime)
}
