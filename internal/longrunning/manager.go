package longrunning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

// Manager keeps track of running progress scopes so they can be cancelled by
// the client or when a session ends.
type Manager struct {
	tasks        map[string]*Task           // Progress token -> Task
	requests     map[string]string          // Session-scoped request ID -> task ID
	sessionTasks map[string]map[string]bool // Session ID -> Set of task IDs
	mu           sync.RWMutex

	logger zerolog.Logger
}

// NewManager creates a new task manager for handling long-running operations.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		tasks:        make(map[string]*Task),
		requests:     make(map[string]string),
		sessionTasks: make(map[string]map[string]bool),
		logger:       logger.With().Str("component", "longrunning").Logger(),
	}
}

// Run executes fn inside a progress scope registered under the request's
// progress token. requestID is the JSON-RPC id of the originating request,
// which notifications/cancelled refers to; nil leaves the task cancellable
// only through its session. fn receives a context that is cancelled when the
// task is. The scope is finalized and the task unregistered on every exit path.
func (m *Manager) Run(ctx context.Context, rc RequestContext, sessionID string, requestID any, total *float64,
	fn func(context.Context, *Tracker) error) error {

	token := rc.ProgressToken()
	if token == nil {
		return ErrNoProgressToken
	}

	task, err := m.startTask(ctx, token, sessionID, requestID)
	if err != nil {
		return err
	}
	defer m.removeTask(task)

	taskCtx := m.logger.With().
		Str("task_id", task.id).
		Str("session_id", sessionID).
		Logger().
		WithContext(task.ctx)

	err = Run(taskCtx, rc, total, fn)
	if task.IsCancelled() {
		m.logger.Info().Str("task_id", task.id).Str("reason", task.CancelReason()).
			Dur("duration", task.Duration()).Msg("Cancelled task finished")
	}
	return err
}

func (m *Manager) startTask(ctx context.Context, token mcp.ProgressToken, sessionID string, requestID any) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := tokenKey(token)
	if _, exists := m.tasks[id]; exists {
		return nil, fmt.Errorf("progress token %q is already in use", id)
	}
	var reqKey string
	if requestID != nil {
		reqKey = requestKey(sessionID, requestID)
		if _, exists := m.requests[reqKey]; exists {
			return nil, fmt.Errorf("request %v is already running in session %q", requestID, sessionID)
		}
	}

	taskCtx, cancel := context.WithCancel(ctx)
	task := &Task{
		id:            id,
		progressToken: token,
		sessionID:     sessionID,
		requestKey:    reqKey,
		ctx:           taskCtx,
		cancel:        cancel,
		startTime:     time.Now(),
	}

	m.tasks[id] = task
	if reqKey != "" {
		m.requests[reqKey] = id
	}
	if m.sessionTasks[sessionID] == nil {
		m.sessionTasks[sessionID] = make(map[string]bool)
	}
	m.sessionTasks[sessionID][id] = true

	m.logger.Debug().Str("task_id", id).Str("session_id", sessionID).Msg("Started task")
	return task, nil
}

// GetTask retrieves a task by its progress token.
// Returns nil if no task exists with the given token.
func (m *Manager) GetTask(progressToken mcp.ProgressToken) *Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tasks[tokenKey(progressToken)]
}

// GetRequestTask retrieves the task started by a request of a session.
func (m *Manager) GetRequestTask(sessionID string, requestID any) *Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.requests[requestKey(sessionID, requestID)]
	if !ok {
		return nil
	}
	return m.tasks[id]
}

func (m *Manager) removeTask(task *Task) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task.cancel()
	delete(m.tasks, task.id)
	if task.requestKey != "" {
		delete(m.requests, task.requestKey)
	}

	if sessionTasks, exists := m.sessionTasks[task.sessionID]; exists {
		delete(sessionTasks, task.id)
		if len(sessionTasks) == 0 {
			delete(m.sessionTasks, task.sessionID)
		}
	}

	m.logger.Debug().Str("task_id", task.id).Msg("Removed task")
}

// CancelSessionTasks cancels all tasks associated with a given session ID.
// This is typically called when a client disconnects or a session ends.
func (m *Manager) CancelSessionTasks(sessionID string) {
	m.mu.RLock()
	tasks := make([]*Task, 0, len(m.sessionTasks[sessionID]))
	for taskID := range m.sessionTasks[sessionID] {
		if task := m.tasks[taskID]; task != nil {
			tasks = append(tasks, task)
		}
	}
	m.mu.RUnlock()

	for _, task := range tasks {
		task.Cancel("Session ended")
	}
}

// HandleCancellation processes a notifications/cancelled message sent by the
// client of sessionID. Its requestId names the JSON-RPC request to stop.
func (m *Manager) HandleCancellation(sessionID string, notification mcp.Notification) {
	fields := notification.Params.AdditionalFields
	if fields == nil {
		m.logger.Warn().Msg("Invalid cancellation notification: no params")
		return
	}

	rawRequestID, ok := fields["requestId"]
	if !ok || rawRequestID == nil {
		m.logger.Warn().Msg("Invalid cancellation notification: requestId is missing")
		return
	}

	task := m.GetRequestTask(sessionID, rawRequestID)
	if task == nil {
		m.logger.Debug().Interface("request_id", rawRequestID).Str("session_id", sessionID).
			Msg("No task found for cancellation request")
		return
	}

	reason, _ := fields["reason"].(string)
	if reason == "" {
		reason = "Cancelled by client"
	}
	task.Cancel(reason)
}

// GetActiveTaskCount returns the number of active tasks
func (m *Manager) GetActiveTaskCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tasks)
}

// GetSessionTaskCount returns the number of active tasks for a session
func (m *Manager) GetSessionTaskCount(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessionTasks[sessionID])
}

// tokenKey normalizes a progress token or request ID for map lookups. JSON
// numbers decode as float64, so integral floats are keyed like integers.
func tokenKey(token any) string {
	switch v := token.(type) {
	case mcp.RequestId:
		return tokenKey(v.Value())
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
	}
	return fmt.Sprintf("%v", token)
}

// requestKey scopes a request ID to its session; IDs are only unique per client.
func requestKey(sessionID string, requestID any) string {
	return sessionID + "\x00" + tokenKey(requestID)
}
