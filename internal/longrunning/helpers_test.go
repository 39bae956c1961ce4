package longrunning

import (
	"context"
	"errors"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

var errSendFailed = errors.New("session closed")

type sentNotification struct {
	Token    mcp.ProgressToken
	Progress float64
	Total    *float64
}

// recordingSession captures notifications. failOn makes the n-th send
// (1-based) fail; failFinal makes every send at or past the total fail.
type recordingSession struct {
	mu        sync.Mutex
	sent      []sentNotification
	attempts  int
	failOn    int
	failFinal bool
}

func (s *recordingSession) SendProgressNotification(_ context.Context, token mcp.ProgressToken, progress float64, total *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts++
	if s.failOn > 0 && s.attempts == s.failOn {
		return errSendFailed
	}
	if s.failFinal && total != nil && progress >= *total {
		return errSendFailed
	}

	var totalCopy *float64
	if total != nil {
		v := *total
		totalCopy = &v
	}
	s.sent = append(s.sent, sentNotification{Token: token, Progress: progress, Total: totalCopy})
	return nil
}

func (s *recordingSession) notifications() []sentNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentNotification(nil), s.sent...)
}

func (s *recordingSession) progressValues() []float64 {
	values := make([]float64, 0)
	for _, n := range s.notifications() {
		values = append(values, n.Progress)
	}
	return values
}

func floatPtr(v float64) *float64 {
	return &v
}

func requestWithToken(session Session, token mcp.ProgressToken) RequestContext {
	return RequestContext{
		Session: session,
		Meta:    &mcp.Meta{ProgressToken: token},
	}
}
