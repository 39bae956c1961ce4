package longrunning

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// MethodProgress is the MCP notification method used for progress updates.
const MethodProgress = "notifications/progress"

// Session is the sink progress notifications are delivered to.
// Implementations must be safe for concurrent use across distinct tokens;
// the tracker never locks it.
type Session interface {
	SendProgressNotification(ctx context.Context, token mcp.ProgressToken, progress float64, total *float64) error
}

// Notifier is the part of *server.MCPServer the MCP session adapter needs.
type Notifier interface {
	SendNotificationToClient(ctx context.Context, method string, params map[string]any) error
}

// MCPSession delivers progress notifications to the client bound to the
// request context through an MCP server.
type MCPSession struct {
	notifier Notifier
}

// NewMCPSession wraps a notifier, usually the running *server.MCPServer.
func NewMCPSession(notifier Notifier) *MCPSession {
	return &MCPSession{notifier: notifier}
}

// SendProgressNotification implements Session.
func (s *MCPSession) SendProgressNotification(ctx context.Context, token mcp.ProgressToken, progress float64, total *float64) error {
	params := map[string]any{
		"progressToken": token,
		"progress":      progress,
	}
	if total != nil {
		params["total"] = *total
	}
	return s.notifier.SendNotificationToClient(ctx, MethodProgress, params)
}

// RequestContext is the slice of an incoming request the progress scope reads:
// the session to report through and the request metadata.
type RequestContext struct {
	Session Session
	Meta    *mcp.Meta
}

// NewRequestContext builds a RequestContext for a tool call.
func NewRequestContext(session Session, req mcp.CallToolRequest) RequestContext {
	return RequestContext{
		Session: session,
		Meta:    req.Params.Meta,
	}
}

// ProgressToken returns the token from the request metadata, or nil.
func (rc RequestContext) ProgressToken() mcp.ProgressToken {
	if rc.Meta == nil {
		return nil
	}
	return rc.Meta.ProgressToken
}

// HasProgressToken reports whether progress can be tracked for the request.
func (rc RequestContext) HasProgressToken() bool {
	return rc.ProgressToken() != nil
}

var _ Session = (*MCPSession)(nil)
