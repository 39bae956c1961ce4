// Package server wires progress tracking into an MCP server and exposes it
// over stdio or streamable HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/vcto/mcp-progress/internal/journal"
	"github.com/vcto/mcp-progress/internal/longrunning"
)

const (
	toolLongRunning = "long_running_operation"

	methodCancelled = "notifications/cancelled"

	defaultDuration = 10.0
	defaultSteps    = 5.0
	maxSteps        = 10000
)

// Options configures New.
type Options struct {
	Name    string
	Version string
	Logger  zerolog.Logger
	// Journal records outbound progress notifications. Nil or disabled storage
	// turns recording off.
	Journal journal.Storage
	// Notifier overrides where notifications are delivered. Defaults to the
	// MCP server itself.
	Notifier longrunning.Notifier
	// AllowedOrigins enables CORS on the HTTP transport for these origins.
	AllowedOrigins []string
}

// Server is an MCP server whose tools report progress.
type Server struct {
	mcp     *server.MCPServer
	manager *longrunning.Manager
	session longrunning.Session
	logger  zerolog.Logger
	origins []string

	// JSON-RPC ids of accepted tool calls, keyed by the request's _meta.
	// The hook and the handler see copies of the same request, which share it.
	requestIDs   map[*mcp.Meta]any
	requestIDsMu sync.Mutex
}

// New builds the MCP server, its task manager and the notification chain.
func New(opts Options) *Server {
	s := &Server{
		manager: longrunning.NewManager(opts.Logger),
		logger:  opts.Logger,
		origins: opts.AllowedOrigins,

		requestIDs: make(map[*mcp.Meta]any),
	}

	hooks := &server.Hooks{}
	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		s.manager.CancelSessionTasks(session.SessionID())
	})
	hooks.AddBeforeCallTool(s.rememberRequestID)

	s.mcp = server.NewMCPServer(
		opts.Name,
		opts.Version,
		server.WithToolCapabilities(false),
		server.WithHooks(hooks),
	)

	var notifier longrunning.Notifier = s.mcp
	if opts.Notifier != nil {
		notifier = opts.Notifier
	}
	s.session = longrunning.NewMCPSession(notifier)
	if opts.Journal != nil && opts.Journal.IsEnabled() {
		s.session = journal.NewRecorder(s.session, opts.Journal)
	}

	s.mcp.AddNotificationHandler(methodCancelled, func(ctx context.Context, notification mcp.JSONRPCNotification) {
		s.manager.HandleCancellation(sessionID(ctx), notification.Notification)
	})

	s.mcp.AddTool(mcp.NewTool(toolLongRunning,
		mcp.WithDescription("Demonstrates a long running operation with progress updates"),
		mcp.WithNumber("duration", mcp.Description("Duration of the operation in seconds (default 10)")),
		mcp.WithNumber("steps", mcp.Description("Number of steps in the operation (default 5)")),
	), s.handleLongRunningOperation)

	return s
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Manager returns the task manager tracking running operations.
func (s *Server) Manager() *longrunning.Manager {
	return s.manager
}

// ServeStdio serves over stdin/stdout until the input closes or ctx is done.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(s.logger, "", 0))

	s.logger.Info().Msg("Serving MCP over stdio")
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// rememberRequestID keeps the JSON-RPC id of a tracked tool call so that
// notifications/cancelled, which names the request, can find its task.
func (s *Server) rememberRequestID(_ context.Context, id any, request *mcp.CallToolRequest) {
	if request.Params.Name != toolLongRunning || request.Params.Meta == nil || request.Params.Meta.ProgressToken == nil {
		return
	}
	s.requestIDsMu.Lock()
	defer s.requestIDsMu.Unlock()
	s.requestIDs[request.Params.Meta] = id
}

// takeRequestID returns and forgets the id remembered for request, or nil
// when the call did not arrive through the MCP server.
func (s *Server) takeRequestID(request mcp.CallToolRequest) any {
	if request.Params.Meta == nil {
		return nil
	}
	s.requestIDsMu.Lock()
	defer s.requestIDsMu.Unlock()
	id := s.requestIDs[request.Params.Meta]
	delete(s.requestIDs, request.Params.Meta)
	return id
}

func (s *Server) handleLongRunningOperation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	requestID := s.takeRequestID(request)
	args, _ := request.Params.Arguments.(map[string]any)

	duration, err := numberArg(args, "duration", defaultDuration)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	steps, err := numberArg(args, "steps", defaultSteps)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if duration < 0 {
		return mcp.NewToolResultError("duration must not be negative"), nil
	}
	if steps < 1 || steps > maxSteps || steps != float64(int(steps)) {
		return mcp.NewToolResultError(fmt.Sprintf("steps must be a whole number between 1 and %d", maxSteps)), nil
	}

	stepDelay := time.Duration(duration / steps * float64(time.Second))
	rc := longrunning.NewRequestContext(s.session, request)

	if !rc.HasProgressToken() {
		if err := runSteps(ctx, int(steps), stepDelay, nil); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Operation failed: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf(
			"Long running operation completed. Duration: %g seconds, Steps: %d. No progress token provided; progress was not reported.",
			duration, int(steps))), nil
	}

	total := steps
	err = s.manager.Run(ctx, rc, sessionID(ctx), requestID, &total, func(ctx context.Context, tracker *longrunning.Tracker) error {
		return runSteps(ctx, int(steps), stepDelay, tracker)
	})
	switch {
	case errors.Is(err, longrunning.ErrOperationCancelled):
		return mcp.NewToolResultError("Operation cancelled"), nil
	case err != nil:
		s.logger.Warn().Err(err).Interface("progress_token", rc.ProgressToken()).Msg("Long running operation failed")
		return mcp.NewToolResultError(fmt.Sprintf("Operation failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Long running operation completed. Duration: %g seconds, Steps: %d.", duration, int(steps))), nil
}

// runSteps waits out each step and reports it when a tracker is given.
func runSteps(ctx context.Context, steps int, stepDelay time.Duration, tracker *longrunning.Tracker) error {
	timer := time.NewTimer(stepDelay)
	defer timer.Stop()

	for i := 0; i < steps; i++ {
		if i > 0 {
			timer.Reset(stepDelay)
		}
		select {
		case <-ctx.Done():
			return longrunning.CheckCancellation(ctx)
		case <-timer.C:
		}
		if tracker != nil {
			if err := tracker.Increment(ctx, 1); err != nil {
				return err
			}
		}
	}
	return nil
}

func numberArg(args map[string]any, name string, def float64) (float64, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", name, raw)
	}
}

func sessionID(ctx context.Context) string {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		return session.SessionID()
	}
	return ""
}
