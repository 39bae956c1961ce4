package longrunning

import (
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrNoProgressToken is returned when a scope is opened for a request that
// carries no progress token. It is a caller error and must not be retried.
var ErrNoProgressToken = errors.New("no progress token provided")

// ErrAlreadyFinalized is returned by a Tracker that has already sent its
// terminal notification.
var ErrAlreadyFinalized = errors.New("progress tracker already finalized")

// ErrScopeFinalized is returned when a scope is closed more than once.
var ErrScopeFinalized = errors.New("progress scope already finalized")

// ErrScopeNotOpen is returned when closing a Scope that did not come from Open.
var ErrScopeNotOpen = errors.New("progress scope was never opened")

// TransportError reports a failed progress notification send.
// The notification is lost; nothing is queued for a later retry.
type TransportError struct {
	Token mcp.ProgressToken
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("send progress notification for token %v: %v", e.Token, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// FinalizeError is returned when an operation failed and its final progress
// notification could not be sent either. errors.Is and errors.As see both.
type FinalizeError struct {
	Cause error // what the operation returned
	Err   error // the failed final send
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("%v (final progress notification failed: %v)", e.Cause, e.Err)
}

func (e *FinalizeError) Unwrap() []error {
	return []error{e.Cause, e.Err}
}

// IsConfigurationError reports whether err stems from misuse by the caller
// rather than a transient failure.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrNoProgressToken)
}

// IsTransportError reports whether err wraps a failed notification send.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
