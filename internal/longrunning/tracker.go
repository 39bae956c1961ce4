package longrunning

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// Tracker accumulates progress for one token and reports every change
// through the session.
//
// A Tracker belongs to the code that opened its scope. It takes no locks:
// callers sharing one across goroutines must serialize Increment themselves.
type Tracker struct {
	session   Session // borrowed, never closed here
	token     mcp.ProgressToken
	total     *float64
	current   float64
	finalized bool
}

func newTracker(session Session, token mcp.ProgressToken, total *float64) *Tracker {
	t := &Tracker{
		session: session,
		token:   token,
	}
	if total != nil {
		v := *total
		t.total = &v
	}
	return t
}

// Token returns the progress token notifications are reported under.
func (t *Tracker) Token() mcp.ProgressToken {
	return t.token
}

// Current returns the accumulated progress.
func (t *Tracker) Current() float64 {
	return t.current
}

// Total returns the declared total, or false for an unbounded operation.
func (t *Tracker) Total() (float64, bool) {
	if t.total == nil {
		return 0, false
	}
	return *t.total, true
}

// Finalized reports whether Finalize has run.
func (t *Tracker) Finalized() bool {
	return t.finalized
}

// Increment adds amount to the running total and sends one notification.
// Progress is not clamped to the declared total; overshoot is reported as is.
func (t *Tracker) Increment(ctx context.Context, amount float64) error {
	if t.finalized {
		return ErrAlreadyFinalized
	}
	t.current += amount
	return t.send(ctx)
}

// Finalize snaps progress to the declared total and sends a last notification
// when the total was not reached. Unbounded trackers, and trackers already at
// or past their total, send nothing.
func (t *Tracker) Finalize(ctx context.Context) error {
	if t.finalized {
		return ErrAlreadyFinalized
	}
	t.finalized = true

	if t.total == nil || t.current >= *t.total {
		return nil
	}
	t.current = *t.total
	return t.send(ctx)
}

func (t *Tracker) send(ctx context.Context) error {
	if err := t.session.SendProgressNotification(ctx, t.token, t.current, t.total); err != nil {
		return &TransportError{Token: t.token, Err: err}
	}
	return nil
}
