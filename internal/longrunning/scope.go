package longrunning

import (
	"context"
	"fmt"
)

type scopeState int

const (
	scopeUnopened scopeState = iota
	scopeOpen
	scopeFinalized
)

func (s scopeState) String() string {
	switch s {
	case scopeUnopened:
		return "unopened"
	case scopeOpen:
		return "open"
	case scopeFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("scopeState(%d)", int(s))
	}
}

// Scope binds a Tracker's lifetime to one operation. It is single-use:
// Open validates the request, Close finalizes the tracker exactly once.
// A zero Scope is unopened and cannot be closed.
type Scope struct {
	tracker *Tracker
	state   scopeState
}

// Open validates that the request carries a progress token and returns an
// open scope with a fresh tracker. A nil total means the operation is unbounded.
func Open(rc RequestContext, total *float64) (*Scope, error) {
	token := rc.ProgressToken()
	if token == nil {
		return nil, ErrNoProgressToken
	}
	if rc.Session == nil {
		return nil, fmt.Errorf("open progress scope for token %v: nil session", token)
	}

	return &Scope{
		tracker: newTracker(rc.Session, token, total),
		state:   scopeOpen,
	}, nil
}

// Tracker returns the scope's tracker.
func (s *Scope) Tracker() *Tracker {
	return s.tracker
}

// Close finalizes the tracker and returns the error the operation should
// report. cause is the error the operation body ended with, if any. When the
// final send fails as well, both come back as a *FinalizeError that still
// matches cause under errors.Is.
//
// Finalization ignores cancellation of ctx so a cancelled operation still
// reports its terminal notification.
func (s *Scope) Close(ctx context.Context, cause error) error {
	switch s.state {
	case scopeUnopened:
		return ErrScopeNotOpen
	case scopeFinalized:
		return ErrScopeFinalized
	}
	s.state = scopeFinalized

	err := s.tracker.Finalize(context.WithoutCancel(ctx))
	switch {
	case err == nil:
		return cause
	case cause != nil:
		return &FinalizeError{Cause: cause, Err: err}
	default:
		return err
	}
}

// Run opens a scope for rc, runs fn with its tracker and closes the scope on
// every exit path, panics included.
func Run(ctx context.Context, rc RequestContext, total *float64, fn func(context.Context, *Tracker) error) (err error) {
	scope, err := Open(rc, total)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = scope.Close(ctx, fmt.Errorf("panic: %v", r))
			panic(r)
		}
		err = scope.Close(ctx, err)
	}()

	return fn(ctx, scope.Tracker())
}
