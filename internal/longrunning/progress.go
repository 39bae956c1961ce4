package longrunning

import (
	"context"
	"fmt"
)

// ForEach runs fn for every item and reports one unit of progress per
// completed item. It stops at the first error or when ctx is cancelled.
func ForEach[T any](ctx context.Context, tracker *Tracker, items []T, fn func(context.Context, T) error) error {
	for i, item := range items {
		if err := CheckCancellation(ctx); err != nil {
			return err
		}
		if err := fn(ctx, item); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		if err := tracker.Increment(ctx, 1); err != nil {
			return err
		}
	}
	return nil
}

// Writer is an io.Writer reporting every byte written as progress,
// for copies and downloads.
type Writer struct {
	ctx     context.Context
	tracker *Tracker
	err     error
}

// NewWriter returns a Writer reporting through tracker.
func NewWriter(ctx context.Context, tracker *Tracker) *Writer {
	return &Writer{ctx: ctx, tracker: tracker}
}

// Write implements io.Writer. A failed notification fails the write.
func (w *Writer) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if err := w.tracker.Increment(w.ctx, float64(len(p))); err != nil {
		w.err = err
		return 0, err
	}
	return len(p), nil
}

// Err returns the first notification failure, if any.
func (w *Writer) Err() error {
	return w.err
}
