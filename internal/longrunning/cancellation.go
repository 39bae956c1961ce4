package longrunning

import (
	"context"
	"errors"
	"fmt"
)

// ErrOperationCancelled is returned by CheckCancellation when the operation's
// context was cancelled (as opposed to timing out).
var ErrOperationCancelled = errors.New("operation cancelled")

// CheckCancellation checks if the context has been cancelled and returns appropriate error
func CheckCancellation(ctx context.Context) error {
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return fmt.Errorf("%w: %w", ErrOperationCancelled, context.Cause(ctx))
		}
		return ctx.Err()
	default:
		return nil
	}
}
