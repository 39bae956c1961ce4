// Package longrunning provides progress tracking for long-running MCP requests.
//
// A request that carries a progress token in its _meta block can report
// incremental progress. Run opens a scope for it, hands the operation a
// Tracker, and guarantees the tracker is finalized exactly once when the
// operation returns, fails, panics or is cancelled:
//
//	rc := longrunning.NewRequestContext(longrunning.NewMCPSession(mcpServer), req)
//	total := float64(len(items))
//	err := longrunning.Run(ctx, rc, &total, func(ctx context.Context, tr *longrunning.Tracker) error {
//	    return longrunning.ForEach(ctx, tr, items, processItem)
//	})
//
// Requests without a token fail with ErrNoProgressToken. Every Increment sends
// one notification; there is no rate limiting, coalescing or retry. When the
// operation ends below its declared total, finalization snaps progress to the
// total and sends a last notification, even for cancelled operations.
//
// Manager adds a registry on top so running operations can be cancelled by
// notifications/cancelled or when their session ends.
package longrunning
