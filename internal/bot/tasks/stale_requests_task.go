package tasks

import (
	"context"
	"fmt"

	"github.com/edgard/labsage/internal/metrics"
)

// newStaleRequestsTask reports requests stuck in processing. A request stays
// there when the process dies between the pending insert and finalize.
func newStaleRequestsTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", TaskStaleRequests)

	return func(ctx context.Context) error {
		cutoff := deps.Now().Add(-deps.Config.Scheduler.StaleAfter)

		count, err := deps.Store.CountStaleRequests(ctx, cutoff)
		if err != nil {
			log.ErrorContext(ctx, "Failed to count stale requests", "error", err)
			return fmt.Errorf("count stale requests: %w", err)
		}

		metrics.StaleRequests.Set(float64(count))
		if count > 0 {
			log.WarnContext(ctx, "Found requests stuck in processing", "count", count, "cutoff", cutoff)
		} else {
			log.DebugContext(ctx, "No stale requests", "cutoff", cutoff)
		}
		return nil
	}
}
