package summary

import (
	"context"
	"time"
)

// pollInterval bounds how long the loop sleeps before re-reading the
// schedule, so a schedule changed by another process is picked up.
const pollInterval = time.Hour

// retryDelay is the pause after a failed run.
const retryDelay = 15 * time.Minute

// Start registers the task and runs it in the background until ctx is
// cancelled.
func (t *Task) Start(ctx context.Context) {
	if _, err := t.Register(ctx); err != nil {
		t.logger.ErrorContext(ctx, "failed to register summary report", "error", err)
	}
	go t.runLoop(ctx)
}

func (t *Task) runLoop(ctx context.Context) {
	failed := false
	for {
		wait := pollInterval
		if s, ok, err := t.Schedule(ctx); err == nil && ok {
			if until := s.NextRun.Sub(t.now()); until < wait {
				wait = until
			}
		}
		if wait < 0 {
			wait = 0
		}
		if failed && wait < retryDelay {
			wait = retryDelay
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			_, err := t.Run(ctx)
			failed = err != nil
			if failed {
				t.logger.ErrorContext(ctx, "summary report failed", "error", err)
			}
			if _, err := t.Register(ctx); err != nil {
				t.logger.ErrorContext(ctx, "failed to register summary report", "error", err)
			}
		}
	}
}
