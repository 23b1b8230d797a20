package gojob

import (
	"context"
	"fmt"

	"github.com/goliatone/go-buildrequests/core"
	"github.com/goliatone/go-job/queue"
)

// DispatchingCoordinator enqueues every initialized matrix job on a go-job
// queue. Jobs are returned in state created; runners move them forward.
type DispatchingCoordinator struct {
	base     core.BuildCoordinator
	enqueuer queue.Enqueuer
}

func NewDispatchingCoordinator(base core.BuildCoordinator, enqueuer queue.Enqueuer) *DispatchingCoordinator {
	return &DispatchingCoordinator{base: base, enqueuer: enqueuer}
}

func (c *DispatchingCoordinator) InitializeMatrix(ctx context.Context, record core.Record) ([]core.Job, error) {
	if c == nil || c.base == nil {
		return nil, fmt.Errorf("gojob: base build coordinator is required")
	}
	if c.enqueuer == nil {
		return nil, fmt.Errorf("gojob: enqueuer is not configured")
	}
	jobs, err := c.base.InitializeMatrix(ctx, record)
	if err != nil {
		return nil, err
	}
	for _, item := range jobs {
		if item.RequestID == "" {
			item.RequestID = record.ID
		}
		if _, err := c.enqueuer.Enqueue(ctx, ToExecutionMessage(jobRunFromJob(item))); err != nil {
			return nil, fmt.Errorf("gojob: enqueue job %s of request %s: %w", item.Number, record.ID, err)
		}
	}
	return jobs, nil
}

// WithMaxJobs passes the limit to the wrapped coordinator so an oversized
// matrix fails before anything is enqueued. It returns nil when the wrapped
// coordinator cannot enforce a limit.
func (c *DispatchingCoordinator) WithMaxJobs(limit int) core.BuildCoordinator {
	if c == nil {
		return nil
	}
	limiter, ok := c.base.(core.MatrixLimiter)
	if !ok {
		return nil
	}
	limited := limiter.WithMaxJobs(limit)
	if limited == nil {
		return nil
	}
	return NewDispatchingCoordinator(limited, c.enqueuer)
}

var (
	_ core.BuildCoordinator = (*DispatchingCoordinator)(nil)
	_ core.MatrixLimiter    = (*DispatchingCoordinator)(nil)
)
