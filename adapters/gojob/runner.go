package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-buildrequests/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

// JobStateUpdater persists job progress. sqlstore.JobStore satisfies it.
type JobStateUpdater interface {
	UpdateState(ctx context.Context, id string, state core.JobState) error
}

type ExecuteFunc func(ctx context.Context, run JobRun) error

// Runner pulls job runs off a queue, executes them and records job state.
type Runner struct {
	dequeuer queue.Dequeuer
	states   JobStateUpdater
	execute  ExecuteFunc
	policy   RetryPolicy
	delay    time.Duration

	mu       sync.Mutex
	attempts map[string]int
}

type RunnerOption func(*Runner)

func WithRetryPolicy(policy RetryPolicy) RunnerOption {
	return func(r *Runner) {
		r.policy = policy
	}
}

func WithRetryDelay(delay time.Duration) RunnerOption {
	return func(r *Runner) {
		if delay >= 0 {
			r.delay = delay
		}
	}
}

func NewRunner(dequeuer queue.Dequeuer, states JobStateUpdater, execute ExecuteFunc, opts ...RunnerOption) *Runner {
	runner := &Runner{
		dequeuer: dequeuer,
		states:   states,
		execute:  execute,
		policy:   RetryPolicy{MaxAttempts: 3, MaxDelay: time.Minute, DeadLetterOnMax: true},
		delay:    5 * time.Second,
		attempts: map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(runner)
		}
	}
	return runner
}

// RunOnce handles a single delivery. Every decoded delivery is settled with
// Ack or Nack, even when recording job state fails. Execution errors nack the
// delivery under the retry policy and are returned to the caller.
func (r *Runner) RunOnce(ctx context.Context) error {
	if r == nil || r.dequeuer == nil {
		return fmt.Errorf("gojob: dequeuer is not configured")
	}
	if r.execute == nil {
		return fmt.Errorf("gojob: execute func is required")
	}
	delivery, err := r.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	run, err := FromExecutionMessage(delivery.Message())
	if err != nil {
		nackErr := delivery.Nack(ctx, queue.NackOptions{
			Disposition: queue.NackDispositionDeadLetter,
			Reason:      err.Error(),
		})
		if nackErr != nil {
			return fmt.Errorf("%w; nack: %v", err, nackErr)
		}
		return err
	}

	if err := r.updateState(ctx, run.JobID, core.JobStateStarted); err != nil {
		return r.nack(ctx, delivery, run, err, false)
	}
	execErr := r.execute(ctx, run)
	if execErr == nil {
		r.forget(run)
		stateErr := r.updateState(ctx, run.JobID, core.JobStateFinished)
		if ackErr := delivery.Ack(ctx); ackErr != nil {
			return errors.Join(stateErr, fmt.Errorf("gojob: ack job %s: %w", run.JobID, ackErr))
		}
		return stateErr
	}
	return r.nack(ctx, delivery, run, execErr, true)
}

// nack settles a failed delivery. A job whose row no longer exists, or an
// error marked non-retryable, is dead-lettered. When recordState is set the
// job moves back to queued on retry and to finished otherwise.
func (r *Runner) nack(ctx context.Context, delivery queue.Delivery, run JobRun, cause error, recordState bool) error {
	opts := queue.NackOptions{
		Disposition: queue.NackDispositionRetry,
		Delay:       r.delay,
		Reason:      strings.TrimSpace(cause.Error()),
	}
	var terminal job.NonRetryableError
	if errors.Is(cause, core.ErrJobNotFound) ||
		(errors.As(cause, &terminal) && terminal.NonRetryable()) {
		opts.Disposition = queue.NackDispositionDeadLetter
	}
	opts = r.policy.NormalizeAttempt(opts, r.recordAttempt(run))
	if !retries(opts) {
		r.forget(run)
	}

	var stateErr error
	if recordState {
		next := core.JobStateFinished
		if retries(opts) {
			next = core.JobStateQueued
		}
		stateErr = r.updateState(ctx, run.JobID, next)
	}
	if err := delivery.Nack(ctx, opts); err != nil {
		return errors.Join(cause, stateErr, fmt.Errorf("gojob: nack job %s: %w", run.JobID, err))
	}
	return errors.Join(cause, stateErr)
}

func (r *Runner) updateState(ctx context.Context, id string, state core.JobState) error {
	if r.states == nil {
		return nil
	}
	if err := r.states.UpdateState(ctx, id, state); err != nil {
		return fmt.Errorf("gojob: update job %s to %s: %w", id, state, err)
	}
	return nil
}

func (r *Runner) recordAttempt(run JobRun) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := run.IdempotencyKey()
	r.attempts[key]++
	return r.attempts[key]
}

func (r *Runner) forget(run JobRun) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attempts, run.IdempotencyKey())
}
