package gojob

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-buildrequests/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const (
	JobIDRunJob      = "buildrequests.job.run"
	ScriptPathRunJob = "buildrequests/job/run"

	paramRequestID = "request_id"
	paramJobID     = "job_id"
	paramNumber    = "number"
	paramConfig    = "config"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation. An
// empty disposition means retry; once MaxAttempts is reached the delivery is
// dead-lettered, or failed when DeadLetterOnMax is off.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.Disposition == "" {
		out.Disposition = queue.NackDispositionRetry
	}
	if out.Disposition != queue.NackDispositionRetry {
		out.Delay = 0
		return out
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Delay = 0
		out.Disposition = queue.NackDispositionFailed
		if p.DeadLetterOnMax {
			out.Disposition = queue.NackDispositionDeadLetter
		}
	}
	return out
}

func retries(opts queue.NackOptions) bool {
	return opts.Disposition == queue.NackDispositionRetry
}

// JobRun is the queue payload for one matrix job.
type JobRun struct {
	RequestID string
	JobID     string
	Number    string
	Config    map[string]any
}

// IdempotencyKey is stable per (request, job number) so a re-configured
// request does not enqueue the same row twice.
func (r JobRun) IdempotencyKey() string {
	return strings.TrimSpace(r.RequestID) + ":" + strings.TrimSpace(r.Number)
}

func jobRunFromJob(item core.Job) JobRun {
	return JobRun{
		RequestID: item.RequestID,
		JobID:     item.ID,
		Number:    item.Number,
		Config:    core.CloneConfig(item.Config),
	}
}

// ToExecutionMessage maps a job run to a go-job message.
func ToExecutionMessage(run JobRun) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:      JobIDRunJob,
		ScriptPath: ScriptPathRunJob,
		Parameters: map[string]any{
			paramRequestID: strings.TrimSpace(run.RequestID),
			paramJobID:     strings.TrimSpace(run.JobID),
			paramNumber:    strings.TrimSpace(run.Number),
			paramConfig:    core.CloneConfig(run.Config),
		},
		IdempotencyKey: run.IdempotencyKey(),
		DedupPolicy:    job.DedupPolicyDrop,
	}
}

// FromExecutionMessage decodes a go-job message produced by ToExecutionMessage.
func FromExecutionMessage(msg *job.ExecutionMessage) (JobRun, error) {
	if msg == nil {
		return JobRun{}, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDRunJob {
		return JobRun{}, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	run := JobRun{
		RequestID: stringParam(msg.Parameters, paramRequestID),
		JobID:     stringParam(msg.Parameters, paramJobID),
		Number:    stringParam(msg.Parameters, paramNumber),
	}
	if config, ok := msg.Parameters[paramConfig].(map[string]any); ok {
		run.Config = core.CloneConfig(config)
	}
	if run.JobID == "" || run.RequestID == "" {
		return JobRun{}, fmt.Errorf("gojob: job run message is missing request or job id")
	}
	return run, nil
}

func stringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	if typed, ok := value.(string); ok {
		return strings.TrimSpace(typed)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}
