package gojob

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-buildrequests/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

func TestExecutionMessageRoundTrip(t *testing.T) {
	run := JobRun{
		RequestID: "req-1",
		JobID:     "job-1",
		Number:    "4",
		Config:    map[string]any{"rvm": "2.1", "env": "A=1"},
	}

	msg := ToExecutionMessage(run)
	if msg.JobID != JobIDRunJob {
		t.Fatalf("expected job id %q, got %q", JobIDRunJob, msg.JobID)
	}
	if msg.IdempotencyKey != "req-1:4" {
		t.Fatalf("expected idempotency key req-1:4, got %q", msg.IdempotencyKey)
	}

	decoded, err := FromExecutionMessage(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.RequestID != "req-1" || decoded.JobID != "job-1" || decoded.Number != "4" {
		t.Fatalf("unexpected decoded run: %#v", decoded)
	}
	if decoded.Config["rvm"] != "2.1" {
		t.Fatalf("expected config to survive, got %#v", decoded.Config)
	}

	run.Config["rvm"] = "mutated"
	if msg.Parameters["config"].(map[string]any)["rvm"] != "2.1" {
		t.Fatalf("expected message config to be a copy")
	}
}

func TestFromExecutionMessageRejectsForeignJobs(t *testing.T) {
	if _, err := FromExecutionMessage(nil); err == nil {
		t.Fatalf("expected error for nil message")
	}
	if _, err := FromExecutionMessage(&job.ExecutionMessage{JobID: "other.job"}); err == nil {
		t.Fatalf("expected error for foreign job id")
	}
	if _, err := FromExecutionMessage(&job.ExecutionMessage{JobID: JobIDRunJob}); err == nil {
		t.Fatalf("expected error for missing identifiers")
	}
}

func TestRetryPolicyNormalizeAttempt(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, MaxDelay: time.Second, DeadLetterOnMax: true}

	opts := policy.NormalizeAttempt(queue.NackOptions{Delay: time.Minute, Reason: " boom "}, 1)
	if opts.Delay != time.Second {
		t.Fatalf("expected delay capped at 1s, got %s", opts.Delay)
	}
	if opts.Disposition != queue.NackDispositionRetry {
		t.Fatalf("expected retry below max attempts, got %#v", opts)
	}
	if opts.Reason != "boom" {
		t.Fatalf("expected trimmed reason, got %q", opts.Reason)
	}

	opts = policy.NormalizeAttempt(queue.NackOptions{Disposition: queue.NackDispositionRetry, Delay: time.Second}, 3)
	if opts.Disposition != queue.NackDispositionDeadLetter || opts.Delay != 0 {
		t.Fatalf("expected dead letter on max attempts, got %#v", opts)
	}

	opts = RetryPolicy{MaxAttempts: 1}.NormalizeAttempt(queue.NackOptions{}, 1)
	if opts.Disposition != queue.NackDispositionFailed {
		t.Fatalf("expected failed without dead letter on max, got %#v", opts)
	}

	opts = policy.NormalizeAttempt(queue.NackOptions{Disposition: queue.NackDispositionDeadLetter, Delay: time.Second}, 1)
	if opts.Disposition != queue.NackDispositionDeadLetter || opts.Delay != 0 {
		t.Fatalf("expected explicit dead letter to stick, got %#v", opts)
	}

	opts = RetryPolicy{}.NormalizeAttempt(queue.NackOptions{Delay: -time.Second}, 10)
	if opts.Disposition != queue.NackDispositionRetry || opts.Delay != 0 {
		t.Fatalf("expected unbounded policy to retry with zero delay, got %#v", opts)
	}
}

func TestDispatchingCoordinatorEnqueuesEveryJob(t *testing.T) {
	base := &stubCoordinator{jobs: []core.Job{
		{ID: "job-1", RequestID: "req-1", Number: "1", Config: map[string]any{"rvm": "2.1"}, State: core.JobStateCreated},
		{ID: "job-2", Number: "2", Config: map[string]any{"rvm": "2.2"}, State: core.JobStateCreated},
	}}
	enqueuer := &stubQueueEnqueuer{}
	coordinator := NewDispatchingCoordinator(base, enqueuer)

	jobs, err := coordinator.InitializeMatrix(context.Background(), core.Record{ID: "req-1"})
	if err != nil {
		t.Fatalf("initialize matrix: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if len(enqueuer.messages) != 2 {
		t.Fatalf("expected 2 enqueued messages, got %d", len(enqueuer.messages))
	}
	if enqueuer.messages[1].IdempotencyKey != "req-1:2" {
		t.Fatalf("expected request id fallback in idempotency key, got %q", enqueuer.messages[1].IdempotencyKey)
	}
	for _, item := range jobs {
		if item.State != core.JobStateCreated {
			t.Fatalf("expected jobs to stay created, got %q", item.State)
		}
	}
}

func TestDispatchingCoordinatorPropagatesErrors(t *testing.T) {
	baseErr := errors.New("matrix failed")
	coordinator := NewDispatchingCoordinator(&stubCoordinator{err: baseErr}, &stubQueueEnqueuer{})
	if _, err := coordinator.InitializeMatrix(context.Background(), core.Record{ID: "req-1"}); !errors.Is(err, baseErr) {
		t.Fatalf("expected base error, got %v", err)
	}

	enqueueErr := errors.New("queue down")
	coordinator = NewDispatchingCoordinator(
		&stubCoordinator{jobs: []core.Job{{ID: "job-1", RequestID: "req-1", Number: "1"}}},
		&stubQueueEnqueuer{err: enqueueErr},
	)
	if _, err := coordinator.InitializeMatrix(context.Background(), core.Record{ID: "req-1"}); !errors.Is(err, enqueueErr) {
		t.Fatalf("expected enqueue error, got %v", err)
	}

	if _, err := NewDispatchingCoordinator(&stubCoordinator{}, nil).InitializeMatrix(context.Background(), core.Record{}); err == nil {
		t.Fatalf("expected error without enqueuer")
	}
}

func TestRunnerAcksSuccessfulRuns(t *testing.T) {
	delivery := &stubQueueDelivery{msg: ToExecutionMessage(JobRun{RequestID: "req-1", JobID: "job-1", Number: "1"})}
	states := &stubStateUpdater{}
	var executed JobRun
	runner := NewRunner(&stubQueueDequeuer{delivery: delivery}, states, func(_ context.Context, run JobRun) error {
		executed = run
		return nil
	})

	if err := runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if executed.JobID != "job-1" {
		t.Fatalf("expected job-1 to execute, got %q", executed.JobID)
	}
	if !delivery.acked {
		t.Fatalf("expected delivery ack")
	}
	if got := states.states["job-1"]; len(got) != 2 || got[0] != core.JobStateStarted || got[1] != core.JobStateFinished {
		t.Fatalf("expected started then finished, got %#v", got)
	}
}

func TestRunnerRetriesThenDeadLetters(t *testing.T) {
	delivery := &stubQueueDelivery{msg: ToExecutionMessage(JobRun{RequestID: "req-1", JobID: "job-1", Number: "1"})}
	states := &stubStateUpdater{}
	execErr := errors.New("build broke")
	runner := NewRunner(
		&stubQueueDequeuer{delivery: delivery},
		states,
		func(context.Context, JobRun) error { return execErr },
		WithRetryPolicy(RetryPolicy{MaxAttempts: 2, DeadLetterOnMax: true}),
		WithRetryDelay(time.Second),
	)

	if err := runner.RunOnce(context.Background()); !errors.Is(err, execErr) {
		t.Fatalf("expected execution error, got %v", err)
	}
	if delivery.nackOpts.Disposition != queue.NackDispositionRetry || delivery.nackOpts.Delay != time.Second {
		t.Fatalf("expected first failure to retry with delay, got %#v", delivery.nackOpts)
	}
	if last := states.last("job-1"); last != core.JobStateQueued {
		t.Fatalf("expected job back in queued state, got %q", last)
	}

	if err := runner.RunOnce(context.Background()); !errors.Is(err, execErr) {
		t.Fatalf("expected execution error, got %v", err)
	}
	if delivery.nackOpts.Disposition != queue.NackDispositionDeadLetter {
		t.Fatalf("expected dead letter on second failure, got %#v", delivery.nackOpts)
	}
	if last := states.last("job-1"); last != core.JobStateFinished {
		t.Fatalf("expected dead-lettered job to finish, got %q", last)
	}
}

func TestRunnerDeadLettersUndecodableMessages(t *testing.T) {
	delivery := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: "other.job"}}
	runner := NewRunner(&stubQueueDequeuer{delivery: delivery}, nil, func(context.Context, JobRun) error {
		t.Fatalf("execute should not run for foreign messages")
		return nil
	})

	if err := runner.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected decode error")
	}
	if delivery.nackOpts.Disposition != queue.NackDispositionDeadLetter {
		t.Fatalf("expected dead letter for undecodable message")
	}
}

func TestRunnerDeadLettersMissingJobRow(t *testing.T) {
	delivery := &stubQueueDelivery{msg: ToExecutionMessage(JobRun{RequestID: "req-1", JobID: "job-gone", Number: "3"})}
	states := &stubStateUpdater{errs: map[core.JobState]error{
		core.JobStateStarted: fmt.Errorf("sqlstore: %w", core.ErrJobNotFound),
	}}
	runner := NewRunner(&stubQueueDequeuer{delivery: delivery}, states, func(context.Context, JobRun) error {
		t.Fatalf("execute should not run for a missing job row")
		return nil
	})

	err := runner.RunOnce(context.Background())
	if !errors.Is(err, core.ErrJobNotFound) {
		t.Fatalf("expected job not found, got %v", err)
	}
	if delivery.nacks != 1 || delivery.nackOpts.Disposition != queue.NackDispositionDeadLetter {
		t.Fatalf("expected one dead-letter nack, got %d %#v", delivery.nacks, delivery.nackOpts)
	}
	if delivery.acked {
		t.Fatalf("expected no ack for a missing job row")
	}
}

func TestRunnerRetriesWhenStartUpdateFails(t *testing.T) {
	delivery := &stubQueueDelivery{msg: ToExecutionMessage(JobRun{RequestID: "req-1", JobID: "job-1", Number: "1"})}
	dbErr := errors.New("database locked")
	states := &stubStateUpdater{errs: map[core.JobState]error{core.JobStateStarted: dbErr}}
	executed := 0
	runner := NewRunner(&stubQueueDequeuer{delivery: delivery}, states, func(context.Context, JobRun) error {
		executed++
		return nil
	}, WithRetryDelay(time.Second))

	if err := runner.RunOnce(context.Background()); !errors.Is(err, dbErr) {
		t.Fatalf("expected start update error, got %v", err)
	}
	if executed != 0 {
		t.Fatalf("expected execute skipped when start cannot be recorded")
	}
	if delivery.nacks != 1 || delivery.nackOpts.Disposition != queue.NackDispositionRetry {
		t.Fatalf("expected retry nack, got %d %#v", delivery.nacks, delivery.nackOpts)
	}
}

func TestRunnerAcksWhenFinishUpdateFails(t *testing.T) {
	delivery := &stubQueueDelivery{msg: ToExecutionMessage(JobRun{RequestID: "req-1", JobID: "job-1", Number: "1"})}
	dbErr := errors.New("database locked")
	states := &stubStateUpdater{errs: map[core.JobState]error{core.JobStateFinished: dbErr}}
	runner := NewRunner(&stubQueueDequeuer{delivery: delivery}, states, func(context.Context, JobRun) error {
		return nil
	})

	if err := runner.RunOnce(context.Background()); !errors.Is(err, dbErr) {
		t.Fatalf("expected finish update error, got %v", err)
	}
	if !delivery.acked || delivery.nacks != 0 {
		t.Fatalf("expected successful run acked despite state error, acked=%t nacks=%d", delivery.acked, delivery.nacks)
	}
}

func TestRunnerNacksWhenRequeueUpdateFails(t *testing.T) {
	delivery := &stubQueueDelivery{msg: ToExecutionMessage(JobRun{RequestID: "req-1", JobID: "job-1", Number: "1"})}
	dbErr := errors.New("database locked")
	execErr := errors.New("build broke")
	states := &stubStateUpdater{errs: map[core.JobState]error{core.JobStateQueued: dbErr}}
	runner := NewRunner(&stubQueueDequeuer{delivery: delivery}, states, func(context.Context, JobRun) error {
		return execErr
	})

	err := runner.RunOnce(context.Background())
	if !errors.Is(err, execErr) || !errors.Is(err, dbErr) {
		t.Fatalf("expected execution and state errors, got %v", err)
	}
	if delivery.nacks != 1 || delivery.nackOpts.Disposition != queue.NackDispositionRetry {
		t.Fatalf("expected retry nack despite state error, got %d %#v", delivery.nacks, delivery.nackOpts)
	}
}

func TestRunnerDeadLettersNonRetryableErrors(t *testing.T) {
	delivery := &stubQueueDelivery{msg: ToExecutionMessage(JobRun{RequestID: "req-1", JobID: "job-1", Number: "1"})}
	states := &stubStateUpdater{}
	terminal := job.NewTerminalError(job.TerminalErrorCodeStaleStateMismatch, "request finished elsewhere", nil)
	runner := NewRunner(&stubQueueDequeuer{delivery: delivery}, states, func(context.Context, JobRun) error {
		return terminal
	})

	if err := runner.RunOnce(context.Background()); !errors.Is(err, terminal) {
		t.Fatalf("expected terminal error, got %v", err)
	}
	if delivery.nackOpts.Disposition != queue.NackDispositionDeadLetter {
		t.Fatalf("expected dead letter on first non-retryable failure, got %#v", delivery.nackOpts)
	}
	if last := states.last("job-1"); last != core.JobStateFinished {
		t.Fatalf("expected dead-lettered job to finish, got %q", last)
	}
}

func TestLoggingHookWritesEventFields(t *testing.T) {
	logger := &capturingLogger{}
	hook := NewLoggingHook(logger)

	hook.OnRetry(context.Background(), worker.Event{
		Message:   ToExecutionMessage(JobRun{RequestID: "req-1", JobID: "job-1", Number: "3"}),
		Attempt:   2,
		Delay:     5 * time.Second,
		Err:       errors.New("retry"),
		StartedAt: time.Now().UTC(),
		Duration:  250 * time.Millisecond,
	})

	if logger.level != "warn" || logger.msg != "build job retry scheduled" {
		t.Fatalf("unexpected log call: %s %q", logger.level, logger.msg)
	}
	fields := map[string]any{}
	for i := 0; i+1 < len(logger.args); i += 2 {
		fields[logger.args[i].(string)] = logger.args[i+1]
	}
	if fields["request_id"] != "req-1" || fields["number"] != "3" {
		t.Fatalf("expected job identifiers in fields, got %#v", fields)
	}
	if fields["attempt"] != 2 || fields["error"] != "retry" || fields["delay"] != "5s" {
		t.Fatalf("unexpected fields: %#v", fields)
	}

	hook.OnFailure(context.Background(), worker.Event{Err: errors.New("boom")})
	if logger.level != "error" {
		t.Fatalf("expected error level, got %s", logger.level)
	}
}

type stubCoordinator struct {
	jobs []core.Job
	err  error
}

func (s *stubCoordinator) InitializeMatrix(context.Context, core.Record) ([]core.Job, error) {
	if s.err != nil {
		return nil, s.err
	}
	return append([]core.Job(nil), s.jobs...), nil
}

type stubStateUpdater struct {
	states map[string][]core.JobState
	errs   map[core.JobState]error
}

func (s *stubStateUpdater) UpdateState(_ context.Context, id string, state core.JobState) error {
	if err := s.errs[state]; err != nil {
		return err
	}
	if s.states == nil {
		s.states = map[string][]core.JobState{}
	}
	s.states[id] = append(s.states[id], state)
	return nil
}

func (s *stubStateUpdater) last(id string) core.JobState {
	items := s.states[id]
	if len(items) == 0 {
		return ""
	}
	return items[len(items)-1]
}

type stubQueueEnqueuer struct {
	messages []*job.ExecutionMessage
	err      error
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	if s.err != nil {
		return queue.EnqueueReceipt{}, s.err
	}
	s.messages = append(s.messages, msg)
	return queue.EnqueueReceipt{DispatchID: msg.IdempotencyKey}, nil
}

type stubQueueDequeuer struct {
	delivery queue.Delivery
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	return s.delivery, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nacks    int
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nacks++
	s.nackOpts = opts
	return nil
}

type capturingLogger struct {
	level string
	msg   string
	args  []any
}

func (l *capturingLogger) capture(level, msg string, args []any) {
	l.level = level
	l.msg = msg
	l.args = append([]any(nil), args...)
}

func (l *capturingLogger) Trace(string, ...any)          {}
func (l *capturingLogger) Debug(string, ...any)          {}
func (l *capturingLogger) Fatal(string, ...any)          {}
func (l *capturingLogger) Info(msg string, args ...any)  { l.capture("info", msg, args) }
func (l *capturingLogger) Warn(msg string, args ...any)  { l.capture("warn", msg, args) }
func (l *capturingLogger) Error(msg string, args ...any) { l.capture("error", msg, args) }

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}

var (
	_ queue.Enqueuer = (*stubQueueEnqueuer)(nil)
	_ queue.Dequeuer = (*stubQueueDequeuer)(nil)
	_ queue.Delivery = (*stubQueueDelivery)(nil)
)
