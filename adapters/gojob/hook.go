package gojob

import (
	"context"

	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

// LoggingHook writes go-job worker lifecycle events to a glog logger.
type LoggingHook struct {
	logger glog.Logger
}

func NewLoggingHook(logger glog.Logger) *LoggingHook {
	return &LoggingHook{logger: glog.Ensure(logger)}
}

func (h *LoggingHook) OnStart(ctx context.Context, event worker.Event) {
	h.log(ctx, "info", "build job started", event)
}

func (h *LoggingHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.log(ctx, "info", "build job succeeded", event)
}

func (h *LoggingHook) OnFailure(ctx context.Context, event worker.Event) {
	h.log(ctx, "error", "build job failed", event)
}

func (h *LoggingHook) OnRetry(ctx context.Context, event worker.Event) {
	h.log(ctx, "warn", "build job retry scheduled", event)
}

func (h *LoggingHook) log(ctx context.Context, level string, message string, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	logger := h.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	args := eventArgs(event)
	switch level {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func eventArgs(event worker.Event) []any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	args := []any{"attempt", event.Attempt}
	if run, err := FromExecutionMessage(message); err == nil {
		args = append(args, "request_id", run.RequestID, "job_id", run.JobID, "number", run.Number)
	}
	if event.Delay > 0 {
		args = append(args, "delay", event.Delay.String())
	}
	if event.Duration > 0 {
		args = append(args, "duration_ms", event.Duration.Milliseconds())
	}
	if event.Err != nil {
		args = append(args, "error", event.Err.Error())
	}
	return args
}

var _ worker.Hook = (*LoggingHook)(nil)
