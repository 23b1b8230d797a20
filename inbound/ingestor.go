package inbound

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-buildrequests/buildconfig"
	"github.com/goliatone/go-buildrequests/core"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// RequestCreator is the slice of core.Service the ingestor needs.
type RequestCreator interface {
	CreateRequest(ctx context.Context, payload core.Payload) (*core.Request, error)
}

type IngestResult struct {
	RequestID  string
	State      core.RequestState
	Approved   bool
	FilterKind core.FilterKind
	Jobs       int
	Deduped    bool
}

type Ingestor struct {
	requests     RequestCreator
	guard        DeliveryGuard
	configs      ConfigSource
	dedupeWindow time.Duration
	rejectDupes  bool
	logger       core.Logger
}

// ErrDuplicateDelivery is returned for already claimed deliveries when the
// ingestor rejects duplicates instead of reporting them as deduped.
var ErrDuplicateDelivery = errors.New("inbound: duplicate delivery")

type IngestorOption func(*Ingestor)

// WithDeliveryGuard replaces the in-memory guard. A nil guard disables
// duplicate detection.
func WithDeliveryGuard(guard DeliveryGuard) IngestorOption {
	return func(i *Ingestor) {
		i.guard = guard
	}
}

func WithConfigSource(source ConfigSource) IngestorOption {
	return func(i *Ingestor) {
		i.configs = source
	}
}

func WithDedupeWindow(window time.Duration) IngestorOption {
	return func(i *Ingestor) {
		if window > 0 {
			i.dedupeWindow = window
		}
	}
}

// WithRejectDuplicates makes Ingest fail with a conflict for claimed
// deliveries.
func WithRejectDuplicates() IngestorOption {
	return func(i *Ingestor) {
		i.rejectDupes = true
	}
}

func WithLogger(logger core.Logger) IngestorOption {
	return func(i *Ingestor) {
		if logger != nil {
			i.logger = logger
		}
	}
}

func NewIngestor(requests RequestCreator, opts ...IngestorOption) *Ingestor {
	ingestor := &Ingestor{
		requests:     requests,
		guard:        NewInMemoryDeliveryGuard(),
		dedupeWindow: DefaultDedupeWindow,
		logger:       glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ingestor)
		}
	}
	ingestor.logger = glog.Ensure(ingestor.logger)
	return ingestor
}

// NewIngestorFromConfig applies the ingest section of cfg.
func NewIngestorFromConfig(requests RequestCreator, cfg core.IngestConfig, opts ...IngestorOption) *Ingestor {
	base := []IngestorOption{
		WithDedupeWindow(time.Duration(cfg.DedupeWindowSeconds) * time.Second),
	}
	return NewIngestor(requests, append(base, opts...)...)
}

// Ingest runs one payload through create, start, config load and configure.
// Payloads without a delivery id are never deduplicated.
func (i *Ingestor) Ingest(ctx context.Context, payload core.Payload) (IngestResult, error) {
	if i == nil || i.requests == nil {
		return IngestResult{}, inboundInternal("inbound: ingestor is not configured", nil)
	}
	if err := payload.Validate(); err != nil {
		return IngestResult{}, inboundWrapError(
			err,
			goerrors.CategoryBadInput,
			"inbound: invalid payload",
			http.StatusBadRequest,
			core.ErrorBadInput,
			map[string]any{"source": payload.Source, "delivery_id": payload.DeliveryID},
		)
	}
	fields := map[string]any{
		"source":      payload.Source,
		"delivery_id": payload.DeliveryID,
		"repository":  payload.Repository.Slug(),
		"branch":      payload.Commit.Branch,
	}

	claimed := false
	if i.guard != nil && strings.TrimSpace(payload.DeliveryID) != "" {
		accepted, err := i.guard.Claim(ctx, payload.Source, payload.DeliveryID, i.dedupeWindow)
		if err != nil {
			return IngestResult{}, inboundWrapError(
				err,
				goerrors.CategoryOperation,
				"inbound: delivery claim failed",
				http.StatusInternalServerError,
				core.ErrorInternal,
				fields,
			)
		}
		if !accepted {
			i.log("info", "duplicate delivery dropped", fields)
			if i.rejectDupes {
				return IngestResult{Deduped: true}, inboundWrapError(
					ErrDuplicateDelivery,
					goerrors.CategoryConflict,
					"inbound: delivery already claimed",
					http.StatusConflict,
					core.ErrorDuplicateDelivery,
					fields,
				)
			}
			return IngestResult{Deduped: true}, nil
		}
		claimed = true
	}
	release := func() {
		if !claimed {
			return
		}
		if err := i.guard.Release(ctx, payload.Source, payload.DeliveryID); err != nil {
			i.log("warn", "release delivery claim failed", withError(fields, err))
		}
	}

	request, err := i.requests.CreateRequest(ctx, payload)
	if err != nil {
		release()
		return IngestResult{}, err
	}
	fields["request_id"] = request.ID()

	if err := request.Start(ctx); err != nil {
		i.abandon(ctx, request, fields)
		release()
		return resultFor(request), err
	}

	raw, err := i.fetchConfig(ctx, payload)
	if err != nil {
		i.abandon(ctx, request, fields)
		release()
		return resultFor(request), inboundWrapError(
			err,
			goerrors.CategoryExternal,
			"inbound: load build config",
			http.StatusBadGateway,
			core.ErrorInternal,
			fields,
		)
	}
	overlay, err := buildconfig.Parse(raw)
	if err != nil {
		// Redelivering the same commit cannot fix the document, so the claim stays.
		i.abandon(ctx, request, fields)
		return resultFor(request), inboundWrapError(
			err,
			goerrors.CategoryBadInput,
			"inbound: invalid build config",
			http.StatusUnprocessableEntity,
			core.ErrorBadInput,
			fields,
		)
	}

	configured, err := request.Configure(ctx, overlay)
	if err != nil {
		i.abandon(ctx, request, fields)
		release()
		return resultFor(request), err
	}

	result := IngestResult{
		RequestID:  request.ID(),
		State:      configured.Record.State,
		Approved:   configured.Decision.Approved,
		FilterKind: configured.Decision.Kind,
		Jobs:       len(configured.Jobs),
	}
	fields["approved"] = result.Approved
	fields["filter_kind"] = string(result.FilterKind)
	fields["jobs"] = result.Jobs
	i.log("info", "build request ingested", fields)
	return result, nil
}

func (i *Ingestor) fetchConfig(ctx context.Context, payload core.Payload) ([]byte, error) {
	if i.configs == nil {
		return nil, nil
	}
	return i.configs.Fetch(ctx, payload)
}

// abandon finishes a request that cannot complete ingestion so it does not
// stay open. Failures are logged only.
func (i *Ingestor) abandon(ctx context.Context, request *core.Request, fields map[string]any) {
	if request == nil || request.State() == core.RequestStateFinished {
		return
	}
	if err := request.Finish(ctx); err != nil {
		i.log("warn", "finish abandoned request failed", withError(fields, err))
		return
	}
	i.log("warn", "build request abandoned", fields)
}

func (i *Ingestor) log(level string, message string, fields map[string]any) {
	logger := i.logger
	if logger == nil {
		return
	}
	if fieldsLogger, ok := logger.(core.FieldsLogger); ok {
		logger = fieldsLogger.WithFields(copyFields(fields))
	}
	args := flattenFields(fields)
	switch level {
	case "warn":
		logger.Warn(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func resultFor(request *core.Request) IngestResult {
	if request == nil {
		return IngestResult{}
	}
	return IngestResult{
		RequestID: request.ID(),
		State:     request.State(),
	}
}

func withError(fields map[string]any, err error) map[string]any {
	out := copyFields(fields)
	if err != nil {
		out["error"] = err.Error()
	}
	return out
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		out[key] = value
	}
	return out
}

func flattenFields(fields map[string]any) []any {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

// IsDuplicateDelivery reports whether err is a rejected duplicate delivery.
func IsDuplicateDelivery(err error) bool {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil {
		return rich.TextCode == core.ErrorDuplicateDelivery
	}
	return errors.Is(err, ErrDuplicateDelivery)
}
