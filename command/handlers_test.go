package command

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-buildrequests/core"
	"github.com/goliatone/go-buildrequests/inbound"
	gocmd "github.com/goliatone/go-command"
)

type stubLifecycleService struct {
	createFn    func(ctx context.Context, payload core.Payload) (*core.Request, error)
	startFn     func(ctx context.Context, id string) (core.Record, error)
	configureFn func(ctx context.Context, id string, overlay map[string]any) (core.ConfigureResult, error)
	finishFn    func(ctx context.Context, id string) (core.Record, error)
}

func (s stubLifecycleService) CreateRequest(ctx context.Context, payload core.Payload) (*core.Request, error) {
	if s.createFn == nil {
		return nil, errors.New("unexpected create")
	}
	return s.createFn(ctx, payload)
}

func (s stubLifecycleService) StartRequest(ctx context.Context, id string) (core.Record, error) {
	if s.startFn == nil {
		return core.Record{}, errors.New("unexpected start")
	}
	return s.startFn(ctx, id)
}

func (s stubLifecycleService) ConfigureRequest(ctx context.Context, id string, overlay map[string]any) (core.ConfigureResult, error) {
	if s.configureFn == nil {
		return core.ConfigureResult{}, errors.New("unexpected configure")
	}
	return s.configureFn(ctx, id, overlay)
}

func (s stubLifecycleService) FinishRequest(ctx context.Context, id string) (core.Record, error) {
	if s.finishFn == nil {
		return core.Record{}, errors.New("unexpected finish")
	}
	return s.finishFn(ctx, id)
}

type stubIngester struct {
	result inbound.IngestResult
	err    error
	calls  int
}

func (s *stubIngester) Ingest(context.Context, core.Payload) (inbound.IngestResult, error) {
	s.calls++
	return s.result, s.err
}

func TestCreateRequestCommand_ExecuteStoresRecord(t *testing.T) {
	factory := core.NewRequestFactory(nil, nil)
	svc := stubLifecycleService{
		createFn: func(_ context.Context, payload core.Payload) (*core.Request, error) {
			if payload.Commit.Branch != "main" {
				t.Fatalf("expected branch main, got %q", payload.Commit.Branch)
			}
			return factory.Wrap(core.Record{ID: "req_1", State: core.RequestStateCreated, Commit: payload.Commit}), nil
		},
	}

	collector := gocmd.NewResult[core.Record]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := NewCreateRequestCommand(svc).Execute(ctx, CreateRequestMessage{
		Payload: core.Payload{Source: "github", Commit: core.Commit{Branch: "main"}},
	})
	if err != nil {
		t.Fatalf("execute create: %v", err)
	}
	record, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if record.ID != "req_1" || record.State != core.RequestStateCreated {
		t.Fatalf("unexpected record: %#v", record)
	}
}

func TestLifecycleCommands_DelegateToService(t *testing.T) {
	t.Run("start", func(t *testing.T) {
		svc := stubLifecycleService{
			startFn: func(_ context.Context, id string) (core.Record, error) {
				return core.Record{ID: id, State: core.RequestStateStarted}, nil
			},
		}
		collector := gocmd.NewResult[core.Record]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewStartRequestCommand(svc).Execute(ctx, StartRequestMessage{RequestID: "req_1"}); err != nil {
			t.Fatalf("execute start: %v", err)
		}
		record, ok := collector.Load()
		if !ok || record.State != core.RequestStateStarted {
			t.Fatalf("expected started record result, got %#v", record)
		}
	})

	t.Run("configure", func(t *testing.T) {
		svc := stubLifecycleService{
			configureFn: func(_ context.Context, id string, overlay map[string]any) (core.ConfigureResult, error) {
				if id != "req_1" || overlay["rvm"] != "2.1" {
					t.Fatalf("unexpected configure payload: %q %#v", id, overlay)
				}
				return core.ConfigureResult{
					Record:   core.Record{ID: id, State: core.RequestStateFinished},
					Decision: core.BranchDecision{Branch: "main", Approved: true, Kind: core.FilterKindNone},
					Jobs:     []core.Job{{Number: "1"}},
				}, nil
			},
		}
		collector := gocmd.NewResult[core.ConfigureResult]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		err := NewConfigureRequestCommand(svc).Execute(ctx, ConfigureRequestMessage{
			RequestID: "req_1",
			Overlay:   map[string]any{"rvm": "2.1"},
		})
		if err != nil {
			t.Fatalf("execute configure: %v", err)
		}
		result, ok := collector.Load()
		if !ok || !result.Decision.Approved || len(result.Jobs) != 1 {
			t.Fatalf("unexpected configure result: %#v", result)
		}
	})

	t.Run("finish propagates errors", func(t *testing.T) {
		expected := errors.New("store down")
		svc := stubLifecycleService{
			finishFn: func(context.Context, string) (core.Record, error) {
				return core.Record{}, expected
			},
		}
		err := NewFinishRequestCommand(svc).Execute(context.Background(), FinishRequestMessage{RequestID: "req_1"})
		if !errors.Is(err, expected) {
			t.Fatalf("expected service error, got %v", err)
		}
	})
}

func TestIngestPayloadCommand_StoresIngestResult(t *testing.T) {
	ingester := &stubIngester{result: inbound.IngestResult{RequestID: "req_1", Approved: true, Jobs: 2}}
	collector := gocmd.NewResult[inbound.IngestResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := NewIngestPayloadCommand(ingester).Execute(ctx, IngestPayloadMessage{
		Payload: core.Payload{Commit: core.Commit{Branch: "main"}},
	})
	if err != nil {
		t.Fatalf("execute ingest: %v", err)
	}
	if ingester.calls != 1 {
		t.Fatalf("expected one ingest call, got %d", ingester.calls)
	}
	result, ok := collector.Load()
	if !ok || result.Jobs != 2 {
		t.Fatalf("unexpected ingest result: %#v", result)
	}
}

func TestCommands_ExecuteWithoutCollector(t *testing.T) {
	svc := stubLifecycleService{
		finishFn: func(_ context.Context, id string) (core.Record, error) {
			return core.Record{ID: id, State: core.RequestStateFinished}, nil
		},
	}
	if err := NewFinishRequestCommand(svc).Execute(context.Background(), FinishRequestMessage{RequestID: "req_1"}); err != nil {
		t.Fatalf("execute finish without collector: %v", err)
	}
}
