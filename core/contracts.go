package core

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
)

// RecordStore owns the persisted backing records of build requests.
// CreateFrom builds a record for payload; Save makes the record's current
// state durable and must not return before it is.
type RecordStore interface {
	CreateFrom(ctx context.Context, payload Payload) (Record, error)
	Save(ctx context.Context, record Record) error
}

// RecordReader loads a previously created record.
type RecordReader interface {
	Get(ctx context.Context, id string) (Record, error)
}

// BuildCoordinator initializes the job matrix of an approved request.
// Returned jobs have their state reset to JobStateCreated.
type BuildCoordinator interface {
	InitializeMatrix(ctx context.Context, record Record) ([]Job, error)
}

// MatrixLimiter is implemented by coordinators that can reject a matrix
// larger than limit before persisting or dispatching any of its jobs.
type MatrixLimiter interface {
	WithMaxJobs(limit int) BuildCoordinator
}

type BuildCoordinatorFunc func(ctx context.Context, record Record) ([]Job, error)

func (fn BuildCoordinatorFunc) InitializeMatrix(ctx context.Context, record Record) ([]Job, error) {
	return fn(ctx, record)
}

type StoreProvider interface {
	RecordStore() RecordStore
	BuildCoordinator() BuildCoordinator
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// TransitionEvent describes a completed or failed state transition.
type TransitionEvent struct {
	RequestID string
	Operation string
	From      RequestState
	To        RequestState
	Approved  *bool
	Jobs      int
	Err       error
}

// TransitionObserver is notified after every transition attempt. It must not
// persist the record.
type TransitionObserver func(ctx context.Context, event TransitionEvent)

type RequestService interface {
	CreateRequest(ctx context.Context, payload Payload) (*Request, error)
	LoadRequest(ctx context.Context, id string) (*Request, error)
	StartRequest(ctx context.Context, id string) (Record, error)
	ConfigureRequest(ctx context.Context, id string, overlay map[string]any) (ConfigureResult, error)
	FinishRequest(ctx context.Context, id string) (Record, error)
	GetRequest(ctx context.Context, id string) (Record, error)
	EvaluateBranches(config map[string]any, branch string) BranchDecision
}
