package buildrequests

import "github.com/goliatone/go-buildrequests/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type RecordStore = core.RecordStore
type RecordReader = core.RecordReader
type BuildCoordinator = core.BuildCoordinator
type TransitionEvent = core.TransitionEvent

type Payload = core.Payload
type Repository = core.Repository
type Commit = core.Commit
type Record = core.Record
type Job = core.Job
type RequestState = core.RequestState
type JobState = core.JobState
type BranchDecision = core.BranchDecision
type ConfigureResult = core.ConfigureResult

var (
	WithLogger                    = core.WithLogger
	WithLoggerProvider            = core.WithLoggerProvider
	WithMetricsRecorder           = core.WithMetricsRecorder
	WithErrorFactory              = core.WithErrorFactory
	WithErrorMapper               = core.WithErrorMapper
	WithPersistenceClient         = core.WithPersistenceClient
	WithRepositoryFactory         = core.WithRepositoryFactory
	WithConfigProvider            = core.WithConfigProvider
	WithOptionsResolver           = core.WithOptionsResolver
	WithRecordStore               = core.WithRecordStore
	WithRecordReader              = core.WithRecordReader
	WithBuildCoordinator          = core.WithBuildCoordinator
	WithServiceTransitionObserver = core.WithServiceTransitionObserver
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
