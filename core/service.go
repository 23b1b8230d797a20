package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	recordStore       RecordStore
	recordReader      RecordReader
	buildCoordinator  BuildCoordinator
	factory           *RequestFactory
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	RecordStore       RecordStore
	RecordReader      RecordReader
	BuildCoordinator  BuildCoordinator
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("buildrequests", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("buildrequests"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if (builder.recordStore == nil || builder.buildCoordinator == nil) && builder.repositoryFactory != nil {
		var stores StoreProvider
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			built, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			stores = built
		} else if direct, ok := builder.repositoryFactory.(StoreProvider); ok {
			stores = direct
		}
		if stores != nil {
			if builder.recordStore == nil {
				builder.recordStore = stores.RecordStore()
			}
			if builder.buildCoordinator == nil {
				builder.buildCoordinator = stores.BuildCoordinator()
			}
			if builder.recordReader == nil {
				if readers, ok := stores.(interface{ RecordReader() RecordReader }); ok {
					builder.recordReader = readers.RecordReader()
				}
			}
		}
	}
	if builder.recordReader == nil {
		if reader, ok := builder.recordStore.(RecordReader); ok {
			builder.recordReader = reader
		}
	}

	coordinator, err := limitMatrix(builder.buildCoordinator, finalConfig.Matrix.MaxJobs)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	svc := &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		recordStore:       builder.recordStore,
		recordReader:      builder.recordReader,
		buildCoordinator:  coordinator,
	}

	observers := append([]TransitionObserver{svc.observeTransition}, builder.observers...)
	svc.factory = NewRequestFactory(
		builder.recordStore,
		coordinator,
		WithStrictBranchFilter(finalConfig.BranchFilter.Strict),
		WithTransitionObserver(func(ctx context.Context, event TransitionEvent) {
			for _, observer := range observers {
				observer(ctx, event)
			}
		}),
	)
	return svc, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		RecordStore:       s.recordStore,
		RecordReader:      s.recordReader,
		BuildCoordinator:  s.buildCoordinator,
	}
}

// Factory exposes the request factory bound to the service's stores.
func (s *Service) Factory() *RequestFactory {
	if s == nil {
		return nil
	}
	return s.factory
}

func (s *Service) CreateRequest(ctx context.Context, payload Payload) (request *Request, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"source":      payload.Source,
		"branch":      payload.Commit.Branch,
		"repository":  payload.Repository.Slug(),
		"delivery_id": payload.DeliveryID,
	}
	defer func() {
		if request != nil {
			fields["request_id"] = request.ID()
			fields["state"] = string(request.State())
		}
		s.observeOperation(ctx, startedAt, "create_request", err, fields)
	}()

	if s == nil || s.factory == nil {
		return nil, s.mapError(dependencyError("core: service is not configured"))
	}
	request, err = s.factory.Create(ctx, payload)
	if err != nil {
		return nil, s.mapError(err)
	}
	return request, nil
}

// LoadRequest rebuilds a Request around a stored record.
func (s *Service) LoadRequest(ctx context.Context, id string) (*Request, error) {
	record, err := s.loadRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.factory.Wrap(record), nil
}

func (s *Service) StartRequest(ctx context.Context, id string) (record Record, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"request_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "start_request", err, fields)
	}()

	request, err := s.LoadRequest(ctx, id)
	if err != nil {
		return Record{}, err
	}
	fields["branch"] = request.Record().Commit.Branch
	if err = request.Start(ctx); err != nil {
		err = s.mapError(err)
		return Record{}, err
	}
	fields["state"] = string(request.State())
	return request.Record(), nil
}

func (s *Service) ConfigureRequest(ctx context.Context, id string, overlay map[string]any) (result ConfigureResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"request_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "configure_request", err, fields)
	}()

	request, err := s.LoadRequest(ctx, id)
	if err != nil {
		return ConfigureResult{}, err
	}
	fields["branch"] = request.Record().Commit.Branch
	result, err = request.Configure(ctx, overlay)
	if err != nil {
		err = s.mapError(err)
		return ConfigureResult{}, err
	}
	fields["state"] = string(result.Record.State)
	fields["filter_kind"] = string(result.Decision.Kind)
	fields["approved"] = result.Decision.Approved
	fields["jobs"] = len(result.Jobs)
	return result, nil
}

func (s *Service) FinishRequest(ctx context.Context, id string) (record Record, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"request_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "finish_request", err, fields)
	}()

	request, err := s.LoadRequest(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if err = request.Finish(ctx); err != nil {
		err = s.mapError(err)
		return Record{}, err
	}
	fields["state"] = string(request.State())
	return request.Record(), nil
}

func (s *Service) GetRequest(ctx context.Context, id string) (Record, error) {
	return s.loadRecord(ctx, id)
}

// EvaluateBranches applies the service's branch filter policy without
// touching any stored request.
func (s *Service) EvaluateBranches(config map[string]any, branch string) BranchDecision {
	strict := false
	if s != nil {
		strict = s.config.BranchFilter.Strict
	}
	decision := ParseFilterSpec(config).Decide(strings.TrimSpace(branch), strict)
	if s != nil {
		s.recordCounter(context.Background(), operationCounterName("evaluate_branches"), 1, map[string]string{
			"filter_kind": string(decision.Kind),
			"approved":    fmt.Sprint(decision.Approved),
		})
	}
	return decision
}

func (s *Service) loadRecord(ctx context.Context, id string) (Record, error) {
	if s == nil || s.recordReader == nil {
		return Record{}, s.mapError(dependencyError("core: record reader is required"))
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Record{}, s.mapError(badInputError("core: request id is required"))
	}
	record, err := s.recordReader.Get(ctx, id)
	if err != nil {
		return Record{}, s.mapError(err)
	}
	if err := record.State.Validate(); err != nil {
		return Record{}, s.mapError(err)
	}
	return record, nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

// limitMatrix hands maxJobs to the coordinator so an oversized matrix is
// rejected during expansion, before any job is stored or dispatched. A
// non-positive limit disables the check.
func limitMatrix(coordinator BuildCoordinator, maxJobs int) (BuildCoordinator, error) {
	if coordinator == nil || maxJobs <= 0 {
		return coordinator, nil
	}
	limiter, ok := coordinator.(MatrixLimiter)
	if !ok {
		return nil, fmt.Errorf("core: matrix.max_jobs is set but build coordinator %T cannot enforce it", coordinator)
	}
	limited := limiter.WithMaxJobs(maxJobs)
	if limited == nil {
		return nil, fmt.Errorf("core: build coordinator %T returned no limited coordinator", coordinator)
	}
	return limited, nil
}
