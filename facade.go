package buildrequests

import (
	"fmt"
	"io/fs"
	"reflect"

	"github.com/goliatone/go-buildrequests/adapters/gocommand"
	"github.com/goliatone/go-buildrequests/adapters/gologger"
	buildcommand "github.com/goliatone/go-buildrequests/command"
	"github.com/goliatone/go-buildrequests/core"
	"github.com/goliatone/go-buildrequests/inbound"
	buildquery "github.com/goliatone/go-buildrequests/query"
	"github.com/goliatone/go-command/runner"
	glog "github.com/goliatone/go-logger/glog"
)

type CommandQueryService interface {
	buildcommand.LifecycleService
	buildquery.RequestReader
	buildquery.BranchEvaluator
}

type Commands struct {
	CreateRequest    *buildcommand.CreateRequestCommand
	StartRequest     *buildcommand.StartRequestCommand
	ConfigureRequest *buildcommand.ConfigureRequestCommand
	FinishRequest    *buildcommand.FinishRequestCommand
	IngestPayload    *buildcommand.IngestPayloadCommand
	PurgeDeliveries  *buildcommand.PurgeDeliveriesCommand
}

type Queries struct {
	GetRequest       *buildquery.GetRequestQuery
	ListRequests     *buildquery.ListRequestsQuery
	ListJobs         *buildquery.ListJobsQuery
	EvaluateBranches *buildquery.EvaluateBranchesQuery
}

// Facade bundles the command, query and ingest surface over one service.
type Facade struct {
	service  CommandQueryService
	ingestor *inbound.Ingestor
	commands Commands
	queries  Queries
	handlers gocommand.BuildRequestHandlers
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	requestLister  buildquery.RequestLister
	jobLister      buildquery.JobLister
	deliveryGuard  inbound.DeliveryGuard
	configFS       fs.FS
	ingestorOpts   []inbound.IngestorOption
	loggerProvider glog.LoggerProvider
	logger         glog.Logger
}

func WithRequestLister(lister buildquery.RequestLister) FacadeOption {
	return func(options *facadeOptions) {
		options.requestLister = lister
	}
}

func WithJobLister(lister buildquery.JobLister) FacadeOption {
	return func(options *facadeOptions) {
		options.jobLister = lister
	}
}

// WithDeliveryGuard overrides the guard resolved from the repository factory.
func WithDeliveryGuard(guard inbound.DeliveryGuard) FacadeOption {
	return func(options *facadeOptions) {
		options.deliveryGuard = guard
	}
}

// WithConfigFS loads build configs from a checkout mirror laid out as
// <owner>/<name>/<ingest.config_path>.
func WithConfigFS(fsys fs.FS) FacadeOption {
	return func(options *facadeOptions) {
		options.configFS = fsys
	}
}

func WithIngestorOptions(opts ...inbound.IngestorOption) FacadeOption {
	return func(options *facadeOptions) {
		options.ingestorOpts = append(options.ingestorOpts, opts...)
	}
}

func WithFacadeLogger(provider glog.LoggerProvider, logger glog.Logger) FacadeOption {
	return func(options *facadeOptions) {
		options.loggerProvider = provider
		options.logger = logger
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("buildrequests: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	factory := repositoryFactoryOf(service)
	requestLister := cfg.requestLister
	if requestLister == nil {
		requestLister = resolveFromFactory[buildquery.RequestLister](factory, "RequestStore")
	}
	jobLister := cfg.jobLister
	if jobLister == nil {
		jobLister = resolveFromFactory[buildquery.JobLister](factory, "JobStore")
	}
	guard := cfg.deliveryGuard
	if guard == nil {
		guard = resolveFromFactory[inbound.DeliveryGuard](factory, "DeliveryStore")
	}
	purger, _ := guard.(buildcommand.DeliveryPurger)

	ingestCfg := core.DefaultConfig().Ingest
	if configured, ok := service.(interface{ Config() core.Config }); ok {
		ingestCfg = configured.Config().Ingest
	}

	_, logger := gologger.Resolve("inbound", cfg.loggerProvider, cfg.logger)
	ingestorOpts := []inbound.IngestorOption{inbound.WithLogger(logger)}
	if guard != nil {
		ingestorOpts = append(ingestorOpts, inbound.WithDeliveryGuard(guard))
	}
	if cfg.configFS != nil {
		ingestorOpts = append(ingestorOpts, inbound.WithConfigSource(inbound.FSConfigSource{
			FS:   cfg.configFS,
			Path: ingestCfg.ConfigPath,
		}))
	}
	ingestorOpts = append(ingestorOpts, cfg.ingestorOpts...)
	ingestor := inbound.NewIngestorFromConfig(service, ingestCfg, ingestorOpts...)

	facade := &Facade{service: service, ingestor: ingestor}
	facade.commands = Commands{
		CreateRequest:    buildcommand.NewCreateRequestCommand(service),
		StartRequest:     buildcommand.NewStartRequestCommand(service),
		ConfigureRequest: buildcommand.NewConfigureRequestCommand(service),
		FinishRequest:    buildcommand.NewFinishRequestCommand(service),
		IngestPayload:    buildcommand.NewIngestPayloadCommand(ingestor),
		PurgeDeliveries:  buildcommand.NewPurgeDeliveriesCommand(purger),
	}
	facade.queries = Queries{
		GetRequest:       buildquery.NewGetRequestQuery(service),
		ListRequests:     buildquery.NewListRequestsQuery(requestLister),
		ListJobs:         buildquery.NewListJobsQuery(jobLister),
		EvaluateBranches: buildquery.NewEvaluateBranchesQuery(service),
	}
	facade.handlers = gocommand.BuildRequestHandlers{
		Lifecycle: service,
		Ingester:  ingestor,
		Reader:    service,
		Lister:    requestLister,
		Jobs:      jobLister,
		Branches:  service,
		Purger:    purger,
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

func (f *Facade) Ingestor() *inbound.Ingestor {
	if f == nil {
		return nil
	}
	return f.ingestor
}

// Register subscribes the facade handlers on the go-command dispatcher.
// Queries without a backing lister and the purge command without a purging
// guard are skipped.
func (f *Facade) Register(adapter *gocommand.RegistryAdapter, runnerOpts ...runner.Option) (*gocommand.Registration, error) {
	if f == nil {
		return nil, fmt.Errorf("buildrequests: facade is nil")
	}
	return gocommand.RegisterBuildRequestHandlers(adapter, f.handlers, runnerOpts...)
}

func repositoryFactoryOf(service CommandQueryService) any {
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return nil
	}
	return provider.Dependencies().RepositoryFactory
}

// resolveFromFactory calls a zero-arg getter on the repository factory and
// returns its result when it implements T.
func resolveFromFactory[T any](factory any, methodName string) T {
	var zero T
	if factory == nil {
		return zero
	}
	factoryValue := reflect.ValueOf(factory)
	if !factoryValue.IsValid() {
		return zero
	}
	if factoryValue.Kind() == reflect.Ptr && factoryValue.IsNil() {
		return zero
	}
	method := factoryValue.MethodByName(methodName)
	if !method.IsValid() || method.Type().NumIn() != 0 || method.Type().NumOut() != 1 {
		return zero
	}

	results, ok := safeReflectCall(method)
	if !ok || len(results) != 1 {
		return zero
	}
	candidate := results[0]
	if !candidate.IsValid() {
		return zero
	}
	if candidate.Kind() == reflect.Ptr && candidate.IsNil() {
		return zero
	}
	resolved, ok := candidate.Interface().(T)
	if !ok {
		return zero
	}
	return resolved
}

func safeReflectCall(method reflect.Value) (_ []reflect.Value, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return method.Call(nil), true
}
