package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
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
	observers         []TransitionObserver
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithRecordStore(store RecordStore) Option {
	return func(b *serviceBuilder) {
		b.recordStore = store
	}
}

// WithRecordReader overrides the reader used by LoadRequest and GetRequest.
// When unset the record store is used if it implements RecordReader.
func WithRecordReader(reader RecordReader) Option {
	return func(b *serviceBuilder) {
		b.recordReader = reader
	}
}

func WithBuildCoordinator(coordinator BuildCoordinator) Option {
	return func(b *serviceBuilder) {
		b.buildCoordinator = coordinator
	}
}

func WithServiceTransitionObserver(observer TransitionObserver) Option {
	return func(b *serviceBuilder) {
		if observer != nil {
			b.observers = append(b.observers, observer)
		}
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("buildrequests", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return requestErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	return CloneConfig(l.Values), nil
}

// StaticConfigLoader serves a fixed raw config map.
func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// configToLayerMap drops zero values unless includeZero is set, so an
// unset runtime field never shadows a loaded one.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || cfg.BranchFilter.Strict {
		layer["branch_filter"] = map[string]any{
			"strict": cfg.BranchFilter.Strict,
		}
	}
	if includeZero || cfg.Matrix.MaxJobs != 0 {
		layer["matrix"] = map[string]any{
			"max_jobs": cfg.Matrix.MaxJobs,
		}
	}

	ingest := map[string]any{}
	if includeZero || cfg.Ingest.DedupeWindowSeconds != 0 {
		ingest["dedupe_window_seconds"] = cfg.Ingest.DedupeWindowSeconds
	}
	if includeZero || strings.TrimSpace(cfg.Ingest.ConfigPath) != "" {
		ingest["config_path"] = cfg.Ingest.ConfigPath
	}
	if len(ingest) > 0 {
		layer["ingest"] = ingest
	}
	return layer
}
