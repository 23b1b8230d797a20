package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-buildrequests/adapters/gojob"
	"github.com/goliatone/go-buildrequests/core"
	"github.com/goliatone/go-buildrequests/matrix"
	"github.com/goliatone/go-job/queue"
	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the bun backed stores from a persistence client.
type RepositoryFactory struct {
	db *bun.DB

	matrixOptions []matrix.Option
	cacheService  repositorycache.CacheService
	enqueuer      queue.Enqueuer
	logger        glog.Logger

	requestStore  *RequestStore
	cachedStore   *CachedRequestStore
	jobStore      *JobStore
	deliveryStore *DeliveryStore
	coordinator   core.BuildCoordinator
}

type FactoryOption func(*RepositoryFactory)

// WithMatrixOptions forwards expansion options to the job store.
func WithMatrixOptions(opts ...matrix.Option) FactoryOption {
	return func(f *RepositoryFactory) {
		f.matrixOptions = append(f.matrixOptions, opts...)
	}
}

// WithRequestCache fronts request reads and saves with cacheService.
func WithRequestCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cacheService = cacheService
	}
}

// WithJobEnqueuer dispatches every initialized job on enqueuer.
func WithJobEnqueuer(enqueuer queue.Enqueuer) FactoryOption {
	return func(f *RepositoryFactory) {
		f.enqueuer = enqueuer
	}
}

// WithStoreLogger receives store warnings that do not fail an operation.
func WithStoreLogger(logger glog.Logger) FactoryOption {
	return func(f *RepositoryFactory) {
		f.logger = logger
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.requestStore != nil && f.jobStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

// RecordStore returns the cached store when a cache is configured.
func (f *RepositoryFactory) RecordStore() core.RecordStore {
	if f == nil {
		return nil
	}
	if f.cachedStore != nil {
		return f.cachedStore
	}
	return f.requestStore
}

func (f *RepositoryFactory) RecordReader() core.RecordReader {
	if f == nil {
		return nil
	}
	if f.cachedStore != nil {
		return f.cachedStore
	}
	return f.requestStore
}

// BuildCoordinator returns the job store, wrapped by a go-job dispatcher when
// an enqueuer is configured.
func (f *RepositoryFactory) BuildCoordinator() core.BuildCoordinator {
	if f == nil {
		return nil
	}
	if f.coordinator != nil {
		return f.coordinator
	}
	return f.jobStore
}

func (f *RepositoryFactory) RequestStore() *RequestStore {
	if f == nil {
		return nil
	}
	return f.requestStore
}

func (f *RepositoryFactory) JobStore() *JobStore {
	if f == nil {
		return nil
	}
	return f.jobStore
}

func (f *RepositoryFactory) DeliveryStore() *DeliveryStore {
	if f == nil {
		return nil
	}
	return f.deliveryStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	requestStore, err := NewRequestStore(f.db)
	if err != nil {
		return err
	}
	f.requestStore = requestStore
	if f.cacheService != nil {
		cachedStore, cacheErr := NewCachedRequestStore(requestStore, f.cacheService, WithCacheLogger(f.logger))
		if cacheErr != nil {
			return cacheErr
		}
		f.cachedStore = cachedStore
	}
	jobStore, err := NewJobStore(f.db, f.matrixOptions...)
	if err != nil {
		return err
	}
	f.jobStore = jobStore
	if f.enqueuer != nil {
		f.coordinator = gojob.NewDispatchingCoordinator(jobStore, f.enqueuer)
	}
	deliveryStore, err := NewDeliveryStore(f.db)
	if err != nil {
		return err
	}
	f.deliveryStore = deliveryStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
