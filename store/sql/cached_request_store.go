package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-buildrequests/core"
	glog "github.com/goliatone/go-logger/glog"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const requestCacheKeyPrefix = "go-buildrequests::request::v1"

// RequestReadWriter is the storage surface a cached request store fronts.
type RequestReadWriter interface {
	core.RecordStore
	core.RecordReader
}

// CachedRequestStore serves request reads from cache and invalidates the
// entry on every successful save.
type CachedRequestStore struct {
	base   RequestReadWriter
	cache  repositorycache.CacheService
	logger glog.Logger
}

type CachedRequestStoreOption func(*CachedRequestStore)

func WithCacheLogger(logger glog.Logger) CachedRequestStoreOption {
	return func(s *CachedRequestStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewCachedRequestStore(
	base RequestReadWriter,
	cacheService repositorycache.CacheService,
	opts ...CachedRequestStoreOption,
) (*CachedRequestStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base request store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: request cache service is required")
	}
	store := &CachedRequestStore{base: base, cache: cacheService, logger: glog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// RequestCacheKey returns go-buildrequests::request::v1::<id> with the id
// URL-path escaped.
func RequestCacheKey(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", fmt.Errorf("sqlstore: request id is required")
	}
	return requestCacheKeyPrefix + "::" + url.PathEscape(trimmed), nil
}

func (s *CachedRequestStore) CreateFrom(ctx context.Context, payload core.Payload) (core.Record, error) {
	if s == nil || s.base == nil {
		return core.Record{}, fmt.Errorf("sqlstore: cached request store is not configured")
	}
	return s.base.CreateFrom(ctx, payload)
}

func (s *CachedRequestStore) Save(ctx context.Context, record core.Record) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached request store is not configured")
	}
	if err := s.base.Save(ctx, record); err != nil {
		return err
	}
	// The row is committed; a stale entry is logged, not reported as a failed save.
	if err := s.Invalidate(ctx, record.ID); err != nil {
		s.logger.Warn("request cache invalidation failed", "request_id", record.ID, "error", err.Error())
	}
	return nil
}

func (s *CachedRequestStore) Get(ctx context.Context, id string) (core.Record, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Record{}, fmt.Errorf("sqlstore: cached request store is not configured")
	}
	cacheKey, err := RequestCacheKey(id)
	if err != nil {
		return core.Record{}, err
	}
	record, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Record, error) {
		fetched, fetchErr := s.base.Get(ctx, strings.TrimSpace(id))
		if fetchErr != nil {
			return core.Record{}, fetchErr
		}
		return fetched.Clone(), nil
	})
	if err != nil {
		return core.Record{}, err
	}
	return record.Clone(), nil
}

func (s *CachedRequestStore) Invalidate(ctx context.Context, id string) error {
	if s == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached request store is not configured")
	}
	cacheKey, err := RequestCacheKey(id)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}
