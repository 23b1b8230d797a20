package core

import (
	"context"
	"strings"
	"time"
)

// RequestFactory creates Requests from inbound payloads.
type RequestFactory struct {
	store       RecordStore
	coordinator BuildCoordinator
	strict      bool
	observer    TransitionObserver
	now         func() time.Time
}

type FactoryOption func(*RequestFactory)

// WithStrictBranchFilter rejects requests whose branches config has an
// unsupported shape instead of admitting them.
func WithStrictBranchFilter(strict bool) FactoryOption {
	return func(f *RequestFactory) {
		f.strict = strict
	}
}

func WithTransitionObserver(observer TransitionObserver) FactoryOption {
	return func(f *RequestFactory) {
		f.observer = observer
	}
}

func WithClock(now func() time.Time) FactoryOption {
	return func(f *RequestFactory) {
		if now != nil {
			f.now = now
		}
	}
}

func NewRequestFactory(store RecordStore, coordinator BuildCoordinator, opts ...FactoryOption) *RequestFactory {
	factory := &RequestFactory{
		store:       store,
		coordinator: coordinator,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(factory)
	}
	return factory
}

// Create asks the store for a record, marks it created and persists it once.
// Store failures are returned as they happen; retries are up to the caller.
func (f *RequestFactory) Create(ctx context.Context, payload Payload) (*Request, error) {
	if f == nil || f.store == nil {
		return nil, dependencyError("core: record store is required")
	}
	payload.Commit.Branch = strings.TrimSpace(payload.Commit.Branch)
	if err := payload.Validate(); err != nil {
		return nil, badInputError(err.Error())
	}
	payload.Config = CloneConfig(payload.Config)

	record, err := f.store.CreateFrom(ctx, payload)
	if err != nil {
		return nil, RecordCreationError(err, map[string]any{
			"source":     payload.Source,
			"repository": payload.Repository.Slug(),
			"branch":     payload.Commit.Branch,
		})
	}
	if record.Config == nil {
		record.Config = CloneConfig(payload.Config)
	}
	if strings.TrimSpace(record.Commit.Branch) == "" {
		record.Commit.Branch = payload.Commit.Branch
	}
	record.State = RequestStateCreated
	now := f.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	if err := f.store.Save(ctx, record.Clone()); err != nil {
		return nil, PersistenceError(err, record.ID, "create")
	}
	return f.Wrap(record), nil
}

// Wrap binds an existing record to the factory's collaborators.
func (f *RequestFactory) Wrap(record Record) *Request {
	if f == nil {
		return newRequest(record, requestRuntime{})
	}
	return newRequest(record, requestRuntime{
		store:       f.store,
		coordinator: f.coordinator,
		strict:      f.strict,
		observer:    f.observer,
		now:         f.now,
	})
}
