package inbound

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/goliatone/go-buildrequests/core"
)

type memoryStore struct {
	mu      sync.Mutex
	records map[string]core.Record
	nextID  int
	saves   int
	saveErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[string]core.Record{}}
}

func (s *memoryStore) CreateFrom(_ context.Context, payload core.Payload) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	record := core.Record{
		ID:         fmt.Sprintf("req_%d", s.nextID),
		Source:     payload.Source,
		EventType:  payload.EventType,
		Repository: payload.Repository,
		Commit:     payload.Commit,
		Config:     core.CloneConfig(payload.Config),
	}
	s.records[record.ID] = record.Clone()
	return record, nil
}

func (s *memoryStore) Save(_ context.Context, record core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.records[record.ID] = record.Clone()
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return core.Record{}, core.ErrRequestNotFound
	}
	return record.Clone(), nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type stubCoordinator struct {
	calls int
}

func (c *stubCoordinator) InitializeMatrix(_ context.Context, record core.Record) ([]core.Job, error) {
	c.calls++
	return []core.Job{{ID: record.ID + "_1", RequestID: record.ID, Number: "1"}}, nil
}

func newTestService(t *testing.T, store *memoryStore) *core.Service {
	t.Helper()
	svc, err := core.NewService(core.Config{ServiceName: "buildrequests"},
		core.WithRecordStore(store),
		core.WithBuildCoordinator(&stubCoordinator{}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func testPayload(deliveryID string, branch string) core.Payload {
	return core.Payload{
		DeliveryID: deliveryID,
		Source:     "github",
		EventType:  "push",
		Repository: core.Repository{Owner: "svenfuchs", Name: "minimal"},
		Commit: core.Commit{
			SHA:    "62aae5f70ceee39123ef",
			Branch: branch,
		},
	}
}

func staticConfig(document string) ConfigSource {
	return ConfigSourceFunc(func(context.Context, core.Payload) ([]byte, error) {
		return []byte(document), nil
	})
}
