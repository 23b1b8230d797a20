package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryRecordStore struct {
	mu        sync.Mutex
	nextID    int
	records   map[string]Record
	saves     []Record
	createErr error
	saveErr   error
	// failSaveAt fails the n-th save (1 based) when positive.
	failSaveAt int
}

func newMemoryRecordStore() *memoryRecordStore {
	return &memoryRecordStore{records: map[string]Record{}}
}

func (s *memoryRecordStore) CreateFrom(_ context.Context, payload Payload) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return Record{}, s.createErr
	}
	s.nextID++
	return Record{
		ID:         fmt.Sprintf("req_%d", s.nextID),
		Source:     payload.Source,
		EventType:  payload.EventType,
		Repository: payload.Repository,
		Commit:     payload.Commit,
		Config:     CloneConfig(payload.Config),
	}, nil
}

func (s *memoryRecordStore) Save(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if s.failSaveAt > 0 && len(s.saves)+1 == s.failSaveAt {
		s.failSaveAt = 0
		return fmt.Errorf("memory store: save unavailable")
	}
	s.saves = append(s.saves, record.Clone())
	s.records[record.ID] = record.Clone()
	return nil
}

func (s *memoryRecordStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}
	return record.Clone(), nil
}

func (s *memoryRecordStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

func (s *memoryRecordStore) lastSave() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) == 0 {
		return Record{}
	}
	return s.saves[len(s.saves)-1].Clone()
}

type countingCoordinator struct {
	mu         sync.Mutex
	calls      int
	records    []Record
	jobs       int
	maxJobs    int
	dispatched int
	err        error
}

func (c *countingCoordinator) WithMaxJobs(limit int) BuildCoordinator {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxJobs = limit
	return c
}

func (c *countingCoordinator) InitializeMatrix(_ context.Context, record Record) ([]Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.records = append(c.records, record.Clone())
	if c.err != nil {
		return nil, c.err
	}
	count := c.jobs
	if count == 0 {
		count = 1
	}
	if c.maxJobs > 0 && count > c.maxJobs {
		return nil, fmt.Errorf("matrix has %d jobs, limit is %d", count, c.maxJobs)
	}
	c.dispatched += count
	jobs := make([]Job, 0, count)
	for i := 1; i <= count; i++ {
		jobs = append(jobs, Job{
			ID:     fmt.Sprintf("%s.%d", record.ID, i),
			Number: fmt.Sprint(i),
			Config: CloneConfig(record.Config),
			State:  JobStateFinished,
		})
	}
	return jobs, nil
}

func (c *countingCoordinator) dispatchedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dispatched
}

func (c *countingCoordinator) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

func hasCounter(counters []capturedCounter, name string, status string) bool {
	for _, counter := range counters {
		if counter.name == name && counter.tags["status"] == status {
			return true
		}
	}
	return false
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

func fixedClock() func() time.Time {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func testPayload(branch string, config map[string]any) Payload {
	return Payload{
		DeliveryID: "dlv_1",
		Source:     "github",
		EventType:  "push",
		Repository: Repository{Owner: "svenfuchs", Name: "minimal"},
		Commit: Commit{
			SHA:     "62aae5f70ceee39123ef",
			Branch:  branch,
			Message: "the commit message",
			Author:  "Sven Fuchs",
		},
		Config: config,
	}
}
