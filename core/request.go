package core

import (
	"context"
	"time"
)

const (
	OperationStart     = "start"
	OperationConfigure = "configure"
	OperationFinish    = "finish"
)

// Request is a build trigger under admission and lifecycle tracking. A
// Request is owned by a single flow; concurrent transitions on the same
// instance must be serialized by the caller.
type Request struct {
	record      Record
	jobs        []Job
	store       RecordStore
	coordinator BuildCoordinator
	strict      bool
	observer    TransitionObserver
	now         func() time.Time
}

// ConfigureResult is the outcome of Configure.
type ConfigureResult struct {
	Record   Record
	Decision BranchDecision
	Jobs     []Job
}

type requestRuntime struct {
	store       RecordStore
	coordinator BuildCoordinator
	strict      bool
	observer    TransitionObserver
	now         func() time.Time
}

func newRequest(record Record, runtime requestRuntime) *Request {
	now := runtime.now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Request{
		record:      record.Clone(),
		store:       runtime.store,
		coordinator: runtime.coordinator,
		strict:      runtime.strict,
		observer:    runtime.observer,
		now:         now,
	}
}

func (r *Request) ID() string {
	if r == nil {
		return ""
	}
	return r.record.ID
}

func (r *Request) State() RequestState {
	if r == nil {
		return ""
	}
	return r.record.State
}

// Record returns a copy of the backing record.
func (r *Request) Record() Record {
	if r == nil {
		return Record{}
	}
	return r.record.Clone()
}

// Jobs returns the matrix initialized by the last approved Configure.
func (r *Request) Jobs() []Job {
	if r == nil {
		return nil
	}
	return cloneJobs(r.jobs)
}

// Approved evaluates the branches filter of the current config against the
// commit branch.
func (r *Request) Approved() bool {
	return r.Decision().Approved
}

func (r *Request) Decision() BranchDecision {
	if r == nil {
		return BranchDecision{}
	}
	return ParseFilterSpec(r.record.Config).Decide(r.record.Commit.Branch, r.strict)
}

// Start moves a created request to started. Starting an already started
// request is a no-op and does not persist.
func (r *Request) Start(ctx context.Context) (err error) {
	if r == nil {
		return dependencyError("core: request is nil")
	}
	from := r.record.State
	defer func() {
		r.notify(ctx, OperationStart, from, nil, 0, err)
	}()

	if from == RequestStateStarted {
		return nil
	}
	if !from.CanTransitionTo(RequestStateStarted) {
		return invalidTransitionError(r.record.ID, from, RequestStateStarted)
	}
	return r.persist(ctx, OperationStart, func(record *Record) {
		record.State = RequestStateStarted
	})
}

// Configure merges overlay into the working config and decides admission.
// An approved request gets its build matrix initialized; either way the
// request ends finished after exactly one save.
func (r *Request) Configure(ctx context.Context, overlay map[string]any) (result ConfigureResult, err error) {
	if r == nil {
		return ConfigureResult{}, dependencyError("core: request is nil")
	}
	from := r.record.State
	defer func() {
		var approved *bool
		if err == nil {
			approved = r.record.Approved
		}
		r.notify(ctx, OperationConfigure, from, approved, len(result.Jobs), err)
	}()

	// Finished is terminal: a request is configured exactly once.
	if from.Terminal() || !from.CanTransitionTo(RequestStateFinished) {
		return ConfigureResult{}, invalidTransitionError(r.record.ID, from, RequestStateFinished)
	}

	merged := MergeConfig(r.record.Config, overlay)
	decision := ParseFilterSpec(merged).Decide(r.record.Commit.Branch, r.strict)

	var jobs []Job
	if decision.Approved {
		if r.coordinator == nil {
			return ConfigureResult{}, dependencyError("core: build coordinator is required to configure an approved request")
		}
		candidate := r.record.Clone()
		candidate.Config = CloneConfig(merged)
		candidate.Approved = boolPtr(true)
		initialized, initErr := r.coordinator.InitializeMatrix(ctx, candidate)
		if initErr != nil {
			return ConfigureResult{}, matrixError(initErr, r.record.ID)
		}
		jobs = resetJobs(initialized, r.record.ID)
	}

	if err := r.persist(ctx, OperationConfigure, func(record *Record) {
		record.Config = merged
		record.Approved = boolPtr(decision.Approved)
		record.State = RequestStateFinished
	}); err != nil {
		return ConfigureResult{}, err
	}
	r.jobs = jobs

	return ConfigureResult{
		Record:   r.record.Clone(),
		Decision: decision,
		Jobs:     cloneJobs(jobs),
	}, nil
}

// Finish marks the request finished from any state.
func (r *Request) Finish(ctx context.Context) (err error) {
	if r == nil {
		return dependencyError("core: request is nil")
	}
	from := r.record.State
	defer func() {
		r.notify(ctx, OperationFinish, from, nil, 0, err)
	}()
	return r.persist(ctx, OperationFinish, func(record *Record) {
		record.State = RequestStateFinished
	})
}

// persist applies mutate and saves once. A failed save restores the
// pre-transition record.
func (r *Request) persist(ctx context.Context, operation string, mutate func(*Record)) error {
	if r.store == nil {
		return dependencyError("core: record store is required")
	}
	snapshot := r.record.Clone()
	mutate(&r.record)
	r.record.UpdatedAt = r.now()
	if err := r.store.Save(ctx, r.record.Clone()); err != nil {
		r.record = snapshot
		return PersistenceError(err, snapshot.ID, operation)
	}
	return nil
}

func (r *Request) notify(ctx context.Context, operation string, from RequestState, approved *bool, jobs int, err error) {
	if r.observer == nil {
		return
	}
	r.observer(ctx, TransitionEvent{
		RequestID: r.record.ID,
		Operation: operation,
		From:      from,
		To:        r.record.State,
		Approved:  approved,
		Jobs:      jobs,
		Err:       err,
	})
}

func resetJobs(jobs []Job, requestID string) []Job {
	out := cloneJobs(jobs)
	for i := range out {
		out[i].State = JobStateCreated
		if out[i].RequestID == "" {
			out[i].RequestID = requestID
		}
	}
	return out
}

func boolPtr(value bool) *bool {
	return &value
}
