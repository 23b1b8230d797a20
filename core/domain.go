package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidRequestState = errors.New("core: invalid request state")
	ErrInvalidTransition   = errors.New("core: invalid request state transition")
	ErrRequestNotFound     = errors.New("core: request not found")
	ErrJobNotFound         = errors.New("core: job not found")
	ErrRecordCreation      = errors.New("core: record creation failed")
	ErrPersistence         = errors.New("core: record persistence failed")
	ErrMatrixInitialize    = errors.New("core: build matrix initialization failed")
)

type RequestState string

const (
	RequestStateCreated  RequestState = "created"
	RequestStateStarted  RequestState = "started"
	RequestStateFinished RequestState = "finished"
)

func ParseRequestState(value string) (RequestState, error) {
	state := RequestState(strings.TrimSpace(strings.ToLower(value)))
	if err := state.Validate(); err != nil {
		return "", err
	}
	return state, nil
}

func (s RequestState) Validate() error {
	switch s {
	case RequestStateCreated, RequestStateStarted, RequestStateFinished:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRequestState, string(s))
	}
}

// Rank orders states along the forward-only lifecycle. Unknown states rank -1.
func (s RequestState) Rank() int {
	switch s {
	case RequestStateCreated:
		return 0
	case RequestStateStarted:
		return 1
	case RequestStateFinished:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo reports whether next is reachable from s without moving
// backwards. Staying in place is allowed.
func (s RequestState) CanTransitionTo(next RequestState) bool {
	if s.Validate() != nil || next.Validate() != nil {
		return false
	}
	return next.Rank() >= s.Rank()
}

func (s RequestState) Terminal() bool {
	switch s {
	case RequestStateFinished:
		return true
	case RequestStateCreated, RequestStateStarted:
		return false
	default:
		return false
	}
}

type JobState string

const (
	JobStateCreated  JobState = "created"
	JobStateQueued   JobState = "queued"
	JobStateStarted  JobState = "started"
	JobStateFinished JobState = "finished"
)

type Repository struct {
	Owner string
	Name  string
}

func (r Repository) Slug() string {
	owner := strings.TrimSpace(r.Owner)
	name := strings.TrimSpace(r.Name)
	switch {
	case owner == "":
		return name
	case name == "":
		return owner
	default:
		return owner + "/" + name
	}
}

type Commit struct {
	ID          string
	SHA         string
	Branch      string
	Ref         string
	Message     string
	Author      string
	CommittedAt *time.Time
}

// Payload is an inbound build trigger that the ingestion layer already
// decoded from its wire format.
type Payload struct {
	DeliveryID string
	Source     string
	EventType  string
	Repository Repository
	Commit     Commit
	Config     map[string]any
}

func (p Payload) Validate() error {
	if strings.TrimSpace(p.Commit.Branch) == "" {
		return fmt.Errorf("core: commit branch is required")
	}
	if strings.TrimSpace(p.DeliveryID) != "" && strings.TrimSpace(p.Source) == "" {
		return fmt.Errorf("core: source is required with a delivery id")
	}
	return nil
}

type Record struct {
	ID         string
	Source     string
	EventType  string
	Repository Repository
	Commit     Commit
	Config     map[string]any
	State      RequestState
	Approved   *bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r Record) Clone() Record {
	cloned := r
	cloned.Config = CloneConfig(r.Config)
	if r.Approved != nil {
		approved := *r.Approved
		cloned.Approved = &approved
	}
	if r.Commit.CommittedAt != nil {
		committedAt := *r.Commit.CommittedAt
		cloned.Commit.CommittedAt = &committedAt
	}
	return cloned
}

type Job struct {
	ID        string
	RequestID string
	Number    string
	Config    map[string]any
	State     JobState
	CreatedAt time.Time
	UpdatedAt time.Time
}

func cloneJobs(jobs []Job) []Job {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		job.Config = CloneConfig(job.Config)
		out = append(out, job)
	}
	return out
}
