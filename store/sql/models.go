package sqlstore

import (
	"time"

	"github.com/goliatone/go-buildrequests/core"
	"github.com/uptrace/bun"
)

type commitRecord struct {
	bun.BaseModel `bun:"table:build_commits,alias:bc"`

	ID          string     `bun:"id,pk"`
	SHA         string     `bun:"sha,notnull"`
	Branch      string     `bun:"branch,notnull"`
	Ref         string     `bun:"ref,notnull"`
	Message     string     `bun:"message,notnull"`
	Author      string     `bun:"author,notnull"`
	CommittedAt *time.Time `bun:"committed_at,nullzero"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type requestRecord struct {
	bun.BaseModel `bun:"table:build_requests,alias:br"`

	ID              string         `bun:"id,pk"`
	CommitID        string         `bun:"commit_id,notnull"`
	Source          string         `bun:"source,notnull"`
	EventType       string         `bun:"event_type,notnull"`
	RepositoryOwner string         `bun:"repository_owner,notnull"`
	RepositoryName  string         `bun:"repository_name,notnull"`
	DeliveryID      string         `bun:"delivery_id,notnull"`
	Config          map[string]any `bun:"config,type:jsonb,notnull"`
	State           string         `bun:"state,notnull"`
	Approved        *bool          `bun:"approved"`
	CreatedAt       time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`

	Commit *commitRecord `bun:"rel:belongs-to,join:commit_id=id"`
}

type jobRecord struct {
	bun.BaseModel `bun:"table:build_jobs,alias:bj"`

	ID        string         `bun:"id,pk"`
	RequestID string         `bun:"request_id,notnull"`
	Number    string         `bun:"number,notnull"`
	Position  int            `bun:"position,notnull"`
	Config    map[string]any `bun:"config,type:jsonb,notnull"`
	State     string         `bun:"state,notnull"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryRecord struct {
	bun.BaseModel `bun:"table:build_deliveries,alias:bd"`

	ID         string    `bun:"id,pk"`
	Source     string    `bun:"source,notnull"`
	DeliveryID string    `bun:"delivery_id,notnull"`
	ExpiresAt  time.Time `bun:"expires_at,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func newCommitRecord(commit core.Commit, id string, now time.Time) *commitRecord {
	return &commitRecord{
		ID:          id,
		SHA:         commit.SHA,
		Branch:      commit.Branch,
		Ref:         commit.Ref,
		Message:     commit.Message,
		Author:      commit.Author,
		CommittedAt: cloneTimePointer(commit.CommittedAt),
		CreatedAt:   now,
	}
}

func (r *commitRecord) toDomain() core.Commit {
	if r == nil {
		return core.Commit{}
	}
	return core.Commit{
		ID:          r.ID,
		SHA:         r.SHA,
		Branch:      r.Branch,
		Ref:         r.Ref,
		Message:     r.Message,
		Author:      r.Author,
		CommittedAt: cloneTimePointer(r.CommittedAt),
	}
}

func newRequestRecord(payload core.Payload, id string, commitID string, now time.Time) *requestRecord {
	return &requestRecord{
		ID:              id,
		CommitID:        commitID,
		Source:          payload.Source,
		EventType:       payload.EventType,
		RepositoryOwner: payload.Repository.Owner,
		RepositoryName:  payload.Repository.Name,
		DeliveryID:      payload.DeliveryID,
		Config:          core.CloneConfig(payload.Config),
		State:           string(core.RequestStateCreated),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (r *requestRecord) toDomain() (core.Record, error) {
	if r == nil {
		return core.Record{}, nil
	}
	state, err := core.ParseRequestState(r.State)
	if err != nil {
		return core.Record{}, err
	}
	record := core.Record{
		ID:        r.ID,
		Source:    r.Source,
		EventType: r.EventType,
		Repository: core.Repository{
			Owner: r.RepositoryOwner,
			Name:  r.RepositoryName,
		},
		Commit:    r.Commit.toDomain(),
		Config:    core.CloneConfig(r.Config),
		State:     state,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Approved != nil {
		approved := *r.Approved
		record.Approved = &approved
	}
	return record, nil
}

func (r *jobRecord) toDomain() core.Job {
	if r == nil {
		return core.Job{}
	}
	return core.Job{
		ID:        r.ID,
		RequestID: r.RequestID,
		Number:    r.Number,
		Config:    core.CloneConfig(r.Config),
		State:     core.JobState(r.State),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
