package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-buildrequests/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RequestStore persists build requests and their commits.
type RequestStore struct {
	db         *bun.DB
	repo       repository.Repository[*requestRecord]
	commitRepo repository.Repository[*commitRecord]
}

func NewRequestStore(db *bun.DB) (*RequestStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*requestRecord](db, requestHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid request repository wiring: %w", err)
		}
	}
	commitRepo := repository.NewRepository[*commitRecord](db, commitHandlers())
	if validator, ok := commitRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid commit repository wiring: %w", err)
		}
	}
	return &RequestStore{
		db:         db,
		repo:       repo,
		commitRepo: commitRepo,
	}, nil
}

// CreateFrom inserts the commit and a created request in one transaction.
func (s *RequestStore) CreateFrom(ctx context.Context, payload core.Payload) (core.Record, error) {
	if s == nil || s.db == nil {
		return core.Record{}, fmt.Errorf("sqlstore: request store is not configured")
	}
	payload.Commit.Branch = strings.TrimSpace(payload.Commit.Branch)
	if payload.Commit.Branch == "" {
		return core.Record{}, fmt.Errorf("sqlstore: commit branch is required")
	}
	now := time.Now().UTC()

	var created *requestRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		commit, createErr := s.commitRepo.CreateTx(ctx, tx, newCommitRecord(payload.Commit, uuid.NewString(), now))
		if createErr != nil {
			return createErr
		}
		request, createErr := s.repo.CreateTx(ctx, tx, newRequestRecord(payload, uuid.NewString(), commit.ID, now))
		if createErr != nil {
			return createErr
		}
		request.Commit = commit
		created = request
		return nil
	})
	if err != nil {
		return core.Record{}, err
	}
	return created.toDomain()
}

// Save writes state, config and approval. It fails with core.ErrRequestNotFound
// when no row matches the record id.
func (s *RequestStore) Save(ctx context.Context, record core.Record) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: request store is not configured")
	}
	id := strings.TrimSpace(record.ID)
	if id == "" {
		return fmt.Errorf("sqlstore: request id is required")
	}
	if err := record.State.Validate(); err != nil {
		return err
	}
	updatedAt := record.UpdatedAt.UTC()
	if record.UpdatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	update := &requestRecord{
		ID:        id,
		Config:    core.CloneConfig(record.Config),
		State:     string(record.State),
		Approved:  record.Approved,
		UpdatedAt: updatedAt,
	}

	result, err := s.db.NewUpdate().
		Model(update).
		Column("state", "config", "approved", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, affectedErr := result.RowsAffected(); affectedErr == nil && affected == 0 {
		return fmt.Errorf("%w: id %q", core.ErrRequestNotFound, id)
	}
	return nil
}

func (s *RequestStore) Get(ctx context.Context, id string) (core.Record, error) {
	if s == nil || s.db == nil {
		return core.Record{}, fmt.Errorf("sqlstore: request store is not configured")
	}
	record := &requestRecord{}
	err := s.db.NewSelect().
		Model(record).
		Relation("Commit").
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Record{}, fmt.Errorf("%w: id %q", core.ErrRequestNotFound, id)
		}
		return core.Record{}, err
	}
	return record.toDomain()
}

// ListByState returns requests in state, oldest first.
func (s *RequestStore) ListByState(ctx context.Context, state core.RequestState, limit int) ([]core.Record, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: request store is not configured")
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}
	criteria := []repository.SelectCriteria{
		repository.SelectBy("state", "=", string(state)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Relation("Commit")
		}),
		repository.OrderBy("created_at ASC"),
	}
	if limit > 0 {
		criteria = append(criteria, repository.SelectPaginate(limit, 0))
	}
	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	out := make([]core.Record, 0, len(records))
	for _, record := range records {
		mapped, mapErr := record.toDomain()
		if mapErr != nil {
			return nil, mapErr
		}
		out = append(out, mapped)
	}
	return out, nil
}
