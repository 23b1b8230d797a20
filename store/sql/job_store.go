package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-buildrequests/core"
	"github.com/goliatone/go-buildrequests/matrix"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// JobStore expands and persists the build matrix of approved requests.
type JobStore struct {
	db            *bun.DB
	repo          repository.Repository[*jobRecord]
	matrixOptions []matrix.Option
}

func NewJobStore(db *bun.DB, opts ...matrix.Option) (*JobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*jobRecord](db, jobHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid job repository wiring: %w", err)
		}
	}
	return &JobStore{
		db:            db,
		repo:          repo,
		matrixOptions: append([]matrix.Option(nil), opts...),
	}, nil
}

// WithMaxJobs returns a store view whose expansion rejects matrices larger
// than limit before any row is written.
func (s *JobStore) WithMaxJobs(limit int) core.BuildCoordinator {
	if s == nil {
		return nil
	}
	limited := *s
	limited.matrixOptions = append(append([]matrix.Option(nil), s.matrixOptions...), matrix.WithMaxJobs(limit))
	return &limited
}

// InitializeMatrix expands the record config and upserts one job per matrix
// row keyed by (request_id, number). Every job comes back in state created;
// jobs from a previous, larger matrix are removed.
func (s *JobStore) InitializeMatrix(ctx context.Context, record core.Record) ([]core.Job, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: job store is not configured")
	}
	requestID := strings.TrimSpace(record.ID)
	if requestID == "" {
		return nil, fmt.Errorf("sqlstore: request id is required")
	}
	rows, err := matrix.Expand(record.Config, s.matrixOptions...)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	numbers := make([]string, 0, len(rows))
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for position, row := range rows {
			numbers = append(numbers, row.Number)
			job := &jobRecord{
				ID:        uuid.NewString(),
				RequestID: requestID,
				Number:    row.Number,
				Position:  position,
				Config:    row.Config,
				State:     string(core.JobStateCreated),
				CreatedAt: now,
				UpdatedAt: now,
			}
			if _, insertErr := tx.NewInsert().
				Model(job).
				On("CONFLICT (request_id, number) DO UPDATE").
				Set("config = EXCLUDED.config").
				Set("position = EXCLUDED.position").
				Set("state = EXCLUDED.state").
				Set("updated_at = EXCLUDED.updated_at").
				Exec(ctx); insertErr != nil {
				return insertErr
			}
		}
		stale := tx.NewDelete().
			Model((*jobRecord)(nil)).
			Where("request_id = ?", requestID)
		if len(numbers) > 0 {
			stale = stale.Where("number NOT IN (?)", bun.In(numbers))
		}
		_, deleteErr := stale.Exec(ctx)
		return deleteErr
	})
	if err != nil {
		return nil, err
	}
	return s.ListByRequest(ctx, requestID)
}

func (s *JobStore) ListByRequest(ctx context.Context, requestID string) ([]core.Job, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: job store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("request_id", "=", strings.TrimSpace(requestID)),
		repository.OrderBy("position ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Job, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// UpdateState moves a single job, used by job runners reporting progress.
func (s *JobStore) UpdateState(ctx context.Context, id string, state core.JobState) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: job store is not configured")
	}
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return fmt.Errorf("sqlstore: job id is required")
	}
	result, err := s.db.NewUpdate().
		Model((*jobRecord)(nil)).
		Set("state = ?", strings.TrimSpace(string(state))).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", trimmedID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, affectedErr := result.RowsAffected(); affectedErr == nil && affected == 0 {
		return fmt.Errorf("%w: id %q", core.ErrJobNotFound, trimmedID)
	}
	return nil
}
