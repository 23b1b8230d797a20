package query

import (
	"context"

	"github.com/goliatone/go-buildrequests/core"
)

type RequestReader interface {
	GetRequest(ctx context.Context, id string) (core.Record, error)
}

type RequestLister interface {
	ListByState(ctx context.Context, state core.RequestState, limit int) ([]core.Record, error)
}

type JobLister interface {
	ListByRequest(ctx context.Context, requestID string) ([]core.Job, error)
}

type BranchEvaluator interface {
	EvaluateBranches(config map[string]any, branch string) core.BranchDecision
}

type GetRequestQuery struct {
	reader RequestReader
}

func NewGetRequestQuery(reader RequestReader) *GetRequestQuery {
	return &GetRequestQuery{reader: reader}
}

func (q *GetRequestQuery) Query(ctx context.Context, msg GetRequestMessage) (core.Record, error) {
	if q == nil || q.reader == nil {
		return core.Record{}, queryDependencyError("query: request reader is required")
	}
	return q.reader.GetRequest(ctx, msg.RequestID)
}

type ListRequestsQuery struct {
	lister RequestLister
}

func NewListRequestsQuery(lister RequestLister) *ListRequestsQuery {
	return &ListRequestsQuery{lister: lister}
}

func (q *ListRequestsQuery) Query(ctx context.Context, msg ListRequestsMessage) ([]core.Record, error) {
	if q == nil || q.lister == nil {
		return nil, queryDependencyError("query: request lister is required")
	}
	return q.lister.ListByState(ctx, msg.State, msg.Limit)
}

type ListJobsQuery struct {
	lister JobLister
}

func NewListJobsQuery(lister JobLister) *ListJobsQuery {
	return &ListJobsQuery{lister: lister}
}

func (q *ListJobsQuery) Query(ctx context.Context, msg ListJobsMessage) ([]core.Job, error) {
	if q == nil || q.lister == nil {
		return nil, queryDependencyError("query: job lister is required")
	}
	return q.lister.ListByRequest(ctx, msg.RequestID)
}

type EvaluateBranchesQuery struct {
	evaluator BranchEvaluator
}

func NewEvaluateBranchesQuery(evaluator BranchEvaluator) *EvaluateBranchesQuery {
	return &EvaluateBranchesQuery{evaluator: evaluator}
}

func (q *EvaluateBranchesQuery) Query(_ context.Context, msg EvaluateBranchesMessage) (core.BranchDecision, error) {
	if q == nil || q.evaluator == nil {
		return core.BranchDecision{}, queryDependencyError("query: branch evaluator is required")
	}
	return q.evaluator.EvaluateBranches(msg.Config, msg.Branch), nil
}
