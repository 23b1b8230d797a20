package query

import (
	"strings"

	"github.com/goliatone/go-buildrequests/core"
)

const (
	TypeGetRequest       = "buildrequests.query.request.get"
	TypeListRequests     = "buildrequests.query.request.list"
	TypeListJobs         = "buildrequests.query.job.list"
	TypeEvaluateBranches = "buildrequests.query.branches.evaluate"
)

type GetRequestMessage struct {
	RequestID string
}

func (GetRequestMessage) Type() string { return TypeGetRequest }

func (m GetRequestMessage) Validate() error {
	if strings.TrimSpace(m.RequestID) == "" {
		return queryValidationError("request_id", "request id is required")
	}
	return nil
}

type ListRequestsMessage struct {
	State core.RequestState
	Limit int
}

func (ListRequestsMessage) Type() string { return TypeListRequests }

func (m ListRequestsMessage) Validate() error {
	if err := m.State.Validate(); err != nil {
		return queryValidationError("state", err.Error())
	}
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}

type ListJobsMessage struct {
	RequestID string
}

func (ListJobsMessage) Type() string { return TypeListJobs }

func (m ListJobsMessage) Validate() error {
	if strings.TrimSpace(m.RequestID) == "" {
		return queryValidationError("request_id", "request id is required")
	}
	return nil
}

// EvaluateBranchesMessage asks whether Branch passes the branches filter in
// Config without touching any stored request.
type EvaluateBranchesMessage struct {
	Config map[string]any
	Branch string
}

func (EvaluateBranchesMessage) Type() string { return TypeEvaluateBranches }

func (m EvaluateBranchesMessage) Validate() error {
	if strings.TrimSpace(m.Branch) == "" {
		return queryValidationError("branch", "branch is required")
	}
	return nil
}
