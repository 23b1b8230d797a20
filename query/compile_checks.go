package query

import (
	"github.com/goliatone/go-buildrequests/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[GetRequestMessage, core.Record]               = (*GetRequestQuery)(nil)
	_ gocmd.Querier[ListRequestsMessage, []core.Record]           = (*ListRequestsQuery)(nil)
	_ gocmd.Querier[ListJobsMessage, []core.Job]                  = (*ListJobsQuery)(nil)
	_ gocmd.Querier[EvaluateBranchesMessage, core.BranchDecision] = (*EvaluateBranchesQuery)(nil)
	_ RequestReader                                               = (*core.Service)(nil)
	_ BranchEvaluator                                             = (*core.Service)(nil)
)
