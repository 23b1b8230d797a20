package gocommand

import (
	"fmt"

	buildcommand "github.com/goliatone/go-buildrequests/command"
	buildquery "github.com/goliatone/go-buildrequests/query"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
)

// BuildRequestHandlers groups the collaborators behind the buildrequests
// command and query surface. Nil collaborators skip their handlers.
type BuildRequestHandlers struct {
	Lifecycle buildcommand.LifecycleService
	Ingester  buildcommand.PayloadIngester
	Reader    buildquery.RequestReader
	Lister    buildquery.RequestLister
	Jobs      buildquery.JobLister
	Branches  buildquery.BranchEvaluator
	Purger    buildcommand.DeliveryPurger
}

// Registration tracks dispatcher subscriptions created by RegisterBuildRequestHandlers.
type Registration struct {
	subscriptions []commanddispatcher.Subscription
}

func (r *Registration) Len() int {
	if r == nil {
		return 0
	}
	return len(r.subscriptions)
}

func (r *Registration) Unsubscribe() {
	if r == nil {
		return
	}
	for _, sub := range r.subscriptions {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
	r.subscriptions = nil
}

func (r *Registration) add(sub commanddispatcher.Subscription, err error) error {
	if err != nil {
		return err
	}
	r.subscriptions = append(r.subscriptions, sub)
	return nil
}

// RegisterBuildRequestHandlers registers and subscribes every buildrequests
// command and query whose collaborator is set. On error all subscriptions
// made so far are removed.
func RegisterBuildRequestHandlers(
	adapter *RegistryAdapter,
	handlers BuildRequestHandlers,
	runnerOpts ...runner.Option,
) (*Registration, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	reg := &Registration{}
	steps := make([]func() error, 0, 10)

	if handlers.Lifecycle != nil {
		steps = append(steps,
			func() error {
				return reg.add(RegisterAndSubscribe(adapter, buildcommand.NewCreateRequestCommand(handlers.Lifecycle), runnerOpts...))
			},
			func() error {
				return reg.add(RegisterAndSubscribe(adapter, buildcommand.NewStartRequestCommand(handlers.Lifecycle), runnerOpts...))
			},
			func() error {
				return reg.add(RegisterAndSubscribe(adapter, buildcommand.NewConfigureRequestCommand(handlers.Lifecycle), runnerOpts...))
			},
			func() error {
				return reg.add(RegisterAndSubscribe(adapter, buildcommand.NewFinishRequestCommand(handlers.Lifecycle), runnerOpts...))
			},
		)
	}
	if handlers.Ingester != nil {
		steps = append(steps, func() error {
			return reg.add(RegisterAndSubscribe(adapter, buildcommand.NewIngestPayloadCommand(handlers.Ingester), runnerOpts...))
		})
	}
	if handlers.Purger != nil {
		steps = append(steps, func() error {
			return reg.add(RegisterAndSubscribe(adapter, buildcommand.NewPurgeDeliveriesCommand(handlers.Purger), runnerOpts...))
		})
	}
	if handlers.Reader != nil {
		steps = append(steps, func() error {
			return reg.add(RegisterAndSubscribeQuery(adapter, buildquery.NewGetRequestQuery(handlers.Reader), runnerOpts...))
		})
	}
	if handlers.Lister != nil {
		steps = append(steps, func() error {
			return reg.add(RegisterAndSubscribeQuery(adapter, buildquery.NewListRequestsQuery(handlers.Lister), runnerOpts...))
		})
	}
	if handlers.Jobs != nil {
		steps = append(steps, func() error {
			return reg.add(RegisterAndSubscribeQuery(adapter, buildquery.NewListJobsQuery(handlers.Jobs), runnerOpts...))
		})
	}
	if handlers.Branches != nil {
		steps = append(steps, func() error {
			return reg.add(RegisterAndSubscribeQuery(adapter, buildquery.NewEvaluateBranchesQuery(handlers.Branches), runnerOpts...))
		})
	}

	for _, step := range steps {
		if err := step(); err != nil {
			reg.Unsubscribe()
			return nil, err
		}
	}
	return reg, nil
}
