package command

import (
	"context"

	"github.com/goliatone/go-buildrequests/core"
	"github.com/goliatone/go-buildrequests/inbound"
	gocmd "github.com/goliatone/go-command"
)

// LifecycleService is the mutating surface of core.Service.
type LifecycleService interface {
	CreateRequest(ctx context.Context, payload core.Payload) (*core.Request, error)
	StartRequest(ctx context.Context, id string) (core.Record, error)
	ConfigureRequest(ctx context.Context, id string, overlay map[string]any) (core.ConfigureResult, error)
	FinishRequest(ctx context.Context, id string) (core.Record, error)
}

type PayloadIngester interface {
	Ingest(ctx context.Context, payload core.Payload) (inbound.IngestResult, error)
}

// DeliveryPurger drops expired delivery claims and reports how many were removed.
type DeliveryPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type CreateRequestCommand struct {
	service LifecycleService
}

func NewCreateRequestCommand(service LifecycleService) *CreateRequestCommand {
	return &CreateRequestCommand{service: service}
}

// Execute stores the created core.Record as the command result.
func (c *CreateRequestCommand) Execute(ctx context.Context, msg CreateRequestMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: create request service is required")
	}
	request, err := c.service.CreateRequest(ctx, msg.Payload)
	if err != nil {
		return err
	}
	storeResult(ctx, request.Record())
	return nil
}

type StartRequestCommand struct {
	service LifecycleService
}

func NewStartRequestCommand(service LifecycleService) *StartRequestCommand {
	return &StartRequestCommand{service: service}
}

func (c *StartRequestCommand) Execute(ctx context.Context, msg StartRequestMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: start request service is required")
	}
	out, err := c.service.StartRequest(ctx, msg.RequestID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ConfigureRequestCommand struct {
	service LifecycleService
}

func NewConfigureRequestCommand(service LifecycleService) *ConfigureRequestCommand {
	return &ConfigureRequestCommand{service: service}
}

func (c *ConfigureRequestCommand) Execute(ctx context.Context, msg ConfigureRequestMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: configure request service is required")
	}
	out, err := c.service.ConfigureRequest(ctx, msg.RequestID, msg.Overlay)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type FinishRequestCommand struct {
	service LifecycleService
}

func NewFinishRequestCommand(service LifecycleService) *FinishRequestCommand {
	return &FinishRequestCommand{service: service}
}

func (c *FinishRequestCommand) Execute(ctx context.Context, msg FinishRequestMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: finish request service is required")
	}
	out, err := c.service.FinishRequest(ctx, msg.RequestID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type IngestPayloadCommand struct {
	ingester PayloadIngester
}

func NewIngestPayloadCommand(ingester PayloadIngester) *IngestPayloadCommand {
	return &IngestPayloadCommand{ingester: ingester}
}

func (c *IngestPayloadCommand) Execute(ctx context.Context, msg IngestPayloadMessage) error {
	if c == nil || c.ingester == nil {
		return commandDependencyError("command: payload ingester is required")
	}
	out, err := c.ingester.Ingest(ctx, msg.Payload)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PurgeDeliveriesCommand struct {
	purger DeliveryPurger
}

func NewPurgeDeliveriesCommand(purger DeliveryPurger) *PurgeDeliveriesCommand {
	return &PurgeDeliveriesCommand{purger: purger}
}

// Execute stores the number of purged claims as an int64 result.
func (c *PurgeDeliveriesCommand) Execute(ctx context.Context, _ PurgeDeliveriesMessage) error {
	if c == nil || c.purger == nil {
		return commandDependencyError("command: delivery purger is required")
	}
	purged, err := c.purger.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, purged)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
