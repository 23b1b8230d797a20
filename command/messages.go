package command

import (
	"strings"

	"github.com/goliatone/go-buildrequests/core"
)

const (
	TypeCreateRequest    = "buildrequests.command.request.create"
	TypeStartRequest     = "buildrequests.command.request.start"
	TypeConfigureRequest = "buildrequests.command.request.configure"
	TypeFinishRequest    = "buildrequests.command.request.finish"
	TypeIngestPayload    = "buildrequests.command.payload.ingest"
	TypePurgeDeliveries  = "buildrequests.command.delivery.purge"
)

type CreateRequestMessage struct {
	Payload core.Payload
}

func (CreateRequestMessage) Type() string { return TypeCreateRequest }

func (m CreateRequestMessage) Validate() error {
	return validatePayload(m.Payload)
}

type StartRequestMessage struct {
	RequestID string
}

func (StartRequestMessage) Type() string { return TypeStartRequest }

func (m StartRequestMessage) Validate() error {
	return validateRequestID(m.RequestID)
}

// ConfigureRequestMessage carries the overlay merged into the request config.
// A nil overlay configures with the stored config as is.
type ConfigureRequestMessage struct {
	RequestID string
	Overlay   map[string]any
}

func (ConfigureRequestMessage) Type() string { return TypeConfigureRequest }

func (m ConfigureRequestMessage) Validate() error {
	return validateRequestID(m.RequestID)
}

type FinishRequestMessage struct {
	RequestID string
}

func (FinishRequestMessage) Type() string { return TypeFinishRequest }

func (m FinishRequestMessage) Validate() error {
	return validateRequestID(m.RequestID)
}

type IngestPayloadMessage struct {
	Payload core.Payload
}

func (IngestPayloadMessage) Type() string { return TypeIngestPayload }

func (m IngestPayloadMessage) Validate() error {
	return validatePayload(m.Payload)
}

// PurgeDeliveriesMessage removes expired delivery claims. It carries no
// fields; the claim store decides what has expired.
type PurgeDeliveriesMessage struct{}

func (PurgeDeliveriesMessage) Type() string { return TypePurgeDeliveries }

func (PurgeDeliveriesMessage) Validate() error { return nil }

func validateRequestID(id string) error {
	if strings.TrimSpace(id) == "" {
		return commandValidationError("request_id", "request id is required")
	}
	return nil
}

func validatePayload(payload core.Payload) error {
	if strings.TrimSpace(payload.Commit.Branch) == "" {
		return commandValidationError("commit.branch", "commit branch is required")
	}
	if strings.TrimSpace(payload.DeliveryID) != "" && strings.TrimSpace(payload.Source) == "" {
		return commandValidationError("source", "source is required with a delivery id")
	}
	return nil
}
