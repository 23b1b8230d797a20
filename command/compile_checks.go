package command

import (
	"github.com/goliatone/go-buildrequests/core"
	"github.com/goliatone/go-buildrequests/inbound"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Commander[CreateRequestMessage]    = (*CreateRequestCommand)(nil)
	_ gocmd.Commander[StartRequestMessage]     = (*StartRequestCommand)(nil)
	_ gocmd.Commander[ConfigureRequestMessage] = (*ConfigureRequestCommand)(nil)
	_ gocmd.Commander[FinishRequestMessage]    = (*FinishRequestCommand)(nil)
	_ gocmd.Commander[IngestPayloadMessage]    = (*IngestPayloadCommand)(nil)
	_ gocmd.Commander[PurgeDeliveriesMessage]  = (*PurgeDeliveriesCommand)(nil)
	_ LifecycleService                         = (*core.Service)(nil)
	_ PayloadIngester                          = (*inbound.Ingestor)(nil)
)
