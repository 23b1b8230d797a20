package sqlstore

import (
	"github.com/goliatone/go-buildrequests/adapters/gojob"
	buildcommand "github.com/goliatone/go-buildrequests/command"
	"github.com/goliatone/go-buildrequests/core"
	"github.com/goliatone/go-buildrequests/inbound"
)

var (
	_ core.RecordStore            = (*RequestStore)(nil)
	_ core.RecordReader           = (*RequestStore)(nil)
	_ core.RecordStore            = (*CachedRequestStore)(nil)
	_ core.RecordReader           = (*CachedRequestStore)(nil)
	_ core.BuildCoordinator       = (*JobStore)(nil)
	_ core.MatrixLimiter          = (*JobStore)(nil)
	_ gojob.JobStateUpdater       = (*JobStore)(nil)
	_ inbound.DeliveryGuard       = (*DeliveryStore)(nil)
	_ buildcommand.DeliveryPurger = (*DeliveryStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
