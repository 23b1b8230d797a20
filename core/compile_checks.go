package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ RequestService   = (*Service)(nil)
	_ BuildCoordinator = BuildCoordinatorFunc(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
