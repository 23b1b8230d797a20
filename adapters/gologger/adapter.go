package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

const DefaultLoggerName = "buildrequests"

// LoggerName scopes a component under the buildrequests logger namespace.
func LoggerName(component string) string {
	component = strings.Trim(strings.TrimSpace(component), ".")
	if component == "" {
		return DefaultLoggerName
	}
	if component == DefaultLoggerName || strings.HasPrefix(component, DefaultLoggerName+".") {
		return component
	}
	return DefaultLoggerName + "." + component
}

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(LoggerName(name), provider, logger)
}

// ToJobProvider maps a glog provider to the go-job logger provider contract.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger maps a glog logger to the go-job logger contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves glog logger/provider then returns equivalent go-job adapters.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}
