package core

import (
	"context"
	"maps"
)

const (
	metricPrefix           = "buildrequests."
	metricTransitionsTotal = metricPrefix + "transition.total"
	metricRejectedTotal    = metricPrefix + "rejected.total"
)

func operationCounterName(operation string) string {
	return metricPrefix + operation + ".total"
}

func operationDurationName(operation string) string {
	return metricPrefix + operation + ".duration_ms"
}

// NopMetricsRecorder drops every sample. It is the default recorder.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	return maps.Clone(tags)
}

var _ MetricsRecorder = NopMetricsRecorder{}
