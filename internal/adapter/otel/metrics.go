// Package otel provides OpenTelemetry metric setup and instruments.
package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "taskpilot"

// Metrics holds all taskpilot metric instruments.
type Metrics struct {
	RunsStarted   metric.Int64Counter
	RunsCompleted metric.Int64Counter
	RunsFailed    metric.Int64Counter
	RunsCancelled metric.Int64Counter
	ToolCalls     metric.Int64Counter
	RunDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RunsStarted, err = meter.Int64Counter("taskpilot.runs.started",
		metric.WithDescription("Number of runs started"))
	if err != nil {
		return nil, err
	}

	m.RunsCompleted, err = meter.Int64Counter("taskpilot.runs.completed",
		metric.WithDescription("Number of runs completed"))
	if err != nil {
		return nil, err
	}

	m.RunsFailed, err = meter.Int64Counter("taskpilot.runs.failed",
		metric.WithDescription("Number of runs failed"))
	if err != nil {
		return nil, err
	}

	m.RunsCancelled, err = meter.Int64Counter("taskpilot.runs.cancelled",
		metric.WithDescription("Number of runs cancelled"))
	if err != nil {
		return nil, err
	}

	m.ToolCalls, err = meter.Int64Counter("taskpilot.toolcalls",
		metric.WithDescription("Number of tool calls executed"))
	if err != nil {
		return nil, err
	}

	m.RunDuration, err = meter.Float64Histogram("taskpilot.run.duration_seconds",
		metric.WithDescription("Run duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
