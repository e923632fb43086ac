package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "crewforge"

// Metrics holds all CrewForge metric instruments.
type Metrics struct {
	RunsStarted   metric.Int64Counter
	RunsCompleted metric.Int64Counter
	RunsFailed    metric.Int64Counter
	ToolCalls     metric.Int64Counter
	ToolBlocked   metric.Int64Counter
	TasksClaimed  metric.Int64Counter
	RunDuration   metric.Float64Histogram
	RunCost       metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RunsStarted, err = meter.Int64Counter("crewforge.runs.started",
		metric.WithDescription("Number of runs started"))
	if err != nil {
		return nil, err
	}

	m.RunsCompleted, err = meter.Int64Counter("crewforge.runs.completed",
		metric.WithDescription("Number of runs completed"))
	if err != nil {
		return nil, err
	}

	m.RunsFailed, err = meter.Int64Counter("crewforge.runs.failed",
		metric.WithDescription("Number of runs failed"))
	if err != nil {
		return nil, err
	}

	m.ToolCalls, err = meter.Int64Counter("crewforge.toolcalls",
		metric.WithDescription("Number of tool calls reaching the broker"))
	if err != nil {
		return nil, err
	}

	m.ToolBlocked, err = meter.Int64Counter("crewforge.toolcalls.blocked",
		metric.WithDescription("Number of tool calls denied by policy"))
	if err != nil {
		return nil, err
	}

	m.TasksClaimed, err = meter.Int64Counter("crewforge.tasks.claimed",
		metric.WithDescription("Number of tasks claimed by scheduler loops"))
	if err != nil {
		return nil, err
	}

	m.RunDuration, err = meter.Float64Histogram("crewforge.run.duration_seconds",
		metric.WithDescription("Run duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.RunCost, err = meter.Float64Histogram("crewforge.run.cost_usd",
		metric.WithDescription("Run cost in USD"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
