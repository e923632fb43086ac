package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "crewforge"

// StartRunSpan starts a span covering one run.
func StartRunSpan(ctx context.Context, runID, projectID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("project.id", projectID),
		),
	)
}

// StartToolCallSpan starts a span for a tool call within a run.
func StartToolCallSpan(ctx context.Context, toolName, actor string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "toolcall",
		trace.WithAttributes(
			attribute.String("toolcall.tool", toolName),
			attribute.String("toolcall.actor", actor),
		),
	)
}

// StartStepSpan starts a span for one job step attempt.
func StartStepSpan(ctx context.Context, jobID, step string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "job.step",
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.String("job.step", step),
		),
	)
}
