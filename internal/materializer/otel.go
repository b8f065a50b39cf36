package materializer

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"navpulse/internal/infrastructure"
	"navpulse/pkg/contracts/domain"
)

const TracerName = "navpulse.materializer"

// RunTracer provides OpenTelemetry instrumentation for materialize runs.
// A zero RunTracer only creates spans on the global tracer provider.
type RunTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.BusinessMetrics
}

// NewRunTracer creates a tracer backed by the given providers
func NewRunTracer(providers *infrastructure.OTelProviders) (*RunTracer, error) {
	rt := &RunTracer{tracer: otel.Tracer(TracerName)}
	if providers == nil || providers.Meter == nil {
		return rt, nil
	}
	metrics, err := infrastructure.CreateBusinessMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}
	rt.metrics = metrics
	return rt, nil
}

// NewRunTracerWithMetrics shares an existing metric set.
func NewRunTracerWithMetrics(metrics *infrastructure.BusinessMetrics) *RunTracer {
	return &RunTracer{tracer: otel.Tracer(TracerName), metrics: metrics}
}

func (rt *RunTracer) t() trace.Tracer {
	if rt == nil || rt.tracer == nil {
		return otel.Tracer(TracerName)
	}
	return rt.tracer
}

// StartRun opens the span covering a whole run
func (rt *RunTracer) StartRun(ctx context.Context, runID string, r domain.DateRange) (context.Context, trace.Span) {
	ctx, span := rt.t().Start(ctx, "materializer.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.from_date", domain.FormatDate(r.Start)),
			attribute.String("run.to_date", domain.FormatDate(r.End)),
		),
	)
	if rt != nil && rt.metrics != nil {
		rt.metrics.ActiveRuns.Add(ctx, 1)
	}
	return ctx, span
}

// FinishRun records the run summary on span and metrics
func (rt *RunTracer) FinishRun(ctx context.Context, span trace.Span, result *domain.MaterializationResult) {
	status := "success"
	if !result.Succeeded() {
		status = "partial"
	}

	span.SetAttributes(
		attribute.String("run.status", status),
		attribute.Int("run.dates_written", len(result.Written)),
		attribute.Int("run.dates_no_data", len(result.NoData)),
		attribute.Int("run.dates_failed", len(result.Failed)),
		attribute.Int("run.dates_not_attempted", len(result.NotAttempted)),
		attribute.Int("run.records_upserted", result.RecordsUpserted),
		attribute.Int("run.records_dropped", result.RecordsDropped),
	)
	if status == "success" {
		span.SetStatus(codes.Ok, "run completed")
	} else {
		span.SetStatus(codes.Error, fmt.Sprintf("%d failed, %d not attempted", len(result.Failed), len(result.NotAttempted)))
	}

	if rt == nil || rt.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	rt.metrics.ActiveRuns.Add(ctx, -1)
	rt.metrics.RunsTotal.Add(ctx, 1, attrs)
	rt.metrics.RunDuration.Record(ctx, result.Duration().Seconds(), attrs)
	rt.metrics.RecordsUpserted.Add(ctx, int64(result.RecordsUpserted))
	rt.metrics.RecordsDropped.Add(ctx, int64(result.RecordsDropped))
}

// AbortRun closes a run that ended with an error before producing a result
func (rt *RunTracer) AbortRun(ctx context.Context, span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if rt == nil || rt.metrics == nil {
		return
	}
	rt.metrics.ActiveRuns.Add(ctx, -1)
	rt.metrics.RunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "aborted")))
}

// StartDate opens the span for one date
func (rt *RunTracer) StartDate(ctx context.Context, date time.Time) (context.Context, trace.Span) {
	return rt.t().Start(ctx, "materializer.date",
		trace.WithAttributes(attribute.String("date", domain.FormatDate(date))))
}

// FinishDate records the outcome of a date
func (rt *RunTracer) FinishDate(ctx context.Context, span trace.Span, o domain.DateOutcome) {
	span.SetAttributes(
		attribute.String("date.status", string(o.Status)),
		attribute.Int("date.records", o.Records),
		attribute.Int("date.dropped", o.Dropped),
		attribute.Int("date.attempts", o.Attempts),
	)
	if o.Status == domain.DateStatusFailed {
		span.SetStatus(codes.Error, o.Reason)
	}
	if rt == nil || rt.metrics == nil {
		return
	}
	rt.metrics.DatesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(o.Status))))
}

// RecordFetchAttempt counts one call to the source
func (rt *RunTracer) RecordFetchAttempt(ctx context.Context, result string, duration time.Duration) {
	if rt == nil || rt.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("result", result))
	rt.metrics.FetchAttempts.Add(ctx, 1, attrs)
	rt.metrics.FetchDuration.Record(ctx, duration.Seconds(), attrs)
}
