package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedResolver wraps a Resolver with resolution metrics and a root span per request.
type InstrumentedResolver struct {
	next   *Resolver
	tracer trace.Tracer

	resolutions      metric.Int64Counter
	resolutionsEmpty metric.Int64Counter
	rejected         metric.Int64Counter
	upstreamErrors   metric.Int64Counter
	referenceFills   metric.Int64Counter
	energyRecomputes metric.Int64Counter
	ingredients      metric.Int64Histogram
	duration         metric.Float64Histogram
}

// NewInstrumentedResolver initializes the instruments once; a meter that fails to create one yields a no-op.
func NewInstrumentedResolver(next *Resolver, tracer trace.Tracer, meter metric.Meter) *InstrumentedResolver {
	ir := &InstrumentedResolver{next: next, tracer: tracer}

	ir.resolutions, _ = meter.Int64Counter("resolutions_total",
		metric.WithDescription("Total number of meal resolutions completed"))
	ir.resolutionsEmpty, _ = meter.Int64Counter("resolutions_empty_total",
		metric.WithDescription("Total number of resolutions that ended with every nutrient unknown"))
	ir.rejected, _ = meter.Int64Counter("resolutions_rejected_total",
		metric.WithDescription("Total number of requests rejected before resolution"))
	ir.upstreamErrors, _ = meter.Int64Counter("upstream_errors_total",
		metric.WithDescription("Total number of failed upstream calls, by source"))
	ir.referenceFills, _ = meter.Int64Counter("reference_fills_total",
		metric.WithDescription("Total number of resolutions that filled fields from the reference table"))
	ir.energyRecomputes, _ = meter.Int64Counter("energy_recomputes_total",
		metric.WithDescription("Total number of resolutions whose calories were replaced by the Atwater value"))
	ir.ingredients, _ = meter.Int64Histogram("ingredients_per_resolution",
		metric.WithDescription("Number of ingredients resolved per request"))
	ir.duration, _ = meter.Float64Histogram("resolution_duration_seconds",
		metric.WithDescription("Duration of a full resolution in seconds"))

	return ir
}

// Resolve runs the wrapped resolver and records what happened.
func (ir *InstrumentedResolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	ctx, span := ir.tracer.Start(ctx, "InstrumentedResolver.Resolve")
	defer span.End()

	start := time.Now()
	res, err := ir.next.Resolve(ctx, req)
	elapsed := time.Since(start)

	input := inputKind(req)
	inputAttr := metric.WithAttributes(attribute.String("input", input))

	if err != nil {
		if ir.rejected != nil {
			ir.rejected.Add(ctx, 1, inputAttr)
		}
		span.SetStatus(codes.Error, "Request rejected")
		span.RecordError(err)
		return nil, err
	}

	if ir.duration != nil {
		ir.duration.Record(ctx, elapsed.Seconds(), inputAttr)
	}
	if ir.resolutions != nil {
		ir.resolutions.Add(ctx, 1, inputAttr)
	}
	if ir.ingredients != nil {
		ir.ingredients.Record(ctx, int64(len(res.IngredientsResolved)), inputAttr)
	}
	if res.Base.IsEmpty() && ir.resolutionsEmpty != nil {
		ir.resolutionsEmpty.Add(ctx, 1, inputAttr)
	}
	if len(res.Adjustments.Filled) > 0 && ir.referenceFills != nil {
		ir.referenceFills.Add(ctx, 1)
	}
	if res.Adjustments.EnergyRecomputed && ir.energyRecomputes != nil {
		ir.energyRecomputes.Add(ctx, 1)
	}
	for _, up := range res.Upstream {
		if up.Error != "" && ir.upstreamErrors != nil {
			ir.upstreamErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("source", up.Source)))
		}
	}

	span.AddEvent("Resolution complete", trace.WithAttributes(
		attribute.String("input", input),
		attribute.Int("ingredients", len(res.IngredientsResolved)),
		attribute.Float64("total_grams", res.TotalGrams),
		attribute.StringSlice("sources", res.Sources),
		attribute.Float64("duration_seconds", elapsed.Seconds()),
	))
	if ferr := res.Err(); ferr != nil {
		span.SetStatus(codes.Error, "Every upstream failed")
		span.RecordError(ferr)
	}

	slog.Info("RESOLVER: Instrumented resolution recorded",
		"request_id", res.RequestID,
		"input", input,
		"duration_ms", elapsed.Milliseconds(),
	)
	return res, nil
}

func inputKind(req Request) string {
	switch {
	case len(req.Image) > 0:
		return "image"
	case req.Code != "":
		return "code"
	case len(req.Concepts) > 0:
		return "concepts"
	case len(req.Ingredients) > 0:
		return "ingredients"
	}
	return "empty"
}
