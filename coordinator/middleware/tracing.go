package middleware

import (
	"context"

	"github.com/absmach/fedagg/coordinator"
	"github.com/absmach/fedagg/pkg/fl"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ coordinator.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    coordinator.Service
}

func Tracing(tracer trace.Tracer, svc coordinator.Service) coordinator.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) CreateExperiment(ctx context.Context, cfg coordinator.ExperimentConfig) (coordinator.Experiment, error) {
	ctx, span := tm.tracer.Start(ctx, "create-experiment", trace.WithAttributes(
		attribute.String("name", cfg.Name),
		attribute.String("value_type", cfg.ValueType),
		attribute.Bool("weighted", cfg.Weighted),
		attribute.Bool("no_nan_division", cfg.NoNaNDivision),
	))
	defer span.End()

	return tm.svc.CreateExperiment(ctx, cfg)
}

func (tm *tracing) GetExperiment(ctx context.Context, experimentID string) (coordinator.Experiment, error) {
	ctx, span := tm.tracer.Start(ctx, "get-experiment", trace.WithAttributes(
		attribute.String("id", experimentID),
	))
	defer span.End()

	return tm.svc.GetExperiment(ctx, experimentID)
}

func (tm *tracing) ListExperiments(ctx context.Context, offset, limit uint64) (coordinator.ExperimentPage, error) {
	ctx, span := tm.tracer.Start(ctx, "list-experiments", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListExperiments(ctx, offset, limit)
}

func (tm *tracing) SubmitUpdate(ctx context.Context, experimentID string, update coordinator.Update) (coordinator.RoundStatus, error) {
	ctx, span := tm.tracer.Start(ctx, "submit-update", trace.WithAttributes(
		attribute.String("experiment_id", experimentID),
		attribute.String("client_id", update.ClientID),
		attribute.Int("num_samples", update.NumSamples),
	))
	defer span.End()

	return tm.svc.SubmitUpdate(ctx, experimentID, update)
}

func (tm *tracing) CompleteRound(ctx context.Context, experimentID string) (fl.Model, error) {
	ctx, span := tm.tracer.Start(ctx, "complete-round", trace.WithAttributes(
		attribute.String("experiment_id", experimentID),
	))
	defer span.End()

	return tm.svc.CompleteRound(ctx, experimentID)
}

func (tm *tracing) GetModel(ctx context.Context, experimentID string, version int) (fl.Model, error) {
	ctx, span := tm.tracer.Start(ctx, "get-model", trace.WithAttributes(
		attribute.String("experiment_id", experimentID),
		attribute.Int("version", version),
	))
	defer span.End()

	return tm.svc.GetModel(ctx, experimentID, version)
}

func (tm *tracing) Subscribe(ctx context.Context) error {
	ctx, span := tm.tracer.Start(ctx, "subscribe")
	defer span.End()

	return tm.svc.Subscribe(ctx)
}
