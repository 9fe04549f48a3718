package middleware

import (
	"context"
	"time"

	"github.com/absmach/fedagg/coordinator"
	"github.com/absmach/fedagg/pkg/fl"
	"github.com/go-kit/kit/metrics"
)

var _ coordinator.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     coordinator.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc coordinator.Service) coordinator.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) CreateExperiment(ctx context.Context, cfg coordinator.ExperimentConfig) (coordinator.Experiment, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "create-experiment").Add(1)
		mm.latency.With("method", "create-experiment").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.CreateExperiment(ctx, cfg)
}

func (mm *metricsMiddleware) GetExperiment(ctx context.Context, experimentID string) (coordinator.Experiment, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-experiment").Add(1)
		mm.latency.With("method", "get-experiment").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetExperiment(ctx, experimentID)
}

func (mm *metricsMiddleware) ListExperiments(ctx context.Context, offset, limit uint64) (coordinator.ExperimentPage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-experiments").Add(1)
		mm.latency.With("method", "list-experiments").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListExperiments(ctx, offset, limit)
}

func (mm *metricsMiddleware) SubmitUpdate(ctx context.Context, experimentID string, update coordinator.Update) (coordinator.RoundStatus, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "submit-update").Add(1)
		mm.latency.With("method", "submit-update").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.SubmitUpdate(ctx, experimentID, update)
}

func (mm *metricsMiddleware) CompleteRound(ctx context.Context, experimentID string) (fl.Model, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "complete-round").Add(1)
		mm.latency.With("method", "complete-round").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.CompleteRound(ctx, experimentID)
}

func (mm *metricsMiddleware) GetModel(ctx context.Context, experimentID string, version int) (fl.Model, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-model").Add(1)
		mm.latency.With("method", "get-model").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetModel(ctx, experimentID, version)
}

func (mm *metricsMiddleware) Subscribe(ctx context.Context) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "subscribe").Add(1)
		mm.latency.With("method", "subscribe").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Subscribe(ctx)
}
