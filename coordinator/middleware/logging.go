package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/fedagg/coordinator"
	"github.com/absmach/fedagg/pkg/fl"
)

var _ coordinator.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    coordinator.Service
}

func Logging(logger *slog.Logger, svc coordinator.Service) coordinator.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) CreateExperiment(ctx context.Context, cfg coordinator.ExperimentConfig) (resp coordinator.Experiment, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("experiment",
				slog.String("id", resp.ID),
				slog.String("name", resp.Name),
				slog.String("value_type", cfg.ValueType),
				slog.Bool("weighted", cfg.Weighted),
				slog.Int("k_of_n", cfg.KOfN),
				slog.String("round_schedule", cfg.RoundSchedule),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Create experiment failed", args...)

			return
		}
		lm.logger.Info("Create experiment completed successfully", args...)
	}(time.Now())

	return lm.svc.CreateExperiment(ctx, cfg)
}

func (lm *loggingMiddleware) GetExperiment(ctx context.Context, experimentID string) (resp coordinator.Experiment, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("experiment",
				slog.String("id", experimentID),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get experiment failed", args...)

			return
		}
		lm.logger.Info("Get experiment completed successfully", args...)
	}(time.Now())

	return lm.svc.GetExperiment(ctx, experimentID)
}

func (lm *loggingMiddleware) ListExperiments(ctx context.Context, offset, limit uint64) (resp coordinator.ExperimentPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List experiments failed", args...)

			return
		}
		lm.logger.Info("List experiments completed successfully", args...)
	}(time.Now())

	return lm.svc.ListExperiments(ctx, offset, limit)
}

func (lm *loggingMiddleware) SubmitUpdate(ctx context.Context, experimentID string, update coordinator.Update) (resp coordinator.RoundStatus, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("update",
				slog.String("experiment_id", experimentID),
				slog.String("client_id", update.ClientID),
				slog.Int("num_samples", update.NumSamples),
			),
			slog.Group("round",
				slog.String("id", resp.RoundID),
				slog.Int("num_updates", resp.NumUpdates),
				slog.Bool("completed", resp.Completed),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Submit update failed", args...)

			return
		}
		lm.logger.Info("Submit update completed successfully", args...)
	}(time.Now())

	return lm.svc.SubmitUpdate(ctx, experimentID, update)
}

func (lm *loggingMiddleware) CompleteRound(ctx context.Context, experimentID string) (resp fl.Model, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("experiment",
				slog.String("id", experimentID),
			),
			slog.Int("model_version", resp.Version),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Complete round failed", args...)

			return
		}
		lm.logger.Info("Complete round completed successfully", args...)
	}(time.Now())

	return lm.svc.CompleteRound(ctx, experimentID)
}

func (lm *loggingMiddleware) GetModel(ctx context.Context, experimentID string, version int) (resp fl.Model, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("model",
				slog.String("experiment_id", experimentID),
				slog.Int("version", version),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get model failed", args...)

			return
		}
		lm.logger.Info("Get model completed successfully", args...)
	}(time.Now())

	return lm.svc.GetModel(ctx, experimentID, version)
}

func (lm *loggingMiddleware) Subscribe(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Subscribe to updates failed", args...)

			return
		}
		lm.logger.Info("Subscribe to updates completed successfully", args...)
	}(time.Now())

	return lm.svc.Subscribe(ctx)
}
