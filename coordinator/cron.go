package coordinator

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/fedagg/pkg/cron"
	"github.com/absmach/fedagg/pkg/fl"
)

const (
	defaultRoundCheckInterval = 10 * time.Second
	scheduledPageSize         = 100
)

// RoundScheduler completes the rounds of experiments that carry a round
// schedule. A due round without updates is skipped until the next activation.
type RoundScheduler interface {
	Start(ctx context.Context) error
	Stop()
}

type roundScheduler struct {
	svc           Service
	logger        *slog.Logger
	checkInterval time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once

	mu        sync.Mutex
	schedules map[string]*cron.Schedule
	nextRuns  map[string]time.Time
}

func NewRoundScheduler(svc Service, logger *slog.Logger, checkInterval time.Duration) RoundScheduler {
	if checkInterval <= 0 {
		checkInterval = defaultRoundCheckInterval
	}

	return &roundScheduler{
		svc:           svc,
		logger:        logger,
		checkInterval: checkInterval,
		stopChan:      make(chan struct{}),
		schedules:     make(map[string]*cron.Schedule),
		nextRuns:      make(map[string]time.Time),
	}
}

func (rs *roundScheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(rs.checkInterval)
	defer ticker.Stop()

	rs.logger.Info("round scheduler started", slog.Duration("check_interval", rs.checkInterval))

	for {
		select {
		case <-ctx.Done():
			rs.logger.Info("round scheduler stopping")

			return nil
		case <-rs.stopChan:
			rs.logger.Info("round scheduler stopped")

			return nil
		case now := <-ticker.C:
			if err := rs.processDueRounds(ctx, now); err != nil {
				rs.logger.Error("error processing scheduled rounds", slog.String("error", err.Error()))
			}
		}
	}
}

func (rs *roundScheduler) Stop() {
	rs.stopOnce.Do(func() {
		close(rs.stopChan)
	})
}

func (rs *roundScheduler) processDueRounds(ctx context.Context, now time.Time) error {
	var experiments []Experiment
	for offset := uint64(0); ; {
		page, err := rs.svc.ListExperiments(ctx, offset, scheduledPageSize)
		if err != nil {
			return err
		}
		experiments = append(experiments, page.Experiments...)
		offset += uint64(len(page.Experiments))
		if len(page.Experiments) == 0 || offset >= page.Total {
			break
		}
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	for _, exp := range experiments {
		if exp.RoundSchedule == "" {
			continue
		}

		schedule, ok := rs.schedules[exp.ID]
		if !ok {
			var err error
			schedule, err = cron.Parse(exp.RoundSchedule)
			if err != nil {
				rs.logger.Warn("skipping experiment with invalid round schedule",
					slog.String("experiment_id", exp.ID),
					slog.String("error", err.Error()),
				)

				continue
			}
			rs.schedules[exp.ID] = schedule
		}

		next, ok := rs.nextRuns[exp.ID]
		if !ok {
			rs.nextRuns[exp.ID] = schedule.Next(now)

			continue
		}
		if next.After(now) {
			continue
		}
		rs.nextRuns[exp.ID] = schedule.Next(now)

		if exp.NumUpdates == 0 {
			rs.logger.Debug("skipping scheduled round without updates", slog.String("experiment_id", exp.ID), slog.Int("round", exp.Round))

			continue
		}

		model, err := rs.svc.CompleteRound(ctx, exp.ID)
		switch {
		case stderrors.Is(err, fl.ErrNoUpdates):
			continue
		case err != nil:
			rs.logger.Warn("failed to complete scheduled round",
				slog.String("experiment_id", exp.ID),
				slog.String("error", err.Error()),
			)
		default:
			rs.logger.Info("scheduled round completed",
				slog.String("experiment_id", exp.ID),
				slog.Int("model_version", model.Version),
				slog.Time("next_run", rs.nextRuns[exp.ID]),
			)
		}
	}

	return nil
}
