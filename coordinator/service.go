package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/fedagg/pkg/aggregators"
	"github.com/absmach/fedagg/pkg/codec"
	"github.com/absmach/fedagg/pkg/cron"
	"github.com/absmach/fedagg/pkg/errors"
	"github.com/absmach/fedagg/pkg/fl"
	"github.com/absmach/fedagg/pkg/mqtt"
	"github.com/absmach/fedagg/pkg/storage"
	"github.com/absmach/fedagg/pkg/structure"
	"github.com/absmach/fedagg/pkg/types"
	"github.com/google/uuid"
)

// run is the in-flight aggregation state of one experiment.
type run struct {
	agg   *fl.FedAvgAggregator
	round *fl.RoundState
}

type service struct {
	experimentsDB storage.Storage[Experiment]
	modelsDB      storage.Storage[fl.Model]
	persistent    *fl.PersistentStorage
	pubsub        mqtt.PubSub
	baseTopic     string
	logger        *slog.Logger
	names         namegenerator.NameGenerator

	mu   sync.Mutex
	runs map[string]*run
}

// NewService creates the coordinator service. persistent may be nil, in
// which case rounds and models are only kept in memory.
func NewService(experimentsDB storage.Storage[Experiment], modelsDB storage.Storage[fl.Model], persistent *fl.PersistentStorage, pubsub mqtt.PubSub, baseTopic string, logger *slog.Logger) Service {
	return &service{
		experimentsDB: experimentsDB,
		modelsDB:      modelsDB,
		persistent:    persistent,
		pubsub:        pubsub,
		baseTopic:     baseTopic,
		logger:        logger,
		names:         namegenerator.NewGenerator(),
		runs:          make(map[string]*run),
	}
}

func (svc *service) CreateExperiment(ctx context.Context, cfg ExperimentConfig) (Experiment, error) {
	if cfg.KOfN < 0 {
		return Experiment{}, fmt.Errorf("%w: k_of_n must not be negative", errors.ErrInvalidData)
	}
	valueType, err := types.Parse(cfg.ValueType)
	if err != nil {
		return Experiment{}, err
	}
	if cfg.RoundSchedule != "" {
		if err := cron.Validate(cfg.RoundSchedule); err != nil {
			return Experiment{}, fmt.Errorf("%w: %w", errors.ErrInvalidData, err)
		}
	}
	agg, err := fl.NewFedAvgAggregator(valueType, cfg.Weighted, aggregators.WithNoNaNDivision(cfg.NoNaNDivision))
	if err != nil {
		return Experiment{}, err
	}

	now := time.Now()
	exp := Experiment{
		ID:            uuid.NewString(),
		Name:          cfg.Name,
		ValueType:     valueType.String(),
		Weighted:      cfg.Weighted,
		NoNaNDivision: cfg.NoNaNDivision,
		KOfN:          cfg.KOfN,
		RoundSchedule: cfg.RoundSchedule,
		Round:         1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if exp.Name == "" {
		exp.Name = svc.names.Generate()
	}

	if err := svc.experimentsDB.Create(ctx, exp.ID, exp); err != nil {
		return Experiment{}, err
	}

	svc.mu.Lock()
	svc.runs[exp.ID] = &run{
		agg:   agg,
		round: newRound(exp.ID, exp.Round, exp.KOfN),
	}
	svc.mu.Unlock()

	return exp, nil
}

func (svc *service) GetExperiment(ctx context.Context, experimentID string) (Experiment, error) {
	return svc.experimentsDB.Get(ctx, experimentID)
}

func (svc *service) ListExperiments(ctx context.Context, offset, limit uint64) (ExperimentPage, error) {
	experiments, total, err := svc.experimentsDB.List(ctx, offset, limit)
	if err != nil {
		return ExperimentPage{}, err
	}

	return ExperimentPage{
		Offset:      offset,
		Limit:       limit,
		Total:       total,
		Experiments: experiments,
	}, nil
}

func (svc *service) SubmitUpdate(ctx context.Context, experimentID string, update Update) (RoundStatus, error) {
	if update.ClientID == "" {
		return RoundStatus{}, fmt.Errorf("%w: client_id is required", errors.ErrInvalidData)
	}
	if update.NumSamples < 0 {
		return RoundStatus{}, fmt.Errorf("%w: num_samples must not be negative", errors.ErrInvalidData)
	}

	exp, err := svc.GetExperiment(ctx, experimentID)
	if err != nil {
		return RoundStatus{}, err
	}
	valueType, err := types.Parse(exp.ValueType)
	if err != nil {
		return RoundStatus{}, err
	}
	value, err := decodeValue(valueType, update)
	if err != nil {
		return RoundStatus{}, err
	}

	svc.mu.Lock()
	r, ok := svc.runs[experimentID]
	if !ok {
		svc.mu.Unlock()

		return RoundStatus{}, errors.ErrNotFound
	}

	for _, u := range r.round.Updates {
		if u.ClientID == update.ClientID {
			svc.mu.Unlock()

			return RoundStatus{}, fmt.Errorf("%w: client %s already submitted to round %s", errors.ErrEntityExists, update.ClientID, r.round.RoundID)
		}
	}

	r.round.Updates = append(r.round.Updates, fl.Update{
		RoundID:    r.round.RoundID,
		ClientID:   update.ClientID,
		NumSamples: update.NumSamples,
		Metrics:    update.Metrics,
		Value:      value,
		ReceivedAt: time.Now(),
	})
	svc.saveRound(ctx, r.round)

	status := roundStatus(exp, r.round)
	if exp.KOfN == 0 || len(r.round.Updates) < exp.KOfN {
		exp.NumUpdates = len(r.round.Updates)
		exp.UpdatedAt = time.Now()
		err := svc.experimentsDB.Update(ctx, exp.ID, exp)
		svc.mu.Unlock()

		return status, err
	}

	model, announcement, err := svc.completeLocked(ctx, exp, r)
	svc.mu.Unlock()
	if err != nil {
		return RoundStatus{}, err
	}
	svc.announce(ctx, announcement)

	status.Completed = true
	status.ModelVersion = model.Version

	return status, nil
}

func (svc *service) CompleteRound(ctx context.Context, experimentID string) (fl.Model, error) {
	exp, err := svc.GetExperiment(ctx, experimentID)
	if err != nil {
		return fl.Model{}, err
	}

	svc.mu.Lock()
	r, ok := svc.runs[experimentID]
	if !ok {
		svc.mu.Unlock()

		return fl.Model{}, errors.ErrNotFound
	}
	model, announcement, err := svc.completeLocked(ctx, exp, r)
	svc.mu.Unlock()
	if err != nil {
		return fl.Model{}, err
	}
	svc.announce(ctx, announcement)

	return model, nil
}

// completeLocked aggregates the open round, stores the model and opens the
// next round. svc.mu must be held.
func (svc *service) completeLocked(ctx context.Context, exp Experiment, r *run) (fl.Model, ModelAnnouncement, error) {
	if len(r.round.Updates) == 0 {
		return fl.Model{}, ModelAnnouncement{}, fmt.Errorf("%w: %w", errors.ErrInvalidData, fl.ErrNoUpdates)
	}

	model, err := r.agg.Aggregate(r.round.Updates)
	if err != nil {
		return fl.Model{}, ModelAnnouncement{}, err
	}
	model.Metadata["round_id"] = r.round.RoundID

	if err := svc.modelsDB.Create(ctx, modelKey(exp.ID, model.Version), model); err != nil {
		return fl.Model{}, ModelAnnouncement{}, err
	}
	if svc.persistent != nil {
		if err := svc.persistent.SaveModel(exp.ID, model); err != nil {
			svc.logger.WarnContext(ctx, "Failed to persist model",
				slog.String("experiment_id", exp.ID),
				slog.Int("version", model.Version),
				slog.Any("error", err))
		}
	}

	r.round.Completed = true
	svc.saveRound(ctx, r.round)

	announcement := ModelAnnouncement{
		ExperimentID: exp.ID,
		RoundID:      r.round.RoundID,
		Version:      model.Version,
		NumUpdates:   len(r.round.Updates),
	}

	exp.Round++
	exp.NumUpdates = 0
	exp.ModelVersion = model.Version
	exp.UpdatedAt = time.Now()
	r.round = newRound(exp.ID, exp.Round, exp.KOfN)
	if err := svc.experimentsDB.Update(ctx, exp.ID, exp); err != nil {
		return fl.Model{}, ModelAnnouncement{}, err
	}

	return model, announcement, nil
}

func (svc *service) GetModel(ctx context.Context, experimentID string, version int) (fl.Model, error) {
	exp, err := svc.GetExperiment(ctx, experimentID)
	if err != nil {
		return fl.Model{}, err
	}
	if version < 1 {
		version = exp.ModelVersion
	}
	if version < 1 {
		return fl.Model{}, fmt.Errorf("%w: experiment %s has no models yet", errors.ErrNotFound, experimentID)
	}

	model, err := svc.modelsDB.Get(ctx, modelKey(experimentID, version))
	switch {
	case err == nil:
		return model, nil
	case svc.persistent != nil:
		stored, perr := svc.persistent.LoadModel(experimentID, version)
		if perr != nil {
			return fl.Model{}, err
		}

		return *stored, nil
	default:
		return fl.Model{}, err
	}
}

func (svc *service) announce(ctx context.Context, a ModelAnnouncement) {
	if svc.pubsub == nil {
		return
	}

	topic := fmt.Sprintf("%s/fl/experiments/%s/models", svc.baseTopic, a.ExperimentID)
	if err := svc.pubsub.Publish(ctx, topic, a); err != nil {
		svc.logger.WarnContext(ctx, "Failed to announce model",
			slog.String("experiment_id", a.ExperimentID),
			slog.Int("version", a.Version),
			slog.Any("error", err))

		return
	}

	svc.logger.InfoContext(ctx, "Announced model",
		slog.String("experiment_id", a.ExperimentID),
		slog.Int("version", a.Version),
		slog.Int("num_updates", a.NumUpdates))
}

func (svc *service) saveRound(ctx context.Context, round *fl.RoundState) {
	if svc.persistent == nil {
		return
	}
	if err := svc.persistent.SaveRound(round.RoundID, round); err != nil {
		svc.logger.WarnContext(ctx, "Failed to persist round",
			slog.String("round_id", round.RoundID),
			slog.Any("error", err))
	}
}

// decodeValue converts the submitted value to a structure conforming to the
// experiment's value type.
func decodeValue(valueType types.Type, update Update) (structure.Value, error) {
	var (
		value structure.Value
		err   error
	)
	switch {
	case len(update.Envelope) > 0:
		envelope, uerr := codec.Unmarshal(update.Envelope)
		if uerr != nil {
			return structure.Value{}, uerr
		}
		value, _, err = codec.DeserializeValue(envelope)
	case update.Value != nil:
		value, err = structure.FromLiteral(valueType, update.Value)
	default:
		return structure.Value{}, fmt.Errorf("%w: update carries no value", errors.ErrInvalidData)
	}
	if err != nil {
		return structure.Value{}, err
	}
	if err := value.Conforms(valueType); err != nil {
		return structure.Value{}, err
	}

	return value, nil
}

func newRound(experimentID string, round, kOfN int) *fl.RoundState {
	return &fl.RoundState{
		RoundID:   roundID(experimentID, round),
		KOfN:      kOfN,
		StartTime: time.Now(),
		Updates:   []fl.Update{},
	}
}

func roundStatus(exp Experiment, round *fl.RoundState) RoundStatus {
	return RoundStatus{
		ExperimentID: exp.ID,
		RoundID:      round.RoundID,
		Round:        exp.Round,
		NumUpdates:   len(round.Updates),
		KOfN:         exp.KOfN,
		Completed:    round.Completed,
		ModelVersion: exp.ModelVersion,
	}
}

func roundID(experimentID string, round int) string {
	return fmt.Sprintf("%s_%d", experimentID, round)
}

func modelKey(experimentID string, version int) string {
	return fmt.Sprintf("%s/%d", experimentID, version)
}
