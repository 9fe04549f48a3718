package coordinator

import (
	"context"

	"github.com/absmach/fedagg/pkg/fl"
)

// Service runs federated averaging experiments: clients submit updates to
// the open round of an experiment and completing the round aggregates them
// into a new model version.
type Service interface {
	CreateExperiment(ctx context.Context, cfg ExperimentConfig) (Experiment, error)
	GetExperiment(ctx context.Context, experimentID string) (Experiment, error)
	ListExperiments(ctx context.Context, offset, limit uint64) (ExperimentPage, error)

	// SubmitUpdate adds a client update to the open round. The round is
	// completed automatically once k_of_n updates have arrived.
	SubmitUpdate(ctx context.Context, experimentID string, update Update) (RoundStatus, error)
	CompleteRound(ctx context.Context, experimentID string) (fl.Model, error)

	// GetModel returns a model version; a version below 1 selects the latest.
	GetModel(ctx context.Context, experimentID string, version int) (fl.Model, error)

	// Subscribe consumes client updates published over MQTT.
	Subscribe(ctx context.Context) error
}
