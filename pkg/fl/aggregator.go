package fl

import (
	"fmt"
	"sync"

	"github.com/absmach/fedagg/pkg/aggregators"
	pkgerrors "github.com/absmach/fedagg/pkg/errors"
	"github.com/absmach/fedagg/pkg/structure"
	"github.com/absmach/fedagg/pkg/tensor"
	"github.com/absmach/fedagg/pkg/types"
)

// maxSamples keeps the weight sum exactly representable.
const maxSamples = 1 << 53

// SampleWeightType is the type of the per-client weights derived from
// Update.NumSamples.
var SampleWeightType = types.Tensor(types.Int64)

// FedAvgAggregator averages client updates with a mean process, weighting
// each update by its sample count unless created unweighted. The process
// state is carried from one Aggregate call to the next.
type FedAvgAggregator struct {
	mu         sync.Mutex
	weighted   bool
	unweighted aggregators.UnweightedProcess
	weightedP  aggregators.WeightedProcess
	state      any
	rounds     int
}

var _ Aggregator = (*FedAvgAggregator)(nil)

func NewFedAvgAggregator(valueType types.Type, weighted bool, opts ...aggregators.Option) (*FedAvgAggregator, error) {
	factory := aggregators.NewMeanFactory(opts...)
	agg := &FedAvgAggregator{weighted: weighted}

	if weighted {
		p, err := factory.CreateWeighted(valueType, SampleWeightType)
		if err != nil {
			return nil, err
		}
		agg.weightedP = p
		agg.state = p.Initialize()

		return agg, nil
	}

	p, err := factory.CreateUnweighted(valueType)
	if err != nil {
		return nil, err
	}
	agg.unweighted = p
	agg.state = p.Initialize()

	return agg, nil
}

func (f *FedAvgAggregator) Types() aggregators.ProcessTypes {
	if f.weighted {
		return f.weightedP.Types()
	}

	return f.unweighted.Types()
}

// Rounds returns the number of successful aggregations so far.
func (f *FedAvgAggregator) Rounds() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.rounds
}

func (f *FedAvgAggregator) Aggregate(updates []Update) (Model, error) {
	if len(updates) == 0 {
		return Model{}, ErrNoUpdates
	}

	values := make([]structure.Value, len(updates))
	weights := make([]structure.Value, len(updates))
	var totalSamples int64
	for i, u := range updates {
		if u.NumSamples < 0 {
			return Model{}, fmt.Errorf("%w: %w: client %s reported %d", pkgerrors.ErrInvalidData, ErrNegativeSamples, u.ClientID, u.NumSamples)
		}
		totalSamples += int64(u.NumSamples)
		if totalSamples > maxSamples {
			return Model{}, ErrOverflow
		}
		values[i] = u.Value
		weights[i] = structure.Leaf(tensor.Scalar(types.Int64, float64(u.NumSamples)))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var (
		out aggregators.MeasuredOutput
		err error
	)
	if f.weighted {
		out, err = f.weightedP.Next(f.state, values, weights)
	} else {
		out, err = f.unweighted.Next(f.state, values)
	}
	if err != nil {
		return Model{}, err
	}
	f.state = out.State
	f.rounds++

	algorithm := "FedAvg"
	if !f.weighted {
		algorithm = "Mean"
	}

	return Model{
		Version: f.rounds,
		Value:   out.Result,
		Metadata: map[string]any{
			"total_samples": totalSamples,
			"num_updates":   len(updates),
			"algorithm":     algorithm,
			"measurements":  out.Measurements,
		},
	}, nil
}
