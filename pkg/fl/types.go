package fl

import (
	"time"

	"github.com/absmach/fedagg/pkg/structure"
)

type RoundState struct {
	RoundID   string    `json:"round_id"`
	KOfN      int       `json:"k_of_n"`
	StartTime time.Time `json:"start_time"`
	Updates   []Update  `json:"updates"`
	Completed bool      `json:"completed"`
}

// Update is one client's contribution to a round.
type Update struct {
	RoundID    string          `json:"round_id"`
	ClientID   string          `json:"client_id"`
	NumSamples int             `json:"num_samples"`
	Metrics    map[string]any  `json:"metrics,omitempty"`
	Value      structure.Value `json:"value"`
	ReceivedAt time.Time       `json:"received_at"`
}

type Model struct {
	Version  int             `json:"version"`
	Value    structure.Value `json:"value"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

type Aggregator interface {
	Aggregate(updates []Update) (Model, error)
}
