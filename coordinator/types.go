package coordinator

import "time"

type ExperimentConfig struct {
	Name          string `json:"name,omitempty"           toml:"name"`
	ValueType     string `json:"value_type"               toml:"value_type"`
	Weighted      bool   `json:"weighted"                 toml:"weighted"`
	NoNaNDivision bool   `json:"no_nan_division"          toml:"no_nan_division"`
	KOfN          int    `json:"k_of_n,omitempty"         toml:"k_of_n"`
	RoundSchedule string `json:"round_schedule,omitempty" toml:"round_schedule"`
}

type Experiment struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	ValueType     string    `json:"value_type"`
	Weighted      bool      `json:"weighted"`
	NoNaNDivision bool      `json:"no_nan_division"`
	KOfN          int       `json:"k_of_n,omitempty"`
	RoundSchedule string    `json:"round_schedule,omitempty"`
	Round         int       `json:"round"`
	NumUpdates    int       `json:"num_updates"`
	ModelVersion  int       `json:"model_version,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ExperimentPage struct {
	Offset      uint64       `json:"offset"`
	Limit       uint64       `json:"limit"`
	Total       uint64       `json:"total"`
	Experiments []Experiment `json:"experiments"`
}

// Update is a client update as received over HTTP or MQTT. Value holds a
// nested literal matching the experiment's value type; Envelope holds a
// marshaled codec envelope instead.
type Update struct {
	ClientID   string         `json:"client_id"          cbor:"client_id"`
	NumSamples int            `json:"num_samples"        cbor:"num_samples"`
	Metrics    map[string]any `json:"metrics,omitempty"  cbor:"metrics,omitempty"`
	Value      any            `json:"value,omitempty"    cbor:"-"`
	Envelope   []byte         `json:"envelope,omitempty" cbor:"value"`
}

type RoundStatus struct {
	ExperimentID string `json:"experiment_id"`
	RoundID      string `json:"round_id"`
	Round        int    `json:"round"`
	NumUpdates   int    `json:"num_updates"`
	KOfN         int    `json:"k_of_n,omitempty"`
	Completed    bool   `json:"completed"`
	ModelVersion int    `json:"model_version,omitempty"`
}

// ModelAnnouncement is published whenever a new model version is produced.
type ModelAnnouncement struct {
	ExperimentID string `json:"experiment_id"`
	RoundID      string `json:"round_id"`
	Version      int    `json:"version"`
	NumUpdates   int    `json:"num_updates"`
}
