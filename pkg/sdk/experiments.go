package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const experimentsEndpoint = "/experiments"

type ExperimentConfig struct {
	Name          string `json:"name,omitempty"`
	ValueType     string `json:"value_type"`
	Weighted      bool   `json:"weighted"`
	NoNaNDivision bool   `json:"no_nan_division"`
	KOfN          int    `json:"k_of_n,omitempty"`
	RoundSchedule string `json:"round_schedule,omitempty"`
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

func (sdk *fedSDK) CreateExperiment(cfg ExperimentConfig) (Experiment, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return Experiment{}, err
	}

	url := sdk.coordinatorURL + experimentsEndpoint + "/"

	body, err := sdk.processRequest(http.MethodPost, url, CTJSON, data, http.StatusCreated)
	if err != nil {
		return Experiment{}, err
	}

	var e Experiment
	if err := json.Unmarshal(body, &e); err != nil {
		return Experiment{}, err
	}

	return e, nil
}

func (sdk *fedSDK) GetExperiment(id string) (Experiment, error) {
	url := sdk.coordinatorURL + experimentsEndpoint + "/" + id

	body, err := sdk.processRequest(http.MethodGet, url, CTJSON, nil, http.StatusOK)
	if err != nil {
		return Experiment{}, err
	}

	var e Experiment
	if err := json.Unmarshal(body, &e); err != nil {
		return Experiment{}, err
	}

	return e, nil
}

func (sdk *fedSDK) ListExperiments(offset, limit uint64) (ExperimentPage, error) {
	queries := make([]string, 0)
	if offset > 0 {
		queries = append(queries, fmt.Sprintf("offset=%d", offset))
	}
	if limit > 0 {
		queries = append(queries, fmt.Sprintf("limit=%d", limit))
	}
	query := ""
	if len(queries) > 0 {
		query = "?" + strings.Join(queries, "&")
	}
	url := sdk.coordinatorURL + experimentsEndpoint + "/" + query

	body, err := sdk.processRequest(http.MethodGet, url, CTJSON, nil, http.StatusOK)
	if err != nil {
		return ExperimentPage{}, err
	}

	var p ExperimentPage
	if err := json.Unmarshal(body, &p); err != nil {
		return ExperimentPage{}, err
	}

	return p, nil
}
