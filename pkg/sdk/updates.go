package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fxamacker/cbor/v2"
)

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

func (sdk *fedSDK) SubmitUpdate(experimentID string, update Update) (RoundStatus, error) {
	data, err := json.Marshal(update)
	if err != nil {
		return RoundStatus{}, err
	}

	return sdk.submit(experimentID, CTJSON, data)
}

func (sdk *fedSDK) SubmitUpdateEnvelope(experimentID string, update Update) (RoundStatus, error) {
	if len(update.Envelope) == 0 {
		return RoundStatus{}, fmt.Errorf("update %q has no envelope", update.ClientID)
	}

	data, err := cbor.Marshal(update)
	if err != nil {
		return RoundStatus{}, err
	}

	return sdk.submit(experimentID, CTCBOR, data)
}

func (sdk *fedSDK) submit(experimentID, contentType string, data []byte) (RoundStatus, error) {
	url := fmt.Sprintf("%s%s/%s/updates", sdk.coordinatorURL, experimentsEndpoint, experimentID)

	body, err := sdk.processRequest(http.MethodPost, url, contentType, data, http.StatusAccepted)
	if err != nil {
		return RoundStatus{}, err
	}

	var s RoundStatus
	if err := json.Unmarshal(body, &s); err != nil {
		return RoundStatus{}, err
	}

	return s, nil
}
