package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/absmach/fedagg/pkg/structure"
)

type Model struct {
	Version  int             `json:"version"`
	Value    structure.Value `json:"value"`
	Metadata map[string]any  `json:"metadata,omitempty"`
	Literal  any             `json:"literal,omitempty"`
}

func (sdk *fedSDK) CompleteRound(experimentID string) (Model, error) {
	url := fmt.Sprintf("%s%s/%s/complete", sdk.coordinatorURL, experimentsEndpoint, experimentID)

	body, err := sdk.processRequest(http.MethodPost, url, CTJSON, nil, http.StatusOK)
	if err != nil {
		return Model{}, err
	}

	return decodeModel(body)
}

func (sdk *fedSDK) GetModel(experimentID string, version int) (Model, error) {
	v := "latest"
	if version > 0 {
		v = strconv.Itoa(version)
	}
	url := fmt.Sprintf("%s%s/%s/models/%s", sdk.coordinatorURL, experimentsEndpoint, experimentID, v)

	body, err := sdk.processRequest(http.MethodGet, url, CTJSON, nil, http.StatusOK)
	if err != nil {
		return Model{}, err
	}

	return decodeModel(body)
}

func decodeModel(body []byte) (Model, error) {
	var m Model
	if err := json.Unmarshal(body, &m); err != nil {
		return Model{}, err
	}

	return m, nil
}
