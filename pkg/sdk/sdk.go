package sdk

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	CTJSON string = "application/json"
	CTCBOR string = "application/cbor"
)

type PageMetadata struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
}

type SDK interface {
	// CreateExperiment creates a new experiment.
	//
	// example:
	//  exp := sdk.ExperimentConfig{
	//    ValueType: "float32[10]",
	//    Weighted:  true,
	//    KOfN:      3,
	//  }
	//  experiment, _ := sdk.CreateExperiment(exp)
	//  fmt.Println(experiment)
	CreateExperiment(cfg ExperimentConfig) (Experiment, error)

	// GetExperiment gets an experiment by id.
	//
	// example:
	//  experiment, _ := sdk.GetExperiment("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	//  fmt.Println(experiment)
	GetExperiment(id string) (Experiment, error)

	// ListExperiments lists experiments.
	//
	// example:
	//  page, _ := sdk.ListExperiments(0, 10)
	//  fmt.Println(page)
	ListExperiments(offset uint64, limit uint64) (ExperimentPage, error)

	// SubmitUpdate submits a client update whose value is a nested literal.
	//
	// example:
	//  update := sdk.Update{
	//    ClientID:   "client-1",
	//    NumSamples: 120,
	//    Value:      []float64{0.1, 0.2},
	//  }
	//  status, _ := sdk.SubmitUpdate("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040", update)
	//  fmt.Println(status)
	SubmitUpdate(experimentID string, update Update) (RoundStatus, error)

	// SubmitUpdateEnvelope submits a client update whose value is a
	// marshaled codec envelope. The request is sent as CBOR.
	//
	// example:
	//  v, _ := codec.SerializeTensorValue([]float64{0.1, 0.2}, nil)
	//  envelope, _ := v.Marshal()
	//  update := sdk.Update{ClientID: "client-1", NumSamples: 120, Envelope: envelope}
	//  status, _ := sdk.SubmitUpdateEnvelope("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040", update)
	SubmitUpdateEnvelope(experimentID string, update Update) (RoundStatus, error)

	// CompleteRound aggregates the updates of the current round.
	//
	// example:
	//  model, _ := sdk.CompleteRound("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	//  fmt.Println(model.Version)
	CompleteRound(experimentID string) (Model, error)

	// GetModel gets a model version of an experiment. Version 0 returns the
	// latest model.
	//
	// example:
	//  model, _ := sdk.GetModel("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040", 0)
	//  fmt.Println(model.Literal)
	GetModel(experimentID string, version int) (Model, error)
}

type fedSDK struct {
	coordinatorURL string
	client         *http.Client
}

type Config struct {
	CoordinatorURL  string
	TLSVerification bool
}

func NewSDK(cfg Config) SDK {
	return &fedSDK{
		coordinatorURL: strings.TrimSuffix(cfg.CoordinatorURL, "/"),
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (sdk *fedSDK) processRequest(method, reqURL, contentType string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", contentType)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		var er errorResponse
		if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
			return []byte{}, fmt.Errorf("unexpected response code: %d: %s", resp.StatusCode, er.Error)
		}

		return []byte{}, fmt.Errorf("unexpected response code: %d", resp.StatusCode)
	}

	return body, nil
}
