package sdk_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/absmach/fedagg/pkg/sdk"
	"github.com/absmach/fedagg/pkg/structure"
	"github.com/absmach/fedagg/pkg/tensor"
	"github.com/absmach/fedagg/pkg/types"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const experimentID = "b1d10738-c5d7-4ff1-8f4d-b9328ce6f040"

func newSDK(t *testing.T, handler http.HandlerFunc) sdk.SDK {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	return sdk.NewSDK(sdk.Config{CoordinatorURL: ts.URL + "/"})
}

func TestCreateExperiment(t *testing.T) {
	t.Parallel()

	s := newSDK(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/experiments/", r.URL.Path)
		assert.Equal(t, sdk.CTJSON, r.Header.Get("Content-Type"))

		var cfg sdk.ExperimentConfig
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&cfg))
		assert.Equal(t, "float32[2]", cfg.ValueType)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(sdk.Experiment{ID: experimentID, ValueType: cfg.ValueType, Round: 1})
	})

	exp, err := s.CreateExperiment(sdk.ExperimentConfig{ValueType: "float32[2]", Weighted: true})
	require.NoError(t, err)
	assert.Equal(t, experimentID, exp.ID)
	assert.Equal(t, 1, exp.Round)
}

func TestErrorResponse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		err  string
	}{
		{"with message", `{"error":"entity not found"}`, "unexpected response code: 404: entity not found"},
		{"without message", `not json`, "unexpected response code: 404"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := newSDK(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, tc.body)
			})

			_, err := s.GetExperiment("missing")
			require.Error(t, err)
			assert.Equal(t, tc.err, err.Error())
		})
	}
}

func TestListExperiments(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		offset uint64
		limit  uint64
		query  string
	}{
		{"defaults", 0, 0, ""},
		{"limit only", 0, 5, "limit=5"},
		{"offset and limit", 10, 5, "offset=10&limit=5"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := newSDK(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tc.query, r.URL.RawQuery)
				_ = json.NewEncoder(w).Encode(sdk.ExperimentPage{Total: 1, Experiments: []sdk.Experiment{{ID: experimentID}}})
			})

			page, err := s.ListExperiments(tc.offset, tc.limit)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), page.Total)
			assert.Len(t, page.Experiments, 1)
		})
	}
}

func TestSubmitUpdate(t *testing.T) {
	t.Parallel()

	s := newSDK(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/experiments/"+experimentID+"/updates", r.URL.Path)
		assert.Equal(t, sdk.CTJSON, r.Header.Get("Content-Type"))

		var u sdk.Update
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&u))
		assert.Equal(t, "client-1", u.ClientID)
		assert.Equal(t, []any{0.5, 1.5}, u.Value)

		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(sdk.RoundStatus{ExperimentID: experimentID, NumUpdates: 1})
	})

	status, err := s.SubmitUpdate(experimentID, sdk.Update{ClientID: "client-1", NumSamples: 3, Value: []float64{0.5, 1.5}})
	require.NoError(t, err)
	assert.Equal(t, 1, status.NumUpdates)
}

func TestSubmitUpdateEnvelope(t *testing.T) {
	t.Parallel()

	envelope := []byte{0x0a, 0x02, 0x01, 0x02}
	s := newSDK(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, sdk.CTCBOR, r.Header.Get("Content-Type"))

		data, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var u sdk.Update
		assert.NoError(t, cbor.Unmarshal(data, &u))
		assert.Equal(t, envelope, u.Envelope)
		assert.Equal(t, 4, u.NumSamples)

		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(sdk.RoundStatus{ExperimentID: experimentID, Completed: true, ModelVersion: 1})
	})

	status, err := s.SubmitUpdateEnvelope(experimentID, sdk.Update{ClientID: "client-1", NumSamples: 4, Envelope: envelope})
	require.NoError(t, err)
	assert.True(t, status.Completed)

	_, err = s.SubmitUpdateEnvelope(experimentID, sdk.Update{ClientID: "client-1"})
	assert.Error(t, err)
}

func TestGetModel(t *testing.T) {
	t.Parallel()

	leaf, err := tensor.New(types.Float32, types.Shape{2}, []float64{0.5, 1.5})
	require.NoError(t, err)
	value := structure.Leaf(leaf)

	cases := []struct {
		name    string
		version int
		path    string
	}{
		{"latest", 0, "/experiments/" + experimentID + "/models/latest"},
		{"explicit", 3, "/experiments/" + experimentID + "/models/3"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := newSDK(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tc.path, r.URL.Path)
				_ = json.NewEncoder(w).Encode(sdk.Model{Version: 3, Value: value, Literal: []float64{0.5, 1.5}})
			})

			model, err := s.GetModel(experimentID, tc.version)
			require.NoError(t, err)
			assert.Equal(t, 3, model.Version)
			assert.True(t, model.Value.Equal(value))
			assert.Equal(t, []any{0.5, 1.5}, model.Literal)
		})
	}
}

func TestCompleteRound(t *testing.T) {
	t.Parallel()

	s := newSDK(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/experiments/"+experimentID+"/complete", r.URL.Path)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"invalid data"}`)
	})

	_, err := s.CompleteRound(experimentID)
	assert.ErrorContains(t, err, "invalid data")
}
