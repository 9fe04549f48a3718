package coordinator_test

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/absmach/fedagg/coordinator"
	"github.com/absmach/fedagg/pkg/codec"
	pkgerrors "github.com/absmach/fedagg/pkg/errors"
	"github.com/absmach/fedagg/pkg/fl"
	"github.com/absmach/fedagg/pkg/mqtt"
	"github.com/absmach/fedagg/pkg/mqtt/mocks"
	"github.com/absmach/fedagg/pkg/storage"
	"github.com/absmach/fedagg/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/types/known/anypb"
)

const baseTopic = "m/domain/c/channel"

func newService(t *testing.T, persistent *fl.PersistentStorage) (coordinator.Service, *mocks.MockPubSub) {
	t.Helper()

	pubsub := &mocks.MockPubSub{}
	svc := coordinator.NewService(
		storage.NewInMemoryStorage[coordinator.Experiment](),
		storage.NewInMemoryStorage[fl.Model](),
		persistent,
		pubsub,
		baseTopic,
		slog.New(slog.DiscardHandler),
	)

	return svc, pubsub
}

func modelsTopic(experimentID string) string {
	return fmt.Sprintf("%s/fl/experiments/%s/models", baseTopic, experimentID)
}

func TestCreateExperiment(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		cfg   coordinator.ExperimentConfig
		errIs error
	}{
		{
			name: "weighted vector",
			cfg:  coordinator.ExperimentConfig{Name: "mnist", ValueType: "float32[2]", Weighted: true, KOfN: 2},
		},
		{
			name: "unweighted struct",
			cfg:  coordinator.ExperimentConfig{ValueType: "<w=float32[2,2],b=float32>"},
		},
		{
			name:  "federated value type",
			cfg:   coordinator.ExperimentConfig{ValueType: "{float32}@CLIENTS"},
			errIs: pkgerrors.ErrTypeMismatch,
		},
		{
			name:  "unparsable value type",
			cfg:   coordinator.ExperimentConfig{ValueType: "float32[2"},
			errIs: pkgerrors.ErrTypeMismatch,
		},
		{
			name:  "string value type",
			cfg:   coordinator.ExperimentConfig{ValueType: "string"},
			errIs: pkgerrors.ErrTypeMismatch,
		},
		{
			name:  "negative k_of_n",
			cfg:   coordinator.ExperimentConfig{ValueType: "float32", KOfN: -1},
			errIs: pkgerrors.ErrInvalidData,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			svc, _ := newService(t, nil)
			exp, err := svc.CreateExperiment(context.Background(), tc.cfg)
			if tc.errIs != nil {
				assert.ErrorIs(t, err, tc.errIs)

				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, exp.ID)
			assert.NotEmpty(t, exp.Name)
			if tc.cfg.Name != "" {
				assert.Equal(t, tc.cfg.Name, exp.Name)
			}
			assert.Equal(t, 1, exp.Round)

			got, err := svc.GetExperiment(context.Background(), exp.ID)
			require.NoError(t, err)
			assert.Equal(t, exp, got)
		})
	}
}

func TestSubmitAndCompleteRound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, pubsub := newService(t, nil)

	exp, err := svc.CreateExperiment(ctx, coordinator.ExperimentConfig{ValueType: "float32[2]", Weighted: true})
	require.NoError(t, err)
	pubsub.On("Publish", mock.Anything, modelsTopic(exp.ID), mock.Anything).Return(nil).Once()

	status, err := svc.SubmitUpdate(ctx, exp.ID, coordinator.Update{ClientID: "a", NumSamples: 1, Value: []any{1.0, 2.0}})
	require.NoError(t, err)
	assert.Equal(t, 1, status.NumUpdates)
	assert.False(t, status.Completed)

	_, err = svc.SubmitUpdate(ctx, exp.ID, coordinator.Update{ClientID: "b", NumSamples: 3, Value: []any{5.0, 6.0}})
	require.NoError(t, err)

	model, err := svc.CompleteRound(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, model.Version)
	leaf, ok := model.Value.Tensor()
	require.True(t, ok)
	assert.Equal(t, []float64{4, 5}, leaf.Values())
	pubsub.AssertExpectations(t)

	exp, err = svc.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, exp.Round)
	assert.Equal(t, 1, exp.ModelVersion)
	assert.Equal(t, 0, exp.NumUpdates)

	latest, err := svc.GetModel(ctx, exp.ID, 0)
	require.NoError(t, err)
	assert.True(t, latest.Value.Equal(model.Value))

	_, err = svc.GetModel(ctx, exp.ID, 2)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	_, err = svc.CompleteRound(ctx, exp.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidData)
	assert.ErrorIs(t, err, fl.ErrNoUpdates)
}

func TestSubmitUpdateAutoCompletes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, pubsub := newService(t, nil)

	exp, err := svc.CreateExperiment(ctx, coordinator.ExperimentConfig{ValueType: "float32", KOfN: 2})
	require.NoError(t, err)
	pubsub.On("Publish", mock.Anything, modelsTopic(exp.ID), mock.Anything).Return(nil).Twice()

	for round := 1; round <= 2; round++ {
		status, err := svc.SubmitUpdate(ctx, exp.ID, coordinator.Update{ClientID: "a", Value: 1.0})
		require.NoError(t, err)
		assert.False(t, status.Completed)

		status, err = svc.SubmitUpdate(ctx, exp.ID, coordinator.Update{ClientID: "b", Value: 3.0})
		require.NoError(t, err)
		assert.True(t, status.Completed)
		assert.Equal(t, round, status.ModelVersion)
		assert.Equal(t, fmt.Sprintf("%s_%d", exp.ID, round), status.RoundID)
	}

	model, err := svc.GetModel(ctx, exp.ID, 2)
	require.NoError(t, err)
	leaf, ok := model.Value.Tensor()
	require.True(t, ok)
	assert.Equal(t, []float64{2}, leaf.Values())
	pubsub.AssertExpectations(t)
}

func TestSubmitUpdateErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newService(t, nil)

	exp, err := svc.CreateExperiment(ctx, coordinator.ExperimentConfig{ValueType: "float32[2]"})
	require.NoError(t, err)
	_, err = svc.SubmitUpdate(ctx, exp.ID, coordinator.Update{ClientID: "a", Value: []any{1.0, 2.0}})
	require.NoError(t, err)

	cases := []struct {
		name         string
		experimentID string
		update       coordinator.Update
		errIs        error
	}{
		{"unknown experiment", "missing", coordinator.Update{ClientID: "x", Value: []any{1.0, 2.0}}, pkgerrors.ErrNotFound},
		{"missing client", exp.ID, coordinator.Update{Value: []any{1.0, 2.0}}, pkgerrors.ErrInvalidData},
		{"negative samples", exp.ID, coordinator.Update{ClientID: "x", NumSamples: -1, Value: []any{1.0, 2.0}}, pkgerrors.ErrInvalidData},
		{"missing value", exp.ID, coordinator.Update{ClientID: "x"}, pkgerrors.ErrInvalidData},
		{"wrong shape", exp.ID, coordinator.Update{ClientID: "x", Value: []any{1.0, 2.0, 3.0}}, pkgerrors.ErrMalformedValue},
		{"duplicate client", exp.ID, coordinator.Update{ClientID: "a", Value: []any{1.0, 2.0}}, pkgerrors.ErrEntityExists},
		{"corrupt envelope", exp.ID, coordinator.Update{ClientID: "x", Envelope: []byte{0x0a, 0x09}}, pkgerrors.ErrMalformedValue},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := svc.SubmitUpdate(ctx, tc.experimentID, tc.update)
			assert.ErrorIs(t, err, tc.errIs)
		})
	}
}

func TestSubmitUpdateEnvelope(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, pubsub := newService(t, nil)

	exp, err := svc.CreateExperiment(ctx, coordinator.ExperimentConfig{ValueType: "float32[2]", KOfN: 1})
	require.NoError(t, err)
	pubsub.On("Publish", mock.Anything, modelsTopic(exp.ID), mock.Anything).Return(nil)

	envelope, err := codec.SerializeTensorValue([]float64{0.5, 1.5}, types.Tensor(types.Float32, 2))
	require.NoError(t, err)
	data, err := envelope.Marshal()
	require.NoError(t, err)

	status, err := svc.SubmitUpdate(ctx, exp.ID, coordinator.Update{ClientID: "a", Envelope: data})
	require.NoError(t, err)
	assert.True(t, status.Completed)

	model, err := svc.GetModel(ctx, exp.ID, 1)
	require.NoError(t, err)
	leaf, ok := model.Value.Tensor()
	require.True(t, ok)
	assert.Equal(t, []float64{0.5, 1.5}, leaf.Values())

	wrongType, err := codec.SerializeTensorValue([]float64{0.5, 1.5}, types.Tensor(types.Float64, 2))
	require.NoError(t, err)
	data, err = wrongType.Marshal()
	require.NoError(t, err)
	_, err = svc.SubmitUpdate(ctx, exp.ID, coordinator.Update{ClientID: "b", Envelope: data})
	assert.ErrorIs(t, err, pkgerrors.ErrMalformedValue)
}

func TestSubmitUpdateOversizedEnvelope(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newService(t, nil)

	exp, err := svc.CreateExperiment(ctx, coordinator.ExperimentConfig{ValueType: "float32[2]"})
	require.NoError(t, err)

	var dim, shape, proto []byte
	dim = protowire.AppendTag(dim, 1, protowire.VarintType)
	dim = protowire.AppendVarint(dim, 1<<50)
	shape = protowire.AppendTag(shape, 2, protowire.BytesType)
	shape = protowire.AppendBytes(shape, dim)
	proto = protowire.AppendTag(proto, 1, protowire.VarintType)
	proto = protowire.AppendVarint(proto, uint64(types.Float32))
	proto = protowire.AppendTag(proto, 2, protowire.BytesType)
	proto = protowire.AppendBytes(proto, shape)

	envelope := codec.Value{Kind: codec.KindTensor, Tensor: &anypb.Any{TypeUrl: codec.TensorTypeURL, Value: proto}}
	data, err := envelope.Marshal()
	require.NoError(t, err)

	_, err = svc.SubmitUpdate(ctx, exp.ID, coordinator.Update{ClientID: "a", Envelope: data})
	assert.ErrorIs(t, err, pkgerrors.ErrMalformedValue)

	done := make(chan error, 1)
	go func() {
		_, err := svc.SubmitUpdate(ctx, exp.ID, coordinator.Update{ClientID: "a", Value: []any{1.0, 2.0}})
		done <- err
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("SubmitUpdate blocked after a rejected envelope")
	}
}

func TestCompleteRoundPersistsModels(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	persistent, err := fl.NewPersistentStorage(filepath.Join(dir, "rounds"), filepath.Join(dir, "models"))
	require.NoError(t, err)

	svc, pubsub := newService(t, persistent)
	pubsub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)

	exp, err := svc.CreateExperiment(ctx, coordinator.ExperimentConfig{ValueType: "<w=float32[2],b=int32>", Weighted: true})
	require.NoError(t, err)

	_, err = svc.SubmitUpdate(ctx, exp.ID, coordinator.Update{
		ClientID:   "a",
		NumSamples: 2,
		Value:      map[string]any{"w": []any{1.0, 3.0}, "b": 4},
	})
	require.NoError(t, err)

	model, err := svc.CompleteRound(ctx, exp.ID)
	require.NoError(t, err, "publish failures are not fatal")

	versions, err := persistent.ListModels(exp.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, versions)

	stored, err := persistent.LoadModel(exp.ID, 1)
	require.NoError(t, err)
	assert.True(t, stored.Value.Equal(model.Value), "stored %s, want %s", stored.Value, model.Value)

	rounds, err := persistent.ListRounds()
	require.NoError(t, err)
	assert.Contains(t, rounds, exp.ID+"_1")
}

func TestListExperiments(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newService(t, nil)
	for range 3 {
		_, err := svc.CreateExperiment(ctx, coordinator.ExperimentConfig{ValueType: "float32"})
		require.NoError(t, err)
	}

	page, err := svc.ListExperiments(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), page.Total)
	assert.Len(t, page.Experiments, 2)

	page, err = svc.ListExperiments(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page.Experiments, 1)
}

func TestSubscribeHandlesUpdates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, pubsub := newService(t, nil)

	exp, err := svc.CreateExperiment(ctx, coordinator.ExperimentConfig{ValueType: "float32[2]", Weighted: true, KOfN: 2})
	require.NoError(t, err)

	var handler mqtt.Handler
	pubsub.On("Subscribe", mock.Anything, baseTopic+"/fl/experiments/+/updates", mock.Anything).
		Run(func(args mock.Arguments) {
			handler = args.Get(2).(mqtt.Handler)
		}).
		Return(nil)
	pubsub.On("Publish", mock.Anything, modelsTopic(exp.ID), mock.Anything).Return(nil)

	require.NoError(t, svc.Subscribe(ctx))
	require.NotNil(t, handler)

	topic := fmt.Sprintf("%s/fl/experiments/%s/updates", baseTopic, exp.ID)
	require.NoError(t, handler(topic, map[string]any{
		"client_id":   "a",
		"num_samples": float64(1),
		"value":       []any{2.0, 2.0},
	}))
	require.NoError(t, handler(topic, map[string]any{
		"client_id":   "b",
		"num_samples": float64(1),
		"value":       []any{4.0, 6.0},
	}))

	model, err := svc.GetModel(ctx, exp.ID, 0)
	require.NoError(t, err)
	leaf, ok := model.Value.Tensor()
	require.True(t, ok)
	assert.Equal(t, []float64{3, 4}, leaf.Values())

	assert.ErrorIs(t, handler(topic, map[string]any{"value": []any{1.0, 1.0}}), pkgerrors.ErrInvalidData)
	assert.NoError(t, handler(baseTopic+"/other", map[string]any{}))
	pubsub.AssertExpectations(t)
}
