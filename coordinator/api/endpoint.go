package api

import (
	"context"
	"errors"
	"math"

	"github.com/absmach/fedagg/coordinator"
	pkgerrors "github.com/absmach/fedagg/pkg/errors"
	"github.com/absmach/fedagg/pkg/fl"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-kit/kit/endpoint"
)

func createExperimentEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(experimentReq)
		if !ok {
			return experimentResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return experimentResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		exp, err := svc.CreateExperiment(ctx, req.ExperimentConfig)
		if err != nil {
			return experimentResponse{}, err
		}

		return experimentResponse{
			Experiment: exp,
			created:    true,
		}, nil
	}
}

func getExperimentEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return experimentResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return experimentResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		exp, err := svc.GetExperiment(ctx, req.id)
		if err != nil {
			return experimentResponse{}, err
		}

		return experimentResponse{
			Experiment: exp,
		}, nil
	}
}

func listExperimentsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listEntityReq)
		if !ok {
			return listExperimentsResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listExperimentsResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		page, err := svc.ListExperiments(ctx, req.offset, req.limit)
		if err != nil {
			return listExperimentsResponse{}, err
		}

		return listExperimentsResponse{
			ExperimentPage: page,
		}, nil
	}
}

func submitUpdateEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(updateReq)
		if !ok {
			return roundStatusResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return roundStatusResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		status, err := svc.SubmitUpdate(ctx, req.experimentID, req.update)
		if err != nil {
			return roundStatusResponse{}, err
		}

		return roundStatusResponse{
			RoundStatus: status,
		}, nil
	}
}

func completeRoundEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return modelResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return modelResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		model, err := svc.CompleteRound(ctx, req.id)
		if err != nil {
			return modelResponse{}, err
		}

		return newModelResponse(model), nil
	}
}

func getModelEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(modelReq)
		if !ok {
			return modelResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return modelResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		model, err := svc.GetModel(ctx, req.experimentID, req.version)
		if err != nil {
			return modelResponse{}, err
		}

		return newModelResponse(model), nil
	}
}

// newModelResponse omits the literal when the value holds NaN or infinities,
// which JSON numbers cannot carry.
func newModelResponse(model fl.Model) modelResponse {
	res := modelResponse{Model: model}
	for _, t := range model.Value.Flatten() {
		for _, v := range t.Values() {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return res
			}
		}
	}
	res.Literal = model.Value.Literal()

	return res
}
