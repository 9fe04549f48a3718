package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/absmach/fedagg/coordinator"
	"github.com/absmach/fedagg/pkg/api"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	maxUpdateSize = 1024 * 1024 * 100
	latestVersion = "latest"
)

func MakeHandler(svc coordinator.Service, logger *slog.Logger, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(apiutil.LoggingErrorEncoder(logger, api.EncodeError)),
	}

	mux.Route("/experiments", func(r chi.Router) {
		r.Post("/", otelhttp.NewHandler(kithttp.NewServer(
			createExperimentEndpoint(svc),
			decodeExperimentReq,
			api.EncodeResponse,
			opts...,
		), "create-experiment").ServeHTTP)
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			listExperimentsEndpoint(svc),
			decodeListEntityReq,
			api.EncodeResponse,
			opts...,
		), "list-experiments").ServeHTTP)
		r.Route("/{experimentID}", func(r chi.Router) {
			r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
				getExperimentEndpoint(svc),
				decodeEntityReq("experimentID"),
				api.EncodeResponse,
				opts...,
			), "get-experiment").ServeHTTP)
			r.Post("/updates", otelhttp.NewHandler(kithttp.NewServer(
				submitUpdateEndpoint(svc),
				decodeUpdateReq,
				api.EncodeResponse,
				opts...,
			), "submit-update").ServeHTTP)
			r.Post("/complete", otelhttp.NewHandler(kithttp.NewServer(
				completeRoundEndpoint(svc),
				decodeEntityReq("experimentID"),
				api.EncodeResponse,
				opts...,
			), "complete-round").ServeHTTP)
			r.Get("/models/{version}", otelhttp.NewHandler(kithttp.NewServer(
				getModelEndpoint(svc),
				decodeModelReq,
				api.EncodeResponse,
				opts...,
			), "get-model").ServeHTTP)
		})
	})

	mux.Get("/health", supermq.Health("coordinator", instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func decodeExperimentReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	var req experimentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.Join(err, apiutil.ErrValidation)
	}

	return req, nil
}

func decodeEntityReq(key string) kithttp.DecodeRequestFunc {
	return func(_ context.Context, r *http.Request) (any, error) {
		return entityReq{
			id: chi.URLParam(r, key),
		}, nil
	}
}

func decodeListEntityReq(_ context.Context, r *http.Request) (any, error) {
	o, err := apiutil.ReadNumQuery[uint64](r, api.OffsetKey, api.DefOffset)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	l, err := apiutil.ReadNumQuery[uint64](r, api.LimitKey, api.DefLimit)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	return listEntityReq{
		offset: o,
		limit:  l,
	}, nil
}

// decodeUpdateReq accepts a JSON update whose value is a nested literal, or
// a CBOR update whose value is a marshaled codec envelope.
func decodeUpdateReq(_ context.Context, r *http.Request) (any, error) {
	req := updateReq{
		experimentID: chi.URLParam(r, "experimentID"),
	}

	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, api.CBORContentType):
		data, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateSize))
		if err != nil {
			return nil, errors.Join(apiutil.ErrValidation, err)
		}
		if err := cbor.Unmarshal(data, &req.update); err != nil {
			return nil, errors.Join(apiutil.ErrValidation, err)
		}
	case strings.Contains(contentType, api.ContentType):
		dec := json.NewDecoder(io.LimitReader(r.Body, maxUpdateSize))
		dec.UseNumber()
		if err := dec.Decode(&req.update); err != nil {
			return nil, errors.Join(apiutil.ErrValidation, err)
		}
	default:
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	return req, nil
}

func decodeModelReq(_ context.Context, r *http.Request) (any, error) {
	req := modelReq{
		experimentID: chi.URLParam(r, "experimentID"),
	}

	version := chi.URLParam(r, "version")
	if version != latestVersion {
		v, err := strconv.Atoi(version)
		if err != nil || v < 1 {
			return nil, errors.Join(apiutil.ErrValidation, errInvalidVersion)
		}
		req.version = v
	}

	return req, nil
}
