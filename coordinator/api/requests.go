package api

import (
	"errors"

	"github.com/absmach/fedagg/coordinator"
	"github.com/absmach/fedagg/pkg/api"
	apiutil "github.com/absmach/supermq/api/http/util"
)

var (
	errMissingValueType = errors.New("missing value type")
	errMissingClientID  = errors.New("missing client id")
	errLimitSize        = errors.New("invalid limit size")
	errInvalidVersion   = errors.New("invalid model version")
)

type experimentReq struct {
	coordinator.ExperimentConfig `json:",inline"`
}

func (e *experimentReq) validate() error {
	if e.ValueType == "" {
		return errMissingValueType
	}

	return nil
}

type entityReq struct {
	id string
}

func (e *entityReq) validate() error {
	if e.id == "" {
		return apiutil.ErrMissingID
	}

	return nil
}

type listEntityReq struct {
	offset, limit uint64
}

func (e *listEntityReq) validate() error {
	if e.limit > api.MaxLimitSize {
		return errLimitSize
	}

	return nil
}

type updateReq struct {
	experimentID string
	update       coordinator.Update
}

func (u *updateReq) validate() error {
	if u.experimentID == "" {
		return apiutil.ErrMissingID
	}
	if u.update.ClientID == "" {
		return errMissingClientID
	}

	return nil
}

type modelReq struct {
	experimentID string
	version      int
}

func (m *modelReq) validate() error {
	if m.experimentID == "" {
		return apiutil.ErrMissingID
	}
	if m.version < 0 {
		return errInvalidVersion
	}

	return nil
}
