package api

import (
	"net/http"

	"github.com/absmach/fedagg/coordinator"
	"github.com/absmach/fedagg/pkg/fl"
	"github.com/absmach/supermq"
)

var (
	_ supermq.Response = (*experimentResponse)(nil)
	_ supermq.Response = (*listExperimentsResponse)(nil)
	_ supermq.Response = (*roundStatusResponse)(nil)
	_ supermq.Response = (*modelResponse)(nil)
)

type experimentResponse struct {
	coordinator.Experiment
	created bool
}

func (e experimentResponse) Code() int {
	if e.created {
		return http.StatusCreated
	}

	return http.StatusOK
}

func (e experimentResponse) Headers() map[string]string {
	if e.created {
		return map[string]string{
			"Location": "/experiments/" + e.ID,
		}
	}

	return map[string]string{}
}

func (e experimentResponse) Empty() bool {
	return false
}

type listExperimentsResponse struct {
	coordinator.ExperimentPage
}

func (l listExperimentsResponse) Code() int {
	return http.StatusOK
}

func (l listExperimentsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listExperimentsResponse) Empty() bool {
	return false
}

type roundStatusResponse struct {
	coordinator.RoundStatus
}

func (r roundStatusResponse) Code() int {
	return http.StatusAccepted
}

func (r roundStatusResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r roundStatusResponse) Empty() bool {
	return false
}

// modelResponse carries the self-describing value along with its plain
// nested literal.
type modelResponse struct {
	fl.Model
	Literal any `json:"literal,omitempty"`
}

func (m modelResponse) Code() int {
	return http.StatusOK
}

func (m modelResponse) Headers() map[string]string {
	return map[string]string{}
}

func (m modelResponse) Empty() bool {
	return false
}
