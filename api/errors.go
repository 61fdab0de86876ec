// Copyright 2025 ByteDance Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/fanjia1024/ragflow/internal/graph"
	"github.com/fanjia1024/ragflow/internal/workflow/report"
)

// Error codes.
const (
	CodeBadRequest          = "bad_request"
	CodeCycleBudgetExceeded = "cycle_budget_exceeded"
	CodeDuplicateSection    = "duplicate_section"
	CodeMissingSection      = "missing_section"
	CodeCollaborator        = "collaborator_error"
	CodeRouting             = "routing_error"
	CodeState               = "state_error"
	CodeTimeout             = "timeout"
	CodeCanceled            = "canceled"
	CodeInternal            = "internal"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Node    string `json:"node,omitempty"`
	RunID   string `json:"run_id,omitempty"`
	Message string `json:"message"`
}

// Describe maps a workflow error to an HTTP status and a structured body.
func Describe(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Message: err.Error()}
	var runErr *graph.RunError
	if errors.As(err, &runErr) {
		resp.Node = runErr.Node
		resp.RunID = runErr.RunID
	}

	var (
		budget    *graph.CycleBudgetExceeded
		dup       *report.DuplicateSectionError
		missing   *report.MissingSectionError
		routing   *graph.RoutingError
		unknown   *graph.UnknownFieldError
		mergeType *graph.MergeTypeError
		build     *graph.BuildError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &budget):
		resp.Code, status = CodeCycleBudgetExceeded, http.StatusUnprocessableEntity
	case errors.As(err, &dup):
		resp.Code, status = CodeDuplicateSection, http.StatusUnprocessableEntity
	case errors.As(err, &missing):
		resp.Code, status = CodeMissingSection, http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		resp.Code, status = CodeTimeout, http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		resp.Code, status = CodeCanceled, http.StatusServiceUnavailable
	case graph.IsCollaboratorError(err):
		resp.Code, status = CodeCollaborator, http.StatusBadGateway
	case errors.As(err, &routing):
		resp.Code = CodeRouting
	case errors.As(err, &unknown), errors.As(err, &mergeType), errors.As(err, &build):
		resp.Code = CodeState
	default:
		resp.Code = CodeInternal
	}
	return status, resp
}
