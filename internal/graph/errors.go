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

package graph

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CollaboratorError is implemented by failures of external collaborators
// (LLM, search, vector store). Only these are retried by the default policy.
type CollaboratorError interface {
	error
	Collaborator() string
}

type collaboratorError struct {
	name string
	err  error
}

// NewCollaboratorError marks err as a failure of the named collaborator.
func NewCollaboratorError(name string, err error) error {
	if err == nil {
		return nil
	}
	return &collaboratorError{name: name, err: err}
}

func (e *collaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.name, e.err)
}

func (e *collaboratorError) Unwrap() error { return e.err }

func (e *collaboratorError) Collaborator() string { return e.name }

// IsCollaboratorError reports whether err (or anything it wraps) came from a collaborator.
func IsCollaboratorError(err error) bool {
	var ce CollaboratorError
	return errors.As(err, &ce)
}

// StepTimeoutError is returned when a single step attempt exceeds RunConfig.StepTimeout.
// It counts as a collaborator failure, since the step is blocked on one.
type StepTimeoutError struct {
	Node    string
	Timeout time.Duration
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("node %q timed out after %s", e.Node, e.Timeout)
}

func (e *StepTimeoutError) Collaborator() string { return "timeout" }

// UnknownFieldError is returned when an update or declaration names a field
// the graph schema does not declare.
type UnknownFieldError struct {
	Field string
	Node  string // empty when raised outside of a node
}

func (e *UnknownFieldError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("node %q: unknown state field %q", e.Node, e.Field)
	}
	return fmt.Sprintf("unknown state field %q", e.Field)
}

// MergeTypeError is returned when a value does not fit the declared field type or policy.
type MergeTypeError struct {
	Field  string
	Policy MergePolicy
	Want   string
	Got    string
}

func (e *MergeTypeError) Error() string {
	return fmt.Sprintf("field %q (%s): cannot merge %s into %s", e.Field, e.Policy, e.Got, e.Want)
}

// RoutingError is returned when a router or fan-out generator selects a target
// that the edge does not declare.
type RoutingError struct {
	Node  string
	Label Label
	Msg   string
}

func (e *RoutingError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("routing from %q: %s", e.Node, e.Msg)
	}
	return fmt.Sprintf("routing from %q: label %q has no mapped target", e.Node, e.Label)
}

// CycleBudgetExceeded is returned when a node would be visited more than
// RunConfig.MaxNodeRevisits times within one run. State is the last merged state.
type CycleBudgetExceeded struct {
	Node  string
	Limit int
	State Snapshot
}

func (e *CycleBudgetExceeded) Error() string {
	return fmt.Sprintf("node %q exceeded its visit budget of %d", e.Node, e.Limit)
}

// FanOutError wraps the first failed sub-run of a fan-out cohort.
type FanOutError struct {
	Node   string // node owning the fan-out edge
	Target string
	Index  int
	Err    error
}

func (e *FanOutError) Error() string {
	return fmt.Sprintf("fan-out from %q: sub-run %d (%s) failed: %v", e.Node, e.Index, e.Target, e.Err)
}

func (e *FanOutError) Unwrap() error { return e.Err }

// StepError wraps the final failure of a node after retries.
type StepError struct {
	Node     string
	Attempts int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("node %q failed after %d attempt(s): %v", e.Node, e.Attempts, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// BuildError aggregates every static validation failure found by Compile.
type BuildError struct {
	Graph string
	Errs  []error
}

func (e *BuildError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("graph %q: %d build error(s): %s", e.Graph, len(e.Errs), strings.Join(msgs, "; "))
}

func (e *BuildError) Unwrap() []error { return e.Errs }

// RunError is the single error type returned by Run. State holds the last
// merged state and History the transitions recorded before the failure.
type RunError struct {
	RunID   string
	Node    string
	State   Snapshot
	History []StepRecord
	Err     error
}

func (e *RunError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("run %s: %v", e.RunID, e.Err)
	}
	return fmt.Sprintf("run %s at %q: %v", e.RunID, e.Node, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
