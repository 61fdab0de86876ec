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

import "time"

// StepRecord is an immutable log entry for one node visit or failed attempt.
type StepRecord struct {
	RunID    string        `json:"run_id"`
	Node     string        `json:"node"`
	Visit    int           `json:"visit"`
	Attempt  int           `json:"attempt"`
	Status   StepStatus    `json:"status"`
	Label    Label         `json:"label,omitempty"` // set when a router chose the next node
	Next     string        `json:"next,omitempty"`  // next node, End, or the join node after a fan-out
	FanOut   int           `json:"fan_out,omitempty"`
	Hash     string        `json:"hash,omitempty"` // hash of the state after the merge
	Error    string        `json:"error,omitempty"`
	Time     time.Time     `json:"time"`
	Duration time.Duration `json:"duration"`
}

// StepStatus is the outcome of a visit.
type StepStatus string

const (
	StepOK     StepStatus = "ok"
	StepFailed StepStatus = "failed"
	StepRetry  StepStatus = "retry"
)

func errStr(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
