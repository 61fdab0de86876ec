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
	"context"
	"time"
)

// End is the terminal marker. Routing to End finishes the run.
const End = "__end__"

// StepFunc is the unit of work of a node. It must not retain in beyond the call.
type StepFunc func(ctx context.Context, in Snapshot) (Update, error)

type node struct {
	name    string
	step    StepFunc
	sub     *Graph
	outputs []string
	timeout time.Duration
}

// NodeOption configures a node at declaration time.
type NodeOption func(*node)

// WithOutputs declares the fields a node writes. Updates naming other fields
// fail the run, and fan-out targets must declare their outputs.
func WithOutputs(fields ...string) NodeOption {
	return func(n *node) {
		n.outputs = append(n.outputs, fields...)
	}
}

// WithTimeout overrides RunConfig.StepTimeout for one node.
func WithTimeout(d time.Duration) NodeOption {
	return func(n *node) {
		n.timeout = d
	}
}

func (n *node) declares(field string) bool {
	if len(n.outputs) == 0 {
		return true
	}
	for _, o := range n.outputs {
		if o == field {
			return true
		}
	}
	return false
}
