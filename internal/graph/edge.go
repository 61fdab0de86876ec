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
	"sort"
)

// Label is one member of a router's declared enumeration of outcomes.
type Label string

// RouteFunc picks the next label from the merged state.
type RouteFunc func(ctx context.Context, in Snapshot) (Label, error)

// Send asks the executor to run Node in an isolated sub-run seeded with State.
type Send struct {
	Node  string
	State Update
}

// FanOutFunc produces the sub-runs to spawn. Returning no Sends is valid.
type FanOutFunc func(ctx context.Context, in Snapshot) ([]Send, error)

type edgeKind int

const (
	staticEdge edgeKind = iota
	conditionalEdge
	fanOutEdge
)

func (k edgeKind) String() string {
	switch k {
	case staticEdge:
		return "static"
	case conditionalEdge:
		return "conditional"
	case fanOutEdge:
		return "fan-out"
	}
	return "unknown"
}

type edge struct {
	kind edgeKind
	from string

	// static
	to string

	// conditional
	route   RouteFunc
	targets map[Label]string

	// fan-out
	fanOut  FanOutFunc
	allowed []string
	join    string
}

// successors lists every node this edge can lead to, End included.
func (e *edge) successors() []string {
	switch e.kind {
	case staticEdge:
		return []string{e.to}
	case conditionalEdge:
		labels := make([]string, 0, len(e.targets))
		for l := range e.targets {
			labels = append(labels, string(l))
		}
		sort.Strings(labels)
		out := make([]string, 0, len(labels))
		for _, l := range labels {
			out = append(out, e.targets[Label(l)])
		}
		return out
	case fanOutEdge:
		return append(append([]string(nil), e.allowed...), e.join)
	}
	return nil
}

func (e *edge) allows(target string) bool {
	for _, a := range e.allowed {
		if a == target {
			return true
		}
	}
	return false
}
