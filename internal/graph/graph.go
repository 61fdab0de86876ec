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

// Package graph executes directed graphs of steps over a shared, schema-typed
// state. Edges are static, conditional (routed by an enumerated label) or
// fan-out (N isolated sub-runs merged back at a join node). Cycles are allowed
// and bounded per run by RunConfig.MaxNodeRevisits.
package graph

import (
	"context"
	"sort"
)

// Graph is a compiled, immutable graph. It is safe to run concurrently.
type Graph struct {
	name   string
	schema *Schema
	start  string
	nodes  map[string]*node
	edges  map[string]*edge
	order  []string
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Schema returns the state schema of the graph.
func (g *Graph) Schema() *Schema { return g.schema }

// Nodes returns the node names in declaration order.
func (g *Graph) Nodes() []string { return append([]string(nil), g.order...) }

// Run executes g from its entry point. See the package function Run.
func (g *Graph) Run(ctx context.Context, initial Update, cfg RunConfig) (*Result, error) {
	return Run(ctx, g, initial, cfg)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
