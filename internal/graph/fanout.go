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
	"fmt"
	"reflect"

	"github.com/fanjia1024/ragflow/llm/log"
	"golang.org/x/sync/errgroup"
)

// fanOut runs one isolated sub-run per Send and returns the append update
// built from their declared outputs, in spawn order. The first failing
// sub-run cancels the others and nothing is merged.
func (r *run) fanOut(ctx context.Context, e *edge, sends []Send) (Update, error) {
	for i, s := range sends {
		if !e.allows(s.Node) {
			return nil, &RoutingError{
				Node: e.from,
				Msg:  fmt.Sprintf("send %d targets %q, which is not a declared fan-out target", i, s.Node),
			}
		}
	}
	if len(sends) == 0 {
		log.Debug("[%s] %s spawned no sub-runs", r.id, e.from)
		return nil, nil
	}
	log.Debug("[%s] %s spawning %d sub-run(s)", r.id, e.from, len(sends))

	results := make([]Snapshot, len(sends))
	children := make([]*run, len(sends))
	eg, ectx := errgroup.WithContext(ctx)
	if r.cfg.FanOutConcurrency > 0 {
		eg.SetLimit(r.cfg.FanOutConcurrency)
	}
	for i, s := range sends {
		eg.Go(func() error {
			if err := ectx.Err(); err != nil {
				return &FanOutError{Node: e.from, Target: s.Node, Index: i, Err: err}
			}
			child, snap, err := r.subRun(ectx, i, s)
			children[i] = child
			if err != nil {
				return &FanOutError{Node: e.from, Target: s.Node, Index: i, Err: err}
			}
			results[i] = snap
			return nil
		})
	}
	err := eg.Wait()
	for _, child := range children {
		if child != nil {
			r.history = append(r.history, child.history...)
		}
	}
	if err != nil {
		return nil, err
	}
	return r.collect(e, sends, results)
}

// subRun executes one Send with its own state and visit counters.
func (r *run) subRun(ctx context.Context, idx int, s Send) (*run, Snapshot, error) {
	n := r.graph.nodes[s.Node]
	id := fmt.Sprintf("%s/%s#%d", r.id, s.Node, idx)

	g, start := r.graph, s.Node
	if n.sub != nil {
		g, start = n.sub, n.sub.start
	}
	child := newRun(id, g, r.cfg, r.depth+1)
	st, err := NewState(g.schema, s.State)
	if err != nil {
		return child, Snapshot{}, err
	}
	child.state = st
	if _, err := child.loop(ctx, start); err != nil {
		return child, child.state.Snapshot(), err
	}
	return child, child.state.Snapshot(), nil
}

func (r *run) collect(e *edge, sends []Send, results []Snapshot) (Update, error) {
	merged := make(map[string]reflect.Value)
	for i, s := range sends {
		for _, f := range r.graph.nodes[s.Node].outputs {
			pf, _ := r.graph.schema.Field(f)
			v, err := pf.check(results[i].Get(f))
			if err != nil {
				return nil, &FanOutError{Node: e.from, Target: s.Node, Index: i, Err: err}
			}
			merged[f] = concat(pf.Type, merged[f], v)
		}
	}
	u := make(Update, len(merged))
	for f, v := range merged {
		u[f] = v.Interface()
	}
	return u, nil
}
