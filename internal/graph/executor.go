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
	"errors"
	"time"

	"github.com/fanjia1024/ragflow/llm/log"
	"github.com/google/uuid"
)

// Result is the outcome of a successful run.
type Result struct {
	RunID   string
	State   Snapshot
	History []StepRecord
}

type run struct {
	id     string
	graph  *Graph
	cfg    RunConfig
	depth  int
	state  *State
	visits map[string]int

	history []StepRecord
}

func newRun(id string, g *Graph, cfg RunConfig, depth int) *run {
	return &run{id: id, graph: g, cfg: cfg, depth: depth, visits: make(map[string]int)}
}

// Run executes g from its entry point with a fresh state seeded from initial,
// until a transition reaches End. Every failure is returned as a *RunError
// carrying the last merged state and the history so far.
func Run(ctx context.Context, g *Graph, initial Update, cfg RunConfig) (*Result, error) {
	r := newRun(uuid.NewString(), g, cfg.withDefaults(), 0)
	st, err := NewState(g.schema, initial)
	if err != nil {
		return nil, &RunError{RunID: r.id, Err: err}
	}
	r.state = st

	log.Debug("[%s] run %q started", r.id, g.name)
	if node, err := r.loop(ctx, g.start); err != nil {
		log.Error("[%s] run %q failed at %q: %v", r.id, g.name, node, err)
		return nil, &RunError{
			RunID:   r.id,
			Node:    node,
			State:   r.state.Snapshot(),
			History: r.history,
			Err:     err,
		}
	}
	log.Debug("[%s] run %q finished after %d step(s)", r.id, g.name, len(r.history))
	return &Result{RunID: r.id, State: r.state.Snapshot(), History: r.history}, nil
}

// loop drives the run from start until End, returning the failing node on error.
func (r *run) loop(ctx context.Context, start string) (string, error) {
	current := start
	for current != End {
		if err := ctx.Err(); err != nil {
			return current, err
		}
		next, err := r.visit(ctx, current)
		if err != nil {
			return current, err
		}
		current = next
	}
	return "", nil
}

func (r *run) visit(ctx context.Context, name string) (string, error) {
	r.visits[name]++
	visit := r.visits[name]
	if visit > r.cfg.MaxNodeRevisits {
		return "", &CycleBudgetExceeded{Node: name, Limit: r.cfg.MaxNodeRevisits, State: r.state.Snapshot()}
	}

	n := r.graph.nodes[name]
	ctx = withRunInfo(ctx, RunInfo{
		RunID:  r.id,
		Graph:  r.graph.name,
		Node:   name,
		Visit:  visit,
		Depth:  r.depth,
		Config: r.cfg,
	})
	rec := StepRecord{Node: name, Visit: visit, Time: time.Now()}

	next, err := r.step(ctx, n, &rec)
	rec.Duration = time.Since(rec.Time)
	if err != nil {
		rec.Status = StepFailed
		rec.Error = errStr(err)
		r.record(rec)
		return "", err
	}
	rec.Status = StepOK
	rec.Next = next
	rec.Hash = r.state.Snapshot().Hash()
	r.record(rec)
	log.Debug("[%s] %s (visit %d) -> %s", r.id, name, visit, next)
	return next, nil
}

// step runs the node, merges its update and resolves the outgoing edge.
func (r *run) step(ctx context.Context, n *node, rec *StepRecord) (string, error) {
	var update Update
	attempts, err := r.attempt(ctx, n.name, n.timeout, func(ctx context.Context) error {
		u, err := n.step(ctx, r.state.Snapshot())
		if err != nil {
			return err
		}
		update = u
		return nil
	})
	rec.Attempt = attempts
	if err != nil {
		return "", &StepError{Node: n.name, Attempts: attempts, Err: err}
	}
	if err := r.merge(n, update); err != nil {
		return "", err
	}

	e, ok := r.graph.edges[n.name]
	if !ok {
		// fan-out targets finish their sub-run after one step
		return End, nil
	}
	switch e.kind {
	case conditionalEdge:
		var label Label
		attempts, err := r.attempt(ctx, n.name, n.timeout, func(ctx context.Context) error {
			l, err := e.route(ctx, r.state.Snapshot())
			label = l
			return err
		})
		if err != nil {
			return "", &StepError{Node: n.name, Attempts: attempts, Err: err}
		}
		target, ok := e.targets[label]
		if !ok {
			return "", &RoutingError{Node: n.name, Label: label}
		}
		rec.Label = label
		return target, nil
	case fanOutEdge:
		var sends []Send
		attempts, err := r.attempt(ctx, n.name, n.timeout, func(ctx context.Context) error {
			s, err := e.fanOut(ctx, r.state.Snapshot())
			sends = s
			return err
		})
		if err != nil {
			return "", &StepError{Node: n.name, Attempts: attempts, Err: err}
		}
		merged, err := r.fanOut(ctx, e, sends)
		if err != nil {
			return "", err
		}
		if err := r.state.Merge(merged); err != nil {
			return "", err
		}
		rec.FanOut = len(sends)
		return e.join, nil
	}
	return e.to, nil
}

func (r *run) merge(n *node, u Update) error {
	for k := range u {
		if !n.declares(k) {
			return &UnknownFieldError{Field: k, Node: n.name}
		}
	}
	err := r.state.Merge(u)
	var unknown *UnknownFieldError
	if errors.As(err, &unknown) {
		unknown.Node = n.name
	}
	return err
}

func (r *run) record(rec StepRecord) {
	rec.RunID = r.id
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	r.history = append(r.history, rec)
	if r.cfg.OnStep != nil {
		r.cfg.OnStep(rec)
	}
}
