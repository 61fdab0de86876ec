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
	"fmt"
)

// Builder assembles a Graph. Declaration errors are accumulated and
// reported together by Compile, so calls can be chained.
type Builder struct {
	name   string
	schema *Schema
	start  string

	nodes map[string]*node
	order []string
	edges map[string]*edge

	buildErrors []error
}

// NewBuilder starts a graph named name over schema.
func NewBuilder(name string, schema *Schema) *Builder {
	return &Builder{
		name:   name,
		schema: schema,
		nodes:  make(map[string]*node),
		edges:  make(map[string]*edge),
	}
}

// AddNode declares a step node.
func (b *Builder) AddNode(name string, step StepFunc, opts ...NodeOption) *Builder {
	if step == nil {
		b.fail("step must not be nil for node %q", name)
		return b
	}
	return b.addNode(&node{name: name, step: step}, opts)
}

// AddSubgraph declares a node that runs sub as an isolated sub-run.
// Sub-graph nodes can only be reached as fan-out targets; their declared
// outputs are read from the sub-run's final state.
func (b *Builder) AddSubgraph(name string, sub *Graph, opts ...NodeOption) *Builder {
	if sub == nil {
		b.fail("sub-graph must not be nil for node %q", name)
		return b
	}
	return b.addNode(&node{name: name, sub: sub}, opts)
}

func (b *Builder) addNode(n *node, opts []NodeOption) *Builder {
	switch {
	case n.name == "":
		b.fail("node name must not be empty")
		return b
	case n.name == End:
		b.fail("node name %q is reserved", End)
		return b
	}
	if _, dup := b.nodes[n.name]; dup {
		b.fail("duplicate node %q", n.name)
		return b
	}
	for _, opt := range opts {
		opt(n)
	}
	b.nodes[n.name] = n
	b.order = append(b.order, n.name)
	return b
}

// SetEntryPoint sets the first node of every run.
func (b *Builder) SetEntryPoint(name string) *Builder {
	if b.start != "" {
		b.fail("entry point already set to %q", b.start)
		return b
	}
	b.start = name
	return b
}

// AddEdge declares an unconditional transition.
func (b *Builder) AddEdge(from, to string) *Builder {
	return b.addEdge(&edge{kind: staticEdge, from: from, to: to})
}

// SetFinishPoint is shorthand for AddEdge(name, End).
func (b *Builder) SetFinishPoint(name string) *Builder {
	return b.AddEdge(name, End)
}

// AddConditionalEdges routes from by the label route returns.
// The keys of targets are the complete set of labels route may return.
func (b *Builder) AddConditionalEdges(from string, route RouteFunc, targets map[Label]string) *Builder {
	if route == nil {
		b.fail("router must not be nil for node %q", from)
		return b
	}
	if len(targets) == 0 {
		b.fail("router of node %q declares no labels", from)
		return b
	}
	copied := make(map[Label]string, len(targets))
	for l, t := range targets {
		copied[l] = t
	}
	return b.addEdge(&edge{kind: conditionalEdge, from: from, route: route, targets: copied})
}

// AddFanOut spawns one sub-run per Send returned by gen, restricted to the
// allowed targets, and continues at join once every sub-run has finished.
func (b *Builder) AddFanOut(from string, gen FanOutFunc, allowed []string, join string) *Builder {
	if gen == nil {
		b.fail("fan-out generator must not be nil for node %q", from)
		return b
	}
	if len(allowed) == 0 {
		b.fail("fan-out of node %q declares no targets", from)
		return b
	}
	return b.addEdge(&edge{
		kind:    fanOutEdge,
		from:    from,
		fanOut:  gen,
		allowed: append([]string(nil), allowed...),
		join:    join,
	})
}

func (b *Builder) addEdge(e *edge) *Builder {
	if e.from == "" || e.from == End {
		b.fail("invalid edge source %q", e.from)
		return b
	}
	if prev, dup := b.edges[e.from]; dup {
		b.fail("node %q already has a %s edge", e.from, prev.kind)
		return b
	}
	b.edges[e.from] = e
	return b
}

func (b *Builder) fail(format string, args ...any) {
	b.buildErrors = append(b.buildErrors, fmt.Errorf(format, args...))
}

// Compile validates the declarations and returns the immutable Graph.
// Every problem found is reported in a single *BuildError.
func (b *Builder) Compile() (*Graph, error) {
	errs := append([]error(nil), b.buildErrors...)
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if b.schema == nil {
		add("schema must not be nil")
		return nil, &BuildError{Graph: b.name, Errs: errs}
	}

	switch _, ok := b.nodes[b.start]; {
	case b.start == "":
		add("entry point not set")
	case !ok:
		add("entry point %q is not a declared node", b.start)
	}

	known := func(name string) bool {
		_, ok := b.nodes[name]
		return ok || name == End
	}

	// fan-out targets run in isolation and never continue on their own
	fanTargets := make(map[string]string)
	for _, from := range b.order {
		e, ok := b.edges[from]
		if !ok || e.kind != fanOutEdge {
			continue
		}
		for _, t := range e.allowed {
			fanTargets[t] = from
		}
	}

	for _, from := range sortedKeys(b.edges) {
		e := b.edges[from]
		if _, ok := b.nodes[from]; !ok {
			add("edge from undeclared node %q", from)
			continue
		}
		switch e.kind {
		case staticEdge:
			if !known(e.to) {
				add("edge %q -> %q targets an undeclared node", from, e.to)
			}
			if _, ok := fanTargets[e.to]; ok {
				add("edge %q -> %q targets a fan-out target", from, e.to)
			}
		case conditionalEdge:
			for l, t := range e.targets {
				if l == "" {
					add("router of %q declares an empty label", from)
				}
				if !known(t) {
					add("router of %q maps label %q to undeclared node %q", from, l, t)
				}
				if _, ok := fanTargets[t]; ok {
					add("router of %q maps label %q to fan-out target %q", from, l, t)
				}
			}
		case fanOutEdge:
			if !known(e.join) {
				add("fan-out of %q joins at undeclared node %q", from, e.join)
			}
			for _, t := range e.allowed {
				n, ok := b.nodes[t]
				if !ok {
					add("fan-out of %q targets undeclared node %q", from, t)
					continue
				}
				b.checkFanOutTarget(n, add)
			}
		}
	}

	for _, name := range b.order {
		n := b.nodes[name]
		for _, f := range n.outputs {
			if !b.schema.Has(f) {
				errs = append(errs, &UnknownFieldError{Field: f, Node: name})
			}
		}
		_, isTarget := fanTargets[name]
		_, hasEdge := b.edges[name]
		switch {
		case isTarget && hasEdge:
			add("fan-out target %q must not declare outgoing edges", name)
		case isTarget && name == b.start:
			add("fan-out target %q cannot be the entry point", name)
		case !isTarget && !hasEdge:
			add("node %q has no outgoing edge", name)
		case !isTarget && n.sub != nil:
			add("sub-graph node %q is only allowed as a fan-out target", name)
		}
	}

	if _, ok := b.nodes[b.start]; ok {
		reached := b.reachable()
		for _, name := range b.order {
			if !reached[name] {
				add("node %q is unreachable from %q", name, b.start)
			}
		}
	}

	if len(errs) > 0 {
		return nil, &BuildError{Graph: b.name, Errs: errs}
	}

	g := &Graph{
		name:   b.name,
		schema: b.schema,
		start:  b.start,
		nodes:  make(map[string]*node, len(b.nodes)),
		edges:  make(map[string]*edge, len(b.edges)),
		order:  append([]string(nil), b.order...),
	}
	for k, v := range b.nodes {
		g.nodes[k] = v
	}
	for k, v := range b.edges {
		g.edges[k] = v
	}
	return g, nil
}

func (b *Builder) checkFanOutTarget(n *node, add func(string, ...any)) {
	if len(n.outputs) == 0 {
		add("fan-out target %q must declare its outputs", n.name)
		return
	}
	for _, f := range n.outputs {
		pf, ok := b.schema.Field(f)
		if !ok {
			// reported with the other undeclared outputs
			continue
		}
		if pf.Policy != Append {
			add("fan-out output %q of %q must be an append field, is %s", f, n.name, pf.Policy)
		}
		if n.sub == nil {
			continue
		}
		sf, ok := n.sub.schema.Field(f)
		switch {
		case !ok:
			add("sub-graph %q does not declare output %q", n.name, f)
		case sf.Type != pf.Type:
			add("output %q of sub-graph %q is %s, parent declares %s", f, n.name, sf.Type, pf.Type)
		}
	}
}

func (b *Builder) reachable() map[string]bool {
	seen := map[string]bool{b.start: true}
	queue := []string{b.start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		e, ok := b.edges[cur]
		if !ok {
			continue
		}
		for _, next := range e.successors() {
			if next == End || seen[next] {
				continue
			}
			if _, ok := b.nodes[next]; !ok {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}
	return seen
}
