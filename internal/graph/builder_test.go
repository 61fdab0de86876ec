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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, Snapshot) (Update, error) { return nil, nil }

func route(l Label) RouteFunc {
	return func(context.Context, Snapshot) (Label, error) { return l, nil }
}

func TestBuilder_Compile(t *testing.T) {
	g, err := NewBuilder("ok", testSchema(t)).
		AddNode("a", noop).
		AddNode("b", noop, WithOutputs("question")).
		SetEntryPoint("a").
		AddConditionalEdges("a", route("next"), map[Label]string{"next": "b", "done": End}).
		SetFinishPoint("b").
		Compile()
	require.NoError(t, err)
	assert.Equal(t, "ok", g.Name())
	assert.Equal(t, []string{"a", "b"}, g.Nodes())
}

func TestBuilder_CompileErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder) *Builder
		want  string
	}{
		{
			name: "label to undeclared node",
			build: func(b *Builder) *Builder {
				return b.AddNode("a", noop).SetEntryPoint("a").
					AddConditionalEdges("a", route("x"), map[Label]string{"x": "ghost", "y": End})
			},
			want: `maps label "x" to undeclared node "ghost"`,
		},
		{
			name: "unreachable node",
			build: func(b *Builder) *Builder {
				return b.AddNode("a", noop).AddNode("b", noop).SetEntryPoint("a").
					SetFinishPoint("a").SetFinishPoint("b")
			},
			want: `node "b" is unreachable`,
		},
		{
			name: "missing entry point",
			build: func(b *Builder) *Builder {
				return b.AddNode("a", noop).SetFinishPoint("a")
			},
			want: "entry point not set",
		},
		{
			name: "dead end",
			build: func(b *Builder) *Builder {
				return b.AddNode("a", noop).AddNode("b", noop).SetEntryPoint("a").AddEdge("a", "b")
			},
			want: `node "b" has no outgoing edge`,
		},
		{
			name: "second edge",
			build: func(b *Builder) *Builder {
				return b.AddNode("a", noop).SetEntryPoint("a").SetFinishPoint("a").AddEdge("a", End)
			},
			want: `node "a" already has a static edge`,
		},
		{
			name: "duplicate node",
			build: func(b *Builder) *Builder {
				return b.AddNode("a", noop).AddNode("a", noop).SetEntryPoint("a").SetFinishPoint("a")
			},
			want: `duplicate node "a"`,
		},
		{
			name: "fan-out output not append",
			build: func(b *Builder) *Builder {
				gen := func(context.Context, Snapshot) ([]Send, error) { return nil, nil }
				return b.AddNode("a", noop).AddNode("w", noop, WithOutputs("question")).
					AddNode("j", noop).SetEntryPoint("a").
					AddFanOut("a", gen, []string{"w"}, "j").SetFinishPoint("j")
			},
			want: `fan-out output "question" of "w" must be an append field`,
		},
		{
			name: "fan-out target without outputs",
			build: func(b *Builder) *Builder {
				gen := func(context.Context, Snapshot) ([]Send, error) { return nil, nil }
				return b.AddNode("a", noop).AddNode("w", noop).SetEntryPoint("a").
					AddFanOut("a", gen, []string{"w"}, End)
			},
			want: `fan-out target "w" must declare its outputs`,
		},
		{
			name: "fan-out target with edge",
			build: func(b *Builder) *Builder {
				gen := func(context.Context, Snapshot) ([]Send, error) { return nil, nil }
				return b.AddNode("a", noop).AddNode("w", noop, WithOutputs("docs")).SetEntryPoint("a").
					AddFanOut("a", gen, []string{"w"}, End).SetFinishPoint("w")
			},
			want: `fan-out target "w" must not declare outgoing edges`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build(NewBuilder(tt.name, testSchema(t))).Compile()
			require.Error(t, err)
			var be *BuildError
			require.True(t, errors.As(err, &be))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuilder_UnknownOutputField(t *testing.T) {
	_, err := NewBuilder("outputs", testSchema(t)).
		AddNode("a", noop, WithOutputs("missing")).
		SetEntryPoint("a").
		SetFinishPoint("a").
		Compile()
	require.Error(t, err)
	var unknown *UnknownFieldError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "missing", unknown.Field)
	assert.Equal(t, "a", unknown.Node)
}

func TestBuilder_ReportsAllErrors(t *testing.T) {
	_, err := NewBuilder("many", testSchema(t)).
		AddNode("a", noop).
		AddNode("orphan", noop).
		SetEntryPoint("a").
		AddConditionalEdges("a", route("x"), map[Label]string{"x": "ghost"}).
		Compile()
	var be *BuildError
	require.True(t, errors.As(err, &be))
	assert.GreaterOrEqual(t, len(be.Errs), 3)
}

func TestBuilder_SubgraphOnlyAsFanOutTarget(t *testing.T) {
	sub, err := NewBuilder("sub", testSchema(t)).AddNode("s", noop).SetEntryPoint("s").SetFinishPoint("s").Compile()
	require.NoError(t, err)

	_, err = NewBuilder("parent", testSchema(t)).
		AddNode("a", noop).
		AddSubgraph("inline", sub, WithOutputs("docs")).
		SetEntryPoint("a").
		AddEdge("a", "inline").
		SetFinishPoint("inline").
		Compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sub-graph node "inline" is only allowed as a fan-out target`)
}
