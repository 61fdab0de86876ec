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
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fanSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema(
		FieldOf[[]string]("items", Overwrite),
		FieldOf[string]("item", Overwrite),
		FieldOf[[]string]("results", Append),
		FieldOf[[]string]("trace", Append),
		FieldOf[string]("summary", Overwrite),
	)
	require.NoError(t, err)
	return s
}

func spawnItems(target string) FanOutFunc {
	return func(_ context.Context, in Snapshot) ([]Send, error) {
		var sends []Send
		for _, it := range Value[[]string](in, "items") {
			sends = append(sends, Send{Node: target, State: Update{"item": it}})
		}
		return sends, nil
	}
}

func summarize(_ context.Context, in Snapshot) (Update, error) {
	return Update{"summary": strings.Join(Value[[]string](in, "results"), ",")}, nil
}

// worker finishes later the earlier it was spawned, so completion order is
// the reverse of spawn order.
func buildFanOut(t *testing.T, worker StepFunc) *Graph {
	t.Helper()
	g, err := NewBuilder("fan", fanSchema(t)).
		AddNode("plan", func(context.Context, Snapshot) (Update, error) {
			return Update{"trace": []string{"plan"}}, nil
		}).
		AddNode("work", worker, WithOutputs("results")).
		AddNode("join", summarize).
		SetEntryPoint("plan").
		AddFanOut("plan", spawnItems("work"), []string{"work"}, "join").
		SetFinishPoint("join").
		Compile()
	require.NoError(t, err)
	return g
}

func TestFanOut_SpawnOrder(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	worker := func(ctx context.Context, in Snapshot) (Update, error) {
		item := Value[string](in, "item")
		delay := time.Duration(len(items)-strings.Index("abcde", item)) * 5 * time.Millisecond
		time.Sleep(delay)
		return Update{"results": []string{strings.ToUpper(item)}}, nil
	}
	g := buildFanOut(t, worker)

	var outputs []string
	for _, limit := range []int{0, 1, 2} {
		cfg := fastRetry
		cfg.FanOutConcurrency = limit
		res, err := g.Run(context.Background(), Update{"items": items}, cfg)
		require.NoError(t, err)
		if diff := cmp.Diff([]string{"A", "B", "C", "D", "E"}, Value[[]string](res.State, "results")); diff != "" {
			t.Fatalf("limit=%d results mismatch (-want +got):\n%s", limit, diff)
		}
		outputs = append(outputs, Value[string](res.State, "summary"))
	}
	assert.Equal(t, []string{"A,B,C,D,E", "A,B,C,D,E", "A,B,C,D,E"}, outputs)
}

func TestFanOut_Isolation(t *testing.T) {
	worker := func(ctx context.Context, in Snapshot) (Update, error) {
		// a sub-run only sees its own seed, never the parent's fields
		if len(Value[[]string](in, "trace")) != 0 || len(Value[[]string](in, "items")) != 0 {
			return nil, fmt.Errorf("sub-run saw parent state")
		}
		return Update{"results": []string{Value[string](in, "item")}, "trace": []string{"child"}}, nil
	}
	g, err := NewBuilder("iso", fanSchema(t)).
		AddNode("plan", func(context.Context, Snapshot) (Update, error) {
			return Update{"trace": []string{"plan"}}, nil
		}).
		AddNode("work", worker, WithOutputs("results", "trace")).
		AddNode("join", summarize).
		SetEntryPoint("plan").
		AddFanOut("plan", spawnItems("work"), []string{"work"}, "join").
		SetFinishPoint("join").
		Compile()
	require.NoError(t, err)

	res, err := g.Run(context.Background(), Update{"items": []string{"x", "y"}}, fastRetry)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, res.State.Get("results"))
	assert.Equal(t, []string{"plan", "child", "child"}, res.State.Get("trace"))
	assert.Equal(t, "", res.State.Get("item"))
}

func TestFanOut_FailFast(t *testing.T) {
	boom := errors.New("boom")
	var cancelled atomic.Int32
	var started sync.WaitGroup
	started.Add(2)
	worker := func(ctx context.Context, in Snapshot) (Update, error) {
		if Value[string](in, "item") == "bad" {
			started.Wait()
			return nil, boom
		}
		started.Done()
		select {
		case <-ctx.Done():
			cancelled.Add(1)
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return Update{"results": []string{"late"}}, nil
		}
	}
	g := buildFanOut(t, worker)

	start := time.Now()
	_, err := g.Run(context.Background(), Update{"items": []string{"bad", "slow1", "slow2"}}, fastRetry)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)

	var fe *FanOutError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "plan", fe.Node)
	assert.Equal(t, 0, fe.Index)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), cancelled.Load())

	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Empty(t, runErr.State.Get("results"))
	assert.Equal(t, "plan", runErr.Node)
}

func TestFanOut_NoSends(t *testing.T) {
	g := buildFanOut(t, func(context.Context, Snapshot) (Update, error) {
		t.Fatal("worker must not run")
		return nil, nil
	})
	res, err := g.Run(context.Background(), nil, fastRetry)
	require.NoError(t, err)
	assert.Empty(t, res.State.Get("results"))
	require.Len(t, res.History, 2)
	assert.Equal(t, "join", res.History[0].Next)
	assert.Equal(t, 0, res.History[0].FanOut)
}

func TestFanOut_UndeclaredTarget(t *testing.T) {
	g, err := NewBuilder("bad-send", fanSchema(t)).
		AddNode("plan", noop).
		AddNode("work", func(context.Context, Snapshot) (Update, error) { return nil, nil }, WithOutputs("results")).
		AddNode("join", noop).
		SetEntryPoint("plan").
		AddFanOut("plan", spawnItems("join"), []string{"work"}, "join").
		SetFinishPoint("join").
		Compile()
	require.NoError(t, err)

	_, err = g.Run(context.Background(), Update{"items": []string{"x"}}, fastRetry)
	var routing *RoutingError
	require.True(t, errors.As(err, &routing))
	assert.Equal(t, "plan", routing.Node)
}

func TestFanOut_Subgraph(t *testing.T) {
	subSchema, err := NewSchema(
		FieldOf[string]("item", Overwrite),
		FieldOf[string]("draft", Overwrite),
		FieldOf[[]string]("results", Append),
	)
	require.NoError(t, err)

	var subRuns atomic.Int32
	sub, err := NewBuilder("section", subSchema).
		AddNode("draft", func(_ context.Context, in Snapshot) (Update, error) {
			subRuns.Add(1)
			return Update{"draft": "draft-" + Value[string](in, "item")}, nil
		}).
		AddNode("final", func(_ context.Context, in Snapshot) (Update, error) {
			return Update{"results": []string{strings.ToUpper(Value[string](in, "draft"))}}, nil
		}).
		SetEntryPoint("draft").
		AddEdge("draft", "final").
		SetFinishPoint("final").
		Compile()
	require.NoError(t, err)

	g, err := NewBuilder("parent", fanSchema(t)).
		AddNode("plan", noop).
		AddSubgraph("section", sub, WithOutputs("results")).
		AddNode("join", summarize).
		SetEntryPoint("plan").
		AddFanOut("plan", spawnItems("section"), []string{"section"}, "join").
		SetFinishPoint("join").
		Compile()
	require.NoError(t, err)

	res, err := g.Run(context.Background(), Update{"items": []string{"x", "y", "z"}}, fastRetry)
	require.NoError(t, err)
	assert.Equal(t, "DRAFT-X,DRAFT-Y,DRAFT-Z", res.State.Get("summary"))
	assert.Equal(t, int32(3), subRuns.Load())

	// sub-run records carry their own run ids
	var subRecords int
	for _, rec := range res.History {
		if strings.HasPrefix(rec.RunID, res.RunID+"/section#") {
			subRecords++
		}
	}
	assert.Equal(t, 6, subRecords)
}

func TestFanOut_SubgraphSchemaMismatch(t *testing.T) {
	subSchema, err := NewSchema(FieldOf[[]int]("results", Append))
	require.NoError(t, err)
	sub, err := NewBuilder("sub", subSchema).AddNode("s", noop).SetEntryPoint("s").SetFinishPoint("s").Compile()
	require.NoError(t, err)

	_, err = NewBuilder("parent", fanSchema(t)).
		AddNode("plan", noop).
		AddSubgraph("section", sub, WithOutputs("results")).
		SetEntryPoint("plan").
		AddFanOut("plan", spawnItems("section"), []string{"section"}, End).
		Compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `output "results" of sub-graph "section"`)
}
