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

package rag

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/fanjia1024/ragflow/internal/graph"
	"github.com/fanjia1024/ragflow/llm"
	"github.com/fanjia1024/ragflow/llm/log"
	"github.com/fanjia1024/ragflow/llm/prompt"
)

// GraphName names the compiled workflow in run records.
const GraphName = "rag"

type Options struct {
	LLM       llm.Invoker
	Retriever retriever.Retriever
	// Prompts defaults to prompt.Default().
	Prompts *prompt.Set
	// TopK overrides the retriever's default result count when > 0.
	TopK int
	Run  graph.RunConfig
}

// Answer is the outcome of one question.
type Answer struct {
	Question   string             `json:"question"`
	Generation string             `json:"generation"`
	Documents  []*schema.Document `json:"documents"`
	Rewrites   []string           `json:"rewrites,omitempty"`
	// BestEffort is set when the run hit its cycle budget and Generation is
	// the last unverified generation.
	BestEffort bool               `json:"best_effort"`
	RunID      string             `json:"run_id"`
	Steps      []graph.StepRecord `json:"steps"`
}

// Service answers questions over a retriever. It is safe for concurrent use.
type Service struct {
	graph *graph.Graph
	run   graph.RunConfig
}

func NewService(opts Options) (*Service, error) {
	g, err := NewGraph(opts)
	if err != nil {
		return nil, err
	}
	log.Debug("compiled graph %s: %v", g.Name(), g.Nodes())
	return &Service{graph: g, run: opts.Run}, nil
}

// NewGraph compiles the workflow:
//
//	retrieve -> grade_documents -> generate | transform_query
//	transform_query -> retrieve
//	generate -> generate (not supported) | End (useful) | transform_query (not useful)
func NewGraph(opts Options) (*graph.Graph, error) {
	if opts.LLM == nil || opts.Retriever == nil {
		return nil, errors.New("rag: llm and retriever are required")
	}
	prompts := opts.Prompts
	if prompts == nil {
		var err error
		if prompts, err = prompt.Default(); err != nil {
			return nil, err
		}
	}
	if err := prompts.Require(
		PromptRetrievalGraderSystem, PromptRetrievalGraderHuman,
		PromptHallucinationGraderSystem, PromptHallucinationGraderHuman,
		PromptAnswerGraderSystem, PromptAnswerGraderHuman,
		PromptGenerateHuman, PromptQuestionRewriterSys, PromptQuestionRewriterHuman,
	); err != nil {
		return nil, err
	}
	s := &steps{
		llm:       opts.LLM,
		retriever: opts.Retriever,
		grader:    NewGrader(opts.LLM, prompts),
		prompts:   prompts,
		topK:      opts.TopK,
	}

	g, err := graph.NewBuilder(GraphName, NewSchema()).
		AddNode(NodeRetrieve, s.retrieve, graph.WithOutputs(FieldDocuments)).
		AddNode(NodeGradeDocuments, s.gradeDocuments, graph.WithOutputs(FieldDocuments)).
		AddNode(NodeGenerate, s.generate, graph.WithOutputs(FieldGeneration)).
		AddNode(NodeTransformQuery, s.transformQuery, graph.WithOutputs(FieldQuestion, FieldRewrites)).
		SetEntryPoint(NodeRetrieve).
		AddEdge(NodeRetrieve, NodeGradeDocuments).
		AddConditionalEdges(NodeGradeDocuments, s.decideToGenerate, map[graph.Label]string{
			LabelGenerate:       NodeGenerate,
			LabelTransformQuery: NodeTransformQuery,
		}).
		AddEdge(NodeTransformQuery, NodeRetrieve).
		AddConditionalEdges(NodeGenerate, s.gradeGeneration, map[graph.Label]string{
			LabelNotSupported: NodeGenerate,
			LabelUseful:       graph.End,
			LabelNotUseful:    NodeTransformQuery,
		}).
		Compile()
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Answer runs the workflow for question. When the cycle budget runs out
// after at least one generation, the last generation is returned with
// BestEffort set instead of an error.
func (s *Service) Answer(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.New("question is empty")
	}
	res, err := s.graph.Run(ctx, graph.Update{FieldQuestion: question}, s.run)
	if err == nil {
		return newAnswer(res.RunID, res.State, res.History, false), nil
	}

	var budget *graph.CycleBudgetExceeded
	var runErr *graph.RunError
	if errors.As(err, &budget) && errors.As(err, &runErr) &&
		graph.Value[string](budget.State, FieldGeneration) != "" {
		log.Info("run %s: %v, returning best-effort answer", runErr.RunID, budget)
		return newAnswer(runErr.RunID, budget.State, runErr.History, true), nil
	}
	return nil, err
}

func newAnswer(runID string, st graph.Snapshot, history []graph.StepRecord, bestEffort bool) *Answer {
	return &Answer{
		Question:   graph.Value[string](st, FieldQuestion),
		Generation: graph.Value[string](st, FieldGeneration),
		Documents:  graph.Value[[]*schema.Document](st, FieldDocuments),
		Rewrites:   graph.Value[[]string](st, FieldRewrites),
		BestEffort: bestEffort,
		RunID:      runID,
		Steps:      history,
	}
}
