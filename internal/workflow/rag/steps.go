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
	"strings"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/fanjia1024/ragflow/internal/graph"
	"github.com/fanjia1024/ragflow/llm"
	"github.com/fanjia1024/ragflow/llm/log"
	"github.com/fanjia1024/ragflow/llm/prompt"
	perrors "github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	PromptGenerateHuman         = "rag_generate_human"
	PromptQuestionRewriterSys   = "question_rewriter_system"
	PromptQuestionRewriterHuman = "question_rewriter_human"

	// gradeConcurrency caps parallel relevance grading calls per visit.
	gradeConcurrency = 4
)

type steps struct {
	llm       llm.Invoker
	retriever retriever.Retriever
	grader    *Grader
	prompts   *prompt.Set
	topK      int
}

func (s *steps) retrieve(ctx context.Context, in graph.Snapshot) (graph.Update, error) {
	question := graph.Value[string](in, FieldQuestion)
	var opts []retriever.Option
	if s.topK > 0 {
		opts = append(opts, retriever.WithTopK(s.topK))
	}
	docs, err := s.retriever.Retrieve(ctx, question, opts...)
	if err != nil {
		if graph.IsCollaboratorError(err) {
			return nil, err
		}
		return nil, graph.NewCollaboratorError("retriever", perrors.Wrap(err, "retrieve"))
	}
	log.Debug("retrieve %q: %d documents", question, len(docs))
	return graph.Update{FieldDocuments: docs}, nil
}

// gradeDocuments keeps the documents the grader finds relevant, in
// retrieval order.
func (s *steps) gradeDocuments(ctx context.Context, in graph.Snapshot) (graph.Update, error) {
	question := graph.Value[string](in, FieldQuestion)
	docs := graph.Value[[]*schema.Document](in, FieldDocuments)
	keep := make([]bool, len(docs))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(gradeConcurrency)
	for i, d := range docs {
		eg.Go(func() error {
			ok, err := s.grader.Relevant(ctx, question, d)
			if err != nil {
				return err
			}
			keep[i] = ok
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	filtered := make([]*schema.Document, 0, len(docs))
	for i, d := range docs {
		if keep[i] {
			filtered = append(filtered, d)
		} else {
			log.Debug("document %s not relevant", d.ID)
		}
	}
	return graph.Update{FieldDocuments: filtered}, nil
}

func (s *steps) generate(ctx context.Context, in graph.Snapshot) (graph.Update, error) {
	msgs, err := render(s.prompts, "", PromptGenerateHuman, map[string]any{
		"Question": graph.Value[string](in, FieldQuestion),
		"Context":  formatDocs(graph.Value[[]*schema.Document](in, FieldDocuments)),
	})
	if err != nil {
		return nil, err
	}
	generation, err := s.llm.Invoke(ctx, msgs)
	if err != nil {
		return nil, err
	}
	return graph.Update{FieldGeneration: strings.TrimSpace(generation)}, nil
}

func (s *steps) transformQuery(ctx context.Context, in graph.Snapshot) (graph.Update, error) {
	question := graph.Value[string](in, FieldQuestion)
	msgs, err := render(s.prompts, PromptQuestionRewriterSys, PromptQuestionRewriterHuman, map[string]any{
		"Question": question,
	})
	if err != nil {
		return nil, err
	}
	better, err := s.llm.Invoke(ctx, msgs)
	if err != nil {
		return nil, err
	}
	better = strings.TrimSpace(better)
	if better == "" {
		better = question
	}
	log.Debug("rewrite %q -> %q", question, better)
	return graph.Update{FieldQuestion: better, FieldRewrites: []string{better}}, nil
}

// decideToGenerate routes to generation when any document survived grading.
func (s *steps) decideToGenerate(_ context.Context, in graph.Snapshot) (graph.Label, error) {
	if len(graph.Value[[]*schema.Document](in, FieldDocuments)) == 0 {
		return LabelTransformQuery, nil
	}
	return LabelGenerate, nil
}

// gradeGeneration checks grounding first and usefulness second.
func (s *steps) gradeGeneration(ctx context.Context, in graph.Snapshot) (graph.Label, error) {
	docs := graph.Value[[]*schema.Document](in, FieldDocuments)
	generation := graph.Value[string](in, FieldGeneration)
	grounded, err := s.grader.Grounded(ctx, docs, generation)
	if err != nil {
		return "", err
	}
	if !grounded {
		return LabelNotSupported, nil
	}
	useful, err := s.grader.Useful(ctx, graph.Value[string](in, FieldQuestion), generation)
	if err != nil {
		return "", err
	}
	if useful {
		return LabelUseful, nil
	}
	return LabelNotUseful, nil
}
