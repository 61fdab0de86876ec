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

	"github.com/cloudwego/eino/schema"
	"github.com/fanjia1024/ragflow/llm"
	"github.com/fanjia1024/ragflow/llm/prompt"
	"github.com/pkg/errors"
)

// Prompt names used by the graders.
const (
	PromptRetrievalGraderSystem     = "retrieval_grader_system"
	PromptRetrievalGraderHuman      = "retrieval_grader_human"
	PromptHallucinationGraderSystem = "hallucination_grader_system"
	PromptHallucinationGraderHuman  = "hallucination_grader_human"
	PromptAnswerGraderSystem        = "answer_grader_system"
	PromptAnswerGraderHuman         = "answer_grader_human"
)

// BinaryScore is the structured reply of every grader.
type BinaryScore struct {
	BinaryScore string `json:"binary_score" jsonschema:"enum=yes,enum=no" jsonschema_description:"'yes' or 'no'"`
}

// Grader asks a judging model yes/no questions.
type Grader struct {
	llm     llm.Invoker
	prompts *prompt.Set
}

func NewGrader(inv llm.Invoker, prompts *prompt.Set) *Grader {
	return &Grader{llm: inv, prompts: prompts}
}

// Relevant grades whether doc is relevant to question.
func (g *Grader) Relevant(ctx context.Context, question string, doc *schema.Document) (bool, error) {
	return g.grade(ctx, PromptRetrievalGraderSystem, PromptRetrievalGraderHuman, map[string]any{
		"Document": doc.Content,
		"Question": question,
	})
}

// Grounded grades whether generation is supported by docs.
func (g *Grader) Grounded(ctx context.Context, docs []*schema.Document, generation string) (bool, error) {
	return g.grade(ctx, PromptHallucinationGraderSystem, PromptHallucinationGraderHuman, map[string]any{
		"Documents":  formatDocs(docs),
		"Generation": generation,
	})
}

// Useful grades whether generation resolves question.
func (g *Grader) Useful(ctx context.Context, question, generation string) (bool, error) {
	return g.grade(ctx, PromptAnswerGraderSystem, PromptAnswerGraderHuman, map[string]any{
		"Question":   question,
		"Generation": generation,
	})
}

func (g *Grader) grade(ctx context.Context, system, human string, data map[string]any) (bool, error) {
	msgs, err := render(g.prompts, system, human, data)
	if err != nil {
		return false, err
	}
	var score BinaryScore
	if err := g.llm.InvokeStructured(ctx, msgs, &score); err != nil {
		return false, err
	}
	return parseBinary(score.BinaryScore)
}

// parseBinary accepts "yes" or "no" in any case. Anything else means the
// judging model did not follow the output format.
func parseBinary(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	}
	return false, &llm.LLMError{Model: "grader", Op: "structured", Err: errors.Errorf("binary_score %q is neither yes nor no", v)}
}

func render(prompts *prompt.Set, system, human string, data any) ([]*schema.Message, error) {
	var msgs []*schema.Message
	if system != "" {
		p, err := prompts.Render(system, data)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, schema.SystemMessage(p.String()))
	}
	p, err := prompts.Render(human, data)
	if err != nil {
		return nil, err
	}
	return append(msgs, schema.UserMessage(p.String())), nil
}

func formatDocs(docs []*schema.Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, d.Content)
	}
	return strings.Join(parts, "\n\n")
}
