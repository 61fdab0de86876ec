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

package report

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/fanjia1024/ragflow/internal/graph"
	"github.com/fanjia1024/ragflow/llm"
	"github.com/fanjia1024/ragflow/llm/log"
	"github.com/fanjia1024/ragflow/llm/prompt"
	"github.com/fanjia1024/ragflow/llm/tool"
	"github.com/pkg/errors"
)

// Prompt names.
const (
	PromptPlannerQueryWriterSystem = "report_planner_query_writer_system"
	PromptPlannerQueryWriterHuman  = "report_planner_query_writer_human"
	PromptPlannerSystem            = "report_planner_system"
	PromptPlannerHuman             = "report_planner_human"
	PromptQueryWriterSystem        = "query_writer_system"
	PromptQueryWriterHuman         = "query_writer_human"
	PromptSectionWriterSystem      = "section_writer_system"
	PromptSectionWriterHuman       = "section_writer_human"
	PromptFinalSectionWriterSystem = "final_section_writer_system"
	PromptFinalSectionWriterHuman  = "final_section_writer_human"
)

var requiredPrompts = []string{
	PromptPlannerQueryWriterSystem, PromptPlannerQueryWriterHuman,
	PromptPlannerSystem, PromptPlannerHuman,
	PromptQueryWriterSystem, PromptQueryWriterHuman,
	PromptSectionWriterSystem, PromptSectionWriterHuman,
	PromptFinalSectionWriterSystem, PromptFinalSectionWriterHuman,
}

// Token budgets per source for planning and section research context.
const (
	planTokensPerSource    = 2000
	sectionTokensPerSource = 5000
)

type steps struct {
	llm      llm.Invoker
	searcher tool.Searcher
	prompts  *prompt.Set
}

func (s *steps) messages(system, human string, data any) ([]*schema.Message, error) {
	sys, err := s.prompts.Render(system, data)
	if err != nil {
		return nil, err
	}
	hum, err := s.prompts.Render(human, data)
	if err != nil {
		return nil, err
	}
	return []*schema.Message{schema.SystemMessage(sys.String()), schema.UserMessage(hum.String())}, nil
}

func (s *steps) queries(ctx context.Context, msgs []*schema.Message) ([]string, error) {
	var out Queries
	if err := s.llm.InvokeStructured(ctx, msgs, &out); err != nil {
		return nil, err
	}
	list := make([]string, 0, len(out.Queries))
	for _, q := range out.Queries {
		if q := strings.TrimSpace(q.SearchQuery); q != "" {
			list = append(list, q)
		}
	}
	if len(list) == 0 {
		return nil, &llm.LLMError{Model: "planner", Op: "structured", Err: errors.New("no search queries")}
	}
	return list, nil
}

// generatePlan searches for planning context and asks for the section plan.
func (s *steps) generatePlan(ctx context.Context, in graph.Snapshot) (graph.Update, error) {
	data := map[string]any{
		"Topic":              graph.Value[string](in, FieldTopic),
		"ReportOrganization": graph.Value[string](in, FieldReportStructure),
		"NumberOfQueries":    graph.Value[int](in, FieldNumberOfQueries),
	}
	msgs, err := s.messages(PromptPlannerQueryWriterSystem, PromptPlannerQueryWriterHuman, data)
	if err != nil {
		return nil, err
	}
	queries, err := s.queries(ctx, msgs)
	if err != nil {
		return nil, err
	}
	log.Debug("planning queries: %v", queries)
	docs, err := s.searcher.Search(ctx, queries)
	if err != nil {
		return nil, err
	}

	data["Context"] = DeduplicateAndFormatSources(docs, planTokensPerSource, false)
	msgs, err = s.messages(PromptPlannerSystem, PromptPlannerHuman, data)
	if err != nil {
		return nil, err
	}
	var plan Sections
	if err := s.llm.InvokeStructured(ctx, msgs, &plan); err != nil {
		return nil, err
	}
	if len(plan.Sections) == 0 {
		return nil, &llm.LLMError{Model: "planner", Op: "structured", Err: errors.New("plan has no sections")}
	}
	seen := make(map[string]bool, len(plan.Sections))
	for i := range plan.Sections {
		sec := &plan.Sections[i]
		sec.Name = strings.TrimSpace(sec.Name)
		sec.Content = ""
		if sec.Name == "" {
			return nil, &llm.LLMError{Model: "planner", Op: "structured", Err: errors.Errorf("section %d has no name", i)}
		}
		if seen[sec.Name] {
			return nil, &DuplicateSectionError{Name: sec.Name, Stage: "plan"}
		}
		seen[sec.Name] = true
	}
	return graph.Update{FieldSections: plan.Sections}, nil
}

// initiateSectionWriting spawns one research sub-run per section that
// needs research.
func (s *steps) initiateSectionWriting(_ context.Context, in graph.Snapshot) ([]graph.Send, error) {
	n := graph.Value[int](in, FieldNumberOfQueries)
	var sends []graph.Send
	for _, sec := range graph.Value[[]Section](in, FieldSections) {
		if sec.Research {
			sends = append(sends, graph.Send{Node: NodeBuildSection, State: graph.Update{
				FieldSection:         sec,
				FieldNumberOfQueries: n,
			}})
		}
	}
	return sends, nil
}

func (s *steps) generateQueries(ctx context.Context, in graph.Snapshot) (graph.Update, error) {
	sec := graph.Value[Section](in, FieldSection)
	msgs, err := s.messages(PromptQueryWriterSystem, PromptQueryWriterHuman, map[string]any{
		"SectionTopic":    sec.Description,
		"NumberOfQueries": graph.Value[int](in, FieldNumberOfQueries),
	})
	if err != nil {
		return nil, err
	}
	queries, err := s.queries(ctx, msgs)
	if err != nil {
		return nil, err
	}
	out := make([]SearchQuery, 0, len(queries))
	for _, q := range queries {
		out = append(out, SearchQuery{SearchQuery: q})
	}
	return graph.Update{FieldSearchQueries: out}, nil
}

func (s *steps) searchWeb(ctx context.Context, in graph.Snapshot) (graph.Update, error) {
	var queries []string
	for _, q := range graph.Value[[]SearchQuery](in, FieldSearchQueries) {
		queries = append(queries, q.SearchQuery)
	}
	docs, err := s.searcher.Search(ctx, queries)
	if err != nil {
		return nil, err
	}
	return graph.Update{FieldSourceStr: DeduplicateAndFormatSources(docs, sectionTokensPerSource, true)}, nil
}

func (s *steps) writeSection(ctx context.Context, in graph.Snapshot) (graph.Update, error) {
	sec := graph.Value[Section](in, FieldSection)
	content, err := s.write(ctx, PromptSectionWriterSystem, PromptSectionWriterHuman, sec, graph.Value[string](in, FieldSourceStr))
	if err != nil {
		return nil, err
	}
	sec.Content = content
	return graph.Update{FieldCompletedSections: []Section{sec}}, nil
}

func (s *steps) gatherCompletedSections(_ context.Context, in graph.Snapshot) (graph.Update, error) {
	completed := graph.Value[[]Section](in, FieldCompletedSections)
	return graph.Update{FieldSectionsFromResearch: FormatSections(completed)}, nil
}

// initiateFinalSectionWriting spawns one writer per section that needs no
// research, each seeded with the researched sections as context.
func (s *steps) initiateFinalSectionWriting(_ context.Context, in graph.Snapshot) ([]graph.Send, error) {
	researched := graph.Value[string](in, FieldSectionsFromResearch)
	var sends []graph.Send
	for _, sec := range graph.Value[[]Section](in, FieldSections) {
		if !sec.Research {
			sends = append(sends, graph.Send{Node: NodeWriteFinalSections, State: graph.Update{
				FieldSection:              sec,
				FieldSectionsFromResearch: researched,
			}})
		}
	}
	return sends, nil
}

func (s *steps) writeFinalSections(ctx context.Context, in graph.Snapshot) (graph.Update, error) {
	sec := graph.Value[Section](in, FieldSection)
	content, err := s.write(ctx, PromptFinalSectionWriterSystem, PromptFinalSectionWriterHuman, sec, graph.Value[string](in, FieldSectionsFromResearch))
	if err != nil {
		return nil, err
	}
	sec.Content = content
	return graph.Update{FieldCompletedSections: []Section{sec}}, nil
}

func (s *steps) write(ctx context.Context, system, human string, sec Section, sources string) (string, error) {
	msgs, err := s.messages(system, human, map[string]any{
		"SectionTitle": sec.Name,
		"SectionTopic": sec.Description,
		"Context":      sources,
	})
	if err != nil {
		return "", err
	}
	content, err := s.llm.Invoke(ctx, msgs)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

// compileFinalReport restores plan order: completed sections arrive in
// fan-out order, so they are matched to the plan by name.
func compileFinalReport(_ context.Context, in graph.Snapshot) (graph.Update, error) {
	plan := graph.Value[[]Section](in, FieldSections)
	final, err := Compile(plan, graph.Value[[]Section](in, FieldCompletedSections))
	if err != nil {
		return nil, err
	}
	contents := make([]string, len(final))
	for i, sec := range final {
		contents[i] = sec.Content
	}
	return graph.Update{
		FieldSections:    final,
		FieldFinalReport: strings.Join(contents, "\n\n"),
	}, nil
}

// Compile fills the content of every planned section from completed, keeping
// plan order.
func Compile(plan, completed []Section) ([]Section, error) {
	byName := make(map[string]string, len(completed))
	for _, sec := range completed {
		if _, dup := byName[sec.Name]; dup {
			return nil, &DuplicateSectionError{Name: sec.Name, Stage: "compile"}
		}
		byName[sec.Name] = sec.Content
	}
	out := make([]Section, len(plan))
	seen := make(map[string]bool, len(plan))
	for i, sec := range plan {
		if seen[sec.Name] {
			return nil, &DuplicateSectionError{Name: sec.Name, Stage: "compile"}
		}
		seen[sec.Name] = true
		content, ok := byName[sec.Name]
		if !ok {
			return nil, &MissingSectionError{Name: sec.Name}
		}
		sec.Content = content
		out[i] = sec
	}
	return out, nil
}
