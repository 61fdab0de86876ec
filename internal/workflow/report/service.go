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

	"github.com/fanjia1024/ragflow/internal/graph"
	"github.com/fanjia1024/ragflow/llm"
	"github.com/fanjia1024/ragflow/llm/log"
	"github.com/fanjia1024/ragflow/llm/prompt"
	"github.com/fanjia1024/ragflow/llm/tool"
	"github.com/pkg/errors"
)

// GraphName names the compiled workflow in run records.
const GraphName = "report"

// DefaultReportStructure is used when a request names no structure.
const DefaultReportStructure = `The report structure should focus on breaking-down the user-provided topic:

1. Introduction (no research needed)
   - Brief overview of the topic area

2. Main Body Sections:
   - Each section should focus on a sub-topic of the user-provided topic
   - Include any key concepts and definitions
   - Provide real-world examples or case studies where applicable

3. Conclusion (no research needed)
   - Aim for 1 structural element (either a list or table) that distills the main body sections
   - Provide a concise summary of the report`

type Options struct {
	LLM      llm.Invoker
	Searcher tool.Searcher
	// Prompts defaults to prompt.Default().
	Prompts *prompt.Set
	// Processor post-processes the final report. Defaults to NewTextProcessor().
	Processor *TextProcessor
	// NumberOfQueries and ReportStructure apply to requests that leave them unset.
	NumberOfQueries int
	ReportStructure string
	Run             graph.RunConfig
}

type Request struct {
	Topic           string `json:"topic"`
	ReportStructure string `json:"report_structure,omitempty"`
	NumberOfQueries int    `json:"number_of_queries,omitempty"`
}

type Report struct {
	Topic    string             `json:"topic"`
	Sections []Section          `json:"sections"`
	Content  string             `json:"content"`
	RunID    string             `json:"run_id"`
	Steps    []graph.StepRecord `json:"steps"`
}

// Service writes reports. It is safe for concurrent use.
type Service struct {
	graph     *graph.Graph
	processor *TextProcessor
	queries   int
	structure string
	run       graph.RunConfig
}

func NewService(opts Options) (*Service, error) {
	g, err := NewGraph(opts)
	if err != nil {
		return nil, err
	}
	p := opts.Processor
	if p == nil {
		p = NewTextProcessor()
	}
	structure := opts.ReportStructure
	if structure == "" {
		structure = DefaultReportStructure
	}
	log.Debug("compiled graph %s: %v", g.Name(), g.Nodes())
	return &Service{graph: g, processor: p, queries: opts.NumberOfQueries, structure: structure, run: opts.Run}, nil
}

// NewGraph compiles the report workflow:
//
//	generate_report_plan -> fan-out(research sections) -> build_section_with_web_research
//	  join gather_completed_sections -> fan-out(other sections) -> write_final_sections
//	  join compile_final_report -> End
//
// build_section_with_web_research is the sub-graph
// generate_queries -> search_web -> write_section.
func NewGraph(opts Options) (*graph.Graph, error) {
	if opts.LLM == nil || opts.Searcher == nil {
		return nil, errors.New("report: llm and searcher are required")
	}
	prompts := opts.Prompts
	if prompts == nil {
		var err error
		if prompts, err = prompt.Default(); err != nil {
			return nil, err
		}
	}
	if err := prompts.Require(requiredPrompts...); err != nil {
		return nil, err
	}
	s := &steps{llm: opts.LLM, searcher: opts.Searcher, prompts: prompts}

	section, err := graph.NewBuilder("section", NewSectionSchema()).
		AddNode(NodeGenerateQueries, s.generateQueries, graph.WithOutputs(FieldSearchQueries)).
		AddNode(NodeSearchWeb, s.searchWeb, graph.WithOutputs(FieldSourceStr)).
		AddNode(NodeWriteSection, s.writeSection, graph.WithOutputs(FieldCompletedSections)).
		SetEntryPoint(NodeGenerateQueries).
		AddEdge(NodeGenerateQueries, NodeSearchWeb).
		AddEdge(NodeSearchWeb, NodeWriteSection).
		SetFinishPoint(NodeWriteSection).
		Compile()
	if err != nil {
		return nil, err
	}

	return graph.NewBuilder(GraphName, NewSchema()).
		AddNode(NodeGeneratePlan, s.generatePlan, graph.WithOutputs(FieldSections)).
		AddSubgraph(NodeBuildSection, section, graph.WithOutputs(FieldCompletedSections)).
		AddNode(NodeGatherCompleted, s.gatherCompletedSections, graph.WithOutputs(FieldSectionsFromResearch)).
		AddNode(NodeWriteFinalSections, s.writeFinalSections, graph.WithOutputs(FieldCompletedSections)).
		AddNode(NodeCompileFinal, compileFinalReport, graph.WithOutputs(FieldSections, FieldFinalReport)).
		SetEntryPoint(NodeGeneratePlan).
		AddFanOut(NodeGeneratePlan, s.initiateSectionWriting, []string{NodeBuildSection}, NodeGatherCompleted).
		AddFanOut(NodeGatherCompleted, s.initiateFinalSectionWriting, []string{NodeWriteFinalSections}, NodeCompileFinal).
		SetFinishPoint(NodeCompileFinal).
		Compile()
}

// Write runs the workflow and returns the post-processed report.
func (s *Service) Write(ctx context.Context, req Request) (*Report, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, errors.New("topic is empty")
	}
	initial := graph.Update{
		FieldTopic:           topic,
		FieldReportStructure: req.ReportStructure,
	}
	if req.ReportStructure == "" {
		initial[FieldReportStructure] = s.structure
	}
	if n := req.NumberOfQueries; n > 0 {
		initial[FieldNumberOfQueries] = n
	} else if s.queries > 0 {
		initial[FieldNumberOfQueries] = s.queries
	}
	res, err := s.graph.Run(ctx, initial, s.run)
	if err != nil {
		return nil, err
	}
	return &Report{
		Topic:    topic,
		Sections: graph.Value[[]Section](res.State, FieldSections),
		Content:  s.processor.Process(graph.Value[string](res.State, FieldFinalReport)),
		RunID:    res.RunID,
		Steps:    res.History,
	}, nil
}
