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

// Package report writes a report with a plan/map/reduce workflow: a plan of
// sections is generated, the sections that need research are written by
// concurrent sub-runs, the remaining sections are written from the
// researched ones, and the result is compiled in plan order.
package report

import (
	"fmt"

	"github.com/fanjia1024/ragflow/internal/graph"
)

type Section struct {
	Name        string `json:"name" jsonschema_description:"Name for this section of the report. Names must be unique."`
	Description string `json:"description" jsonschema_description:"Brief overview of the main topics and concepts to be covered in this section."`
	Research    bool   `json:"research" jsonschema_description:"Whether to perform web research for this section of the report."`
	Content     string `json:"content" jsonschema_description:"The content of the section, left blank when planning."`
}

type Sections struct {
	Sections []Section `json:"sections" jsonschema_description:"Sections of the report."`
}

type SearchQuery struct {
	SearchQuery string `json:"search_query" jsonschema_description:"Query for web search."`
}

type Queries struct {
	Queries []SearchQuery `json:"queries" jsonschema_description:"List of search queries."`
}

// Report state fields.
const (
	FieldTopic                = "topic"
	FieldReportStructure      = "report_structure"
	FieldNumberOfQueries      = "number_of_queries"
	FieldSections             = "sections"
	FieldSection              = "section"
	FieldCompletedSections    = "completed_sections"
	FieldSectionsFromResearch = "report_sections_from_research"
	FieldFinalReport          = "final_report"

	// section sub-graph only
	FieldSearchQueries = "search_queries"
	FieldSourceStr     = "source_str"
)

// Nodes.
const (
	NodeGeneratePlan       = "generate_report_plan"
	NodeBuildSection       = "build_section_with_web_research"
	NodeGatherCompleted    = "gather_completed_sections"
	NodeWriteFinalSections = "write_final_sections"
	NodeCompileFinal       = "compile_final_report"

	NodeGenerateQueries = "generate_queries"
	NodeSearchWeb       = "search_web"
	NodeWriteSection    = "write_section"
)

const DefaultNumberOfQueries = 2

// NewSchema returns the schema of the report graph.
func NewSchema() *graph.Schema {
	return graph.MustSchema(
		graph.FieldOf[string](FieldTopic, graph.Overwrite),
		graph.FieldOf[string](FieldReportStructure, graph.Overwrite),
		graph.FieldOf[int](FieldNumberOfQueries, graph.Overwrite).WithDefault(DefaultNumberOfQueries),
		graph.FieldOf[[]Section](FieldSections, graph.Overwrite),
		graph.FieldOf[Section](FieldSection, graph.Overwrite),
		graph.FieldOf[[]Section](FieldCompletedSections, graph.Append),
		graph.FieldOf[string](FieldSectionsFromResearch, graph.Overwrite),
		graph.FieldOf[string](FieldFinalReport, graph.Overwrite),
	)
}

// NewSectionSchema returns the schema of the section research sub-graph.
func NewSectionSchema() *graph.Schema {
	return graph.MustSchema(
		graph.FieldOf[Section](FieldSection, graph.Overwrite),
		graph.FieldOf[int](FieldNumberOfQueries, graph.Overwrite).WithDefault(DefaultNumberOfQueries),
		graph.FieldOf[[]SearchQuery](FieldSearchQueries, graph.Overwrite),
		graph.FieldOf[string](FieldSourceStr, graph.Overwrite),
		graph.FieldOf[[]Section](FieldCompletedSections, graph.Append),
	)
}

// MissingSectionError is returned when a planned section was never written.
type MissingSectionError struct {
	Name string
}

func (e *MissingSectionError) Error() string {
	return fmt.Sprintf("section %q was planned but not written", e.Name)
}

// DuplicateSectionError is returned when two sections share a name, which
// makes matching written content to the plan ambiguous.
type DuplicateSectionError struct {
	Name string
	// Stage is "plan" or "compile".
	Stage string
}

func (e *DuplicateSectionError) Error() string {
	return fmt.Sprintf("%s: duplicate section name %q", e.Stage, e.Name)
}
