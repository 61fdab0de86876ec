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

// Package rag is a self-correcting retrieval-augmented generation workflow.
// Retrieved documents are graded for relevance, the question is rewritten
// when nothing relevant is left, and generations are checked for grounding
// and usefulness before they are returned.
package rag

import (
	"github.com/cloudwego/eino/schema"
	"github.com/fanjia1024/ragflow/internal/graph"
)

// State fields.
const (
	FieldQuestion   = "question"
	FieldGeneration = "generation"
	FieldDocuments  = "documents"
	FieldRewrites   = "rewrites"
)

// Nodes.
const (
	NodeRetrieve       = "retrieve"
	NodeGradeDocuments = "grade_documents"
	NodeGenerate       = "generate"
	NodeTransformQuery = "transform_query"
)

// Router labels.
const (
	LabelGenerate       graph.Label = "generate"
	LabelTransformQuery graph.Label = "transform_query"

	LabelNotSupported graph.Label = "not supported"
	LabelUseful       graph.Label = "useful"
	LabelNotUseful    graph.Label = "not useful"
)

// NewSchema returns the state schema of the workflow.
func NewSchema() *graph.Schema {
	return graph.MustSchema(
		graph.FieldOf[string](FieldQuestion, graph.Overwrite),
		graph.FieldOf[string](FieldGeneration, graph.Overwrite),
		graph.FieldOf[[]*schema.Document](FieldDocuments, graph.Overwrite),
		graph.FieldOf[[]string](FieldRewrites, graph.Append),
	)
}
