/**
 * Copyright 2025 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/fanjia1024/ragflow/api"
	"github.com/fanjia1024/ragflow/internal/graph"
	"github.com/fanjia1024/ragflow/internal/store"
	"github.com/fanjia1024/ragflow/internal/workflow/rag"
	"github.com/fanjia1024/ragflow/internal/workflow/report"
	"github.com/fanjia1024/ragflow/llm"
	"github.com/fanjia1024/ragflow/llm/log"
	"github.com/fanjia1024/ragflow/llm/tool"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pkg/errors"
)

type Tool = server.ServerTool

const (
	ToolRAGAnswer      = "rag_answer"
	DescRAGAnswer      = "Answer a question from the indexed documents. Irrelevant retrievals are filtered and the question is rewritten until the answer is grounded and useful."
	ToolWriteReport    = "write_report"
	DescWriteReport    = "Plan a report on a topic, research and write every section in parallel, then compile the sections in plan order."
	ToolIndexDocuments = "index_documents"
	DescIndexDocuments = "Split documents into chunks and add them to the knowledge base. Pages are fetched for every url."
)

// NewTool binds the call arguments to R, runs handler and replies with the
// JSON encoding of its result. Handler errors are replied as an
// api.ErrorResponse with IsError set.
func NewTool[R any, T any](name string, desc string, schema json.RawMessage, handler func(ctx context.Context, req R) (*T, error)) Tool {
	return Tool{
		Tool: mcp.NewToolWithRawSchema(name, desc, schema),
		Handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var req R
			if err := request.BindArguments(&req); err != nil {
				return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
			}
			resp, err := handler(ctx, req)
			if err != nil {
				log.Error("tool %s failed: %v", name, err)
				_, body := api.Describe(err)
				js, _ := json.Marshal(body)
				return mcp.NewToolResultError(string(js)), nil
			}
			js, err := json.Marshal(resp)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(string(js)), nil
		},
	}
}

func mustSchema(v any) json.RawMessage {
	bs, err := llm.SchemaFor(v)
	if err != nil {
		panic(err)
	}
	return bs
}

type RAGArgs struct {
	Question string `json:"question" jsonschema:"description=the question to answer"`
}

type ReportArgs struct {
	Topic           string `json:"topic" jsonschema:"description=the topic of the report"`
	ReportStructure string `json:"report_structure,omitempty" jsonschema:"description=organization guidelines for the report"`
	NumberOfQueries int    `json:"number_of_queries,omitempty" jsonschema:"description=search queries per section,minimum=0,maximum=10"`
}

type DocumentArg struct {
	Content string `json:"content" jsonschema:"description=document text"`
	Source  string `json:"source,omitempty" jsonschema:"description=where the document came from"`
}

type IndexArgs struct {
	Documents []DocumentArg `json:"documents,omitempty"`
	URLs      []string      `json:"urls,omitempty" jsonschema:"description=pages to fetch and index"`
}

type IndexResult struct {
	IDs   []string `json:"ids"`
	Count int      `json:"count"`
}

type SearchResult struct {
	Results []tool.SearchHit `json:"results"`
}

type handlers struct {
	opts ServerOptions
}

func (h handlers) answer(ctx context.Context, req RAGArgs) (*rag.Answer, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, errors.New("question is empty")
	}
	return h.opts.RAG.Answer(ctx, req.Question)
}

func (h handlers) writeReport(ctx context.Context, req ReportArgs) (*report.Report, error) {
	if req.NumberOfQueries < 0 || req.NumberOfQueries > 10 {
		return nil, errors.Errorf("number_of_queries must be within [0, 10], got %d", req.NumberOfQueries)
	}
	return h.opts.Report.Write(ctx, report.Request{
		Topic:           req.Topic,
		ReportStructure: req.ReportStructure,
		NumberOfQueries: req.NumberOfQueries,
	})
}

func (h handlers) index(ctx context.Context, req IndexArgs) (*IndexResult, error) {
	if len(req.Documents) == 0 && len(req.URLs) == 0 {
		return nil, errors.New("documents or urls are required")
	}
	docs := make([]*schema.Document, 0, len(req.Documents)+len(req.URLs))
	for i, d := range req.Documents {
		if strings.TrimSpace(d.Content) == "" {
			return nil, errors.Errorf("document %d is empty", i)
		}
		meta := map[string]any{}
		if d.Source != "" {
			meta[store.MetaSource] = d.Source
		}
		docs = append(docs, &schema.Document{Content: d.Content, MetaData: meta})
	}
	for _, u := range req.URLs {
		doc, err := store.FetchURL(ctx, h.opts.HTTPClient, u)
		if err != nil {
			return nil, graph.NewCollaboratorError("fetch", err)
		}
		docs = append(docs, doc)
	}
	ids, err := h.opts.Ingester.Index(ctx, docs)
	if err != nil {
		return nil, err
	}
	return &IndexResult{IDs: ids, Count: len(ids)}, nil
}

func (h handlers) search(ctx context.Context, req tool.SearchReq) (*SearchResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.New("query is empty")
	}
	docs, err := h.opts.Searcher.Search(ctx, []string{req.Query})
	if err != nil {
		return nil, err
	}
	if req.TopK > 0 && len(docs) > req.TopK {
		docs = docs[:req.TopK]
	}
	return &SearchResult{Results: tool.Hits(docs)}, nil
}

// getTools returns the tools whose backing service is configured.
func getTools(opts ServerOptions) []Tool {
	h := handlers{opts: opts}
	var tools []Tool
	if opts.RAG != nil {
		tools = append(tools, NewTool(ToolRAGAnswer, DescRAGAnswer, mustSchema(&RAGArgs{}), h.answer))
	}
	if opts.Report != nil {
		tools = append(tools, NewTool(ToolWriteReport, DescWriteReport, mustSchema(&ReportArgs{}), h.writeReport))
	}
	if opts.Ingester != nil {
		tools = append(tools, NewTool(ToolIndexDocuments, DescIndexDocuments, mustSchema(&IndexArgs{}), h.index))
	}
	if opts.Searcher != nil {
		tools = append(tools, NewTool(tool.ToolSearchDocuments, tool.DescSearchDocuments, mustSchema(&tool.SearchReq{}), h.search))
	}
	return tools
}

const PromptWriteReport = "write_report"

func handleWriteReportPrompt(
	ctx context.Context,
	request mcp.GetPromptRequest,
) (*mcp.GetPromptResult, error) {
	topic := strings.TrimSpace(request.Params.Arguments["topic"])
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	return &mcp.GetPromptResult{
		Description: "A prompt for writing a researched report",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: "Call the " + ToolWriteReport + " tool with the topic below, then present the returned content unchanged.\n\nTopic: " + topic,
				},
			},
		},
	}, nil
}
