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

package tool

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/fanjia1024/ragflow/internal/graph"
	"github.com/fanjia1024/ragflow/internal/store"
	"github.com/fanjia1024/ragflow/llm/log"
	perrors "github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	ToolSearchDocuments = "search_documents"
	DescSearchDocuments = "search the indexed documents and return the most relevant passages for a query"

	// MetaQuery is the metadata key holding the query a document was found for.
	MetaQuery = "query"
	// MetaTitle is the metadata key holding a search hit's title.
	MetaTitle = "title"
)

// Searcher runs a batch of queries. Results keep query order; documents
// found for the same query keep the order the backend ranked them.
type Searcher interface {
	Search(ctx context.Context, queries []string) ([]*schema.Document, error)
}

// SearchReq is the argument of the search tool.
type SearchReq struct {
	Query string `json:"query" jsonschema_description:"the search query"`
	TopK  int    `json:"top_k,omitempty" jsonschema_description:"maximum number of results, 0 for the default"`
}

// SearchHit is one result of the search tool.
type SearchHit struct {
	Title   string  `json:"title,omitempty"`
	URL     string  `json:"url,omitempty"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// StoreSearcher searches a retriever, usually the local vector store.
type StoreSearcher struct {
	Retriever retriever.Retriever
	// TopK limits results per query. 0 keeps the retriever's default.
	TopK int
}

func (s *StoreSearcher) Search(ctx context.Context, queries []string) ([]*schema.Document, error) {
	var opts []retriever.Option
	if s.TopK > 0 {
		opts = append(opts, retriever.WithTopK(s.TopK))
	}
	results := make([][]*schema.Document, len(queries))
	eg, ctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		eg.Go(func() error {
			docs, err := s.Retriever.Retrieve(ctx, q, opts...)
			if err != nil {
				return graph.NewCollaboratorError("search", perrors.Wrapf(err, "retrieve %q", q))
			}
			for _, d := range docs {
				tagQuery(d, q)
			}
			results[i] = docs
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return flatten(results), nil
}

// ToolSearcher searches by calling a tool that takes a SearchReq, such as the
// search tool of a remote MCP server.
type ToolSearcher struct {
	Tool tool.InvokableTool
	TopK int
}

func (s *ToolSearcher) Search(ctx context.Context, queries []string) ([]*schema.Document, error) {
	results := make([][]*schema.Document, len(queries))
	eg, ctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		eg.Go(func() error {
			args, err := json.Marshal(SearchReq{Query: q, TopK: s.TopK})
			if err != nil {
				return err
			}
			out, err := s.Tool.InvokableRun(ctx, string(args))
			if err != nil {
				return graph.NewCollaboratorError("search", perrors.Wrapf(err, "search tool %q", q))
			}
			docs, err := parseToolOutput(out)
			if err != nil {
				return graph.NewCollaboratorError("search", perrors.Wrapf(err, "search tool %q", q))
			}
			for _, d := range docs {
				tagQuery(d, q)
			}
			log.Debug("search %q: %d hits", q, len(docs))
			results[i] = docs
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return flatten(results), nil
}

// NewSearchTool exposes s as an invokable tool named search_documents.
func NewSearchTool(s Searcher) (tool.InvokableTool, error) {
	return utils.InferTool(ToolSearchDocuments, DescSearchDocuments,
		func(ctx context.Context, req SearchReq) ([]SearchHit, error) {
			if strings.TrimSpace(req.Query) == "" {
				return nil, perrors.New("query is empty")
			}
			docs, err := s.Search(ctx, []string{req.Query})
			if err != nil {
				return nil, err
			}
			if req.TopK > 0 && len(docs) > req.TopK {
				docs = docs[:req.TopK]
			}
			return Hits(docs), nil
		})
}

// Hits converts documents to search tool results.
func Hits(docs []*schema.Document) []SearchHit {
	hits := make([]SearchHit, 0, len(docs))
	for _, d := range docs {
		h := SearchHit{Content: d.Content, Score: d.Score()}
		if v, ok := d.MetaData[MetaTitle].(string); ok {
			h.Title = v
		}
		if v, ok := d.MetaData[store.MetaSource].(string); ok {
			h.URL = v
		}
		hits = append(hits, h)
	}
	return hits
}

// parseToolOutput accepts the JSON of a list of hits, an object with a
// results list, an MCP CallToolResult wrapping either of those, or plain text.
func parseToolOutput(out string) ([]*schema.Document, error) {
	var res struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal([]byte(out), &res); err == nil && len(res.Content) > 0 {
		var docs []*schema.Document
		var texts []string
		for _, c := range res.Content {
			if c.Type == "text" {
				texts = append(texts, c.Text)
				docs = append(docs, parseHits(c.Text)...)
			}
		}
		if res.IsError {
			return nil, perrors.New(strings.Join(texts, "; "))
		}
		return docs, nil
	}
	return parseHits(out), nil
}

func parseHits(text string) []*schema.Document {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var hits []SearchHit
	if err := json.Unmarshal([]byte(text), &hits); err != nil {
		var wrapped struct {
			Results []SearchHit `json:"results"`
		}
		if err := json.Unmarshal([]byte(text), &wrapped); err != nil || wrapped.Results == nil {
			return []*schema.Document{{Content: text, MetaData: map[string]any{}}}
		}
		hits = wrapped.Results
	}
	docs := make([]*schema.Document, 0, len(hits))
	for _, h := range hits {
		d := &schema.Document{Content: h.Content, MetaData: map[string]any{}}
		if h.Title != "" {
			d.MetaData[MetaTitle] = h.Title
		}
		if h.URL != "" {
			d.MetaData[store.MetaSource] = h.URL
		}
		if h.Score != 0 {
			d.WithScore(h.Score)
		}
		docs = append(docs, d)
	}
	return docs
}

func tagQuery(d *schema.Document, q string) {
	if d.MetaData == nil {
		d.MetaData = map[string]any{}
	}
	d.MetaData[MetaQuery] = q
}

func flatten(groups [][]*schema.Document) []*schema.Document {
	var n int
	for _, g := range groups {
		n += len(g)
	}
	out := make([]*schema.Document, 0, n)
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
