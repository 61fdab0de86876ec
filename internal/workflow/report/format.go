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
	"fmt"
	"slices"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/fanjia1024/ragflow/internal/store"
	"github.com/fanjia1024/ragflow/llm/tool"
)

// charsPerToken approximates token budgets in characters.
const charsPerToken = 4

type source struct {
	title   string
	url     string
	content string
	raw     []string
}

// DeduplicateAndFormatSources renders search results as prompt context.
// Documents from the same source are merged into one entry. Each entry's
// content is cut to maxTokensPerSource; with includeRaw the text of every
// chunk of the source is appended under the same limit.
func DeduplicateAndFormatSources(docs []*schema.Document, maxTokensPerSource int, includeRaw bool) string {
	var order []string
	sources := make(map[string]*source)
	for _, d := range docs {
		key := sourceKey(d)
		src, ok := sources[key]
		if !ok {
			src = &source{title: metaString(d, tool.MetaTitle), url: metaString(d, store.MetaSource), content: d.Content}
			if src.title == "" {
				src.title = key
			}
			sources[key] = src
			order = append(order, key)
		}
		if !slices.Contains(src.raw, d.Content) {
			src.raw = append(src.raw, d.Content)
		}
	}

	limit := maxTokensPerSource * charsPerToken
	var b strings.Builder
	b.WriteString("Sources:\n\n")
	for _, key := range order {
		src := sources[key]
		fmt.Fprintf(&b, "Source %s:\n===\n", src.title)
		if src.url != "" {
			fmt.Fprintf(&b, "URL: %s\n===\n", src.url)
		}
		fmt.Fprintf(&b, "Most relevant content from source: %s\n===\n", cut(src.content, limit))
		if includeRaw {
			fmt.Fprintf(&b, "Full source content limited to %d tokens: %s\n\n", maxTokensPerSource, cut(strings.Join(src.raw, "\n"), limit))
		}
	}
	return strings.TrimSpace(b.String())
}

// FormatSections renders sections as context for the final section writers.
func FormatSections(sections []Section) string {
	rule := strings.Repeat("=", 60)
	var b strings.Builder
	for i, s := range sections {
		content := s.Content
		if content == "" {
			content = "[Not yet written]"
		}
		fmt.Fprintf(&b, "\n%s\nSection %d: %s\n%s\nDescription:\n%s\nRequires Research: \n%t\n\nContent:\n%s\n\n",
			rule, i+1, s.Name, rule, s.Description, s.Research, content)
	}
	return b.String()
}

func sourceKey(d *schema.Document) string {
	if src := metaString(d, store.MetaSource); src != "" {
		return src
	}
	if d.ID != "" {
		return d.ID
	}
	return d.Content
}

func metaString(d *schema.Document, key string) string {
	v, _ := d.MetaData[key].(string)
	return v
}

// cut truncates s to n runes.
func cut(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "... [truncated]"
}
