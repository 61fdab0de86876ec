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

package store

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func splitText(t *testing.T, sp document.Transformer, text string) []string {
	t.Helper()
	docs, err := sp.Transform(context.Background(), []*schema.Document{{Content: text}})
	require.NoError(t, err)
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Content)
	}
	return out
}

func TestSplitter_Short(t *testing.T) {
	sp, err := NewSplitter(context.Background(), 100, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"short text"}, splitText(t, sp, "  short text  "))
	assert.Empty(t, splitText(t, sp, ""))
}

func TestSplitter_Paragraphs(t *testing.T) {
	sp, err := NewSplitter(context.Background(), 30, 0)
	require.NoError(t, err)
	text := "first paragraph here\n\nsecond paragraph here\n\nthird one"
	assert.Equal(t, []string{"first paragraph here", "second paragraph here", "third one"}, splitText(t, sp, text))
}

func TestSplitter_SizeAndOverlap(t *testing.T) {
	sp, err := NewSplitter(context.Background(), 50, 15)
	require.NoError(t, err)
	words := make([]string, 60)
	for i := range words {
		words[i] = "word"
	}
	chunks := splitText(t, sp, strings.Join(words, " "))
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 50)
	}
	// consecutive chunks share their boundary words
	assert.True(t, strings.HasPrefix(chunks[1], "word word"))
}

func TestSplitter_CJK(t *testing.T) {
	sp, err := NewSplitter(context.Background(), 10, 2)
	require.NoError(t, err)
	chunks := splitText(t, sp, strings.Repeat("检索增强生成", 5))
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 10)
	}
}

func TestSplitter_InvalidOverlap(t *testing.T) {
	_, err := NewSplitter(context.Background(), 10, 10)
	require.Error(t, err)
}

func TestSplitter_ChunkIDs(t *testing.T) {
	sp, err := NewSplitter(context.Background(), 12, 0)
	require.NoError(t, err)
	docs, err := sp.Transform(context.Background(), []*schema.Document{
		{ID: "a", Content: "alpha beta\n\ngamma delta", MetaData: map[string]any{MetaSource: "a.md"}},
		{Content: "anonymous"},
	})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "a#0", docs[0].ID)
	assert.Equal(t, "a#1", docs[1].ID)
	assert.Equal(t, "gamma delta", docs[1].Content)
	assert.Equal(t, "a.md", docs[1].MetaData[MetaSource])
	assert.Empty(t, docs[2].ID)
}

func TestIngester_ChunksDistinctInStore(t *testing.T) {
	sp, err := NewSplitter(context.Background(), 12, 0)
	require.NoError(t, err)
	st := New(Options{})
	in := &Ingester{Indexer: st, Splitter: sp}

	ids, err := in.Index(context.Background(), []*schema.Document{
		{ID: "a", Content: "alpha beta\n\ngamma delta", MetaData: map[string]any{MetaSource: "a.md"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a#0", "a#1"}, ids)
	assert.Equal(t, 2, st.Len())
}
