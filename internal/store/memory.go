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
	"sort"
	"sync"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/fanjia1024/ragflow/internal/graph"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	DefaultTopK = 4
	// MetaSource is the metadata key holding where a document came from.
	MetaSource = "source"
)

var (
	_ indexer.Indexer     = (*Store)(nil)
	_ retriever.Retriever = (*Store)(nil)
)

type entry struct {
	doc *schema.Document
	vec []float64
}

// Store is an in-memory vector index. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	entries  []entry
	embedder embedding.Embedder
	topK     int
}

type Options struct {
	Embedder embedding.Embedder
	// TopK is the default number of documents Retrieve returns.
	TopK int
}

func New(opts Options) *Store {
	if opts.Embedder == nil {
		opts.Embedder = NewHashEmbedder(DefaultDimensions)
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	return &Store{embedder: opts.Embedder, topK: opts.TopK}
}

// Store implements indexer.Indexer. Documents without an ID get a new one.
func (s *Store) Store(ctx context.Context, docs []*schema.Document, opts ...indexer.Option) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	emb := indexer.GetCommonOptions(&indexer.Options{Embedding: s.embedder}, opts...).Embedding
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vecs, err := emb.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, graph.NewCollaboratorError("store", errors.Wrap(err, "embed documents"))
	}
	if len(vecs) != len(docs) {
		return nil, errors.Errorf("embedder returned %d vectors for %d documents", len(vecs), len(docs))
	}

	ids := make([]string, len(docs))
	added := make([]entry, len(docs))
	for i, d := range docs {
		cp := copyDoc(d)
		if cp.ID == "" {
			cp.ID = uuid.NewString()
		}
		ids[i] = cp.ID
		added[i] = entry{doc: cp, vec: vecs[i]}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range added {
		if i := s.indexOf(e.doc.ID); i >= 0 {
			s.entries[i] = e
			continue
		}
		s.entries = append(s.entries, e)
	}
	return ids, nil
}

// Retrieve implements retriever.Retriever with cosine similarity search.
// Results are ordered by descending score, ties by insertion order.
func (s *Store) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	topK := s.topK
	o := retriever.GetCommonOptions(&retriever.Options{TopK: &topK, Embedding: s.embedder}, opts...)
	vecs, err := o.Embedding.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, graph.NewCollaboratorError("store", errors.Wrap(err, "embed query"))
	}
	if len(vecs) != 1 {
		return nil, errors.Errorf("embedder returned %d vectors for one query", len(vecs))
	}
	q := vecs[0]

	type scored struct {
		idx   int
		score float64
	}
	s.mu.RLock()
	hits := make([]scored, 0, len(s.entries))
	for i, e := range s.entries {
		score := cosine(q, e.vec)
		if o.ScoreThreshold != nil && score < *o.ScoreThreshold {
			continue
		}
		hits = append(hits, scored{idx: i, score: score})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	k := len(hits)
	if o.TopK != nil && *o.TopK >= 0 && *o.TopK < k {
		k = *o.TopK
	}
	out := make([]*schema.Document, 0, k)
	for _, h := range hits[:k] {
		out = append(out, copyDoc(s.entries[h.idx].doc).WithScore(h.score))
	}
	s.mu.RUnlock()
	return out, nil
}

// DeleteSource removes every document whose source metadata equals source
// and returns how many were removed.
func (s *Store) DeleteSource(source string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if src, _ := e.doc.MetaData[MetaSource].(string); src == source {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	// drop references held past the new length
	for i := len(kept); i < len(s.entries); i++ {
		s.entries[i] = entry{}
	}
	s.entries = kept
	return removed
}

// Len returns the number of indexed documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Documents returns copies of the indexed documents in insertion order.
func (s *Store) Documents() []*schema.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]*schema.Document, len(s.entries))
	for i, e := range s.entries {
		docs[i] = copyDoc(e.doc)
	}
	return docs
}

func (s *Store) indexOf(id string) int {
	for i, e := range s.entries {
		if e.doc.ID == id {
			return i
		}
	}
	return -1
}

func copyDoc(d *schema.Document) *schema.Document {
	cp := &schema.Document{ID: d.ID, Content: d.Content}
	if d.MetaData != nil {
		cp.MetaData = make(map[string]any, len(d.MetaData))
		for k, v := range d.MetaData {
			cp.MetaData[k] = v
		}
	}
	return cp
}
