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

	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/schema"
	"github.com/fanjia1024/ragflow/llm/log"
	"github.com/pkg/errors"
)

// Ingester splits documents and writes the chunks to an indexer.
type Ingester struct {
	Indexer  indexer.Indexer
	Splitter document.Transformer
}

// Index splits docs and stores the chunks, returning the stored IDs.
func (in *Ingester) Index(ctx context.Context, docs []*schema.Document) ([]string, error) {
	chunks := docs
	if in.Splitter != nil {
		var err error
		if chunks, err = in.Splitter.Transform(ctx, docs); err != nil {
			return nil, errors.Wrap(err, "split documents")
		}
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	ids, err := in.Indexer.Store(ctx, chunks)
	if err != nil {
		return nil, errors.Wrap(err, "index chunks")
	}
	log.Info("indexed %d document(s) as %d chunk(s)", len(docs), len(chunks))
	return ids, nil
}

// IndexDir loads and indexes every supported file under dir.
func (in *Ingester) IndexDir(ctx context.Context, dir string) ([]string, error) {
	docs, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	return in.Index(ctx, docs)
}
