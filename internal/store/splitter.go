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
	"fmt"
	"unicode/utf8"

	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	"github.com/cloudwego/eino/components/document"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// paragraphs first, then lines, then words, then single runes
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// NewSplitter returns a recursive character splitter cutting documents into
// chunks of at most size runes with overlap runes carried between chunks.
// Chunks keep their document's metadata and get the ID "<parent>#<index>".
func NewSplitter(ctx context.Context, size, overlap int) (document.Transformer, error) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d)", overlap, size)
	}
	return recursive.NewSplitter(ctx, &recursive.Config{
		ChunkSize:   size,
		OverlapSize: overlap,
		Separators:  defaultSeparators,
		LenFunc:     utf8.RuneCountInString,
		KeepType:    recursive.KeepTypeNone,
		IDGenerator: chunkID,
	})
}

// chunkID leaves the ID empty for anonymous documents so the store assigns one.
func chunkID(_ context.Context, parent string, i int) string {
	if parent == "" {
		return ""
	}
	return fmt.Sprintf("%s#%d", parent, i)
}
