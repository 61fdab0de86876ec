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
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/cloudwego/eino/components/embedding"
)

const DefaultDimensions = 512

var _ embedding.Embedder = (*HashEmbedder)(nil)

// HashEmbedder maps text to a fixed-size bag-of-tokens vector using feature
// hashing. Latin words and digits are tokens; every CJK rune is a token of
// its own. Vectors are L2-normalized, so dot product is cosine similarity.
type HashEmbedder struct {
	Dimensions int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultDimensions
	}
	return &HashEmbedder{Dimensions: dim}
}

// EmbedStrings implements embedding.Embedder.
func (e *HashEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *HashEmbedder) embed(text string) []float64 {
	vec := make([]float64, e.Dimensions)
	for _, tok := range tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.Dimensions))
		// the top bit picks the sign to spread collisions
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func tokenize(text string) []string {
	var (
		tokens []string
		word   strings.Builder
	)
	flush := func() {
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
			word.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += a[i] * b[i]
	}
	return s
}

func norm(v []float64) float64 {
	return math.Sqrt(dot(v, v))
}

// cosine is the cosine similarity of a and b, 0 when either is zero.
func cosine(a, b []float64) float64 {
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot(a, b) / (na * nb)
}
