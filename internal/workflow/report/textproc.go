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

import "strings"

// DefaultFilterWords are the filler phrases removed from a finished report.
var DefaultFilterWords = []string{
	"例如，",
	"例如:",
	"比如，",
	"比如:",
	"譬如，",
	"譬如:",
	"所以，",
	"因此，",
	"总的来说，",
	"总而言之，",
}

// TextProcessor removes filler phrases from generated text.
type TextProcessor struct {
	words []string
}

// NewTextProcessor uses DefaultFilterWords when words is empty.
func NewTextProcessor(words ...string) *TextProcessor {
	if len(words) == 0 {
		words = DefaultFilterWords
	}
	return &TextProcessor{words: append([]string(nil), words...)}
}

// Process removes every filter word, one word at a time in list order.
func (p *TextProcessor) Process(text string) string {
	for _, w := range p.words {
		if w != "" {
			text = strings.ReplaceAll(text, w, "")
		}
	}
	return text
}
