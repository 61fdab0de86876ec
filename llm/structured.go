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

package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
	"github.com/pkg/errors"
)

// SchemaFor returns the JSON schema of v, which should be a struct or a pointer to one.
func SchemaFor(v any) ([]byte, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	bs, err := json.Marshal(r.Reflect(v))
	if err != nil {
		return nil, errors.Wrap(err, "marshal json schema")
	}
	return bs, nil
}

// StructuredInstruction is the system instruction asking for a reply matching out.
func StructuredInstruction(out any) (string, error) {
	bs, err := SchemaFor(out)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Respond with a single JSON object that conforms to this JSON schema, and nothing else:\n%s", bs), nil
}

// ParseStructured decodes a model reply into out. Markdown fences and text
// around the JSON object are ignored, and malformed JSON is repaired once.
func ParseStructured(text string, out any) error {
	content := extractJSON(text)
	if content == "" {
		return fmt.Errorf("no JSON object in reply: %q", truncate(text, 200))
	}
	err := json.Unmarshal([]byte(content), out)
	if err == nil {
		return nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(content)
	if repairErr != nil {
		return fmt.Errorf("unmarshal reply as %T: %w (repair failed: %v)", out, err, repairErr)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("unmarshal repaired reply as %T: %w", out, err)
	}
	return nil
}

func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		text = strings.TrimSpace(rest)
	}
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	end := strings.LastIndexAny(text, "}]")
	if end < start {
		// unterminated, leave it to the repair pass
		return text[start:]
	}
	return text[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
