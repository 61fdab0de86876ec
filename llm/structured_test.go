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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plan struct {
	Sections []struct {
		Name     string `json:"name"`
		Research bool   `json:"research"`
	} `json:"sections"`
}

func TestSchemaFor(t *testing.T) {
	bs, err := SchemaFor(&plan{})
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(bs, &doc))
	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok, "schema: %s", bs)
	assert.Contains(t, props, "sections")
}

func TestParseStructured(t *testing.T) {
	var p plan
	err := ParseStructured("Here is the plan:\n{\"sections\": [{\"name\": \"Intro\", \"research\": false}, {\"name\": \"Body\", \"research\": true}]}\nDone.", &p)
	require.NoError(t, err)
	require.Len(t, p.Sections, 2)
	assert.Equal(t, "Body", p.Sections[1].Name)
	assert.True(t, p.Sections[1].Research)
}

func TestParseStructured_Repair(t *testing.T) {
	var p plan
	err := ParseStructured(`{"sections": [{"name": "Intro", "research": false},]}`, &p)
	require.NoError(t, err)
	require.Len(t, p.Sections, 1)
}

func TestParseStructured_NoJSON(t *testing.T) {
	var p plan
	require.Error(t, ParseStructured("no structure here", &p))
}
