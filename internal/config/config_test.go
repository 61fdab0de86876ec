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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fanjia1024/ragflow/internal/graph"
	"github.com/fanjia1024/ragflow/llm"
	"github.com/fanjia1024/ragflow/llm/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func noEnv(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", noEnv(t))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, graph.DefaultMaxNodeRevisits, cfg.Run.MaxNodeRevisits)
	assert.Equal(t, SearchBackendStore, cfg.Search.Backend)
	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "ragflow.yaml", `
llm:
  name: local
  type: Ollama
  base_url: http://localhost:11434
  model_name: qwen2.5
  timeout: 30s
run:
  max_node_revisits: 3
  step_timeout: 2m
  fan_out_concurrency: 4
store:
  dir: ./docs
  chunk_size: 500
  chunk_overlap: 50
search:
  backend: mcp
  mcp:
    type: sse
    sse_url: http://localhost:9000/sse
report:
  number_of_queries: 4
`)
	cfg, err := Load(path, noEnv(t))
	require.NoError(t, err)

	assert.Equal(t, llm.ModelTypeOllama, cfg.LLM.APIType)
	assert.Equal(t, "qwen2.5", cfg.LLM.ModelName)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 3, cfg.Run.MaxNodeRevisits)
	assert.Equal(t, 2*time.Minute, cfg.Run.StepTimeout)
	assert.Equal(t, 500, cfg.Store.ChunkSize)
	assert.Equal(t, tool.MCPTypeSSE, cfg.Search.MCP.Type)
	assert.Equal(t, tool.ToolSearchDocuments, cfg.Search.Tool)
	assert.Equal(t, 4, cfg.Report.NumberOfQueries)
	// unset keys keep their defaults
	assert.Equal(t, graph.DefaultStepRetries, cfg.Run.StepRetries)
	assert.Equal(t, DefaultAddr, cfg.Server.Addr)

	rc := cfg.RunConfig()
	assert.Equal(t, 3, rc.MaxNodeRevisits)
	assert.Equal(t, 4, rc.FanOutConcurrency)
	assert.Equal(t, graph.DefaultStepRetries, rc.StepRetries)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "ragflow.yaml", "run:\n  max_node_revisits: 3\nserver:\n  addr: :9000\n")
	t.Setenv("RAGFLOW_MAX_NODE_REVISITS", "7")
	t.Setenv("RAGFLOW_LLM_TYPE", "claude")
	t.Setenv("RAGFLOW_STEP_TIMEOUT", "45s")

	cfg, err := Load(path, noEnv(t))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Run.MaxNodeRevisits)
	assert.Equal(t, llm.ModelTypeClaude, cfg.LLM.APIType)
	assert.Equal(t, 45*time.Second, cfg.Run.StepTimeout)
	assert.Equal(t, ":9000", cfg.Server.Addr)
}

func TestLoad_DotEnv(t *testing.T) {
	env := writeFile(t, ".env", "RAGFLOW_LLM_MODEL=from-dotenv\nRAGFLOW_MCP_SSE_URL=http://search/sse\n")
	t.Cleanup(func() {
		os.Unsetenv("RAGFLOW_LLM_MODEL")
		os.Unsetenv("RAGFLOW_MCP_SSE_URL")
	})

	cfg, err := Load("", env)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.LLM.ModelName)
	assert.Equal(t, tool.MCPTypeSSE, cfg.Search.MCP.Type)
	assert.Equal(t, "http://search/sse", cfg.Search.MCP.SSEURL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
		want string
	}{
		{name: "unknown provider", yaml: "llm:\n  type: nope\n", want: "llm.type"},
		{name: "zero revisits", yaml: "run:\n  max_node_revisits: 0\n", want: "max_node_revisits"},
		{name: "overlap too large", yaml: "store:\n  chunk_size: 100\n  chunk_overlap: 100\n", want: "chunk overlap"},
		{name: "unknown backend", yaml: "search:\n  backend: web\n", want: "search.backend"},
		{name: "mcp without client", yaml: "search:\n  backend: mcp\n", want: "search.mcp.type"},
		{name: "bad env int", env: map[string]string{"RAGFLOW_TOP_K": "many"}, want: "RAGFLOW_TOP_K"},
		{name: "bad env duration", env: map[string]string{"RAGFLOW_STEP_TIMEOUT": "soon"}, want: "RAGFLOW_STEP_TIMEOUT"},
		{name: "malformed yaml", yaml: "run: [", want: "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeFile(t, "ragflow.yaml", tt.yaml)
			}
			_, err := Load(path, noEnv(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunConfig_RetriesDisabled(t *testing.T) {
	cfg := Default()
	cfg.Run.StepRetries = 0
	assert.Equal(t, -1, cfg.RunConfig().StepRetries)
}
