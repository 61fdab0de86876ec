// Copyright 2025 CloudWeGo Authors
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

package main

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/fanjia1024/ragflow/internal/config"
	"github.com/fanjia1024/ragflow/llm/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitSearcher_ClosesClientWhenStartFails(t *testing.T) {
	cmd, err := exec.LookPath("true")
	if err != nil {
		t.Skip("no `true` binary on PATH")
	}
	cfg := config.Default()
	cfg.Search.Backend = config.SearchBackendMCP
	cfg.Search.MCP = tool.MCPConfig{Type: tool.MCPTypeStdio, Command: cmd}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a := &app{cfg: cfg}
	// the subprocess exits before answering initialize
	require.Error(t, a.initSearcher(ctx))
	assert.Len(t, a.closers, 1)

	a.Close()
	assert.Empty(t, a.closers)
}
