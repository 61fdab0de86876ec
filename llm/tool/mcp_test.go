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

package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchServer() *server.MCPServer {
	svr := server.NewMCPServer("search", "1.0.0", server.WithToolCapabilities(false))
	svr.AddTool(mcp.NewTool(ToolSearchDocuments,
		mcp.WithDescription(DescSearchDocuments),
		mcp.WithString("query", mcp.Required()),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if q == "fail" {
			return mcp.NewToolResultError("quota exceeded"), nil
		}
		js, _ := json.Marshal([]SearchHit{{Title: "hit", URL: "https://example.com/" + q, Content: "about " + q}})
		return mcp.NewToolResultText(string(js)), nil
	})
	return svr
}

func TestMCPClient_InProcess(t *testing.T) {
	ctx := context.Background()
	cli, err := NewInProcessMCPClient(searchServer())
	require.NoError(t, err)
	require.NoError(t, cli.Start(ctx))
	defer cli.Close()

	tools, err := cli.GetTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)

	st, err := cli.GetTool(ctx, ToolSearchDocuments)
	require.NoError(t, err)

	s := &ToolSearcher{Tool: st}
	docs, err := s.Search(ctx, []string{"agents", "memory"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "about agents", docs[0].Content)
	assert.Equal(t, "https://example.com/memory", docs[1].MetaData["source"])
	assert.Equal(t, "hit", docs[1].MetaData[MetaTitle])

	_, err = s.Search(ctx, []string{"fail"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	_, err = cli.GetTool(ctx, "missing")
	require.Error(t, err)
}

func TestNewMCPClient_Invalid(t *testing.T) {
	tests := []MCPConfig{
		{Type: MCPTypeStdio},
		{Type: MCPTypeSSE},
		{Type: "ws", SSEURL: "ws://localhost"},
	}
	for _, cfg := range tests {
		_, err := NewMCPClient(cfg)
		assert.Error(t, err, "type %s", cfg.Type)
	}
}
