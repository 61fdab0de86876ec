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

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/fanjia1024/ragflow/api"
	"github.com/fanjia1024/ragflow/internal/graph"
	"github.com/fanjia1024/ragflow/internal/store"
	"github.com/fanjia1024/ragflow/internal/workflow/rag"
	"github.com/fanjia1024/ragflow/internal/workflow/report"
	"github.com/fanjia1024/ragflow/llm/tool"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRAG struct{}

func (fakeRAG) Answer(_ context.Context, q string) (*rag.Answer, error) {
	if q == "loop" {
		return nil, &graph.RunError{RunID: "r1", Node: rag.NodeGenerate, Err: &graph.CycleBudgetExceeded{Node: rag.NodeGenerate, Limit: 3}}
	}
	return &rag.Answer{Question: q, Generation: "answer to " + q}, nil
}

type fakeReport struct{}

func (fakeReport) Write(_ context.Context, req report.Request) (*report.Report, error) {
	return &report.Report{Topic: req.Topic, Content: "# " + req.Topic}, nil
}

func testServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st := store.New(store.Options{})
	splitter, err := store.NewSplitter(context.Background(), 200, 20)
	require.NoError(t, err)
	svr := NewServer(ServerOptions{
		ServerName:    "ragflow",
		ServerVersion: "1.0.0",
		RAG:           fakeRAG{},
		Report:        fakeReport{},
		Ingester:      &store.Ingester{Indexer: st, Splitter: splitter},
		Searcher:      &tool.StoreSearcher{Retriever: st, TopK: 2},
	})
	return svr, st
}

func connect(t *testing.T, svr *Server) *client.Client {
	t.Helper()
	ctx := context.Background()
	cli, err := client.NewInProcessClient(svr.Server)
	require.NoError(t, err)
	require.NoError(t, cli.Start(ctx))
	t.Cleanup(func() { cli.Close() })

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{Name: "test-client", Version: "1.0.0"}
	_, err = cli.Initialize(ctx, initRequest)
	require.NoError(t, err)
	return cli
}

func call(t *testing.T, cli *client.Client, name string, args map[string]any) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := cli.CallTool(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "content %T", res.Content[0])
	return text.Text, res.IsError
}

func TestServer_ListTools(t *testing.T) {
	svr, _ := testServer(t)
	cli := connect(t, svr)

	res, err := cli.ListTools(context.Background(), mcp.ListToolsRequest{})
	require.NoError(t, err)
	var names []string
	for _, tl := range res.Tools {
		names = append(names, tl.Name)
	}
	assert.ElementsMatch(t, []string{ToolRAGAnswer, ToolWriteReport, ToolIndexDocuments, tool.ToolSearchDocuments}, names)

	only := NewServer(ServerOptions{Searcher: &tool.StoreSearcher{Retriever: store.New(store.Options{})}})
	res, err = connect(t, only).ListTools(context.Background(), mcp.ListToolsRequest{})
	require.NoError(t, err)
	require.Len(t, res.Tools, 1)
	assert.Equal(t, tool.ToolSearchDocuments, res.Tools[0].Name)
}

func TestServer_RAGAnswer(t *testing.T) {
	svr, _ := testServer(t)
	cli := connect(t, svr)

	out, isErr := call(t, cli, ToolRAGAnswer, map[string]any{"question": "why"})
	require.False(t, isErr, out)
	var ans rag.Answer
	require.NoError(t, json.Unmarshal([]byte(out), &ans))
	assert.Equal(t, "answer to why", ans.Generation)

	out, isErr = call(t, cli, ToolRAGAnswer, map[string]any{"question": "loop"})
	require.True(t, isErr)
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, api.CodeCycleBudgetExceeded, resp.Code)
	assert.Equal(t, rag.NodeGenerate, resp.Node)

	_, isErr = call(t, cli, ToolRAGAnswer, map[string]any{"question": " "})
	assert.True(t, isErr)
}

func TestServer_WriteReport(t *testing.T) {
	svr, _ := testServer(t)
	cli := connect(t, svr)

	out, isErr := call(t, cli, ToolWriteReport, map[string]any{"topic": "agents", "number_of_queries": 2})
	require.False(t, isErr, out)
	var rep report.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "# agents", rep.Content)

	_, isErr = call(t, cli, ToolWriteReport, map[string]any{"topic": "agents", "number_of_queries": 50})
	assert.True(t, isErr)
}

func TestServer_IndexAndSearch(t *testing.T) {
	svr, st := testServer(t)
	cli := connect(t, svr)

	out, isErr := call(t, cli, ToolIndexDocuments, map[string]any{
		"documents": []map[string]any{
			{"content": "Agents plan their work and call tools.", "source": "agents.md"},
			{"content": "Green tea is brewed at low temperature.", "source": "tea.md"},
		},
	})
	require.False(t, isErr, out)
	var idx IndexResult
	require.NoError(t, json.Unmarshal([]byte(out), &idx))
	assert.Equal(t, 2, idx.Count)
	assert.Equal(t, 2, st.Len())

	_, isErr = call(t, cli, ToolIndexDocuments, map[string]any{})
	assert.True(t, isErr)

	// the search tool is consumable by the MCP-backed searcher
	ctx := context.Background()
	mc, err := tool.NewInProcessMCPClient(svr.Server)
	require.NoError(t, err)
	require.NoError(t, mc.Start(ctx))
	defer mc.Close()
	st2, err := mc.GetTool(ctx, tool.ToolSearchDocuments)
	require.NoError(t, err)

	docs, err := (&tool.ToolSearcher{Tool: st2, TopK: 1}).Search(ctx, []string{"agents tools"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0].Content, "Agents")
	assert.Equal(t, "agents.md", docs[0].MetaData[store.MetaSource])
}

func TestServer_Prompt(t *testing.T) {
	svr, _ := testServer(t)
	cli := connect(t, svr)

	req := mcp.GetPromptRequest{}
	req.Params.Name = PromptWriteReport
	req.Params.Arguments = map[string]string{"topic": "agents"}
	res, err := cli.GetPrompt(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	text, ok := res.Messages[0].Content.(mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "Topic: agents")
	assert.Contains(t, text.Text, ToolWriteReport)
}

func sendAndRecv(t *testing.T, request any, stdinWriter *io.PipeWriter, scanner *bufio.Scanner) map[string]any {
	t.Helper()
	requestBytes, err := json.Marshal(request)
	require.NoError(t, err)
	_, err = stdinWriter.Write(append(requestBytes, '\n'))
	require.NoError(t, err)

	require.True(t, scanner.Scan(), "failed to read response")
	var response map[string]any
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &response))
	return response
}

func TestServer_Stdio(t *testing.T) {
	svr, _ := testServer(t)
	stdinReader, stdinWriter := io.Pipe()
	stdoutReader, stdoutWriter := io.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- svr.serve(ctx, stdinReader, stdoutWriter)
		stdoutWriter.Close()
	}()
	time.Sleep(50 * time.Millisecond)

	scanner := bufio.NewScanner(stdoutReader)
	resp := sendAndRecv(t, map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
			"clientInfo":      map[string]any{"name": "test-client", "version": "1.0.0"},
		},
	}, stdinWriter, scanner)
	result, ok := resp["result"].(map[string]any)
	require.True(t, ok, "%v", resp)
	info, _ := result["serverInfo"].(map[string]any)
	assert.Equal(t, "ragflow", info["name"])

	cancel()
	stdinWriter.Close()
	assert.NoError(t, <-serverErrCh)
}
