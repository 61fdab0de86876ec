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

// Package mcp exposes the workflows as MCP tools.
package mcp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/fanjia1024/ragflow/api"
	"github.com/fanjia1024/ragflow/internal/store"
	"github.com/fanjia1024/ragflow/llm/log"
	"github.com/fanjia1024/ragflow/llm/tool"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type ServerOptions struct {
	ServerName    string
	ServerVersion string

	// Every service is optional; its tool is only registered when set.
	RAG        api.Answerer
	Report     api.ReportWriter
	Ingester   *store.Ingester
	Searcher   tool.Searcher
	HTTPClient *http.Client
}

type Server struct {
	Server *server.MCPServer
}

func NewServer(opts ServerOptions) *Server {
	if opts.ServerName == "" {
		opts.ServerName = "ragflow"
	}
	svr := server.NewMCPServer(opts.ServerName, opts.ServerVersion,
		server.WithToolCapabilities(false),
		server.WithPromptCapabilities(false),
		server.WithRecovery(),
	)
	svr.AddTools(getTools(opts)...)
	if opts.Report != nil {
		svr.AddPrompt(mcp.NewPrompt(PromptWriteReport,
			mcp.WithPromptDescription("Write a researched report on a topic"),
			mcp.WithArgument("topic", mcp.ArgumentDescription("the report topic"), mcp.RequiredArgument()),
		), handleWriteReportPrompt)
	}
	return &Server{Server: svr}
}

// ServeStdio serves JSON-RPC over stdin and stdout until ctx is done or stdin is closed.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.serve(ctx, os.Stdin, os.Stdout)
}

func (s *Server) serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.Server)
	err := stdio.Listen(ctx, in, out)
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ServeSSE serves the SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	sse := server.NewSSEServer(s.Server)
	errCh := make(chan error, 1)
	go func() {
		log.Info("mcp sse server listening on %s", addr)
		errCh <- sse.Start(addr)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := sse.Shutdown(context.Background()); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
