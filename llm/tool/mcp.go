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
	"errors"

	"github.com/cloudwego/eino/components/tool"
	emcp "github.com/cloudwego/eino-ext/components/tool/mcp"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	perrors "github.com/pkg/errors"
)

// Tool is a tool that a model or a workflow step can call.
type Tool = tool.BaseTool

type MCPConfig struct {
	Type    MCPType  `yaml:"type" json:"type"`
	Command string   `yaml:"command" json:"command"`
	Args    []string `yaml:"args" json:"args"`
	Envs    []string `yaml:"envs" json:"envs"`
	SSEURL  string   `yaml:"sse_url" json:"sse_url"`
}

type MCPType string

const (
	MCPTypeStdio MCPType = "stdio"
	MCPTypeSSE   MCPType = "sse"
)

type MCPClient struct {
	cli *client.Client
}

func NewMCPClient(opts MCPConfig) (*MCPClient, error) {
	var cli *client.Client
	var err error
	switch opts.Type {
	case MCPTypeStdio:
		if opts.Command == "" {
			return nil, errors.New("command is empty")
		}
		cli, err = client.NewStdioMCPClient(opts.Command, opts.Envs, opts.Args...)
	case MCPTypeSSE:
		if opts.SSEURL == "" {
			return nil, errors.New("sse url is empty")
		}
		cli, err = client.NewSSEMCPClient(opts.SSEURL)
	default:
		return nil, perrors.Errorf("unsupported mcp type %q", opts.Type)
	}
	if err != nil {
		return nil, perrors.Wrapf(err, "create %s mcp client", opts.Type)
	}
	return &MCPClient{cli: cli}, nil
}

// NewInProcessMCPClient connects to svr without a transport.
func NewInProcessMCPClient(svr *server.MCPServer) (*MCPClient, error) {
	cli, err := client.NewInProcessClient(svr)
	if err != nil {
		return nil, err
	}
	return &MCPClient{cli: cli}, nil
}

func (c *MCPClient) Start(ctx context.Context) error {
	if err := c.cli.Start(ctx); err != nil {
		return perrors.Wrap(err, "start mcp client")
	}
	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "ragflow",
		Version: "1.0.0",
	}
	if _, err := c.cli.Initialize(ctx, initRequest); err != nil {
		return perrors.Wrap(err, "initialize mcp session")
	}
	return nil
}

func (c *MCPClient) GetTools(ctx context.Context) ([]Tool, error) {
	mcpTools, err := emcp.GetTools(ctx, &emcp.Config{Cli: c.cli})
	if err != nil {
		return nil, err
	}
	tools := make([]Tool, 0, len(mcpTools))
	for _, t := range mcpTools {
		tools = append(tools, t)
	}
	return tools, nil
}

// GetTool returns the invokable tool the server lists under name.
func (c *MCPClient) GetTool(ctx context.Context, name string) (tool.InvokableTool, error) {
	mcpTools, err := emcp.GetTools(ctx, &emcp.Config{Cli: c.cli, ToolNameList: []string{name}})
	if err != nil {
		return nil, err
	}
	for _, t := range mcpTools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, err
		}
		if info.Name != name {
			continue
		}
		if it, ok := t.(tool.InvokableTool); ok {
			return it, nil
		}
	}
	return nil, perrors.Errorf("mcp tool %q not found", name)
}

func (c *MCPClient) Close() error {
	return c.cli.Close()
}
