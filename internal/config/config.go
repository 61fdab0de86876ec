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

// Package config loads the process configuration once at startup. Values
// come from defaults, then a YAML file, then RAGFLOW_* environment variables
// (a .env file is loaded into the environment first).
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/fanjia1024/ragflow/internal/graph"
	"github.com/fanjia1024/ragflow/internal/store"
	"github.com/fanjia1024/ragflow/llm"
	"github.com/fanjia1024/ragflow/llm/tool"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	SearchBackendStore = "store"
	SearchBackendMCP   = "mcp"

	DefaultAddr = ":8123"
)

type Config struct {
	LLM    llm.ModelConfig `yaml:"llm"`
	Run    RunOptions      `yaml:"run"`
	Store  StoreOptions    `yaml:"store"`
	Search SearchOptions   `yaml:"search"`
	Report ReportOptions   `yaml:"report"`
	Server ServerOptions   `yaml:"server"`
	// Prompts is an optional YAML file overriding built-in prompts.
	Prompts string `yaml:"prompts"`
}

type RunOptions struct {
	MaxNodeRevisits   int           `yaml:"max_node_revisits"`
	StepTimeout       time.Duration `yaml:"step_timeout"`
	FanOutConcurrency int           `yaml:"fan_out_concurrency"`
	// StepRetries is the number of retries after a collaborator failure, -1 disables.
	StepRetries int `yaml:"step_retries"`
}

type StoreOptions struct {
	// Dir is indexed at startup when set.
	Dir string `yaml:"dir"`
	// Watch re-indexes files under Dir when they change.
	Watch        bool `yaml:"watch"`
	ChunkSize    int  `yaml:"chunk_size"`
	ChunkOverlap int  `yaml:"chunk_overlap"`
	TopK         int  `yaml:"top_k"`
	Dimensions   int  `yaml:"dimensions"`
}

type SearchOptions struct {
	// Backend is "store" or "mcp".
	Backend string         `yaml:"backend"`
	TopK    int            `yaml:"top_k"`
	MCP     tool.MCPConfig `yaml:"mcp"`
	// Tool is the name of the MCP search tool.
	Tool string `yaml:"tool"`
}

type ReportOptions struct {
	NumberOfQueries int    `yaml:"number_of_queries"`
	Structure       string `yaml:"structure"`
	// FilterWords replaces the default filler phrases removed from reports.
	FilterWords []string `yaml:"filter_words"`
}

type ServerOptions struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LLM: llm.ModelConfig{
			Name:    "default",
			APIType: llm.ModelTypeOpenAI,
			Timeout: 600 * time.Second,
		},
		Run: RunOptions{
			MaxNodeRevisits: graph.DefaultMaxNodeRevisits,
			StepRetries:     graph.DefaultStepRetries,
		},
		Store: StoreOptions{
			ChunkSize:    store.DefaultChunkSize,
			ChunkOverlap: store.DefaultChunkOverlap,
			TopK:         store.DefaultTopK,
			Dimensions:   store.DefaultDimensions,
		},
		Search: SearchOptions{
			Backend: SearchBackendStore,
			TopK:    5,
			Tool:    tool.ToolSearchDocuments,
		},
		Report: ReportOptions{NumberOfQueries: 2},
		Server: ServerOptions{Addr: DefaultAddr},
	}
}

// Load builds the configuration. path may be empty. envFiles default to
// ".env"; a missing env file is not an error.
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "load env file %s", f)
		}
	}

	cfg := Default()
	if path != "" {
		bs, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(bs, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.LLM.APIType = llm.NewModelType(string(cfg.LLM.APIType))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var firstErr error
	getString := func(envVar string, dst *string) {
		if val := os.Getenv(envVar); val != "" {
			*dst = val
		}
	}
	getInt := func(envVar string, dst *int) {
		if val := os.Getenv(envVar); val != "" {
			n, err := strconv.Atoi(val)
			if err != nil && firstErr == nil {
				firstErr = errors.Errorf("%s: %q is not an integer", envVar, val)
			}
			if err == nil {
				*dst = n
			}
		}
	}
	getDuration := func(envVar string, dst *time.Duration) {
		if val := os.Getenv(envVar); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil && firstErr == nil {
				firstErr = errors.Errorf("%s: %q is not a duration", envVar, val)
			}
			if err == nil {
				*dst = d
			}
		}
	}

	apiType := string(c.LLM.APIType)
	getString("RAGFLOW_LLM_TYPE", &apiType)
	c.LLM.APIType = llm.ModelType(apiType)
	getString("RAGFLOW_LLM_BASE_URL", &c.LLM.BaseURL)
	getString("RAGFLOW_LLM_API_KEY", &c.LLM.APIKey)
	getString("RAGFLOW_LLM_MODEL", &c.LLM.ModelName)
	getDuration("RAGFLOW_LLM_TIMEOUT", &c.LLM.Timeout)

	getInt("RAGFLOW_MAX_NODE_REVISITS", &c.Run.MaxNodeRevisits)
	getDuration("RAGFLOW_STEP_TIMEOUT", &c.Run.StepTimeout)
	getInt("RAGFLOW_FAN_OUT_CONCURRENCY", &c.Run.FanOutConcurrency)
	getInt("RAGFLOW_STEP_RETRIES", &c.Run.StepRetries)

	getString("RAGFLOW_DOCS_DIR", &c.Store.Dir)
	getInt("RAGFLOW_TOP_K", &c.Store.TopK)

	getString("RAGFLOW_SEARCH_BACKEND", &c.Search.Backend)
	sseURL := c.Search.MCP.SSEURL
	getString("RAGFLOW_MCP_SSE_URL", &sseURL)
	if sseURL != c.Search.MCP.SSEURL {
		c.Search.MCP.Type = tool.MCPTypeSSE
		c.Search.MCP.SSEURL = sseURL
	}

	getInt("RAGFLOW_NUMBER_OF_QUERIES", &c.Report.NumberOfQueries)
	getString("RAGFLOW_ADDR", &c.Server.Addr)
	getString("RAGFLOW_PROMPTS", &c.Prompts)
	return firstErr
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.LLM.APIType == llm.ModelTypeUnknown:
		return errors.New("llm.type: unknown model provider")
	case c.Run.MaxNodeRevisits < 1:
		return errors.Errorf("run.max_node_revisits must be at least 1, got %d", c.Run.MaxNodeRevisits)
	case c.Run.StepTimeout < 0:
		return errors.New("run.step_timeout must not be negative")
	case c.Run.FanOutConcurrency < 0:
		return errors.New("run.fan_out_concurrency must not be negative")
	case c.Run.StepRetries < -1:
		return errors.New("run.step_retries must be -1 or more")
	case c.Store.ChunkSize <= 0 || c.Store.ChunkOverlap < 0 || c.Store.ChunkOverlap >= c.Store.ChunkSize:
		return errors.Errorf("store: chunk overlap %d must be in [0, chunk size %d)", c.Store.ChunkOverlap, c.Store.ChunkSize)
	case c.Store.TopK < 1:
		return errors.New("store.top_k must be at least 1")
	case c.Report.NumberOfQueries < 1:
		return errors.New("report.number_of_queries must be at least 1")
	case c.Server.Addr == "":
		return errors.New("server.addr is empty")
	}
	switch c.Search.Backend {
	case SearchBackendStore:
	case SearchBackendMCP:
		if c.Search.MCP.Type == "" {
			return errors.New("search.mcp.type is required for the mcp backend")
		}
		if c.Search.Tool == "" {
			return errors.New("search.tool is required for the mcp backend")
		}
	default:
		return errors.Errorf("search.backend: unknown backend %q", c.Search.Backend)
	}
	return nil
}

// RunConfig converts the run options for the executor. StepRetries of 0
// in the file means no retries, unlike graph.RunConfig where 0 is the default.
func (c *Config) RunConfig() graph.RunConfig {
	retries := c.Run.StepRetries
	if retries == 0 {
		retries = -1
	}
	return graph.RunConfig{
		MaxNodeRevisits:   c.Run.MaxNodeRevisits,
		StepTimeout:       c.Run.StepTimeout,
		FanOutConcurrency: c.Run.FanOutConcurrency,
		StepRetries:       retries,
	}
}
