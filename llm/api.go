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
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type ModelConfig struct {
	Name        string    `json:"name" yaml:"name"` // alias of the config, not endpoint!
	APIType     ModelType `json:"type" yaml:"type"`
	BaseURL     string    `json:"base_url" yaml:"base_url"`
	APIKey      string    `json:"api_key" yaml:"api_key"`
	ModelName   string    `json:"model_name" yaml:"model_name"` // the endpoint of the model, like `qwen-max`
	Temperature *float32  `json:"temperature" yaml:"temperature"`
	MaxTokens   int       `json:"max_tokens" yaml:"max_tokens"`
	// Timeout bounds one model call, default: 600s
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// String describes the model without its credentials.
func (m ModelConfig) String() string {
	key := "unset"
	if m.APIKey != "" {
		key = "set"
	}
	return fmt.Sprintf("%s/%s (base_url=%q, api_key=%s, timeout=%s)", m.APIType, m.ModelName, m.BaseURL, key, m.Timeout)
}

type ModelType string

func NewModelType(t string) ModelType {
	switch strings.ToLower(t) {
	case "ollama":
		return ModelTypeOllama
	case "ark", "doubao":
		return ModelTypeARK
	case "openai", "gpt":
		return ModelTypeOpenAI
	case "claude", "anthropic":
		return ModelTypeClaude
	case "dashscope", "qwen", "tongyi":
		return ModelTypeDashScope
	case "deepseek":
		return ModelTypeDeepSeek
	}
	return ModelTypeUnknown
}

const (
	ModelTypeUnknown   ModelType = ""
	ModelTypeOllama    ModelType = "ollama"
	ModelTypeARK       ModelType = "ark"
	ModelTypeOpenAI    ModelType = "openai"
	ModelTypeClaude    ModelType = "claude"
	ModelTypeDashScope ModelType = "dashscope" // 阿里云 DashScope (通义千问)
	ModelTypeDeepSeek  ModelType = "deepseek"
)

// ChatModel is the interface for making LLM backend.
type ChatModel interface {
	model.ToolCallingChatModel
}

// Invoker is what workflow steps depend on to talk to a model.
type Invoker interface {
	// Invoke returns the text content of the model's reply.
	Invoke(ctx context.Context, msgs []*schema.Message) (string, error)
	// InvokeStructured decodes the reply into out, which must be a pointer to a struct.
	InvokeStructured(ctx context.Context, msgs []*schema.Message, out any) error
}
