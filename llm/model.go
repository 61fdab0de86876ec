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
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	"github.com/pkg/errors"
)

const (
	DefaultMaxTokens = 16 * 1024
	DefaultTimeout   = 600 * time.Second
)

// defaultBaseURLs are used when base_url is empty.
var defaultBaseURLs = map[ModelType]string{
	ModelTypeDashScope: "https://dashscope.aliyuncs.com/compatible-mode/v1",
	ModelTypeDeepSeek:  "https://api.deepseek.com",
}

type chatModelFactory func(ctx context.Context, m ModelConfig) (ChatModel, error)

var factories = map[ModelType]chatModelFactory{
	ModelTypeARK:       newArkModel,
	ModelTypeOpenAI:    newOpenAIModel,
	ModelTypeDeepSeek:  newOpenAIModel,
	ModelTypeDashScope: newQwenModel,
	ModelTypeOllama:    newOllamaModel,
	ModelTypeClaude:    newClaudeModel,
}

// Validate reports settings the provider cannot work without.
func (m ModelConfig) Validate() error {
	if _, ok := factories[m.APIType]; !ok {
		return errors.Errorf("unsupported model type %q", m.APIType)
	}
	if m.ModelName == "" {
		return errors.New("model_name is required")
	}
	if m.APIKey == "" && m.APIType != ModelTypeOllama {
		return errors.Errorf("api_key is required for %s", m.APIType)
	}
	return nil
}

func (m ModelConfig) withDefaults() ModelConfig {
	if m.MaxTokens == 0 {
		m.MaxTokens = DefaultMaxTokens
	}
	if m.Timeout == 0 {
		m.Timeout = DefaultTimeout
	}
	if m.BaseURL == "" {
		m.BaseURL = defaultBaseURLs[m.APIType]
	}
	return m
}

// NewChatModel creates the provider client described by m.
func NewChatModel(ctx context.Context, m ModelConfig) (ChatModel, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	m = m.withDefaults()
	cm, err := factories[m.APIType](ctx, m)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s chat model %q", m.APIType, m.ModelName)
	}
	return cm, nil
}

func newArkModel(ctx context.Context, m ModelConfig) (ChatModel, error) {
	cm, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     m.BaseURL,
		APIKey:      m.APIKey,
		Model:       m.ModelName,
		Temperature: m.Temperature,
		MaxTokens:   &m.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return cm, nil
}

// newOpenAIModel also serves DeepSeek, which speaks the OpenAI protocol.
func newOpenAIModel(ctx context.Context, m ModelConfig) (ChatModel, error) {
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:     m.BaseURL,
		APIKey:      m.APIKey,
		Model:       m.ModelName,
		Temperature: m.Temperature,
		MaxTokens:   &m.MaxTokens,
		Timeout:     m.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return cm, nil
}

func newQwenModel(ctx context.Context, m ModelConfig) (ChatModel, error) {
	cm, err := qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
		BaseURL:     m.BaseURL,
		APIKey:      m.APIKey,
		Model:       m.ModelName,
		Temperature: m.Temperature,
		MaxTokens:   &m.MaxTokens,
		Timeout:     m.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return cm, nil
}

func newOllamaModel(ctx context.Context, m ModelConfig) (ChatModel, error) {
	cm, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
		BaseURL: m.BaseURL,
		Model:   m.ModelName,
		Timeout: m.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return cm, nil
}

func newClaudeModel(ctx context.Context, m ModelConfig) (ChatModel, error) {
	var baseURL *string
	if m.BaseURL != "" {
		baseURL = &m.BaseURL
	}
	cm, err := claude.NewChatModel(ctx, &claude.Config{
		BaseURL:     baseURL,
		APIKey:      m.APIKey,
		Model:       m.ModelName,
		Temperature: m.Temperature,
		MaxTokens:   m.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return cm, nil
}
