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
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/fanjia1024/ragflow/llm/log"
	"github.com/pkg/errors"
)

var _ Invoker = (*Client)(nil)

// LLMError reports a failed model call or an unusable reply.
// It satisfies graph.CollaboratorError, so the executor retries it.
type LLMError struct {
	Model string
	Op    string // "invoke" or "structured"
	Err   error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm %s (%s): %v", e.Op, e.Model, e.Err)
}

func (e *LLMError) Unwrap() error { return e.Err }

// Collaborator implements graph.CollaboratorError.
func (e *LLMError) Collaborator() string { return "llm" }

// Client runs chat models through a compiled eino chain so every call goes
// through the logging callbacks.
type Client struct {
	name     string
	timeout  time.Duration
	runnable compose.Runnable[[]*schema.Message, *schema.Message]
}

type ClientOptions struct {
	// Name identifies the model in errors and logs.
	Name string
	// Timeout bounds one call, 0 means no limit beyond the caller's context.
	Timeout time.Duration
}

// NewClient compiles cm into a single-node chain.
func NewClient(ctx context.Context, cm model.BaseChatModel, opts ClientOptions) (*Client, error) {
	chain := compose.NewChain[[]*schema.Message, *schema.Message]()
	chain.AppendChatModel(cm)
	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "compile chat chain")
	}
	return &Client{name: opts.Name, timeout: opts.Timeout, runnable: runnable}, nil
}

// Invoke implements Invoker.
func (c *Client) Invoke(ctx context.Context, msgs []*schema.Message) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	out, err := c.runnable.Invoke(ctx, msgs, compose.WithCallbacks(CallbackHandler{}))
	if err != nil {
		return "", &LLMError{Model: c.name, Op: "invoke", Err: errors.Wrap(err, "generate")}
	}
	if out == nil {
		return "", &LLMError{Model: c.name, Op: "invoke", Err: errors.New("empty reply")}
	}
	log.Debug("[%s] reply: %d chars", c.name, len(out.Content))
	return out.Content, nil
}

// InvokeStructured implements Invoker. The JSON schema of out is prepended
// as a system instruction and the reply is decoded with JSON repair.
func (c *Client) InvokeStructured(ctx context.Context, msgs []*schema.Message, out any) error {
	instruction, err := StructuredInstruction(out)
	if err != nil {
		return err
	}
	full := make([]*schema.Message, 0, len(msgs)+1)
	full = append(full, msgs...)
	full = append(full, schema.SystemMessage(instruction))

	text, err := c.Invoke(ctx, full)
	if err != nil {
		return err
	}
	if err := ParseStructured(text, out); err != nil {
		return &LLMError{Model: c.name, Op: "structured", Err: err}
	}
	return nil
}
