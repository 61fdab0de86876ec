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

package graph

import (
	"sync"
	"time"
)

const (
	DefaultMaxNodeRevisits      = 5
	DefaultStepRetries          = 2
	DefaultRetryInitialInterval = 500 * time.Millisecond
	DefaultRetryMaxInterval     = 10 * time.Second
)

// RunConfig holds the per-run knobs. Zero fields take the defaults above.
type RunConfig struct {
	// MaxNodeRevisits is how many times one node may be visited per run.
	MaxNodeRevisits int
	// StepTimeout bounds a single attempt of a step, router or generator. 0 disables it.
	StepTimeout time.Duration
	// FanOutConcurrency caps concurrent sub-runs per fan-out. 0 means unlimited.
	FanOutConcurrency int
	// StepRetries is the number of retries after a collaborator failure. Negative disables retries.
	StepRetries          int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	// Policy overrides the default failure policy built from StepRetries.
	Policy FailurePolicy

	// OnStep receives every history record, sub-runs included.
	// Calls are serialized.
	OnStep func(StepRecord)
}

func (c RunConfig) withDefaults() RunConfig {
	if c.MaxNodeRevisits <= 0 {
		c.MaxNodeRevisits = DefaultMaxNodeRevisits
	}
	if c.StepRetries == 0 {
		c.StepRetries = DefaultStepRetries
	}
	if c.StepRetries < 0 {
		c.StepRetries = 0
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = DefaultRetryInitialInterval
	}
	if c.RetryMaxInterval <= 0 {
		c.RetryMaxInterval = DefaultRetryMaxInterval
	}
	if c.Policy == nil {
		c.Policy = &DefaultPolicy{MaxRetry: c.StepRetries}
	}
	if c.OnStep != nil {
		var mu sync.Mutex
		hook := c.OnStep
		c.OnStep = func(r StepRecord) {
			mu.Lock()
			defer mu.Unlock()
			hook(r)
		}
	}
	return c
}
