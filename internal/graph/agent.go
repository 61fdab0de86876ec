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
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fanjia1024/ragflow/llm/log"
)

// FailurePolicy decides what to do when a step, router or fan-out generator fails.
// It only schedules; state is never touched by a failed attempt.
type FailurePolicy interface {
	OnStepFailure(ctx context.Context, node string, err error, attempt int) Decision
}

// Decision is the action to take after a failure.
type Decision string

const (
	DecisionRetry Decision = "retry"
	DecisionAbort Decision = "abort"
)

// DefaultPolicy retries collaborator failures up to MaxRetry times and
// aborts on everything else.
type DefaultPolicy struct {
	MaxRetry int
}

// OnStepFailure implements FailurePolicy.
func (p *DefaultPolicy) OnStepFailure(ctx context.Context, node string, err error, attempt int) Decision {
	if ctx.Err() != nil || !IsCollaboratorError(err) {
		return DecisionAbort
	}
	if attempt > p.MaxRetry {
		return DecisionAbort
	}
	return DecisionRetry
}

// attempt calls fn until it succeeds or the policy aborts, waiting an
// exponentially growing delay between attempts. It returns the number of
// attempts made.
func (r *run) attempt(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) (int, error) {
	if timeout <= 0 {
		timeout = r.cfg.StepTimeout
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.RetryInitialInterval
	bo.MaxInterval = r.cfg.RetryMaxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()

	for n := 1; ; n++ {
		err := callWithTimeout(ctx, name, timeout, fn)
		if err == nil {
			return n, nil
		}
		if r.cfg.Policy.OnStepFailure(ctx, name, err, n) != DecisionRetry {
			return n, err
		}
		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return n, err
		}
		log.Info("[%s] %s attempt %d failed, retrying in %s: %v", r.id, name, n, wait, err)
		r.record(StepRecord{Node: name, Attempt: n, Status: StepRetry, Error: err.Error()})

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return n, ctx.Err()
		case <-timer.C:
		}
	}
}

func callWithTimeout(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := fn(cctx)
	if err != nil && ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return &StepTimeoutError{Node: name, Timeout: timeout}
	}
	return err
}
