// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package harness times individual classifier invocations.
package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/AleutianAI/spambench/services/bench/classifier"
	"github.com/AleutianAI/spambench/services/bench/corpus"
)

// Measurement is the outcome of one timed call.
type Measurement struct {
	Verdict classifier.Verdict
	Runtime time.Duration
}

// Nanos returns the runtime as the integer nanoseconds stored in the table.
func (m Measurement) Nanos() int64 {
	return m.Runtime.Nanoseconds()
}

// Option configures a Harness.
type Option func(*Harness)

// WithTimeout bounds every Classify call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(h *Harness) { h.timeout = d }
}

// WithClock replaces the monotonic clock. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(h *Harness) { h.now = now }
}

// Harness measures the wall-clock latency of single Classify calls.
//
// Description:
//
//	The measurement boundary starts immediately before Classify and stops
//	immediately after it returns. Pacing for rate-limited adapters and the
//	per-call deadline setup both happen outside that boundary. Failed calls
//	produce no runtime.
//
// Thread Safety: Safe for concurrent use; holds no mutable state.
type Harness struct {
	timeout time.Duration
	now     func() time.Time
}

// New creates a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Timeout returns the per-call bound, zero if unbounded.
func (h *Harness) Timeout() time.Duration {
	return h.timeout
}

// Measure invokes a on one test case and times it.
//
// Inputs:
//   - ctx: Parent context. Cancelling it aborts the call.
//   - a: The adapter to invoke.
//   - tc: The test case; its Index is carried into any error.
//
// Outputs:
//   - Measurement: Verdict and runtime. Zero on error.
//   - error: *classifier.TimeoutError when the call exceeded its bound,
//     *classifier.InvocationError for every other failure, including panics
//     raised by the wrapped library.
func (h *Harness) Measure(ctx context.Context, a classifier.Adapter, tc corpus.TestCase) (Measurement, error) {
	if p, ok := a.(classifier.Pacer); ok {
		if err := p.Pace(ctx); err != nil {
			return Measurement{}, &classifier.InvocationError{ClassifierID: a.ID(), Index: tc.Index, Err: fmt.Errorf("pacing: %w", err)}
		}
	}

	callCtx := ctx
	if h.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	start := h.now()
	verdict, err := safeClassify(callCtx, a, tc.Text)
	elapsed := h.now().Sub(start)

	if err != nil {
		if classifier.IsTimeout(err) && ctx.Err() == nil {
			return Measurement{}, &classifier.TimeoutError{ClassifierID: a.ID(), Index: tc.Index, Err: err}
		}
		return Measurement{}, &classifier.InvocationError{ClassifierID: a.ID(), Index: tc.Index, Err: err}
	}
	return Measurement{Verdict: verdict, Runtime: elapsed}, nil
}

// Measure times a single call with the default, unbounded harness.
func Measure(ctx context.Context, a classifier.Adapter, tc corpus.TestCase) (Measurement, error) {
	return New().Measure(ctx, a, tc)
}

func safeClassify(ctx context.Context, a classifier.Adapter, text string) (v classifier.Verdict, err error) {
	defer func() {
		if p := recover(); p != nil {
			v = classifier.Indeterminate
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return a.Classify(ctx, text)
}
