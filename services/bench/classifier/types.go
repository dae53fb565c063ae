// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNotFound is returned when a classifier is not in the registry.
	ErrNotFound = errors.New("classifier not found")

	// ErrAlreadyRegistered is returned when attempting to register a duplicate id.
	ErrAlreadyRegistered = errors.New("classifier already registered")

	// ErrNilAdapter is returned when attempting to register nil.
	ErrNilAdapter = errors.New("adapter must not be nil")

	// ErrInvalidID is returned when a classifier id cannot be used as a column prefix.
	ErrInvalidID = errors.New("invalid classifier id")

	// ErrTimeout is returned when a callback-based classifier does not deliver
	// its result before the configured bound.
	ErrTimeout = errors.New("classifier did not respond before timeout")
)

// ConstructionError reports an adapter that could not be initialized.
// The classifier is skipped for the whole run.
type ConstructionError struct {
	ClassifierID string
	Err          error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("classifier %s: construction failed: %v", e.ClassifierID, e.Err)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}

// InvocationError reports a classifier that failed on a single sample.
type InvocationError struct {
	ClassifierID string
	Index        int
	Err          error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("classifier %s: sample %d: %v", e.ClassifierID, e.Index, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// TimeoutError reports a classifier call that did not resolve in time.
// It is recorded like an InvocationError but reported separately, since it
// usually points at a resource problem rather than a bad sample.
type TimeoutError struct {
	ClassifierID string
	Index        int
	Err          error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("classifier %s: sample %d: timed out: %v", e.ClassifierID, e.Index, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a timeout, either an explicit ErrTimeout
// from Await or an expired context deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// -----------------------------------------------------------------------------
// Verdict
// -----------------------------------------------------------------------------

// Verdict is the closed three-valued outcome of one classification.
//
// The zero value is Indeterminate, so an adapter that forgets to set a verdict
// never reports a false Spam or Valid.
type Verdict int

const (
	// Indeterminate means the classifier returned a signal that is neither
	// clearly spam nor clearly valid.
	Indeterminate Verdict = iota

	// Spam means the classifier flagged the sample.
	Spam

	// Valid means the classifier accepted the sample.
	Valid
)

// String returns the label persisted in the result table.
func (v Verdict) String() string {
	switch v {
	case Spam:
		return "spam"
	case Valid:
		return "valid"
	default:
		return "indeterminate"
	}
}

// ParseVerdict parses a persisted label. The second result is false for
// anything other than "spam", "valid" or "indeterminate".
func ParseVerdict(s string) (Verdict, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spam":
		return Spam, true
	case "valid":
		return Valid, true
	case "indeterminate":
		return Indeterminate, true
	default:
		return Indeterminate, false
	}
}

// FromBool maps a native "is spam" boolean to a Verdict.
func FromBool(isSpam bool) Verdict {
	if isSpam {
		return Spam
	}
	return Valid
}

// -----------------------------------------------------------------------------
// Adapter contract
// -----------------------------------------------------------------------------

// Adapter wraps one external classifier behind a uniform call shape.
//
// Construction may do one-time setup (loading a dictionary, training a model,
// dialing a client). That cost is never part of the per-call timing.
//
// Adapters are invoked from a single goroutine, one sample at a time. They do
// not need to be safe for concurrent use.
type Adapter interface {
	// ID is the stable identifier used as the column-name prefix.
	ID() string

	// Classify returns the verdict for one sample. Errors raised by the
	// wrapped library are returned as-is; they are never turned into
	// Indeterminate.
	Classify(ctx context.Context, text string) (Verdict, error)
}

// Pacer is implemented by adapters that must be rate limited. Pace is called
// before the measurement boundary so waiting is not counted as latency.
type Pacer interface {
	Pace(ctx context.Context) error
}

// Func adapts a plain function to the Adapter interface.
type Func struct {
	Name string
	Fn   func(ctx context.Context, text string) (Verdict, error)
}

// ID implements Adapter.
func (f Func) ID() string { return f.Name }

// Classify implements Adapter.
func (f Func) Classify(ctx context.Context, text string) (Verdict, error) {
	return f.Fn(ctx, text)
}

// Callback delivers the result of a callback-based classifier.
type Callback func(Verdict, error)

// Await adapts a callback-based call into a blocking one.
//
// start is invoked once with a context carrying the deadline and a done
// callback. The first call to done wins; later calls are ignored. If done is
// not called before timeout elapses, Await returns an error wrapping
// ErrTimeout. A zero timeout waits until ctx is done.
func Await(ctx context.Context, timeout time.Duration, start func(ctx context.Context, done Callback)) (Verdict, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		verdict Verdict
		err     error
	}
	ch := make(chan result, 1)
	done := func(v Verdict, err error) {
		select {
		case ch <- result{verdict: v, err: err}:
		default:
		}
	}

	start(ctx, done)

	select {
	case r := <-ch:
		return r.verdict, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Indeterminate, fmt.Errorf("%w (%s)", ErrTimeout, timeout)
		}
		return Indeterminate, ctx.Err()
	}
}
