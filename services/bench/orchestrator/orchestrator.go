// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator drives classifier passes over a corpus and merges their
// columns into the result table.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/AleutianAI/spambench/services/bench/classifier"
	"github.com/AleutianAI/spambench/services/bench/corpus"
	"github.com/AleutianAI/spambench/services/bench/harness"
	"github.com/AleutianAI/spambench/services/bench/sink"
	"github.com/AleutianAI/spambench/services/bench/telemetry"
)

// ErrNilStore is returned by New when no store is configured.
var ErrNilStore = errors.New("orchestrator requires a store")

// Merger is the column-wise write side of the result table.
type Merger interface {
	Merge(ctx context.Context, column string, values []string) error
	Path() string
}

// ClassifierRun holds one classifier's cells, aligned with TestCase.Index.
// An empty string is a failed sample.
type ClassifierRun struct {
	ClassifierID string
	Results      []string
	Runtimes     []string
}

// Config configures an Orchestrator. Only Store is required.
type Config struct {
	Store       Merger
	Harness     *harness.Harness
	Logger      *slog.Logger
	Instruments *telemetry.Instruments
	Sink        sink.Sink
	RunID       string
	Clock       func() time.Time
}

// Orchestrator runs every registered classifier over the corpus, one after
// another, and persists two columns per classifier.
//
// Description:
//
//	Each adapter processes the whole corpus before the next one starts, and
//	samples are processed in index order. No two adapter calls and no two
//	merges are ever in flight together. A per-sample failure leaves empty
//	cells and the run continues. A merge failure ends the run.
//
// Thread Safety: Not safe for concurrent Run calls.
type Orchestrator struct {
	store       Merger
	harness     *harness.Harness
	logger      *slog.Logger
	instruments *telemetry.Instruments
	sink        sink.Sink
	runID       string
	now         func() time.Time
}

// New creates an Orchestrator, filling unset optional fields with defaults.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, ErrNilStore
	}
	o := &Orchestrator{
		store:       cfg.Store,
		harness:     cfg.Harness,
		logger:      cfg.Logger,
		instruments: cfg.Instruments,
		sink:        cfg.Sink,
		runID:       cfg.RunID,
		now:         cfg.Clock,
	}
	if o.harness == nil {
		o.harness = harness.New()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.instruments == nil {
		o.instruments = telemetry.NopInstruments()
	}
	if o.sink == nil {
		o.sink = sink.Nop{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// Run evaluates every registered classifier over cases.
//
// Inputs:
//   - ctx: Cancelling it stops the run before the next sample.
//   - cases: Decoded corpus in index order.
//   - reg: Classifiers in registration order. Construction failures recorded
//     on reg are reported but never run.
//
// Outputs:
//   - *Report: Always non-nil; on error it covers the classifiers reached.
//   - error: A *table.MergeWriteError or a context error. Per-sample failures
//     are never returned here.
func (o *Orchestrator) Run(ctx context.Context, cases []corpus.TestCase, reg *classifier.Registry) (*Report, error) {
	report := &Report{
		RunID:     o.runID,
		Table:     o.store.Path(),
		StartedAt: o.now(),
		Samples:   len(cases),
	}
	defer func() { report.FinishedAt = o.now() }()

	logger := o.logger.With(slog.String("run_id", o.runID))
	logger.Info("evaluation run starting",
		slog.Int("samples", len(cases)),
		slog.Int("classifiers", reg.Len()),
		slog.String("table", o.store.Path()))

	entries := reg.Entries()
	next := 0
	var runErr error

	for _, id := range reg.Configured() {
		if cerr, failed := reg.Failure(id); failed {
			logger.Error("classifier construction failed, skipping",
				slog.String("classifier", id),
				slog.String("error", cerr.Err.Error()))
			report.Classifiers = append(report.Classifiers, ClassifierStatus{
				ID:     id,
				Status: StatusConstructionFailed,
				Error:  cerr.Err.Error(),
			})
			continue
		}

		entry := entries[next]
		next++

		if runErr != nil {
			report.Classifiers = append(report.Classifiers, ClassifierStatus{ID: id, Status: StatusAborted})
			continue
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			report.Classifiers = append(report.Classifiers, ClassifierStatus{ID: id, Status: StatusAborted})
			continue
		}

		status, err := o.runClassifier(ctx, logger, entry, cases)
		report.Classifiers = append(report.Classifiers, status)
		if err != nil {
			runErr = err
		}
	}

	if runErr != nil {
		logger.Error("evaluation run aborted", slog.String("error", runErr.Error()))
		return report, runErr
	}
	logger.Info("evaluation run complete",
		slog.Int("classifiers", len(report.Classifiers)),
		slog.Bool("partial", report.Partial()))
	return report, nil
}

func (o *Orchestrator) runClassifier(ctx context.Context, logger *slog.Logger, entry classifier.Entry, cases []corpus.TestCase) (ClassifierStatus, error) {
	id := entry.ID()
	started := o.now()

	run, status, err := o.Pass(ctx, entry.Adapter, cases)
	status.Elapsed = o.now().Sub(started)
	if err != nil {
		status.Status = StatusAborted
		return status, err
	}

	if err := o.merge(ctx, entry.Columns.Output, run.Results); err != nil {
		status.Status = StatusAborted
		return status, err
	}
	if err := o.merge(ctx, entry.Columns.Runtime, run.Runtimes); err != nil {
		status.Status = StatusAborted
		return status, err
	}

	logger.Info("classifier pass complete",
		slog.String("classifier", id),
		slog.String("status", string(status.Status)),
		slog.Int("spam", status.Spam),
		slog.Int("valid", status.Valid),
		slog.Int("indeterminate", status.Indeterminate),
		slog.Int("failures", status.Failures),
		slog.Int("timeouts", status.Timeouts),
		slog.Duration("elapsed", status.Elapsed))
	return status, nil
}

// Pass runs one adapter over every case without touching the table.
//
// Outputs:
//   - ClassifierRun: Cells indexed by TestCase.Index.
//   - ClassifierStatus: Verdict and failure counts.
//   - error: Only a context error; per-sample failures are counted.
func (o *Orchestrator) Pass(ctx context.Context, a classifier.Adapter, cases []corpus.TestCase) (ClassifierRun, ClassifierStatus, error) {
	id := a.ID()
	size := 0
	for _, tc := range cases {
		if tc.Index+1 > size {
			size = tc.Index + 1
		}
	}
	run := ClassifierRun{
		ClassifierID: id,
		Results:      make([]string, size),
		Runtimes:     make([]string, size),
	}
	status := ClassifierStatus{ID: id, Status: StatusOK, Samples: len(cases)}

	ctx, span := o.instruments.StartPass(ctx, id, len(cases))
	var passErr error
	defer func() { telemetry.EndSpan(span, passErr) }()

	for _, tc := range cases {
		if err := ctx.Err(); err != nil {
			passErr = err
			return run, status, err
		}

		m, err := o.harness.Measure(ctx, a, tc)
		sample := sink.Sample{RunID: o.runID, ClassifierID: id, Index: tc.Index, Timestamp: o.now()}

		if err != nil {
			if ctx.Err() != nil {
				passErr = ctx.Err()
				return run, status, passErr
			}
			o.recordFailure(ctx, &status, err)
			sample.Failed = true
		} else {
			status.count(m.Verdict)
			run.Results[tc.Index] = m.Verdict.String()
			run.Runtimes[tc.Index] = strconv.FormatInt(m.Nanos(), 10)
			o.instruments.RecordVerdict(ctx, id, m.Verdict.String(), m.Runtime)
			sample.Verdict = m.Verdict.String()
			sample.Runtime = m.Runtime
		}

		if err := o.sink.Write(ctx, sample); err != nil {
			o.logger.Warn("sink write failed", slog.String("classifier", id), slog.String("error", err.Error()))
		}
	}

	if err := o.sink.Flush(ctx); err != nil {
		o.logger.Warn("sink flush failed", slog.String("classifier", id), slog.String("error", err.Error()))
	}
	if status.Failures+status.Timeouts > 0 {
		status.Status = StatusPartial
	}
	return run, status, nil
}

func (o *Orchestrator) recordFailure(ctx context.Context, status *ClassifierStatus, err error) {
	var te *classifier.TimeoutError
	if errors.As(err, &te) {
		status.Timeouts++
		o.instruments.RecordFailure(ctx, status.ID, telemetry.FailureTimeout)
		o.logger.Error("classifier timed out",
			slog.String("classifier", te.ClassifierID),
			slog.Int("test_case", te.Index),
			slog.Duration("timeout", o.harness.Timeout()),
			slog.String("error", te.Err.Error()))
		return
	}

	status.Failures++
	o.instruments.RecordFailure(ctx, status.ID, telemetry.FailureInvocation)
	attrs := []any{slog.String("classifier", status.ID), slog.String("error", err.Error())}
	var inv *classifier.InvocationError
	if errors.As(err, &inv) {
		attrs = append(attrs, slog.Int("test_case", inv.Index))
	}
	o.logger.Warn("classifier invocation failed", attrs...)
}

func (o *Orchestrator) merge(ctx context.Context, column string, values []string) (err error) {
	ctx, span := o.instruments.StartMerge(ctx, column)
	defer func() { telemetry.EndSpan(span, err) }()

	if err = o.store.Merge(ctx, column, values); err != nil {
		return fmt.Errorf("persist %s: %w", column, err)
	}
	o.instruments.RecordMerge(ctx, column)
	return nil
}
