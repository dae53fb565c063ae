// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Failure kinds recorded on the failures counter.
const (
	FailureInvocation = "invocation"
	FailureTimeout    = "timeout"
)

// Attribute keys.
const (
	attrClassifier = "classifier"
	attrVerdict    = "verdict"
	attrKind       = "kind"
	attrColumn     = "column"
)

// Instruments are the metrics and spans emitted by a run.
//
// Description:
//
//	All metrics use the "spambench." prefix. Latency is recorded in seconds
//	so the prometheus exporter names it spambench_classify_duration_seconds.
//
// Thread Safety: Safe for concurrent use after creation.
type Instruments struct {
	tracer trace.Tracer

	// ClassifyDuration records per-sample classify latency in seconds.
	ClassifyDuration metric.Float64Histogram

	// Verdicts counts successful classifications by classifier and verdict.
	Verdicts metric.Int64Counter

	// Failures counts failed classifications by classifier and kind.
	Failures metric.Int64Counter

	// Merges counts completed column merges.
	Merges metric.Int64Counter
}

// NewInstruments registers the harness instruments on meter.
//
// Inputs:
//   - meter: Meter for metric registration.
//   - tracer: Tracer for pass and merge spans.
//
// Outputs:
//   - *Instruments: Ready to use.
//   - error: Non-nil if any instrument could not be created.
func NewInstruments(meter metric.Meter, tracer trace.Tracer) (*Instruments, error) {
	var err error
	in := &Instruments{tracer: tracer}

	in.ClassifyDuration, err = meter.Float64Histogram(
		"spambench.classify.duration",
		metric.WithDescription("Wall-clock latency of one classify call"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create classify duration histogram: %w", err)
	}

	in.Verdicts, err = meter.Int64Counter(
		"spambench.verdicts",
		metric.WithDescription("Classifications by verdict"),
	)
	if err != nil {
		return nil, fmt.Errorf("create verdicts counter: %w", err)
	}

	in.Failures, err = meter.Int64Counter(
		"spambench.failures",
		metric.WithDescription("Failed classifications by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("create failures counter: %w", err)
	}

	in.Merges, err = meter.Int64Counter(
		"spambench.merges",
		metric.WithDescription("Column merges written to the result table"),
	)
	if err != nil {
		return nil, fmt.Errorf("create merges counter: %w", err)
	}

	return in, nil
}

// NewInstrumentsFromProvider is shorthand for NewInstruments(p.Meter(), p.Tracer()).
func NewInstrumentsFromProvider(p *Provider) (*Instruments, error) {
	return NewInstruments(p.Meter(), p.Tracer())
}

// NopInstruments returns instruments backed by no-op providers.
func NopInstruments() *Instruments {
	in, err := NewInstruments(metricnoop.NewMeterProvider().Meter(InstrumentationName), tracenoop.NewTracerProvider().Tracer(InstrumentationName))
	if err != nil {
		panic(fmt.Sprintf("telemetry: no-op instruments: %v", err))
	}
	return in
}

// RecordVerdict records one successful classification.
func (in *Instruments) RecordVerdict(ctx context.Context, classifierID, verdict string, runtime time.Duration) {
	in.ClassifyDuration.Record(ctx, runtime.Seconds(),
		metric.WithAttributes(attribute.String(attrClassifier, classifierID)))
	in.Verdicts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(attrClassifier, classifierID),
			attribute.String(attrVerdict, verdict),
		))
}

// RecordFailure records one failed classification of the given kind.
func (in *Instruments) RecordFailure(ctx context.Context, classifierID, kind string) {
	in.Failures.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(attrClassifier, classifierID),
			attribute.String(attrKind, kind),
		))
}

// RecordMerge records one completed merge.
func (in *Instruments) RecordMerge(ctx context.Context, column string) {
	in.Merges.Add(ctx, 1, metric.WithAttributes(attribute.String(attrColumn, column)))
}

// StartPass starts the span covering one classifier's pass over the corpus.
func (in *Instruments) StartPass(ctx context.Context, classifierID string, samples int) (context.Context, trace.Span) {
	return in.tracer.Start(ctx, "classifier.pass",
		trace.WithAttributes(
			attribute.String(attrClassifier, classifierID),
			attribute.Int("samples", samples),
		))
}

// StartMerge starts the span covering one column merge.
func (in *Instruments) StartMerge(ctx context.Context, column string) (context.Context, trace.Span) {
	return in.tracer.Start(ctx, "table.merge",
		trace.WithAttributes(attribute.String(attrColumn, column)))
}

// EndSpan ends span, marking it failed when err is non-nil.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
