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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")

	cfg := DefaultConfig()
	assert.Equal(t, "spambench", cfg.ServiceName)
	assert.Equal(t, "none", cfg.TraceExporter)
	assert.Equal(t, "prometheus", cfg.MetricExporter)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
}

func TestDefaultConfig_EnvOverride(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")

	assert.Equal(t, "stdout", DefaultConfig().TraceExporter)
}

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	_, err := Init(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_NoExporters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "none"

	p, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, p.Registry())
	assert.ErrorIs(t, p.WriteTextfile(filepath.Join(t.TempDir(), "m.prom")), ErrNoRegistry)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_UnknownExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "zipkin"

	_, err := Init(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)

	cfg.TraceExporter = "none"
	cfg.MetricExporter = "graphite"
	_, err = Init(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInit_StdoutTraces(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "stdout"
	cfg.MetricExporter = "none"

	p, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	in, err := NewInstrumentsFromProvider(p)
	require.NoError(t, err)
	_, span := in.StartPass(context.Background(), "wordlist", 3)
	assert.True(t, span.SpanContext().IsValid())
	EndSpan(span, errors.New("failed"))
}

func TestWriteTextfile_ContainsHarnessMetrics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "prometheus"

	p, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	in, err := NewInstrumentsFromProvider(p)
	require.NoError(t, err)

	ctx := context.Background()
	in.RecordVerdict(ctx, "bayes", "spam", 3*time.Millisecond)
	in.RecordFailure(ctx, "bayes", FailureTimeout)
	in.RecordMerge(ctx, "bayes_output")

	path := filepath.Join(t.TempDir(), "spambench.prom")
	require.NoError(t, p.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "spambench_verdicts_total")
	assert.Contains(t, text, "spambench_failures_total")
	assert.Contains(t, text, "spambench_merges_total")
	assert.Contains(t, text, "spambench_classify_duration_seconds")
	assert.Contains(t, text, `kind="timeout"`)
}

func TestNopInstruments(t *testing.T) {
	in := NopInstruments()
	ctx, span := in.StartMerge(context.Background(), "x_output")
	in.RecordVerdict(ctx, "x", "valid", time.Microsecond)
	in.RecordFailure(ctx, "x", FailureInvocation)
	in.RecordMerge(ctx, "x_output")
	EndSpan(span, nil)
}
