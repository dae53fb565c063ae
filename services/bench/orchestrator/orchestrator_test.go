// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/AleutianAI/spambench/services/bench/classifier"
	"github.com/AleutianAI/spambench/services/bench/corpus"
	"github.com/AleutianAI/spambench/services/bench/harness"
	"github.com/AleutianAI/spambench/services/bench/sink"
	"github.com/AleutianAI/spambench/services/bench/table"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func digitStub() classifier.Adapter {
	return classifier.Func{Name: "digits", Fn: func(_ context.Context, text string) (classifier.Verdict, error) {
		return classifier.FromBool(strings.IndexFunc(text, unicode.IsDigit) >= 0), nil
	}}
}

func poisonStub() classifier.Adapter {
	return classifier.Func{Name: "poisoned", Fn: func(_ context.Context, text string) (classifier.Verdict, error) {
		if text == "POISON" {
			return classifier.Indeterminate, errors.New("cannot handle this input")
		}
		return classifier.Valid, nil
	}}
}

func allSpam() classifier.Adapter {
	return classifier.Func{Name: "paranoid", Fn: func(context.Context, string) (classifier.Verdict, error) {
		return classifier.Spam, nil
	}}
}

func casesOf(texts ...string) []corpus.TestCase {
	c, err := corpus.Decode(strings.NewReader(corpus.Encode(texts)))
	if err != nil {
		panic(err)
	}
	return c.Cases
}

func newStore(t *testing.T, cases []corpus.TestCase) *table.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.csv")
	return table.NewStore(path, table.WithBaseTable(table.NewBaseTable(cases, nil)), table.WithLogger(quietLogger()))
}

func newOrchestrator(t *testing.T, store Merger, opts ...func(*Config)) *Orchestrator {
	t.Helper()
	cfg := Config{Store: store, Logger: quietLogger(), RunID: "test-run"}
	for _, opt := range opts {
		opt(&cfg)
	}
	o, err := New(cfg)
	require.NoError(t, err)
	return o
}

func load(t *testing.T, s *table.Store) *table.Table {
	t.Helper()
	tbl, err := s.Load(context.Background())
	require.NoError(t, err)
	return tbl
}

// failingStore fails every merge.
type failingStore struct {
	merges int
}

func (f *failingStore) Merge(context.Context, string, []string) error {
	f.merges++
	return &table.MergeWriteError{Path: "/ro/results.csv", Column: "x", Err: errors.New("read-only file system")}
}

func (f *failingStore) Path() string { return "/ro/results.csv" }

// recordingSink captures samples.
type recordingSink struct {
	samples []sink.Sample
	flushes int
}

func (r *recordingSink) Write(_ context.Context, s sink.Sample) error {
	r.samples = append(r.samples, s)
	return nil
}

func (r *recordingSink) Flush(context.Context) error {
	r.flushes++
	return errors.New("influx unavailable")
}

func (r *recordingSink) Close() error { return nil }

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNilStore)
}

func TestRun_EndToEndDigitStub(t *testing.T) {
	cases := casesOf("hello world", "free v1agra now!!!", "")
	store := newStore(t, cases)
	reg := classifier.NewRegistry()
	reg.MustRegister(digitStub())

	report, err := newOrchestrator(t, store).Run(context.Background(), cases, reg)
	require.NoError(t, err)

	tbl := load(t, store)
	assert.Equal(t, []string{"0", "1", "2"}, tbl.Column(table.ColumnTestCase))
	assert.Equal(t, []string{"valid", "spam", "valid"}, tbl.Column("digits_output"))
	for _, ns := range tbl.Column("digits_runtime") {
		assert.NotEmpty(t, ns)
	}

	st, ok := report.Status("digits")
	require.True(t, ok)
	assert.Equal(t, StatusOK, st.Status)
	assert.Equal(t, 1, st.Spam)
	assert.Equal(t, 2, st.Valid)
	assert.False(t, report.Partial())
	assert.Equal(t, "test-run", report.RunID)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}

func TestRun_FailureIsolation(t *testing.T) {
	cases := casesOf("safe text", "POISON", "other text")
	store := newStore(t, cases)
	reg := classifier.NewRegistry()
	reg.MustRegister(poisonStub())
	reg.MustRegister(allSpam())

	report, err := newOrchestrator(t, store).Run(context.Background(), cases, reg)
	require.NoError(t, err)

	tbl := load(t, store)
	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, []string{"valid", "", "valid"}, tbl.Column("poisoned_output"))
	runtimes := tbl.Column("poisoned_runtime")
	assert.NotEmpty(t, runtimes[0])
	assert.Empty(t, runtimes[1])
	assert.NotEmpty(t, runtimes[2])

	assert.Equal(t, []string{"spam", "spam", "spam"}, tbl.Column("paranoid_output"))
	for _, ns := range tbl.Column("paranoid_runtime") {
		assert.NotEmpty(t, ns)
	}

	st, _ := report.Status("poisoned")
	assert.Equal(t, StatusPartial, st.Status)
	assert.Equal(t, 1, st.Failures)
	other, _ := report.Status("paranoid")
	assert.Equal(t, StatusOK, other.Status)
}

func TestRun_ColumnsInRegistrationOrder(t *testing.T) {
	cases := casesOf("a", "b1", "c", "d")
	store := newStore(t, cases)
	reg := classifier.NewRegistry()
	reg.MustRegister(allSpam())
	reg.MustRegister(digitStub())
	reg.MustRegister(poisonStub())

	_, err := newOrchestrator(t, store).Run(context.Background(), cases, reg)
	require.NoError(t, err)

	tbl := load(t, store)
	header, err := tbl.Header(table.HeaderUnion)
	require.NoError(t, err)
	want := []string{
		"testCase", "length", "expected",
		"paranoid_output", "paranoid_runtime",
		"digits_output", "digits_runtime",
		"poisoned_output", "poisoned_runtime",
	}
	if diff := cmp.Diff(want, header); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 4, tbl.Len())
}

func TestRun_OutputColumnsAreDeterministic(t *testing.T) {
	cases := casesOf("one", "2", "three 3", "", "five")
	store := newStore(t, cases)
	newReg := func() *classifier.Registry {
		reg := classifier.NewRegistry()
		reg.MustRegister(digitStub())
		reg.MustRegister(poisonStub())
		return reg
	}

	_, err := newOrchestrator(t, store).Run(context.Background(), cases, newReg())
	require.NoError(t, err)
	first := load(t, store)

	_, err = newOrchestrator(t, store).Run(context.Background(), cases, newReg())
	require.NoError(t, err)
	second := load(t, store)

	for _, col := range []string{"digits_output", "poisoned_output"} {
		if diff := cmp.Diff(first.Column(col), second.Column(col)); diff != "" {
			t.Errorf("%s changed between runs (-first +second):\n%s", col, diff)
		}
	}
	header, _ := second.Header(table.HeaderUnion)
	assert.Len(t, header, 3+4, "re-run overwrites columns in place")
}

func TestRun_ConstructionFailureIsReported(t *testing.T) {
	cases := casesOf("x", "y")
	store := newStore(t, cases)
	reg := classifier.NewRegistry()
	reg.MustRegister(allSpam())
	_ = reg.Build("missing-dict", func() (classifier.Adapter, error) {
		return nil, errors.New("open words.txt: no such file")
	})
	reg.MustRegister(digitStub())

	report, err := newOrchestrator(t, store).Run(context.Background(), cases, reg)
	require.NoError(t, err)

	ids := make([]string, len(report.Classifiers))
	for i, c := range report.Classifiers {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"paranoid", "missing-dict", "digits"}, ids)
	assert.Equal(t, []string{"missing-dict"}, report.ConstructionFailures())
	assert.True(t, report.Partial())

	st, _ := report.Status("missing-dict")
	assert.Contains(t, st.Error, "words.txt")

	header, _ := load(t, store).Header(table.HeaderUnion)
	assert.NotContains(t, header, "missing-dict_output")
	assert.Contains(t, header, "digits_output")
}

func TestRun_TimeoutIsRecordedAndLoggedDistinctly(t *testing.T) {
	cases := casesOf("fast", "hang", "fast")
	store := newStore(t, cases)
	reg := classifier.NewRegistry()
	reg.MustRegister(classifier.Func{Name: "spamd", Fn: func(ctx context.Context, text string) (classifier.Verdict, error) {
		if text == "hang" {
			<-ctx.Done()
			return classifier.Indeterminate, ctx.Err()
		}
		return classifier.Valid, nil
	}})

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	o := newOrchestrator(t, store, func(c *Config) {
		c.Logger = logger
		c.Harness = harness.New(harness.WithTimeout(20 * time.Millisecond))
	})

	report, err := o.Run(context.Background(), cases, reg)
	require.NoError(t, err)

	assert.Equal(t, []string{"valid", "", "valid"}, load(t, store).Column("spamd_output"))
	st, _ := report.Status("spamd")
	assert.Equal(t, 1, st.Timeouts)
	assert.Equal(t, 0, st.Failures)
	assert.Contains(t, logs.String(), "classifier timed out")
	assert.Contains(t, logs.String(), "level=ERROR")
}

func TestRun_IndeterminateIsExplicitLabel(t *testing.T) {
	cases := casesOf("a")
	store := newStore(t, cases)
	reg := classifier.NewRegistry()
	reg.MustRegister(classifier.Func{Name: "unsure", Fn: func(context.Context, string) (classifier.Verdict, error) {
		return classifier.Indeterminate, nil
	}})

	report, err := newOrchestrator(t, store).Run(context.Background(), cases, reg)
	require.NoError(t, err)

	tbl := load(t, store)
	assert.Equal(t, []string{"indeterminate"}, tbl.Column("unsure_output"))
	assert.NotEmpty(t, tbl.Column("unsure_runtime")[0])
	st, _ := report.Status("unsure")
	assert.Equal(t, StatusOK, st.Status)
	assert.Equal(t, 1, st.Indeterminate)
}

func TestRun_MergeFailureIsFatal(t *testing.T) {
	cases := casesOf("a", "b")
	store := &failingStore{}
	reg := classifier.NewRegistry()
	reg.MustRegister(allSpam())
	reg.MustRegister(digitStub())

	report, err := newOrchestrator(t, store).Run(context.Background(), cases, reg)
	var mwe *table.MergeWriteError
	require.ErrorAs(t, err, &mwe)
	assert.Equal(t, 1, store.merges, "no further merges after a failure")

	require.Len(t, report.Classifiers, 2)
	assert.Equal(t, StatusAborted, report.Classifiers[0].Status)
	assert.Equal(t, StatusAborted, report.Classifiers[1].Status)
}

func TestRun_CancelledContext(t *testing.T) {
	cases := casesOf("a")
	store := newStore(t, cases)
	reg := classifier.NewRegistry()
	reg.MustRegister(allSpam())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newOrchestrator(t, store).Run(ctx, cases, reg)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusAborted, report.Classifiers[0].Status)
}

func TestRun_EmptyCorpus(t *testing.T) {
	store := newStore(t, nil)
	reg := classifier.NewRegistry()
	reg.MustRegister(allSpam())

	report, err := newOrchestrator(t, store).Run(context.Background(), nil, reg)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Samples)
	assert.Equal(t, 0, load(t, store).Len())
}

func TestPass_WritesToSinkAndToleratesSinkErrors(t *testing.T) {
	cases := casesOf("safe text", "POISON")
	rec := &recordingSink{}
	o := newOrchestrator(t, newStore(t, cases), func(c *Config) { c.Sink = rec })

	run, status, err := o.Pass(context.Background(), poisonStub(), cases)
	require.NoError(t, err)

	assert.Equal(t, []string{"valid", ""}, run.Results)
	assert.Equal(t, StatusPartial, status.Status)
	require.Len(t, rec.samples, 2)
	assert.False(t, rec.samples[0].Failed)
	assert.Equal(t, "valid", rec.samples[0].Verdict)
	assert.True(t, rec.samples[1].Failed)
	assert.Equal(t, "test-run", rec.samples[1].RunID)
	assert.Equal(t, 1, rec.flushes)
}
