// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package benchmark

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/spambench/services/bench/classifier"
	"github.com/AleutianAI/spambench/services/bench/table"
)

// Summary is the per-classifier view of a result table.
type Summary struct {
	ClassifierID  string        `json:"classifier"`
	Samples       int           `json:"samples"`
	Spam          int           `json:"spam"`
	Valid         int           `json:"valid"`
	Indeterminate int           `json:"indeterminate"`
	Failed        int           `json:"failed"`
	Latency       *LatencyStats `json:"latency,omitempty"`

	// Labeled is the number of rows with both an expected label and a
	// verdict. Quality metrics are zero when it is zero.
	Labeled   int     `json:"labeled"`
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
}

// FailureRate returns the fraction of samples that produced no verdict.
func (s Summary) FailureRate() float64 {
	if s.Samples == 0 {
		return 0
	}
	return float64(s.Failed) / float64(s.Samples)
}

// Report summarizes every classifier found in a table.
type Report struct {
	Table       string    `json:"table"`
	Rows        int       `json:"rows"`
	Summaries   []Summary `json:"classifiers"`
	Ranking     []string  `json:"ranking"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Summarize builds a Report from a loaded table.
//
// Description:
//
//	Classifiers are discovered from "<id>_output" columns in header order.
//	An empty output cell counts as a failure; any other value must be a
//	persisted verdict label. Spam is the positive class for precision and
//	recall, and an indeterminate verdict on a labeled row counts as wrong.
//	Ranking orders classifiers by accuracy, then by mean latency.
//
// Outputs:
//   - *Report: The summary.
//   - error: Non-nil if an output cell holds an unknown label or a runtime
//     cell is not an integer.
func Summarize(path string, t *table.Table) (*Report, error) {
	header, err := t.Header(table.HeaderUnion)
	if err != nil {
		return nil, err
	}

	expected := t.Column(table.ColumnExpected)
	report := &Report{Table: path, Rows: t.Len(), GeneratedAt: time.Now()}

	for _, col := range header {
		id, ok := strings.CutSuffix(col, classifier.OutputSuffix)
		if !ok || id == "" {
			continue
		}
		s, err := summarizeColumn(id, t, expected)
		if err != nil {
			return nil, err
		}
		report.Summaries = append(report.Summaries, s)
	}

	report.Ranking = rank(report.Summaries)
	return report, nil
}

func summarizeColumn(id string, t *table.Table, expected []string) (Summary, error) {
	cols := classifier.ColumnsFor(id)
	outputs := t.Column(cols.Output)
	runtimes := t.Column(cols.Runtime)

	s := Summary{ClassifierID: id, Samples: len(outputs)}
	var samples []time.Duration
	var tp, fp, fn, correct int

	for i, cell := range outputs {
		if cell == "" {
			s.Failed++
			continue
		}
		v, ok := classifier.ParseVerdict(cell)
		if !ok {
			return s, fmt.Errorf("%s row %d: unknown verdict %q", cols.Output, i, cell)
		}
		switch v {
		case classifier.Spam:
			s.Spam++
		case classifier.Valid:
			s.Valid++
		default:
			s.Indeterminate++
		}

		if rt := runtimes[i]; rt != "" {
			ns, err := strconv.ParseInt(rt, 10, 64)
			if err != nil {
				return s, fmt.Errorf("%s row %d: %w", cols.Runtime, i, err)
			}
			samples = append(samples, time.Duration(ns))
		}

		want, ok := classifier.ParseVerdict(expected[i])
		if !ok || want == classifier.Indeterminate {
			continue
		}
		s.Labeled++
		if v == want {
			correct++
		}
		switch {
		case v == classifier.Spam && want == classifier.Spam:
			tp++
		case v == classifier.Spam && want == classifier.Valid:
			fp++
		case v != classifier.Spam && want == classifier.Spam:
			fn++
		}
	}

	if stats, err := CalculateLatencyStats(samples); err == nil {
		s.Latency = &stats
	}
	if s.Labeled > 0 {
		s.Accuracy = float64(correct) / float64(s.Labeled)
	}
	if tp+fp > 0 {
		s.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		s.Recall = float64(tp) / float64(tp+fn)
	}
	return s, nil
}

func rank(summaries []Summary) []string {
	sorted := make([]Summary, len(summaries))
	copy(sorted, summaries)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Accuracy != b.Accuracy {
			return a.Accuracy > b.Accuracy
		}
		return meanOf(a) < meanOf(b)
	})
	ids := make([]string, len(sorted))
	for i, s := range sorted {
		ids[i] = s.ClassifierID
	}
	return ids
}

func meanOf(s Summary) time.Duration {
	if s.Latency == nil {
		return time.Duration(1<<63 - 1)
	}
	return s.Latency.Mean
}
