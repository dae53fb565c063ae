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
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Reporter renders a Report.
type Reporter interface {
	Report(r *Report) error
}

// ConsoleReporter writes a human-readable report.
type ConsoleReporter struct {
	out     io.Writer
	verbose bool
}

// NewConsoleReporter creates a console reporter. Verbose adds the full
// percentile breakdown.
func NewConsoleReporter(out io.Writer, verbose bool) *ConsoleReporter {
	return &ConsoleReporter{out: out, verbose: verbose}
}

// Report implements Reporter.
func (c *ConsoleReporter) Report(r *Report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Classifier Report: %s\n", r.Table)
	fmt.Fprintf(&b, "%s\n", strings.Repeat("=", 60))
	fmt.Fprintf(&b, "Rows: %d  Classifiers: %d\n", r.Rows, len(r.Summaries))

	for _, s := range r.Summaries {
		fmt.Fprintf(&b, "\n%s\n", s.ClassifierID)
		fmt.Fprintf(&b, "  Verdicts: spam=%d valid=%d indeterminate=%d failed=%d (%.1f%% failed)\n",
			s.Spam, s.Valid, s.Indeterminate, s.Failed, s.FailureRate()*100)

		if s.Latency != nil {
			fmt.Fprintf(&b, "  Latency:\n")
			fmt.Fprintf(&b, "    Mean:   %v\n", s.Latency.Mean)
			fmt.Fprintf(&b, "    Median: %v\n", s.Latency.Median)
			if c.verbose {
				fmt.Fprintf(&b, "    Min:    %v\n", s.Latency.Min)
				fmt.Fprintf(&b, "    Max:    %v\n", s.Latency.Max)
				fmt.Fprintf(&b, "    StdDev: %v\n", s.Latency.StdDev)
				fmt.Fprintf(&b, "  Percentiles:\n")
				fmt.Fprintf(&b, "    P90: %v  P95: %v  P99: %v\n", s.Latency.P90, s.Latency.P95, s.Latency.P99)
			}
		}

		if s.Labeled > 0 {
			fmt.Fprintf(&b, "  Quality (%d labeled):\n", s.Labeled)
			fmt.Fprintf(&b, "    Accuracy:  %.3f\n", s.Accuracy)
			fmt.Fprintf(&b, "    Precision: %.3f\n", s.Precision)
			fmt.Fprintf(&b, "    Recall:    %.3f\n", s.Recall)
		} else {
			fmt.Fprintf(&b, "  Quality: n/a (no expected labels)\n")
		}
	}

	if len(r.Ranking) > 0 {
		fmt.Fprintf(&b, "\nRanking: %s\n", strings.Join(r.Ranking, " > "))
	}

	_, err := io.WriteString(c.out, b.String())
	return err
}

// JSONReporter writes the report as JSON.
type JSONReporter struct {
	out    io.Writer
	indent bool
}

// NewJSONReporter creates a JSON reporter.
func NewJSONReporter(out io.Writer, indent bool) *JSONReporter {
	return &JSONReporter{out: out, indent: indent}
}

// Report implements Reporter.
func (j *JSONReporter) Report(r *Report) error {
	enc := json.NewEncoder(j.out)
	if j.indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(r)
}
