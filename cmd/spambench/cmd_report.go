// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/spambench/cmd/spambench/config"
	"github.com/AleutianAI/spambench/services/bench/benchmark"
	"github.com/AleutianAI/spambench/services/bench/orchestrator"
	"github.com/AleutianAI/spambench/services/bench/table"
)

type reportOptions struct {
	table   string
	json    bool
	verbose bool
}

func newReportCmd(a *app) *cobra.Command {
	var opts reportOptions
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize a result table per classifier",
		Long: `Reads a result table and prints, per classifier, verdict counts, latency
statistics, and accuracy, precision and recall against the expected column.
Classifiers that failed construction are listed from the run manifest.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.reportTable(opts)
		},
	}
	cmd.Flags().StringVar(&opts.table, "table", "", "result table (default: the config's table)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "include latency percentiles")
	return cmd
}

func (a *app) reportTable(opts reportOptions) error {
	path := opts.table
	mode := ""
	if path == "" {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return usageError(errors.New("no --table given and no usable config: " + err.Error()))
		}
		path, mode = cfg.Table, cfg.Output
	}

	f, err := os.Open(path)
	if err != nil {
		return fatalError(fmt.Errorf("open table: %w", err))
	}
	defer f.Close()

	t, err := table.Decode(f)
	if err != nil {
		return fatalError(err)
	}
	report, err := benchmark.Summarize(path, t)
	if err != nil {
		return fatalError(err)
	}

	var reporter benchmark.Reporter = benchmark.NewConsoleReporter(a.stdout, opts.verbose)
	if opts.json {
		reporter = benchmark.NewJSONReporter(a.stdout, true)
	}
	if err := reporter.Report(report); err != nil {
		return fatalError(err)
	}

	if opts.json {
		return nil
	}
	// Construction failures leave no columns, so only the manifest knows them.
	m, err := orchestrator.ReadManifest(orchestrator.ManifestPath(path))
	if err != nil {
		return nil
	}
	p := a.printer(mode)
	for _, cs := range m.Classifiers {
		if cs.Status == orchestrator.StatusConstructionFailed {
			p.Warning(fmt.Sprintf("%s: construction failed: %s", cs.ID, cs.Error))
		}
	}
	return nil
}
