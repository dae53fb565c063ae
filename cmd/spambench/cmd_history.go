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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/spambench/cmd/spambench/config"
	"github.com/AleutianAI/spambench/services/bench/history"
	"github.com/AleutianAI/spambench/services/bench/orchestrator"
	badgerstore "github.com/AleutianAI/spambench/services/bench/storage/badger"
)

type historyOptions struct {
	dir   string
	limit int
	json  bool
}

func newHistoryCmd(a *app) *cobra.Command {
	var opts historyOptions
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or show one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return a.showHistory(cmd.Context(), opts, id)
		},
	}
	cmd.Flags().StringVar(&opts.dir, "dir", "", "history database directory (default: the config's history_dir)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "maximum number of runs to list; 0 for all")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print JSON")
	return cmd
}

func (a *app) showHistory(ctx context.Context, opts historyOptions, id string) error {
	dir := opts.dir
	mode := ""
	if dir == "" {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return usageError(errors.New("no --dir given and no usable config: " + err.Error()))
		}
		dir, mode = cfg.HistoryDir, cfg.Output
	}
	if dir == "" {
		return usageError(errors.New("history is disabled: history_dir is empty"))
	}
	if opts.limit < 0 {
		return usageError(fmt.Errorf("--limit must not be negative, got %d", opts.limit))
	}

	db, err := badgerstore.Open(badgerstore.DefaultConfig(config.ExpandHome(dir)))
	if err != nil {
		return fatalError(err)
	}
	defer db.Close()
	store := history.NewStore(db)

	if id != "" {
		rec, err := store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, history.ErrNotFound) {
				return usageError(err)
			}
			return fatalError(err)
		}
		return a.writeJSON(rec)
	}

	records, err := store.List(ctx, opts.limit)
	if err != nil {
		return fatalError(err)
	}
	if opts.json {
		if records == nil {
			records = []history.RunRecord{}
		}
		return a.writeJSON(records)
	}

	p := a.printer(mode)
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.ID,
			rec.StartedAt.Local().Format(time.DateTime),
			strconv.Itoa(rec.Samples),
			classifierCounts(rec.Classifiers),
			rec.Table,
		})
	}
	p.Table([]string{"RUN", "STARTED", "SAMPLES", "OK/PARTIAL/FAILED", "TABLE"}, rows)
	return nil
}

func classifierCounts(statuses []orchestrator.ClassifierStatus) string {
	var ok, partial, failed int
	for _, cs := range statuses {
		switch cs.Status {
		case orchestrator.StatusOK:
			ok++
		case orchestrator.StatusPartial:
			partial++
		default:
			failed++
		}
	}
	return fmt.Sprintf("%d/%d/%d", ok, partial, failed)
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fatalError(err)
	}
	return nil
}
