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
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/spambench/cmd/spambench/config"
	"github.com/AleutianAI/spambench/pkg/ux"
	"github.com/AleutianAI/spambench/services/bench/classifier"
	"github.com/AleutianAI/spambench/services/bench/classifier/adapters"
	"github.com/AleutianAI/spambench/services/bench/corpus"
	"github.com/AleutianAI/spambench/services/bench/harness"
	"github.com/AleutianAI/spambench/services/bench/history"
	"github.com/AleutianAI/spambench/services/bench/orchestrator"
	"github.com/AleutianAI/spambench/services/bench/sink"
	badgerstore "github.com/AleutianAI/spambench/services/bench/storage/badger"
	"github.com/AleutianAI/spambench/services/bench/table"
	"github.com/AleutianAI/spambench/services/bench/telemetry"
)

// shutdownTimeout bounds telemetry and sink teardown after a run.
const shutdownTimeout = 5 * time.Second

type runOptions struct {
	init      bool
	corpus    string
	labels    string
	table     string
	timeout   time.Duration
	only      []string
	noHistory bool
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every configured classifier and merge results into the table",
		Long: `Decodes the corpus, constructs the configured classifiers, and runs them
one after another over every sample. After each classifier its two columns
are merged into the result table and the table is atomically replaced.

Exit codes: 0 success, 1 fatal error, 2 a classifier failed construction,
3 usage or configuration error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBench(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.init, "init", false, "write a default config file if none exists, then exit")
	f.StringVar(&opts.corpus, "corpus", "", "corpus file (overrides config)")
	f.StringVar(&opts.labels, "labels", "", "expected-labels file (overrides config)")
	f.StringVar(&opts.table, "table", "", "result table path (overrides config)")
	f.DurationVar(&opts.timeout, "timeout", 0, "per-call classifier timeout (overrides config)")
	f.StringSliceVar(&opts.only, "only", nil, "run only these classifier ids")
	f.BoolVar(&opts.noHistory, "no-history", false, "do not record the run in the history database")
	return cmd
}

// runBench wires the pipeline together.
//
// # Description
//
// Loads the config, decodes the corpus, initializes telemetry and the
// optional sink, builds the classifiers, runs the orchestrator, then writes
// the manifest, the history record and the metrics textfile. Steps after the
// run are best effort except the manifest, which is the only record of
// classifiers that failed construction.
//
// # Outputs
//
//   - error: *ExitError carrying the process exit code, or nil.
func (a *app) runBench(ctx context.Context, opts runOptions) error {
	if opts.init {
		return a.initConfig()
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			err = fmt.Errorf("%w (create one with 'spambench run --init')", err)
		}
		return usageError(err)
	}
	if err := applyRunOverrides(&cfg, opts); err != nil {
		return usageError(err)
	}
	policy, err := table.ParseHeaderPolicy(cfg.HeaderPolicy)
	if err != nil {
		return usageError(err)
	}

	logger, err := a.newLogger(cfg.Log.Level, cfg.Log.Format, config.ExpandHome(cfg.Log.Dir))
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Slog()
	printer := a.printer(cfg.Output)

	c, labels, err := loadInputs(cfg, log)
	if err != nil {
		return fatalError(err)
	}

	provider, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fatalError(fmt.Errorf("init telemetry: %w", err))
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(sctx); err != nil {
			log.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()
	instruments, err := telemetry.NewInstrumentsFromProvider(provider)
	if err != nil {
		return fatalError(fmt.Errorf("create instruments: %w", err))
	}

	secrets := config.LoadSecrets(cfg, a.getenv)
	samples, err := newSink(cfg, secrets)
	if err != nil {
		return usageError(err)
	}
	defer func() {
		if err := samples.Close(); err != nil {
			log.Warn("sample sink close failed", slog.String("error", err.Error()))
		}
	}()

	reg := classifier.NewRegistry()
	reg.AddHook(func(id string, err error) {
		if err == nil {
			log.Info("classifier ready", slog.String("classifier", id))
		}
	})
	built := adapters.BuildAll(ctx, reg, cfg.Classifiers, secrets)
	defer func() {
		if err := reg.Close(); err != nil {
			log.Warn("closing classifiers failed", slog.String("error", err.Error()))
		}
	}()
	log.Info("classifiers constructed",
		slog.Int("built", built),
		slog.Int("failed", len(reg.Failures())))

	store := table.NewStore(cfg.Table,
		table.WithHeaderPolicy(policy),
		table.WithBaseTable(table.NewBaseTable(c.Cases, labels)),
		table.WithLogger(log))

	runID := history.NewRunID()
	orch, err := orchestrator.New(orchestrator.Config{
		Store:       store,
		Harness:     harness.New(harness.WithTimeout(cfg.Timeout)),
		Logger:      log,
		Instruments: instruments,
		Sink:        samples,
		RunID:       runID,
	})
	if err != nil {
		return fatalError(err)
	}

	report, runErr := orch.Run(ctx, c.Cases, reg)

	manifest := &orchestrator.Manifest{Report: *report, Corpus: cfg.Corpus}
	for _, derr := range c.Errors {
		manifest.DecodeErrors = append(manifest.DecodeErrors, derr.Error())
	}
	manifestPath := orchestrator.ManifestPath(cfg.Table)
	if err := orchestrator.WriteManifest(manifestPath, manifest); err != nil {
		log.Error("manifest write failed", slog.String("path", manifestPath), slog.String("error", err.Error()))
		runErr = errors.Join(runErr, err)
	}

	if cfg.HistoryDir != "" && !opts.noHistory {
		rec := history.FromReport(report, cfg.Corpus, len(c.Errors), runErr)
		if err := saveHistory(context.WithoutCancel(ctx), config.ExpandHome(cfg.HistoryDir), rec, log); err != nil {
			log.Warn("run history not saved", slog.String("error", err.Error()))
		}
	}

	if path := cfg.Telemetry.TextfilePath; path != "" {
		if err := provider.WriteTextfile(path); err != nil {
			log.Warn("metrics textfile not written", slog.String("path", path), slog.String("error", err.Error()))
		}
	}

	printRunSummary(printer, report, manifestPath)

	if runErr != nil {
		return fatalError(runErr)
	}
	if failed := report.ConstructionFailures(); len(failed) > 0 {
		return &ExitError{
			Code: ExitPartial,
			Err:  fmt.Errorf("%d classifier(s) failed construction: %s", len(failed), strings.Join(failed, ", ")),
		}
	}
	return nil
}

func (a *app) initConfig() error {
	if err := config.WriteDefault(a.configPath); err != nil {
		return usageError(err)
	}
	a.printer("").Success(fmt.Sprintf("wrote default config to %s", a.configPath))
	return nil
}

func applyRunOverrides(cfg *config.BenchConfig, opts runOptions) error {
	if opts.corpus != "" {
		cfg.Corpus = opts.corpus
	}
	if opts.labels != "" {
		cfg.Labels = opts.labels
	}
	if opts.table != "" {
		cfg.Table = opts.table
	}
	if opts.timeout > 0 {
		cfg.Timeout = opts.timeout
	}
	return cfg.Only(opts.only)
}

// loadInputs decodes the corpus and the optional labels. Decode errors are
// logged and kept on the corpus; they never stop the run.
func loadInputs(cfg config.BenchConfig, log *slog.Logger) (*corpus.Corpus, []string, error) {
	c, err := corpus.Load(cfg.Corpus)
	if err != nil {
		return nil, nil, err
	}
	for _, derr := range c.Errors {
		log.Warn("corpus line not decodable, using empty sample",
			slog.Int("line", derr.Line),
			slog.String("error", derr.Err.Error()))
	}
	log.Info("corpus decoded",
		slog.String("path", cfg.Corpus),
		slog.Int("samples", c.Len()),
		slog.Int("decode_errors", len(c.Errors)))

	if cfg.Labels == "" {
		return c, nil, nil
	}
	labels, err := corpus.LoadLabels(cfg.Labels)
	if err != nil {
		return nil, nil, err
	}
	if len(labels) > c.Len() {
		log.Warn("labels file longer than corpus, extra labels ignored",
			slog.Int("labels", len(labels)),
			slog.Int("samples", c.Len()))
	}
	return c, labels, nil
}

// newSink returns the InfluxDB sink when configured and a no-op otherwise.
func newSink(cfg config.BenchConfig, secrets *config.Secrets) (sink.Sink, error) {
	if cfg.Influx == nil {
		return sink.Nop{}, nil
	}
	token, err := secrets.Reveal(cfg.Influx.TokenEnv)
	if err != nil {
		return nil, err
	}
	return sink.NewInflux(sink.InfluxConfig{
		URL:       cfg.Influx.URL,
		Token:     token,
		Org:       cfg.Influx.Org,
		Bucket:    cfg.Influx.Bucket,
		BatchSize: cfg.Influx.BatchSize,
	})
}

func saveHistory(ctx context.Context, dir string, rec history.RunRecord, log *slog.Logger) error {
	bcfg := badgerstore.DefaultConfig(dir)
	bcfg.Logger = log
	db, err := badgerstore.Open(bcfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := history.NewStore(db).Save(ctx, rec); err != nil {
		return err
	}
	log.Debug("run recorded", slog.String("run_id", rec.ID), slog.String("path", db.Path()))
	return nil
}

func printRunSummary(p *ux.Printer, report *orchestrator.Report, manifestPath string) {
	p.Title(fmt.Sprintf("Run %s", report.RunID))
	p.Info(fmt.Sprintf("%d samples -> %s", report.Samples, report.Table))

	var ok, partial, failed int
	for _, cs := range report.Classifiers {
		var detail string
		switch cs.Status {
		case orchestrator.StatusOK:
			ok++
			detail = fmt.Sprintf("%s, spam=%d valid=%d indeterminate=%d", cs.Elapsed.Round(time.Millisecond), cs.Spam, cs.Valid, cs.Indeterminate)
		case orchestrator.StatusPartial:
			partial++
			detail = fmt.Sprintf("failures=%d timeouts=%d", cs.Failures, cs.Timeouts)
		default:
			failed++
			detail = string(cs.Status)
			if cs.Error != "" {
				detail += ": " + cs.Error
			}
		}
		p.Status(cs.ID, string(cs.Status), detail)
	}
	p.Summary(ok, partial, failed)
	p.Info("manifest: " + manifestPath)
}
