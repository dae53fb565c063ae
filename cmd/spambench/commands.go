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
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/spambench/pkg/logging"
	"github.com/AleutianAI/spambench/pkg/ux"
)

// app holds the process streams and the persistent flag values shared by
// every command.
type app struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string

	configPath string
	logLevel   string
	logFormat  string
	outputMode string
}

func newApp(stdout, stderr io.Writer, getenv func(string) string) *app {
	return &app{stdout: stdout, stderr: stderr, getenv: getenv}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "spambench",
		Short: "Benchmark spam classifiers against a shared corpus",
		Long: `spambench runs every configured spam classifier over a base64 corpus,
one classifier at a time, and merges each classifier's verdicts and
latencies into a single CSV result table.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "spambench.yaml", "path to the config file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: auto, text, json (overrides config)")
	flags.StringVar(&a.outputMode, "output", "", "console output: auto, rich, plain, machine (overrides config)")

	root.AddCommand(
		newRunCmd(a),
		newDecodeCmd(a),
		newReportCmd(a),
		newHistoryCmd(a),
	)
	return root
}

// execute runs the command line and returns the process exit code. Errors
// not produced by a command body come from cobra itself and are usage errors.
func execute(ctx context.Context, args []string, a *app) int {
	root := newRootCmd(a)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		exitErr = &ExitError{Code: ExitUsage, Err: err}
	}
	if exitErr.Err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", exitErr.Err)
	}
	return exitErr.Code
}

// newLogger builds the command logger. Flag values win over config values.
func (a *app) newLogger(level, format, dir string) (*logging.Logger, error) {
	if a.logLevel != "" {
		level = a.logLevel
	}
	if a.logFormat != "" {
		format = a.logFormat
	}
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return nil, usageError(err)
	}
	logger, err := logging.New(logging.Config{
		Level:   lvl,
		Format:  format,
		Service: "spambench",
		LogDir:  dir,
		Output:  a.stderr,
	})
	if err != nil {
		return nil, usageError(err)
	}
	return logger, nil
}

// printer builds the console printer. The flag wins over the config value.
func (a *app) printer(mode string) *ux.Printer {
	if a.outputMode != "" {
		mode = a.outputMode
	}
	return ux.NewPrinter(a.stdout, a.stderr, ux.ParseMode(mode, a.stdout))
}
