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
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/spambench/cmd/spambench/config"
	"github.com/AleutianAI/spambench/services/bench/corpus"
)

type decodeOptions struct {
	corpus string
	json   bool
}

// decodeOutput is the --json shape of the decode command.
type decodeOutput struct {
	Cases  []corpus.TestCase `json:"cases"`
	Errors []decodeFailure   `json:"errors"`
}

type decodeFailure struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

func newDecodeCmd(a *app) *cobra.Command {
	var opts decodeOptions
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Print the decoded test cases of a corpus",
		Long: `Decodes a base64 corpus exactly as 'run' does and prints every test case.
Lines that fail to decode are reported and kept as empty samples.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.decodeCorpus(opts)
		},
	}
	cmd.Flags().StringVar(&opts.corpus, "corpus", "", "corpus file (default: the config's corpus)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print JSON")
	return cmd
}

func (a *app) decodeCorpus(opts decodeOptions) error {
	path := opts.corpus
	mode := ""
	if path == "" {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return usageError(errors.New("no --corpus given and no usable config: " + err.Error()))
		}
		path, mode = cfg.Corpus, cfg.Output
	}

	c, err := corpus.Load(path)
	if err != nil {
		return fatalError(err)
	}

	if opts.json {
		out := decodeOutput{Cases: c.Cases, Errors: []decodeFailure{}}
		if out.Cases == nil {
			out.Cases = []corpus.TestCase{}
		}
		for _, derr := range c.Errors {
			out.Errors = append(out.Errors, decodeFailure{Line: derr.Line, Error: derr.Err.Error()})
		}
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fatalError(err)
		}
		return nil
	}

	p := a.printer(mode)
	rows := make([][]string, 0, c.Len())
	for _, tc := range c.Cases {
		rows = append(rows, []string{
			strconv.Itoa(tc.Index),
			strconv.Itoa(utf8.RuneCountInString(tc.Text)),
			strconv.Quote(tc.Text),
		})
	}
	p.Table([]string{"INDEX", "LENGTH", "TEXT"}, rows)
	for _, derr := range c.Errors {
		p.Warning(derr.Error())
	}
	p.Info(fmt.Sprintf("%d samples, %d decode errors", c.Len(), len(c.Errors)))
	return nil
}
