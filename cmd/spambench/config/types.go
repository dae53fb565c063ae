// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"time"

	"github.com/AleutianAI/spambench/services/bench/classifier/adapters"
	"github.com/AleutianAI/spambench/services/bench/telemetry"
)

// BenchConfig is the contents of spambench.yaml.
type BenchConfig struct {
	// Corpus is the base64 corpus file, one sample per line.
	Corpus string `yaml:"corpus" validate:"required"`

	// Labels is an optional file of spam/valid labels aligned with the corpus.
	Labels string `yaml:"labels,omitempty"`

	// Table is the result CSV merged into after every classifier.
	Table string `yaml:"table" validate:"required"`

	// HeaderPolicy is union, strict or first_row.
	HeaderPolicy string `yaml:"header_policy" validate:"omitempty,oneof=union strict first_row"`

	// Timeout bounds one classifier call.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`

	// HistoryDir is the BadgerDB directory for run records. Empty disables
	// history.
	HistoryDir string `yaml:"history_dir,omitempty"`

	// Output selects console rendering: auto, rich, plain or machine.
	Output string `yaml:"output" validate:"omitempty,oneof=auto rich plain machine"`

	Log         LogConfig        `yaml:"log"`
	Telemetry   telemetry.Config `yaml:"telemetry"`
	Influx      *InfluxConfig    `yaml:"influx,omitempty"`
	Classifiers []adapters.Spec  `yaml:"classifiers" validate:"dive"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=auto text json"`
	Dir    string `yaml:"dir,omitempty"`
}

// InfluxConfig enables the per-sample InfluxDB sink.
type InfluxConfig struct {
	URL       string `yaml:"url" validate:"required,url"`
	Org       string `yaml:"org" validate:"required"`
	Bucket    string `yaml:"bucket" validate:"required"`
	TokenEnv  string `yaml:"token_env,omitempty"`
	BatchSize int    `yaml:"batch_size,omitempty" validate:"gte=0"`
}

// DefaultConfig returns the configuration written by --init.
func DefaultConfig() BenchConfig {
	enabled := false
	return BenchConfig{
		Corpus:       "corpus.txt",
		Table:        "results.csv",
		HeaderPolicy: "union",
		Timeout:      10 * time.Second,
		HistoryDir:   "~/.spambench/history",
		Output:       "auto",
		Log:          LogConfig{Level: "info", Format: "auto"},
		Telemetry:    telemetry.DefaultConfig(),
		Classifiers: []adapters.Spec{
			{
				ID:   "wordlist",
				Kind: adapters.KindWordlist,
				Wordlist: &adapters.WordlistOptions{
					Words:       []string{"viagra", "casino", "lottery", "bitcoin"},
					Deobfuscate: true,
				},
			},
			{
				ID:      "spamassassin",
				Kind:    adapters.KindSpamd,
				Enabled: &enabled,
				Spamd:   &adapters.SpamdOptions{Address: "localhost:783", Timeout: 10 * time.Second},
			},
			{
				ID:      "akismet",
				Kind:    adapters.KindAkismet,
				Enabled: &enabled,
				Akismet: &adapters.AkismetOptions{
					Blog:              "https://example.org",
					KeyEnv:            "AKISMET_API_KEY",
					RequestsPerSecond: 1,
				},
			},
			{
				ID:      "gpt",
				Kind:    adapters.KindLLM,
				Enabled: &enabled,
				LLM: &adapters.LLMOptions{
					KeyEnv:            "OPENAI_API_KEY",
					RequestsPerSecond: 2,
				},
			},
		},
	}
}
