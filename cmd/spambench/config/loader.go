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
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/spambench/pkg/validation"
)

var (
	// ErrNotFound is returned when the config file does not exist.
	ErrNotFound = errors.New("config file not found")

	// ErrInvalid wraps validation failures.
	ErrInvalid = errors.New("invalid config")

	validate = validator.New(validator.WithRequiredStructEnabled())
)

// Load reads, defaults and validates the config at path.
//
// Relative file paths in the config (corpus, labels, table, history and log
// directories, the metrics textfile, dictionaries, training sets) are
// resolved against the config file's directory.
func Load(path string) (BenchConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return BenchConfig{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return BenchConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return BenchConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// Parse decodes YAML, fills defaults and validates. Unknown keys are errors.
func Parse(data []byte) (BenchConfig, error) {
	var cfg BenchConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return BenchConfig{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return BenchConfig{}, err
	}
	return cfg, nil
}

func (c *BenchConfig) applyDefaults() {
	if c.HeaderPolicy == "" {
		c.HeaderPolicy = "union"
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Output == "" {
		c.Output = "auto"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	defaults := DefaultConfig().Telemetry
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = defaults.ServiceName
	}
	if c.Telemetry.ServiceVersion == "" {
		c.Telemetry.ServiceVersion = defaults.ServiceVersion
	}
	if c.Telemetry.Environment == "" {
		c.Telemetry.Environment = defaults.Environment
	}
	if c.Telemetry.TraceExporter == "" {
		c.Telemetry.TraceExporter = "none"
	}
	if c.Telemetry.MetricExporter == "" {
		c.Telemetry.MetricExporter = "none"
	}
	if c.Telemetry.OTLPEndpoint == "" {
		c.Telemetry.OTLPEndpoint = defaults.OTLPEndpoint
	}
}

// Validate checks struct tags and cross-field rules.
func (c *BenchConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	ids := make([]string, len(c.Classifiers))
	for i, spec := range c.Classifiers {
		ids[i] = spec.ID
	}
	if err := validation.ValidateClassifierIDs(ids); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	seen := make(map[string]bool)
	for _, spec := range c.Classifiers {
		if seen[spec.ID] {
			return fmt.Errorf("%w: duplicate classifier id %q", ErrInvalid, spec.ID)
		}
		seen[spec.ID] = true
	}
	return nil
}

func (c *BenchConfig) resolvePaths(base string) {
	resolve := func(p *string) {
		if *p == "" || filepath.IsAbs(*p) || strings.HasPrefix(*p, "~") {
			return
		}
		*p = filepath.Join(base, *p)
	}
	resolve(&c.Corpus)
	resolve(&c.Labels)
	resolve(&c.Table)
	resolve(&c.HistoryDir)
	resolve(&c.Log.Dir)
	resolve(&c.Telemetry.TextfilePath)
	for i := range c.Classifiers {
		if w := c.Classifiers[i].Wordlist; w != nil {
			resolve(&w.Dictionary)
		}
		if b := c.Classifiers[i].Bayes; b != nil {
			resolve(&b.Training)
		}
	}
}

// Only keeps the classifiers whose ids are listed, in config order. Unknown
// ids are an error.
func (c *BenchConfig) Only(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	want := make(map[string]bool, len(ids))
	for _, raw := range ids {
		id, err := validation.SanitizeClassifierID(raw)
		if err != nil {
			return fmt.Errorf("%w: --only: %w", ErrInvalid, err)
		}
		want[id] = true
	}
	kept := c.Classifiers[:0:0]
	for _, spec := range c.Classifiers {
		if want[spec.ID] {
			kept = append(kept, spec)
			delete(want, spec.ID)
		}
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for id := range want {
			missing = append(missing, id)
		}
		return fmt.Errorf("%w: unknown classifier ids %v", ErrInvalid, missing)
	}
	c.Classifiers = kept
	return nil
}

// WriteDefault writes DefaultConfig to path, creating parent directories.
// An existing file is left alone.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// Secrets holds API keys sealed in memguard enclaves, keyed by the
// environment variable they were read from.
type Secrets struct {
	enclaves map[string]*memguard.Enclave
}

// LoadSecrets reads every key_env named by the config through getenv and
// seals the non-empty values. The plaintext is wiped from the source buffer.
func LoadSecrets(cfg BenchConfig, getenv func(string) string) *Secrets {
	s := &Secrets{enclaves: make(map[string]*memguard.Enclave)}
	names := make([]string, 0, len(cfg.Classifiers)+1)
	for _, spec := range cfg.Classifiers {
		if spec.IsEnabled() {
			names = append(names, spec.KeyEnv())
		}
	}
	if cfg.Influx != nil {
		names = append(names, cfg.Influx.TokenEnv)
	}
	for _, name := range names {
		if name == "" || s.enclaves[name] != nil {
			continue
		}
		if value := getenv(name); value != "" {
			s.enclaves[name] = memguard.NewEnclave([]byte(value))
		}
	}
	return s
}

// Enclave returns the sealed key for name, or nil.
func (s *Secrets) Enclave(name string) *memguard.Enclave {
	if s == nil {
		return nil
	}
	return s.enclaves[name]
}

// Reveal opens the key for name and returns it as a string. It is meant for
// clients that only accept a plain token at construction.
func (s *Secrets) Reveal(name string) (string, error) {
	e := s.Enclave(name)
	if e == nil {
		return "", nil
	}
	buf, err := e.Open()
	if err != nil {
		return "", fmt.Errorf("open secret %s: %w", name, err)
	}
	defer buf.Destroy()
	return strings.Clone(buf.String()), nil
}

// Len returns the number of sealed keys.
func (s *Secrets) Len() int {
	if s == nil {
		return 0
	}
	return len(s.enclaves)
}
