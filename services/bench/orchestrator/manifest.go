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
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/spambench/services/bench/table"
)

// ManifestSuffix is appended to the table path to name its sidecar.
const ManifestSuffix = ".manifest.yaml"

// Manifest is the sidecar written next to the result table after each run.
// It is the only place a classifier that failed construction shows up, since
// such a classifier contributes no columns.
type Manifest struct {
	Report       `yaml:",inline"`
	Corpus       string   `yaml:"corpus"`
	DecodeErrors []string `yaml:"decode_errors,omitempty"`
}

// ManifestPath returns the sidecar path for a table.
func ManifestPath(tablePath string) string {
	return tablePath + ManifestSuffix
}

// WriteManifest atomically replaces the sidecar at path.
func WriteManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := table.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}
	return nil
}

// ReadManifest loads a sidecar.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}
