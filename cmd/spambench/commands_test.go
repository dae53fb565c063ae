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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/spambench/services/bench/corpus"
	"github.com/AleutianAI/spambench/services/bench/history"
	"github.com/AleutianAI/spambench/services/bench/orchestrator"
	"github.com/AleutianAI/spambench/services/bench/table"
)

// workspace is a temp directory holding a corpus, labels and a config.
type workspace struct {
	dir    string
	config string
	table  string
}

func newWorkspace(t *testing.T, classifiers string) workspace {
	t.Helper()
	dir := t.TempDir()
	w := workspace{
		dir:    dir,
		config: filepath.Join(dir, "spambench.yaml"),
		table:  filepath.Join(dir, "results.csv"),
	}

	texts := []string{"hello world", "free v1agra now!!!", ""}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "corpus.txt"), []byte(corpus.Encode(texts)), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "labels.txt"), []byte("valid\nspam\n"), 0o600))

	cfg := fmt.Sprintf(`corpus: corpus.txt
labels: labels.txt
table: results.csv
timeout: 2s
history_dir: %s
output: machine
log:
  level: debug
  format: json
telemetry:
  metric_exporter: prometheus
  textfile_path: %s
classifiers:
%s`, filepath.Join(dir, "history"), filepath.Join(dir, "metrics.prom"), classifiers)
	require.NoError(t, os.WriteFile(w.config, []byte(cfg), 0o600))
	return w
}

const wordlistClassifier = `  - id: words
    kind: wordlist
    wordlist:
      words: [viagra]
      deobfuscate: true
`

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	env := map[string]string{}
	code := execute(context.Background(), args, newApp(&stdout, &stderr, func(k string) string { return env[k] }))
	return code, stdout.String(), stderr.String()
}

func loadTable(t *testing.T, path string) *table.Table {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	tbl, err := table.Decode(f)
	require.NoError(t, err)
	return tbl
}

func TestRun_EndToEnd(t *testing.T) {
	w := newWorkspace(t, wordlistClassifier)

	code, stdout, stderr := runCLI(t, "--config", w.config, "run")
	require.Equal(t, ExitOK, code, "stderr: %s", stderr)

	tbl := loadTable(t, w.table)
	assert.Equal(t, []string{"0", "1", "2"}, tbl.Column(table.ColumnTestCase))
	assert.Equal(t, []string{"valid", "spam", ""}, tbl.Column(table.ColumnExpected))
	assert.Equal(t, []string{"valid", "spam", "valid"}, tbl.Column("words_output"))
	for _, ns := range tbl.Column("words_runtime") {
		assert.NotEmpty(t, ns)
	}

	assert.Contains(t, stdout, "ok\twords\t")
	assert.Contains(t, stdout, "SUMMARY: ok=1 partial=0 failed=0")
	assert.Contains(t, stderr, `"msg":"classifier ready"`)

	m, err := orchestrator.ReadManifest(orchestrator.ManifestPath(w.table))
	require.NoError(t, err)
	require.Len(t, m.Classifiers, 1)
	assert.Equal(t, orchestrator.StatusOK, m.Classifiers[0].Status)

	metrics, err := os.ReadFile(filepath.Join(w.dir, "metrics.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "spambench_verdicts_total")

	t.Run("second run is identical", func(t *testing.T) {
		code, _, stderr := runCLI(t, "--config", w.config, "run")
		require.Equal(t, ExitOK, code, "stderr: %s", stderr)
		again := loadTable(t, w.table)
		assert.Equal(t, tbl.Column("words_output"), again.Column("words_output"))
		assert.Equal(t, tbl.Len(), again.Len())
	})

	t.Run("history", func(t *testing.T) {
		code, stdout, stderr := runCLI(t, "--config", w.config, "history", "--json")
		require.Equal(t, ExitOK, code, "stderr: %s", stderr)

		var records []history.RunRecord
		require.NoError(t, json.Unmarshal([]byte(stdout), &records))
		require.Len(t, records, 2)
		assert.Equal(t, 3, records[0].Samples)
		assert.True(t, records[0].StartedAt.After(records[1].StartedAt) || records[0].StartedAt.Equal(records[1].StartedAt))

		code, stdout, _ = runCLI(t, "--config", w.config, "history", records[1].ID)
		require.Equal(t, ExitOK, code)
		assert.Contains(t, stdout, records[1].ID)

		code, _, _ = runCLI(t, "--config", w.config, "history", "00000000-0000-0000-0000-000000000000")
		assert.Equal(t, ExitUsage, code)
	})

	t.Run("report", func(t *testing.T) {
		code, stdout, stderr := runCLI(t, "--config", w.config, "report")
		require.Equal(t, ExitOK, code, "stderr: %s", stderr)
		assert.Contains(t, stdout, "Classifier Report:")
		assert.Contains(t, stdout, "words")

		code, stdout, _ = runCLI(t, "report", "--table", w.table, "--json")
		require.Equal(t, ExitOK, code)
		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &decoded))
	})
}

func TestRun_ConstructionFailureIsPartial(t *testing.T) {
	w := newWorkspace(t, wordlistClassifier+`  - id: broken
    kind: wordlist
    wordlist:
      dictionary: missing.txt
`)

	code, stdout, stderr := runCLI(t, "--config", w.config, "run", "--no-history")
	require.Equal(t, ExitPartial, code, "stderr: %s", stderr)
	assert.Contains(t, stderr, "failed construction: broken")
	assert.Contains(t, stdout, "construction_failed\tbroken")

	tbl := loadTable(t, w.table)
	assert.NotNil(t, tbl.Column("words_output"))
	header, err := tbl.Header(table.HeaderUnion)
	require.NoError(t, err)
	assert.NotContains(t, header, "broken_output")

	m, err := orchestrator.ReadManifest(orchestrator.ManifestPath(w.table))
	require.NoError(t, err)
	status, ok := m.Status("broken")
	require.True(t, ok)
	assert.Equal(t, orchestrator.StatusConstructionFailed, status.Status)
	assert.NotEmpty(t, status.Error)

	_, err = os.Stat(filepath.Join(w.dir, "history"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "--no-history skips the database")
}

func TestRun_Only(t *testing.T) {
	w := newWorkspace(t, wordlistClassifier+`  - id: other
    kind: wordlist
    wordlist:
      words: [casino]
`)

	code, _, stderr := runCLI(t, "--config", w.config, "run", "--only", "other", "--no-history")
	require.Equal(t, ExitOK, code, "stderr: %s", stderr)

	header, err := loadTable(t, w.table).Header(table.HeaderUnion)
	require.NoError(t, err)
	assert.Equal(t, []string{"testCase", "length", "expected", "other_output", "other_runtime"}, header)

	code, _, _ = runCLI(t, "--config", w.config, "run", "--only", "nope")
	assert.Equal(t, ExitUsage, code)
}

func TestRun_UsageErrors(t *testing.T) {
	dir := t.TempDir()

	code, _, stderr := runCLI(t, "--config", filepath.Join(dir, "none.yaml"), "run")
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, stderr, "spambench run --init")

	code, _, _ = runCLI(t, "run", "--no-such-flag")
	assert.Equal(t, ExitUsage, code)

	code, _, _ = runCLI(t, "frobnicate")
	assert.Equal(t, ExitUsage, code)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("corpus: c\n"), 0o600))
	code, _, _ = runCLI(t, "--config", bad, "run")
	assert.Equal(t, ExitUsage, code)
}

func TestRun_MissingCorpusIsFatal(t *testing.T) {
	w := newWorkspace(t, wordlistClassifier)
	require.NoError(t, os.Remove(filepath.Join(w.dir, "corpus.txt")))

	code, _, _ := runCLI(t, "--config", w.config, "run", "--no-history")
	assert.Equal(t, ExitFatal, code)
}

func TestRun_Init(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spambench.yaml")

	code, stdout, _ := runCLI(t, "--config", path, "--output", "machine", "run", "--init")
	require.Equal(t, ExitOK, code)
	assert.Contains(t, stdout, "OK: wrote default config")
	_, err := os.Stat(path)
	require.NoError(t, err)

	code, _, _ = runCLI(t, "--config", path, "run", "--init")
	assert.Equal(t, ExitUsage, code, "existing config is not overwritten")
}

func TestDecode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.txt")
	content := corpus.Encode([]string{"hi", "naïve"}) + "\n%%%"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	code, stdout, _ := runCLI(t, "decode", "--corpus", path, "--json")
	require.Equal(t, ExitOK, code)

	var out decodeOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Len(t, out.Cases, 3)
	assert.Equal(t, "naïve", out.Cases[1].Text)
	assert.Equal(t, "", out.Cases[2].Text)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, 2, out.Errors[0].Line)

	code, stdout, _ = runCLI(t, "--output", "machine", "decode", "--corpus", path)
	require.Equal(t, ExitOK, code)
	assert.Contains(t, stdout, "1\t5\t\"naïve\"")
	assert.True(t, strings.HasPrefix(stdout, "INDEX\tLENGTH\tTEXT\n"))
}

func TestExitError(t *testing.T) {
	inner := errors.New("boom")
	err := fatalError(inner)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "boom", err.Error())

	var exitErr *ExitError
	require.True(t, errors.As(usageError(inner), &exitErr))
	assert.Equal(t, ExitUsage, exitErr.Code)

	assert.Equal(t, "exit 2", (&ExitError{Code: ExitPartial}).Error())
}
