// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package corpus decodes the evaluation corpus into ordered test cases.
//
// The corpus file holds one base64-encoded sample per line. Decoding is
// fail-soft: a line that is not valid base64 becomes an empty sample and a
// DecodeError is recorded on the Corpus, so index alignment with every later
// stage is preserved.
package corpus

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	// ErrInvalidLabel is returned when a labels file contains a value other
	// than "spam", "valid" or an empty line.
	ErrInvalidLabel = errors.New("invalid expected label")
)

// Expected label values accepted in a labels file.
const (
	LabelSpam  = "spam"
	LabelValid = "valid"
)

// TestCase is one decoded sample.
//
// Index is the 0-based position in the corpus file and is the join key used
// by every later stage. TestCase values are never mutated after decoding.
type TestCase struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// DecodeError reports a corpus line that could not be base64-decoded.
type DecodeError struct {
	// Line is the 0-based line number, equal to the TestCase index.
	Line int

	// Err is the last decoder error observed.
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("corpus line %d: invalid base64: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Corpus is the decoded test-case sequence plus any fail-soft decode errors.
type Corpus struct {
	Cases  []TestCase
	Errors []*DecodeError
}

// Len returns the number of test cases.
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Cases)
}

// encodings are tried in order. The corpus is produced by tools that do not
// agree on padding or alphabet.
var encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// Decode reads a whole corpus from r.
//
// Lines are split on "\n" exactly, so a trailing newline yields a final empty
// sample. A trailing "\r" on a line is dropped. An empty input yields an empty
// corpus.
func Decode(r io.Reader) (*Corpus, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	if len(data) == 0 {
		return &Corpus{}, nil
	}
	return DecodeLines(strings.Split(string(data), "\n")), nil
}

// DecodeLines decodes already-split corpus lines.
func DecodeLines(lines []string) *Corpus {
	c := &Corpus{Cases: make([]TestCase, len(lines))}
	for i, line := range lines {
		text, err := decodeLine(strings.TrimSuffix(line, "\r"))
		if err != nil {
			c.Errors = append(c.Errors, &DecodeError{Line: i, Err: err})
		}
		c.Cases[i] = TestCase{Index: i, Text: text}
	}
	return c
}

// Load decodes the corpus file at path.
func Load(path string) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Encode is the inverse of Decode. It is used to build corpus fixtures.
func Encode(texts []string) string {
	lines := make([]string, len(texts))
	for i, t := range texts {
		lines[i] = base64.StdEncoding.EncodeToString([]byte(t))
	}
	return strings.Join(lines, "\n")
}

func decodeLine(line string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil
	}
	var lastErr error
	for _, enc := range encodings {
		raw, err := enc.DecodeString(line)
		if err == nil {
			return strings.ToValidUTF8(string(raw), "\uFFFD"), nil
		}
		lastErr = err
	}
	return "", lastErr
}

// LoadLabels reads an expected-labels file, one label per line, aligned with
// the corpus. Labels are case-insensitive; empty lines mean "unknown".
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	lines := strings.Split(string(data), "\n")
	labels := make([]string, len(lines))
	for i, line := range lines {
		label := strings.ToLower(strings.TrimSpace(line))
		switch label {
		case "", LabelSpam, LabelValid:
			labels[i] = label
		default:
			return nil, fmt.Errorf("%w: line %d: %q", ErrInvalidLabel, i, line)
		}
	}
	return labels, nil
}
