// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package table holds the persistent, row-indexed result table and its
// column-wise merge.
package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/AleutianAI/spambench/services/bench/corpus"
)

// Base columns present in every table.
const (
	ColumnTestCase = "testCase"
	ColumnLength   = "length"
	ColumnExpected = "expected"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrSchemaMismatch is returned under HeaderStrict when rows disagree on keys.
	ErrSchemaMismatch = errors.New("rows have different column sets")

	// ErrNoBaseTable is returned when the backing store is empty and no base
	// table was supplied to initialize it.
	ErrNoBaseTable = errors.New("table is empty and no base table was supplied")

	// ErrBadIndex is returned when a row's testCase cell is not a valid index.
	ErrBadIndex = errors.New("invalid testCase index")

	// ErrReservedColumn is returned when a merge targets the testCase column.
	ErrReservedColumn = errors.New("column is reserved")

	// ErrMalformed is returned when the backing CSV cannot be parsed.
	ErrMalformed = errors.New("malformed table")
)

// MergeWriteError reports a merge that could not be completed. The run
// cannot continue after one.
type MergeWriteError struct {
	Path   string
	Column string
	Err    error
}

func (e *MergeWriteError) Error() string {
	return fmt.Sprintf("merge column %q into %s: %v", e.Column, e.Path, e.Err)
}

func (e *MergeWriteError) Unwrap() error {
	return e.Err
}

// -----------------------------------------------------------------------------
// Row
// -----------------------------------------------------------------------------

// Row is a mapping from column name to cell that remembers key insertion order.
type Row struct {
	keys   []string
	values map[string]string
}

// NewRow creates an empty row.
func NewRow() *Row {
	return &Row{values: make(map[string]string)}
}

// Set assigns a cell. A new key is appended after existing keys; an existing
// key keeps its position.
func (r *Row) Set(key, value string) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns a cell and whether the key is present.
func (r *Row) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the row's keys in insertion order.
func (r *Row) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Index returns the row's stable testCase index.
func (r *Row) Index() (int, error) {
	raw, ok := r.values[ColumnTestCase]
	if !ok {
		return 0, fmt.Errorf("%w: row has no %s cell", ErrBadIndex, ColumnTestCase)
	}
	i, err := strconv.Atoi(raw)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadIndex, raw)
	}
	return i, nil
}

func (r *Row) clone() *Row {
	c := &Row{keys: r.Keys(), values: make(map[string]string, len(r.values))}
	for k, v := range r.values {
		c.values[k] = v
	}
	return c
}

// -----------------------------------------------------------------------------
// Header policy
// -----------------------------------------------------------------------------

// HeaderPolicy decides how the serialized header is derived from the rows.
type HeaderPolicy int

const (
	// HeaderUnion uses every key seen across all rows, in first-seen order.
	HeaderUnion HeaderPolicy = iota

	// HeaderStrict requires all rows to carry the same keys and fails with
	// ErrSchemaMismatch otherwise.
	HeaderStrict

	// HeaderFirstRow uses the first row's keys only. Keys that appear only in
	// later rows are dropped on write.
	HeaderFirstRow
)

// String returns the config name of the policy.
func (p HeaderPolicy) String() string {
	switch p {
	case HeaderStrict:
		return "strict"
	case HeaderFirstRow:
		return "first_row"
	default:
		return "union"
	}
}

// ParseHeaderPolicy parses a config name. The empty string selects HeaderUnion.
func ParseHeaderPolicy(s string) (HeaderPolicy, error) {
	switch s {
	case "", "union":
		return HeaderUnion, nil
	case "strict":
		return HeaderStrict, nil
	case "first_row":
		return HeaderFirstRow, nil
	default:
		return HeaderUnion, fmt.Errorf("unknown header policy %q", s)
	}
}

// -----------------------------------------------------------------------------
// Table
// -----------------------------------------------------------------------------

// Table is an in-memory result table.
type Table struct {
	Rows []*Row
}

// NewBaseTable builds the initial table for a corpus: one row per test case
// with its index, its length in runes and the expected label, if any.
func NewBaseTable(cases []corpus.TestCase, labels []string) *Table {
	t := &Table{Rows: make([]*Row, 0, len(cases))}
	for _, tc := range cases {
		r := NewRow()
		r.Set(ColumnTestCase, strconv.Itoa(tc.Index))
		r.Set(ColumnLength, strconv.Itoa(utf8.RuneCountInString(tc.Text)))
		expected := ""
		if tc.Index < len(labels) {
			expected = labels[tc.Index]
		}
		r.Set(ColumnExpected, expected)
		t.Rows = append(t.Rows, r)
	}
	return t
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	c := &Table{Rows: make([]*Row, len(t.Rows))}
	for i, r := range t.Rows {
		c.Rows[i] = r.clone()
	}
	return c
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Column returns one column's cells in row order. Rows without the key
// contribute an empty cell.
func (t *Table) Column(name string) []string {
	out := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i], _ = r.Get(name)
	}
	return out
}

// Header derives the header under policy.
func (t *Table) Header(policy HeaderPolicy) ([]string, error) {
	if len(t.Rows) == 0 {
		return nil, nil
	}

	switch policy {
	case HeaderFirstRow:
		return t.Rows[0].Keys(), nil

	case HeaderStrict:
		first := t.Rows[0].Keys()
		for i, r := range t.Rows[1:] {
			if !sameKeySet(first, r) {
				return nil, fmt.Errorf("%w: row %d differs from row 0", ErrSchemaMismatch, i+1)
			}
		}
		return first, nil

	default:
		seen := make(map[string]struct{})
		var header []string
		for _, r := range t.Rows {
			for _, k := range r.keys {
				if _, ok := seen[k]; ok {
					continue
				}
				seen[k] = struct{}{}
				header = append(header, k)
			}
		}
		return header, nil
	}
}

func sameKeySet(keys []string, r *Row) bool {
	if len(keys) != len(r.keys) {
		return false
	}
	for _, k := range keys {
		if _, ok := r.values[k]; !ok {
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------
// CSV codec
// -----------------------------------------------------------------------------

// Encode serializes the table as CSV under policy. Output is deterministic:
// identical tables encode to identical bytes.
func Encode(t *Table, policy HeaderPolicy) ([]byte, error) {
	header, err := t.Header(policy)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if len(header) > 0 {
		if err := w.Write(header); err != nil {
			return nil, err
		}
	}
	record := make([]string, len(header))
	for _, r := range t.Rows {
		for i, k := range header {
			record[i], _ = r.Get(k)
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a CSV table. The first record is the header and must not
// repeat a column name. A record shorter than the header only carries the
// keys it has cells for; a longer one is malformed.
func Decode(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	t := &Table{}
	if len(records) == 0 {
		return t, nil
	}

	header := records[0]
	seen := make(map[string]struct{}, len(header))
	for _, name := range header {
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q in header", ErrMalformed, name)
		}
		seen[name] = struct{}{}
	}
	for n, rec := range records[1:] {
		if len(rec) > len(header) {
			return nil, fmt.Errorf("%w: record %d has %d fields, header has %d", ErrMalformed, n+1, len(rec), len(header))
		}
		row := NewRow()
		for i, cell := range rec {
			row.Set(header[i], cell)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
