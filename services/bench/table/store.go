// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package table

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithHeaderPolicy sets how the header is derived on write.
func WithHeaderPolicy(p HeaderPolicy) StoreOption {
	return func(s *Store) { s.policy = p }
}

// WithBaseTable supplies the rows and initial schema used when the backing
// file is absent or empty.
func WithBaseTable(t *Table) StoreOption {
	return func(s *Store) { s.base = t }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store is the CSV-backed result table.
//
// Description:
//
//	Every Merge loads the whole file, sets one column from a value slice
//	indexed by each row's testCase cell, and atomically replaces the file.
//	Row order on disk is preserved, so values are joined by index and never
//	by position.
//
// Thread Safety: Merges are serialized by an internal mutex.
type Store struct {
	mu     sync.Mutex
	path   string
	policy HeaderPolicy
	base   *Table
	logger *slog.Logger
}

// NewStore creates a Store for the CSV file at path.
func NewStore(path string, opts ...StoreOption) *Store {
	s := &Store{
		path:   path,
		policy: HeaderUnion,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Policy returns the header policy.
func (s *Store) Policy() HeaderPolicy {
	return s.policy
}

// Load reads the current table. An absent or empty file yields a copy of the
// base table, or an empty table if none was supplied.
func (s *Store) Load(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := s.load()
	if errors.Is(err, ErrNoBaseTable) {
		return &Table{}, nil
	}
	return t, err
}

func (s *Store) load() (*Table, error) {
	data, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read table: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		if s.base == nil {
			return nil, ErrNoBaseTable
		}
		return s.base.Clone(), nil
	}
	return Decode(bytes.NewReader(data))
}

// Merge sets column to values on every row and persists the table.
//
// Inputs:
//   - ctx: Checked before any I/O.
//   - column: Target column. Created on the right if new, overwritten in
//     place if it exists. Must not be the testCase column.
//   - values: Cells indexed by testCase. Rows whose index falls outside
//     values receive an empty cell.
//
// Outputs:
//   - error: *MergeWriteError on any failure. The file on disk is either the
//     previous version or the fully merged one, never a partial write.
func (s *Store) Merge(ctx context.Context, column string, values []string) error {
	fail := func(err error) error {
		return &MergeWriteError{Path: s.path, Column: column, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if column == "" || column == ColumnTestCase {
		return fail(fmt.Errorf("%w: %q", ErrReservedColumn, column))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.load()
	if err != nil {
		return fail(err)
	}

	for _, row := range t.Rows {
		idx, err := row.Index()
		if err != nil {
			return fail(err)
		}
		cell := ""
		if idx < len(values) {
			cell = values[idx]
		}
		row.Set(column, cell)
	}

	data, err := Encode(t, s.policy)
	if err != nil {
		return fail(err)
	}
	if err := WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fail(err)
	}

	s.logger.Debug("merged column",
		slog.String("path", s.path),
		slog.String("column", column),
		slog.Int("rows", t.Len()))
	return nil
}

// WriteFileAtomic replaces path with data durably: temp file in the same
// directory, fsync, rename, then fsync of the directory.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return syncDir(dir)
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
