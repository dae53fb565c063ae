// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history keeps a record of every evaluation run in BadgerDB.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/spambench/services/bench/orchestrator"
	badgerstore "github.com/AleutianAI/spambench/services/bench/storage/badger"
)

const (
	runPrefix   = "run/"
	indexPrefix = "idx/"
)

var (
	// ErrNotFound is returned when no run has the requested id.
	ErrNotFound = errors.New("run not found")

	// ErrInvalidRecord is returned when a record cannot be stored.
	ErrInvalidRecord = errors.New("invalid run record")
)

// RunRecord is the persisted summary of one run.
type RunRecord struct {
	ID           string                          `json:"id"`
	StartedAt    time.Time                       `json:"started_at"`
	FinishedAt   time.Time                       `json:"finished_at"`
	Corpus       string                          `json:"corpus"`
	Table        string                          `json:"table"`
	Samples      int                             `json:"samples"`
	Classifiers  []orchestrator.ClassifierStatus `json:"classifiers"`
	DecodeErrors int                             `json:"decode_errors"`
	Error        string                          `json:"error,omitempty"`
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// FromReport builds a record from an orchestrator report.
func FromReport(r *orchestrator.Report, corpusPath string, decodeErrors int, runErr error) RunRecord {
	rec := RunRecord{
		ID:           r.RunID,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		Corpus:       corpusPath,
		Table:        r.Table,
		Samples:      r.Samples,
		Classifiers:  r.Classifiers,
		DecodeErrors: decodeErrors,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	return rec
}

// Store persists run records.
//
// Description:
//
//	Records are stored under run/<id> as JSON. A second key,
//	idx/<started-at-nanos>/<id>, orders runs by start time so List can
//	iterate newest first without decoding every record.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db *badgerstore.DB
}

// NewStore wraps an opened database.
func NewStore(db *badgerstore.DB) *Store {
	return &Store{db: db}
}

// Save writes rec, replacing any record with the same id.
func (s *Store) Save(ctx context.Context, rec RunRecord) error {
	if _, err := uuid.Parse(rec.ID); err != nil {
		return fmt.Errorf("%w: id %q: %v", ErrInvalidRecord, rec.ID, err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}

	return s.db.Update(ctx, func(txn *badger.Txn) error {
		if prev, err := getLocked(txn, rec.ID); err == nil {
			if err := txn.Delete(indexKey(prev)); err != nil {
				return err
			}
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := txn.Set(runKey(rec.ID), data); err != nil {
			return err
		}
		return txn.Set(indexKey(rec), nil)
	})
}

// Get returns the record for id.
func (s *Store) Get(ctx context.Context, id string) (RunRecord, error) {
	var rec RunRecord
	err := s.db.View(ctx, func(txn *badger.Txn) error {
		var err error
		rec, err = getLocked(txn, id)
		return err
	})
	return rec, err
}

// List returns up to limit records, newest first. A limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]RunRecord, error) {
	var out []RunRecord
	err := s.db.View(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		prefix := []byte(indexPrefix)
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration must seek past the last key with the prefix.
		seek := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			key := string(it.Item().Key())
			id := key[len(key)-36:]
			rec, err := getLocked(txn, id)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

func getLocked(txn *badger.Txn, id string) (RunRecord, error) {
	var rec RunRecord
	item, err := txn.Get(runKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return rec, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return rec, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	return rec, err
}

func runKey(id string) []byte {
	return []byte(runPrefix + id)
}

// indexKey sorts by start time; the zero-padded width keeps byte order equal
// to numeric order for any time after 1970.
func indexKey(rec RunRecord) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", indexPrefix, rec.StartedAt.UnixNano(), rec.ID))
}
