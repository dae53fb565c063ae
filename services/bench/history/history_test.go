// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/spambench/services/bench/orchestrator"
	badgerstore "github.com/AleutianAI/spambench/services/bench/storage/badger"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	db, err := badgerstore.Open(badgerstore.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func record(start time.Time) RunRecord {
	return RunRecord{
		ID:        NewRunID(),
		StartedAt: start,
		Corpus:    "data/test-text.txt",
		Classifiers: []orchestrator.ClassifierStatus{
			{ID: "bayes", Status: orchestrator.StatusOK, Samples: 2, Spam: 1, Valid: 1},
		},
	}
}

func TestStore_SaveGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	rec := record(time.Unix(100, 0).UTC())

	require.NoError(t, s.Save(ctx, rec))
	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.True(t, rec.StartedAt.Equal(got.StartedAt))
	assert.Equal(t, rec.Classifiers, got.Classifiers)

	_, err = s.Get(ctx, NewRunID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SaveRejectsBadID(t *testing.T) {
	err := openStore(t).Save(context.Background(), RunRecord{ID: "not-a-uuid"})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	older := record(time.Unix(100, 0))
	newest := record(time.Unix(300, 0))
	middle := record(time.Unix(200, 0))
	for _, r := range []RunRecord{older, newest, middle} {
		require.NoError(t, s.Save(ctx, r))
	}

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{newest.ID, middle.ID, older.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	two, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	assert.Equal(t, newest.ID, two[0].ID)
}

func TestStore_SaveReplacesIndex(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	rec := record(time.Unix(100, 0))
	require.NoError(t, s.Save(ctx, rec))
	rec.StartedAt = time.Unix(500, 0)
	rec.FinishedAt = time.Unix(600, 0)
	require.NoError(t, s.Save(ctx, rec))

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(600), all[0].FinishedAt.Unix())
}

func TestStore_ListEmpty(t *testing.T) {
	all, err := openStore(t).List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFromReport(t *testing.T) {
	rep := &orchestrator.Report{
		RunID:   NewRunID(),
		Table:   "results.csv",
		Samples: 3,
		Classifiers: []orchestrator.ClassifierStatus{
			{ID: "a", Status: orchestrator.StatusConstructionFailed, Error: "boom"},
		},
	}

	rec := FromReport(rep, "corpus.txt", 2, errors.New("disk full"))
	assert.Equal(t, rep.RunID, rec.ID)
	assert.Equal(t, "corpus.txt", rec.Corpus)
	assert.Equal(t, "results.csv", rec.Table)
	assert.Equal(t, 2, rec.DecodeErrors)
	assert.Equal(t, "disk full", rec.Error)
	assert.Equal(t, rep.Classifiers, rec.Classifiers)
}
