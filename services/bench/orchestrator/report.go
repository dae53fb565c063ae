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
	"time"

	"github.com/AleutianAI/spambench/services/bench/classifier"
)

// Status summarizes how one classifier fared in a run.
type Status string

const (
	// StatusOK means every sample produced a verdict.
	StatusOK Status = "ok"

	// StatusPartial means at least one sample failed or timed out.
	StatusPartial Status = "partial"

	// StatusConstructionFailed means the adapter never ran and has no columns.
	StatusConstructionFailed Status = "construction_failed"

	// StatusAborted means the run stopped during or before this classifier.
	StatusAborted Status = "aborted"
)

// ClassifierStatus is the per-classifier outcome of a run.
type ClassifierStatus struct {
	ID            string        `yaml:"id" json:"id"`
	Status        Status        `yaml:"status" json:"status"`
	Samples       int           `yaml:"samples" json:"samples"`
	Spam          int           `yaml:"spam" json:"spam"`
	Valid         int           `yaml:"valid" json:"valid"`
	Indeterminate int           `yaml:"indeterminate" json:"indeterminate"`
	Failures      int           `yaml:"failures" json:"failures"`
	Timeouts      int           `yaml:"timeouts" json:"timeouts"`
	Elapsed       time.Duration `yaml:"elapsed" json:"elapsed_ns"`
	Error         string        `yaml:"error,omitempty" json:"error,omitempty"`
}

func (s *ClassifierStatus) count(v classifier.Verdict) {
	switch v {
	case classifier.Spam:
		s.Spam++
	case classifier.Valid:
		s.Valid++
	default:
		s.Indeterminate++
	}
}

// Report is the outcome of Orchestrator.Run.
type Report struct {
	RunID       string             `yaml:"run_id" json:"run_id"`
	Table       string             `yaml:"table" json:"table"`
	StartedAt   time.Time          `yaml:"started_at" json:"started_at"`
	FinishedAt  time.Time          `yaml:"finished_at" json:"finished_at"`
	Samples     int                `yaml:"samples" json:"samples"`
	Classifiers []ClassifierStatus `yaml:"classifiers" json:"classifiers"`
}

// ConstructionFailures returns the ids of classifiers that never ran.
func (r *Report) ConstructionFailures() []string {
	var ids []string
	for _, c := range r.Classifiers {
		if c.Status == StatusConstructionFailed {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// Partial reports whether any classifier failed entirely or on some samples.
func (r *Report) Partial() bool {
	for _, c := range r.Classifiers {
		if c.Status != StatusOK {
			return true
		}
	}
	return false
}

// Status returns the status for id.
func (r *Report) Status(id string) (ClassifierStatus, bool) {
	for _, c := range r.Classifiers {
		if c.ID == id {
			return c, true
		}
	}
	return ClassifierStatus{}, false
}
