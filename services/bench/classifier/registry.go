// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classifier

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/AleutianAI/spambench/pkg/validation"
)

// Column-name suffixes for the two metrics recorded per classifier.
const (
	OutputSuffix  = "_output"
	RuntimeSuffix = "_runtime"
)

// Columns holds the result-table column names owned by one classifier.
type Columns struct {
	Output  string
	Runtime string
}

// ColumnsFor derives the column names for a classifier id.
func ColumnsFor(id string) Columns {
	return Columns{
		Output:  id + OutputSuffix,
		Runtime: id + RuntimeSuffix,
	}
}

// Entry is one registered adapter and its columns.
type Entry struct {
	Adapter Adapter
	Columns Columns
}

// ID returns the adapter's id.
func (e Entry) ID() string {
	return e.Adapter.ID()
}

// Factory constructs an adapter. It runs once, at registration time.
type Factory func() (Adapter, error)

// RegistrationHook is called when an adapter is registered or fails to construct.
type RegistrationHook func(id string, err error)

// Registry is the ordered set of classifiers taking part in a run.
//
// Description:
//
//	Registration order is significant: the orchestrator invokes adapters in
//	exactly this order, and their columns are appended to the result table in
//	this order. Construction failures are kept alongside successful entries so
//	callers can report which classifiers were skipped entirely.
//
// Thread Safety: Safe for concurrent use via read-write mutex.
type Registry struct {
	mu       sync.RWMutex
	entries  []Entry
	index    map[string]int
	failures []*ConstructionError
	order    []string
	hooks    []RegistrationHook
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		index: make(map[string]int),
	}
}

// Register adds an adapter at the end of the registration order.
//
// Outputs:
//   - error: ErrNilAdapter, ErrInvalidID, or ErrAlreadyRegistered.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return ErrNilAdapter
	}
	id := a.ID()
	if err := validation.ValidateClassifierID(id); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidID, err)
	}

	r.mu.Lock()
	if r.takenLocked(id) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	r.index[id] = len(r.entries)
	r.entries = append(r.entries, Entry{Adapter: a, Columns: ColumnsFor(id)})
	r.order = append(r.order, id)
	hooks := r.hooks
	r.mu.Unlock()

	// Hooks run unlocked so they may query the registry.
	for _, hook := range hooks {
		hook(id, nil)
	}
	return nil
}

// MustRegister registers an adapter and panics on error.
// Intended for tests and static wiring only.
func (r *Registry) MustRegister(a Adapter) {
	if err := r.Register(a); err != nil {
		panic(fmt.Sprintf("classifier: failed to register: %v", err))
	}
}

// Build runs factory and registers the result under id.
//
// Description:
//
//	A factory error or panic is recorded as a ConstructionError and returned;
//	the classifier is then skipped for the run while others proceed. The
//	constructed adapter must report the same id it was built under.
func (r *Registry) Build(id string, factory Factory) (err error) {
	if err := validation.ValidateClassifierID(id); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidID, err)
	}
	r.mu.RLock()
	taken := r.takenLocked(id)
	r.mu.RUnlock()
	if taken {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}

	adapter, err := safeConstruct(factory)
	if err == nil && adapter == nil {
		err = ErrNilAdapter
	}
	if err == nil && adapter.ID() != id {
		err = fmt.Errorf("%w: factory for %q built adapter %q", ErrInvalidID, id, adapter.ID())
	}
	if err != nil {
		cerr := &ConstructionError{ClassifierID: id, Err: err}
		r.mu.Lock()
		r.failures = append(r.failures, cerr)
		r.order = append(r.order, id)
		hooks := r.hooks
		r.mu.Unlock()
		for _, hook := range hooks {
			hook(id, cerr)
		}
		return cerr
	}
	return r.Register(adapter)
}

func safeConstruct(factory Factory) (a Adapter, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during construction: %v", p)
		}
	}()
	return factory()
}

func (r *Registry) takenLocked(id string) bool {
	if _, ok := r.index[id]; ok {
		return true
	}
	for _, f := range r.failures {
		if f.ClassifierID == id {
			return true
		}
	}
	return false
}

// Get returns the entry registered under id.
func (r *Registry) Get(id string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.entries[i], nil
}

// Entries returns the registered entries in registration order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// IDs returns registered ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.entries))
	for i, e := range r.entries {
		ids[i] = e.ID()
	}
	return ids
}

// Failures returns the construction failures in the order they happened.
func (r *Registry) Failures() []*ConstructionError {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ConstructionError, len(r.failures))
	copy(out, r.failures)
	return out
}

// Configured returns every id that was registered or failed construction,
// in the order it was attempted.
func (r *Registry) Configured() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Failure returns the construction failure for id, if any.
func (r *Registry) Failure(id string) (*ConstructionError, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, f := range r.failures {
		if f.ClassifierID == id {
			return f, true
		}
	}
	return nil, false
}

// Len returns the number of successfully registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// AddHook adds a hook called on every registration or construction failure.
func (r *Registry) AddHook(hook RegistrationHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// Close closes every adapter that implements io.Closer, in registration order.
// All adapters are closed even if one fails; the joined error is returned.
func (r *Registry) Close() error {
	r.mu.RLock()
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.RUnlock()

	var errs []error
	for _, e := range entries {
		if c, ok := e.Adapter.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", e.ID(), err))
			}
		}
	}
	return errors.Join(errs...)
}
