// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package adapters

import (
	"context"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/AleutianAI/spambench/services/bench/classifier"
)

// Adapter kinds accepted in configuration.
const (
	KindWordlist = "wordlist"
	KindBayes    = "bayes"
	KindSpamd    = "spamd"
	KindAkismet  = "akismet"
	KindLLM      = "llm"
)

// ErrUnknownKind is returned for a Spec with an unrecognized kind.
var ErrUnknownKind = errors.New("unknown classifier kind")

// Spec describes one classifier to construct. Only the options block that
// matches Kind is read.
type Spec struct {
	ID      string `yaml:"id" validate:"required"`
	Kind    string `yaml:"kind" validate:"required,oneof=wordlist bayes spamd akismet llm"`
	Enabled *bool  `yaml:"enabled,omitempty"`

	Wordlist *WordlistOptions `yaml:"wordlist,omitempty"`
	Bayes    *BayesOptions    `yaml:"bayes,omitempty"`
	Spamd    *SpamdOptions    `yaml:"spamd,omitempty"`
	Akismet  *AkismetOptions  `yaml:"akismet,omitempty"`
	LLM      *LLMOptions      `yaml:"llm,omitempty"`
}

// IsEnabled reports whether the spec should be built. Specs are enabled
// unless explicitly disabled.
func (s Spec) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// KeyEnv returns the environment variable naming the spec's API key, or "".
func (s Spec) KeyEnv() string {
	switch {
	case s.Kind == KindAkismet && s.Akismet != nil:
		return s.Akismet.KeyEnv
	case s.Kind == KindLLM && s.LLM != nil:
		return s.LLM.KeyEnv
	}
	return ""
}

// Secrets resolves sealed API keys by environment variable name.
type Secrets interface {
	// Enclave returns the sealed key, or nil if it is not set.
	Enclave(name string) *memguard.Enclave
}

// Factory returns a classifier.Factory that builds spec.
func Factory(ctx context.Context, spec Spec, secrets Secrets) classifier.Factory {
	return func() (classifier.Adapter, error) {
		return build(ctx, spec, secrets)
	}
}

func build(ctx context.Context, spec Spec, secrets Secrets) (classifier.Adapter, error) {
	var key *memguard.Enclave
	if name := spec.KeyEnv(); name != "" && secrets != nil {
		key = secrets.Enclave(name)
	}

	switch spec.Kind {
	case KindWordlist:
		return NewWordlist(spec.ID, deref(spec.Wordlist))
	case KindBayes:
		return NewBayes(spec.ID, deref(spec.Bayes))
	case KindSpamd:
		return NewSpamd(ctx, spec.ID, deref(spec.Spamd))
	case KindAkismet:
		return NewAkismet(ctx, spec.ID, deref(spec.Akismet), key)
	case KindLLM:
		return NewLLM(spec.ID, deref(spec.LLM), key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}
}

func deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

// BuildAll constructs every enabled spec into reg, in order. A failing spec
// is recorded by the registry and does not stop the others. It returns the
// number of adapters built.
func BuildAll(ctx context.Context, reg *classifier.Registry, specs []Spec, secrets Secrets) int {
	built := 0
	for _, spec := range specs {
		if !spec.IsEnabled() {
			continue
		}
		if err := reg.Build(spec.ID, Factory(ctx, spec, secrets)); err == nil {
			built++
		}
	}
	return built
}
