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
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/AleutianAI/spambench/services/bench/classifier"
)

// Wordlist matching modes.
const (
	MatchExact    = "exact"
	MatchPhonetic = "phonetic"
)

// ErrEmptyDictionary is returned when a wordlist has no words.
var ErrEmptyDictionary = errors.New("dictionary has no words")

// WordlistOptions configures a dictionary-based profanity classifier.
type WordlistOptions struct {
	// Dictionary is a file with one word per line. Blank lines and lines
	// starting with # are ignored.
	Dictionary string `yaml:"dictionary"`

	// Words are added to the dictionary.
	Words []string `yaml:"words"`

	// Mode is "exact" (default) or "phonetic" (Soundex codes are compared).
	Mode string `yaml:"mode" validate:"omitempty,oneof=exact phonetic"`

	// MinMatches is the number of matching tokens that makes a sample spam.
	// With a value above one, samples with some but fewer matches are
	// indeterminate. Default 1.
	MinMatches int `yaml:"min_matches" validate:"gte=0"`

	// Deobfuscate undoes leetspeak substitutions before matching.
	Deobfuscate bool `yaml:"deobfuscate"`
}

// Wordlist flags samples containing dictionary words.
//
// Description:
//
//	The native outcome is the list of matching tokens. An empty list is
//	Valid, a list of at least MinMatches is Spam, anything in between is
//	Indeterminate. With MinMatches of one this is the plain "is profane"
//	boolean.
type Wordlist struct {
	id          string
	words       map[string]struct{}
	phonetic    bool
	minMatches  int
	deobfuscate bool
}

// NewWordlist loads the dictionary. A missing file or an empty dictionary is
// a construction error.
func NewWordlist(id string, opts WordlistOptions) (*Wordlist, error) {
	w := &Wordlist{
		id:          id,
		words:       make(map[string]struct{}),
		phonetic:    opts.Mode == MatchPhonetic,
		minMatches:  opts.MinMatches,
		deobfuscate: opts.Deobfuscate,
	}
	if w.minMatches <= 0 {
		w.minMatches = 1
	}

	if opts.Dictionary != "" {
		if err := w.loadFile(opts.Dictionary); err != nil {
			return nil, err
		}
	}
	for _, word := range opts.Words {
		w.add(word)
	}
	if len(w.words) == 0 {
		return nil, ErrEmptyDictionary
	}
	return w, nil
}

func (w *Wordlist) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open dictionary: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		w.add(line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read dictionary: %w", err)
	}
	return nil
}

func (w *Wordlist) add(word string) {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return
	}
	if w.phonetic {
		word = soundex(word)
		if word == "" {
			return
		}
	}
	w.words[word] = struct{}{}
}

// ID implements classifier.Adapter.
func (w *Wordlist) ID() string { return w.id }

// Matches returns the tokens of text found in the dictionary, in order.
func (w *Wordlist) Matches(text string) []string {
	var matches []string
	for _, tok := range tokenize(text, w.deobfuscate) {
		key := tok
		if w.phonetic {
			key = soundex(tok)
		}
		if _, ok := w.words[key]; ok && key != "" {
			matches = append(matches, tok)
		}
	}
	return matches
}

// Classify implements classifier.Adapter.
func (w *Wordlist) Classify(ctx context.Context, text string) (classifier.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return classifier.Indeterminate, err
	}
	n := len(w.Matches(text))
	switch {
	case n == 0:
		return classifier.Valid, nil
	case n >= w.minMatches:
		return classifier.Spam, nil
	default:
		return classifier.Indeterminate, nil
	}
}
