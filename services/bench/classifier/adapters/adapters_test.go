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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/spambench/services/bench/classifier"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"buy", "v1agra", "now"}, tokenize("Buy V1agra, now!", false))
	assert.Equal(t, []string{"buy", "viagra", "now"}, tokenize("Buy V1agra, now!", true))
	assert.Empty(t, tokenize("  ...  ", false))
}

func TestSoundex(t *testing.T) {
	cases := map[string]string{
		"Robert":   "R163",
		"Rupert":   "R163",
		"Ashcraft": "A261",
		"Tymczak":  "T522",
		"Pfister":  "P236",
		"a":        "A000",
		"123":      "",
	}
	for word, want := range cases {
		assert.Equal(t, want, soundex(word), word)
	}
}

func TestWordlist(t *testing.T) {
	ctx := context.Background()

	t.Run("exact", func(t *testing.T) {
		w, err := NewWordlist("words", WordlistOptions{Words: []string{"Viagra", "casino"}})
		require.NoError(t, err)
		assert.Equal(t, "words", w.ID())

		v, err := w.Classify(ctx, "Cheap viagra here")
		require.NoError(t, err)
		assert.Equal(t, classifier.Spam, v)

		v, err = w.Classify(ctx, "lunch at noon")
		require.NoError(t, err)
		assert.Equal(t, classifier.Valid, v)

		v, err = w.Classify(ctx, "v1agra")
		require.NoError(t, err)
		assert.Equal(t, classifier.Valid, v, "obfuscation not undone by default")
	})

	t.Run("deobfuscate", func(t *testing.T) {
		w, err := NewWordlist("words", WordlistOptions{Words: []string{"viagra"}, Deobfuscate: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"viagra"}, w.Matches("V1@gra"))
	})

	t.Run("phonetic", func(t *testing.T) {
		w, err := NewWordlist("words", WordlistOptions{Words: []string{"robert"}, Mode: MatchPhonetic})
		require.NoError(t, err)
		assert.Equal(t, []string{"rupert"}, w.Matches("ask Rupert"))
	})

	t.Run("min matches band", func(t *testing.T) {
		w, err := NewWordlist("words", WordlistOptions{Words: []string{"free", "money"}, MinMatches: 2})
		require.NoError(t, err)

		v, err := w.Classify(ctx, "free lunch")
		require.NoError(t, err)
		assert.Equal(t, classifier.Indeterminate, v)

		v, err = w.Classify(ctx, "free money")
		require.NoError(t, err)
		assert.Equal(t, classifier.Spam, v)
	})

	t.Run("dictionary file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dict.txt")
		require.NoError(t, os.WriteFile(path, []byte("# header\n\nscam\n"), 0o600))
		w, err := NewWordlist("words", WordlistOptions{Dictionary: path})
		require.NoError(t, err)
		assert.Equal(t, []string{"scam"}, w.Matches("a scam"))
	})

	t.Run("missing dictionary", func(t *testing.T) {
		_, err := NewWordlist("words", WordlistOptions{Dictionary: filepath.Join(t.TempDir(), "nope")})
		assert.Error(t, err)
	})

	t.Run("empty dictionary", func(t *testing.T) {
		_, err := NewWordlist("words", WordlistOptions{Words: []string{"  "}})
		assert.ErrorIs(t, err, ErrEmptyDictionary)
	})

	t.Run("cancelled context", func(t *testing.T) {
		w, err := NewWordlist("words", WordlistOptions{Words: []string{"x"}})
		require.NoError(t, err)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = w.Classify(cctx, "x")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

const trainingSet = `# label	text
spam	win free money now claim your prize
spam	free prize winner click here now
spam	cheap pills free shipping winner
valid	meeting moved to thursday afternoon
valid	please review the attached report
ham	lunch with the team on thursday
`

func TestBayes(t *testing.T) {
	ctx := context.Background()

	for _, algo := range []string{AlgorithmNaive, AlgorithmFisher} {
		t.Run(algo, func(t *testing.T) {
			b, err := NewBayesFromReader("bayes", BayesOptions{Algorithm: algo}, strings.NewReader(trainingSet))
			require.NoError(t, err)
			assert.Positive(t, b.vocab)

			spamScore := b.Score("claim your free prize winner")
			validScore := b.Score("review the report thursday")
			assert.Greater(t, spamScore, validScore)

			v, err := b.Classify(ctx, "free prize winner claim money now")
			require.NoError(t, err)
			assert.Equal(t, classifier.Spam, v)

			v, err = b.Classify(ctx, "please review the meeting report thursday afternoon")
			require.NoError(t, err)
			assert.Equal(t, classifier.Valid, v)
		})
	}

	t.Run("unknown words are indeterminate", func(t *testing.T) {
		b, err := NewBayesFromReader("bayes", BayesOptions{Algorithm: AlgorithmFisher}, strings.NewReader(trainingSet))
		require.NoError(t, err)
		assert.InDelta(t, 0.5, b.Score("zzz"), 1e-9)

		v, err := b.Classify(ctx, "qqq")
		require.NoError(t, err)
		assert.Equal(t, classifier.Indeterminate, v)
	})

	t.Run("single class", func(t *testing.T) {
		_, err := NewBayesFromReader("bayes", BayesOptions{}, strings.NewReader("spam\tfree money\n"))
		assert.ErrorIs(t, err, ErrUntrained)
	})

	t.Run("bad line", func(t *testing.T) {
		_, err := NewBayesFromReader("bayes", BayesOptions{}, strings.NewReader("spam free money\n"))
		assert.ErrorIs(t, err, ErrBadTrainingLine)

		_, err = NewBayesFromReader("bayes", BayesOptions{}, strings.NewReader("junk\tfree money\n"))
		assert.ErrorIs(t, err, ErrBadTrainingLine)
	})

	t.Run("inverted thresholds", func(t *testing.T) {
		_, err := NewBayesFromReader("bayes", BayesOptions{SpamThreshold: 0.2, ValidThreshold: 0.8}, strings.NewReader(trainingSet))
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewBayes("bayes", BayesOptions{Training: filepath.Join(t.TempDir(), "none.tsv")})
		assert.Error(t, err)
	})
}

func TestInvChi2(t *testing.T) {
	assert.InDelta(t, 1.0, invChi2(0, 2), 1e-9)
	assert.Less(t, invChi2(100, 2), 1e-9)
}
