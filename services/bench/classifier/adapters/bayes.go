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
	"io"
	"math"
	"os"
	"strings"

	"github.com/AleutianAI/spambench/services/bench/classifier"
)

// Bayes scoring algorithms.
const (
	AlgorithmNaive  = "naive"
	AlgorithmFisher = "fisher"
)

var (
	// ErrUntrained is returned when the training set lacks either class.
	ErrUntrained = errors.New("training set needs at least one spam and one valid example")

	// ErrBadTrainingLine is returned for a training line that is not "<label>\t<text>".
	ErrBadTrainingLine = errors.New("malformed training line")
)

// BayesOptions configures a trained statistical classifier.
type BayesOptions struct {
	// Training is a file of "<label>\t<text>" lines, label spam or valid
	// (ham is accepted as valid).
	Training string `yaml:"training"`

	// Algorithm is "naive" (default) or "fisher".
	Algorithm string `yaml:"algorithm" validate:"omitempty,oneof=naive fisher"`

	// SpamThreshold is the minimum spam score for a Spam verdict.
	SpamThreshold float64 `yaml:"spam_threshold" validate:"gte=0,lte=1"`

	// ValidThreshold is the maximum spam score for a Valid verdict. Scores
	// strictly between the thresholds are Indeterminate.
	ValidThreshold float64 `yaml:"valid_threshold" validate:"gte=0,lte=1"`
}

// Bayes is a word-feature classifier trained once at construction.
//
// Description:
//
//	The native outcome is a spam score in [0,1]. "naive" computes the
//	posterior P(spam|words) with Laplace smoothing. "fisher" combines
//	per-word weighted probabilities with Fisher's method and an inverse
//	chi-square. The band between ValidThreshold and SpamThreshold maps to
//	Indeterminate.
type Bayes struct {
	id             string
	fisher         bool
	spamThreshold  float64
	validThreshold float64

	// word -> per-class document counts
	features map[string]*[2]int
	docs     [2]int
	vocab    int
}

const (
	classSpam  = 0
	classValid = 1
)

// NewBayes trains a classifier from the options' training file.
func NewBayes(id string, opts BayesOptions) (*Bayes, error) {
	f, err := os.Open(opts.Training)
	if err != nil {
		return nil, fmt.Errorf("open training set: %w", err)
	}
	defer f.Close()
	return NewBayesFromReader(id, opts, f)
}

// NewBayesFromReader trains a classifier from r.
func NewBayesFromReader(id string, opts BayesOptions, r io.Reader) (*Bayes, error) {
	b := &Bayes{
		id:             id,
		fisher:         opts.Algorithm == AlgorithmFisher,
		spamThreshold:  opts.SpamThreshold,
		validThreshold: opts.ValidThreshold,
		features:       make(map[string]*[2]int),
	}
	if b.spamThreshold == 0 && b.validThreshold == 0 {
		if b.fisher {
			b.spamThreshold, b.validThreshold = 0.6, 0.2
		} else {
			b.spamThreshold, b.validThreshold = 0.9, 0.1
		}
	}
	if b.validThreshold > b.spamThreshold {
		return nil, fmt.Errorf("valid_threshold %.2f above spam_threshold %.2f", b.validThreshold, b.spamThreshold)
	}

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(raw) == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		label, text, ok := strings.Cut(raw, "\t")
		if !ok {
			return nil, fmt.Errorf("%w: line %d", ErrBadTrainingLine, line)
		}
		switch strings.ToLower(strings.TrimSpace(label)) {
		case "spam":
			b.Train(text, true)
		case "valid", "ham":
			b.Train(text, false)
		default:
			return nil, fmt.Errorf("%w: line %d: unknown label %q", ErrBadTrainingLine, line, label)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read training set: %w", err)
	}
	if b.docs[classSpam] == 0 || b.docs[classValid] == 0 {
		return nil, ErrUntrained
	}
	return b, nil
}

// bayesFeatures extracts the distinct words of 3 to 20 letters.
func bayesFeatures(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range tokenize(text, false) {
		if n := len([]rune(tok)); n < 3 || n > 20 {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// Train adds one labeled document.
func (b *Bayes) Train(text string, spam bool) {
	class := classValid
	if spam {
		class = classSpam
	}
	b.docs[class]++
	for _, f := range bayesFeatures(text) {
		counts, ok := b.features[f]
		if !ok {
			counts = &[2]int{}
			b.features[f] = counts
			b.vocab++
		}
		counts[class]++
	}
}

// ID implements classifier.Adapter.
func (b *Bayes) ID() string { return b.id }

// Score returns the spam score of text in [0,1].
func (b *Bayes) Score(text string) float64 {
	feats := bayesFeatures(text)
	if b.fisher {
		return b.fisherScore(feats)
	}
	return b.naiveScore(feats)
}

func (b *Bayes) naiveScore(feats []string) float64 {
	total := float64(b.docs[classSpam] + b.docs[classValid])
	logp := [2]float64{
		math.Log(float64(b.docs[classSpam]) / total),
		math.Log(float64(b.docs[classValid]) / total),
	}
	for _, f := range feats {
		counts := b.features[f]
		for c := 0; c < 2; c++ {
			n := 0
			if counts != nil {
				n = counts[c]
			}
			// Bernoulli likelihood with add-one smoothing.
			logp[c] += math.Log(float64(n+1) / float64(b.docs[c]+2))
		}
	}
	return 1 / (1 + math.Exp(logp[classValid]-logp[classSpam]))
}

// weightedProb is P(spam|feature) pulled toward 0.5 for rare features.
func (b *Bayes) weightedProb(f string) float64 {
	const weight, assumed = 1.0, 0.5
	counts := b.features[f]
	if counts == nil {
		return assumed
	}
	spamP := float64(counts[classSpam]) / float64(b.docs[classSpam])
	validP := float64(counts[classValid]) / float64(b.docs[classValid])
	basic := 0.0
	if spamP+validP > 0 {
		basic = spamP / (spamP + validP)
	}
	seen := float64(counts[classSpam] + counts[classValid])
	return (weight*assumed + seen*basic) / (weight + seen)
}

func (b *Bayes) fisherScore(feats []string) float64 {
	if len(feats) == 0 {
		return 0.5
	}
	logProduct := 0.0
	for _, f := range feats {
		p := math.Max(b.weightedProb(f), 1e-9)
		logProduct += math.Log(p)
	}
	return invChi2(-2*logProduct, 2*len(feats))
}

// invChi2 is the upper-tail probability of a chi-square with even df.
func invChi2(chi float64, df int) float64 {
	m := chi / 2
	term := math.Exp(-m)
	sum := term
	for i := 1; i < df/2; i++ {
		term *= m / float64(i)
		sum += term
	}
	return math.Min(sum, 1)
}

// Classify implements classifier.Adapter.
func (b *Bayes) Classify(ctx context.Context, text string) (classifier.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return classifier.Indeterminate, err
	}
	score := b.Score(text)
	switch {
	case score >= b.spamThreshold:
		return classifier.Spam, nil
	case score <= b.validThreshold:
		return classifier.Valid, nil
	default:
		return classifier.Indeterminate, nil
	}
}
