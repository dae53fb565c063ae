// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"strings"
	"testing"
)

func TestValidateClassifierID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		// Valid ids
		{"simple", "bayes", false},
		{"single char", "a", false},
		{"mixed", "Spam_Filter-2.1", false},
		{"leading digit", "1st", false},
		{"max length", strings.Repeat("x", MaxIDLength), false},

		// Invalid ids
		{"empty", "", true},
		{"too long", strings.Repeat("x", MaxIDLength+1), true},
		{"comma breaks csv header", "a,b", true},
		{"quote", `a"b`, true},
		{"space", "spam filter", true},
		{"newline", "a\nb", true},
		{"path separator", "a/b", true},
		{"unicode", "naïve", true},
		{"starts with underscore", "_x", true},
		{"starts with dot", ".x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateClassifierID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateClassifierID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidateClassifierIDs(t *testing.T) {
	tests := []struct {
		name    string
		ids     []string
		wantErr bool
	}{
		{"all valid", []string{"words", "bayes", "gpt"}, false},
		{"one invalid", []string{"words", "bad id", "gpt"}, true},
		{"empty slice", []string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateClassifierIDs(tt.ids)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateClassifierIDs(%v) error = %v, wantErr %v", tt.ids, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeClassifierID(t *testing.T) {
	got, err := SanitizeClassifierID("  words ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "words" {
		t.Errorf("SanitizeClassifierID() = %q, want %q", got, "words")
	}
	if _, err := SanitizeClassifierID(" a b "); err == nil {
		t.Error("expected error for inner space")
	}
}
