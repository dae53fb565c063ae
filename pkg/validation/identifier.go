// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for identifiers that end up
// in files and queries.
//
// Classifier ids become CSV column prefixes, InfluxDB tag values, history
// keys and metric attributes. Restricting them to a small alphabet keeps the
// result table header parseable and keeps ids out of quoting and escaping
// rules in every downstream format.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxIDLength bounds a classifier id.
const MaxIDLength = 64

// idPattern matches valid classifier ids.
// Allows: ASCII letters, digits, underscore, dot, hyphen.
// Must start with a letter or digit.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]*$`)

// ValidateClassifierID validates a classifier id.
//
// Valid ids:
//   - 1-64 characters
//   - ASCII letters and digits
//   - Underscore, dot and hyphen after the first character
//
// Example:
//
//	if err := validation.ValidateClassifierID(id); err != nil {
//	    return fmt.Errorf("%w: %w", ErrInvalidID, err)
//	}
func ValidateClassifierID(id string) error {
	if id == "" {
		return fmt.Errorf("classifier id cannot be empty")
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("classifier id %q is longer than %d characters", id, MaxIDLength)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid classifier id format: %q (letters, digits, '_', '.', '-'; must start with a letter or digit)", id)
	}
	return nil
}

// ValidateClassifierIDs validates multiple ids.
// Returns an error listing all invalid ids if any fail validation.
func ValidateClassifierIDs(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateClassifierID(id); err != nil {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid classifier ids: %q", invalid)
	}
	return nil
}

// SanitizeClassifierID trims surrounding whitespace and validates the result.
func SanitizeClassifierID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if err := ValidateClassifierID(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
