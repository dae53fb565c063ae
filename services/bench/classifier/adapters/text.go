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
	"strings"
	"unicode"
)

// leet maps common character substitutions back to letters.
var leet = strings.NewReplacer(
	"0", "o",
	"1", "i",
	"3", "e",
	"4", "a",
	"5", "s",
	"7", "t",
	"@", "a",
	"$", "s",
)

// tokenize lowercases text and splits it on anything that is not a letter or
// digit. With deobfuscate, leetspeak substitutions are undone first, so
// "v1agra" yields "viagra".
func tokenize(text string, deobfuscate bool) []string {
	text = strings.ToLower(text)
	if deobfuscate {
		text = leet.Replace(text)
	}
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// soundex returns the American Soundex code of word, or "" if word has no
// ASCII letters.
func soundex(word string) string {
	codes := map[rune]byte{
		'b': '1', 'f': '1', 'p': '1', 'v': '1',
		'c': '2', 'g': '2', 'j': '2', 'k': '2', 'q': '2', 's': '2', 'x': '2', 'z': '2',
		'd': '3', 't': '3',
		'l': '4',
		'm': '5', 'n': '5',
		'r': '6',
	}

	out := make([]byte, 0, 4)
	var last byte
	for _, r := range strings.ToLower(word) {
		if r < 'a' || r > 'z' {
			continue
		}
		code := codes[r]
		if len(out) == 0 {
			out = append(out, byte(unicode.ToUpper(r)))
			last = code
			continue
		}
		switch {
		case code == 0:
			// h and w do not separate equal codes; vowels do.
			if r != 'h' && r != 'w' {
				last = 0
			}
		case code != last:
			out = append(out, code)
			last = code
		}
		if len(out) == 4 {
			break
		}
	}
	if len(out) == 0 {
		return ""
	}
	for len(out) < 4 {
		out = append(out, '0')
	}
	return string(out)
}
