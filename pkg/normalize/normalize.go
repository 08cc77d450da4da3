// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package normalize folds arbitrary Unicode titles into a canonical matching
// key.
//
// # Usage
//
// Title matching (canonicalization, search fingerprints) must treat
// "Solo Leveling", "solo  leveling" and "Sólo Lévelîng" as the same series.
// This package handles normalization, accent removal, and whitespace
// collapsing so callers compare plain keys instead of raw titles.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// multiSpace collapses any whitespace run into a single space.
var multiSpace = regexp.MustCompile(`\s+`)

// Title converts an arbitrary Unicode title into a canonical matching key.
//
// # Transformation Pipeline
//
// 1. Normalizes to NFD (decomposes accented chars: é → e + combining acute).
// 2. Removes combining marks (accents).
// 3. Converts to lowercase.
// 4. Strips punctuation, keeping letters, digits, and spaces.
// 5. Collapses whitespace runs and trims the ends.
func Title(s string) string {
	// 1. Normalize and remove accents
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn))
	result, _, _ := transform.String(t, s)

	// 2. Lowercase
	result = strings.ToLower(result)

	// 3. Keep letters, digits and spaces only
	result = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		if unicode.IsSpace(r) {
			return ' '
		}
		return -1
	}, result)

	// 4. Collapse whitespace
	result = multiSpace.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}

// isMn reports whether r is a Unicode non-spacing mark (e.g., accents).
func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}
