// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package search

import (
	"strings"
	"unicode"

	"github.com/taibuivan/yomira-worker/pkg/normalize"
)

// Intent classifies what a search query is asking for.
type Intent int

const (
	// IntentNoise is a query too thin to ever dispatch externally.
	IntentNoise Intent = iota
	// IntentKeyword is a normal discovery query.
	IntentKeyword
	// IntentForced carries an explicit follow/track prefix: the user wants
	// this exact series, so heat gating is bypassed.
	IntentForced
)

// forcedPrefixes are the explicit "I want to track this" markers.
var forcedPrefixes = []string{"follow:", "track:", "bookmark:"}

/*
ClassifyIntent classifies a raw query and strips any intent prefix.

Returns:
  - Intent: The classification.
  - string: The query with the intent prefix removed, ready to search.
*/
func ClassifyIntent(raw string) (Intent, string) {
	trimmed := strings.TrimSpace(raw)

	for _, prefix := range forcedPrefixes {
		if len(trimmed) > len(prefix) && strings.EqualFold(trimmed[:len(prefix)], prefix) {
			remainder := strings.TrimSpace(trimmed[len(prefix):])
			if isNoise(remainder) {
				return IntentNoise, remainder
			}
			return IntentForced, remainder
		}
	}

	if isNoise(trimmed) {
		return IntentNoise, trimmed
	}
	return IntentKeyword, trimmed
}

// isNoise reports queries that should never reach an external source: too
// short after normalization, or nothing but digits and punctuation.
func isNoise(query string) bool {
	normalized := normalize.Title(query)
	if len([]rune(normalized)) < 3 {
		return true
	}

	for _, r := range normalized {
		if unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
