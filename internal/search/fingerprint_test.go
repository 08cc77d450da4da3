// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_NormalizedFormsCollide(t *testing.T) {
	base := Fingerprint("Solo Leveling", Filters{})

	assert.Equal(t, base, Fingerprint("solo  leveling", Filters{}))
	assert.Equal(t, base, Fingerprint("  SOLO LEVELING!  ", Filters{}))
	assert.Equal(t, base, Fingerprint("Sólo Lévelîng", Filters{}))
}

func TestFingerprint_FiltersSeparateKeyspace(t *testing.T) {
	plain := Fingerprint("naruto", Filters{})
	rated := Fingerprint("naruto", Filters{MaxRating: "safe"})
	typed := Fingerprint("naruto", Filters{SeriesType: "manhwa"})

	assert.NotEqual(t, plain, rated)
	assert.NotEqual(t, plain, typed)
	assert.NotEqual(t, rated, typed)
}

func TestFingerprint_IsDeterministic(t *testing.T) {
	first := Fingerprint("frieren", Filters{MaxRating: "safe"})
	second := Fingerprint("frieren", Filters{MaxRating: "safe"})

	assert.Equal(t, first, second)
	assert.Len(t, first, 16)
}

func TestClassifyIntent(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		intent   Intent
		query    string
	}{
		{"keyword", "one piece", IntentKeyword, "one piece"},
		{"short_noise", "ab", IntentNoise, "ab"},
		{"digits_noise", "12345", IntentNoise, "12345"},
		{"punctuation_noise", "???", IntentNoise, "???"},
		{"forced_follow", "follow: Solo Leveling", IntentForced, "Solo Leveling"},
		{"forced_track_caps", "TRACK: one piece", IntentForced, "one piece"},
		{"forced_bookmark", "bookmark:frieren", IntentForced, "frieren"},
		{"forced_but_noise", "follow: ab", IntentNoise, "ab"},
		{"colon_in_title", "Re:Zero kara", IntentKeyword, "Re:Zero kara"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			intent, query := ClassifyIntent(testCase.raw)
			assert.Equal(t, testCase.intent, intent)
			assert.Equal(t, testCase.query, query)
		})
	}
}
