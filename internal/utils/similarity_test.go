// internal/utils/similarity_test.go
package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshteinDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "kitten", 0},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"widget", "widgets", 1},
		{"café", "cafe", 1}, // runes, not bytes
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, LevenshteinDistance(tc.a, tc.b), "%q vs %q", tc.a, tc.b)
	}
}

func TestStringSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, StringSimilarity("Blue Widget", "blue widget"), 0.001)
	assert.InDelta(t, 1.0, StringSimilarity("  trimmed  ", "trimmed"), 0.001)
	assert.InDelta(t, 1.0, StringSimilarity("", ""), 0.001)

	// One edit over seven runes
	assert.InDelta(t, 1.0-1.0/7.0, StringSimilarity("widget", "widgets"), 0.001)

	assert.Less(t, StringSimilarity("Ceramic Coffee Mug", "Classic Leather Wallet"), 0.5)
}

func TestGenerateHandle(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"Blue Widget", "blue-widget"},
		{"  Blue   Widget  ", "blue-widget"},
		{"Widget (Large) - 2nd Edition!", "widget-large-2nd-edition"},
		{"UPPER", "upper"},
		{"---", ""},
		{"", ""},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, GenerateHandle(tc.title), "%q", tc.title)
	}
}
