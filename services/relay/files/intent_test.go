// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package files

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Detection Tests
// =============================================================================

func TestIntentDetector_Detect_Phrasings(t *testing.T) {
	detector := NewIntentDetector()

	cases := []struct {
		name string
		text string
		want []string
	}{
		{"read file", "please read file notes.txt", []string{"notes.txt"}},
		{"read the file named", "read the file named report.md for me", []string{"report.md"}},
		{"show me", "show me data.csv", []string{"data.csv"}},
		{"show me the contents of", "show me the contents of config.json", []string{"config.json"}},
		{"contents of", "what are the contents of server.log?", []string{"server.log"}},
		{"open", "can you open todo.txt", []string{"todo.txt"}},
		{"double quoted", `what does "notes.txt" say?`, []string{"notes.txt"}},
		{"single quoted", "summarize 'report.md' please", []string{"report.md"}},
		{"backtick quoted", "look at `data.csv`", []string{"data.csv"}},
		{"file keyword", "the file notes.txt has details", []string{"notes.txt"}},
		{"document keyword", "check document spec.md", []string{"spec.md"}},
		{"case insensitive verb", "SHOW ME notes.txt", []string{"notes.txt"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, detector.Detect(tc.text))
		})
	}
}

func TestIntentDetector_Detect_NoMatch(t *testing.T) {
	detector := NewIntentDetector()

	cases := []struct {
		name string
		text string
	}{
		{"plain chat", "how are you today?"},
		{"empty", ""},
		{"unsupported extension", "please open image.png"},
		{"extension without intent phrase", "I like .txt files in general"},
		{"bare filename no phrase", "notes.txt"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := detector.Detect(tc.text)
			assert.NotNil(t, got, "Detect never returns nil")
			assert.Empty(t, got)
		})
	}
}

func TestIntentDetector_Detect_Dedup(t *testing.T) {
	detector := NewIntentDetector()

	got := detector.Detect(`open notes.txt and show me "notes.txt" again`)

	assert.Equal(t, []string{"notes.txt"}, got, "same name reported once")
}

func TestIntentDetector_Detect_MultipleFiles(t *testing.T) {
	detector := NewIntentDetector()

	got := detector.Detect("read file a.txt then open b.md")

	assert.Equal(t, []string{"a.txt", "b.md"}, got)
}

func TestIntentDetector_Detect_PriorityOrder(t *testing.T) {
	detector := NewIntentDetector()

	// "read file" outranks "open" regardless of position in the text.
	got := detector.Detect("open second.txt but first read file first.txt")

	assert.Equal(t, []string{"first.txt", "second.txt"}, got)
}

func TestIntentDetector_Detect_SubdirectoryName(t *testing.T) {
	detector := NewIntentDetector()

	got := detector.Detect("open passwd.txt")

	assert.Equal(t, []string{"passwd.txt"}, got)
}
