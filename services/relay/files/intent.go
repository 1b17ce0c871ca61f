// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package files

import (
	"regexp"
	"strings"
)

// =============================================================================
// Interface Definition
// =============================================================================

// IntentDetector extracts candidate filenames from free-text messages.
//
// # Description
//
// IntentDetector abstracts the file-intent heuristic so the pattern set can
// be swapped or extended without touching the streaming orchestrator.
//
// Detection is best-effort and fails open: a false positive is rejected or
// 404ed by the Guard, a false negative simply skips the data side-channel.
// Neither outcome corrupts the primary chat flow, so implementations should
// favor recall over precision.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; handlers call Detect
// from concurrent requests.
type IntentDetector interface {
	// Detect returns candidate filenames found in text, deduplicated by
	// first occurrence, in pattern-priority order. Returns an empty slice
	// when nothing matches; this is the common case.
	Detect(text string) []string
}

// =============================================================================
// Regex Implementation
// =============================================================================

// fileNamePattern matches a bare filename with one of the supported text
// extensions. Embedded in each phrase pattern below.
const fileNamePattern = `([\w][\w.\- ]*?\.(?:txt|json|md|csv|log))`

// intentPatterns is the fixed, ordered pattern set. Order is priority
// order: earlier patterns claim first-seen position in the result.
// Compiled once at package init; Detect is on the per-request hot path.
var intentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)read\s+(?:the\s+)?file\s+(?:named\s+)?` + fileNamePattern),
	regexp.MustCompile(`(?i)show\s+me\s+(?:the\s+)?(?:contents?\s+of\s+)?` + fileNamePattern),
	regexp.MustCompile(`(?i)contents?\s+of\s+` + fileNamePattern),
	regexp.MustCompile(`(?i)open\s+` + fileNamePattern),
	regexp.MustCompile(`(?i)["'` + "`" + `]` + fileNamePattern + `["'` + "`" + `]`),
	regexp.MustCompile(`(?i)(?:file|document)\s+` + fileNamePattern),
}

// regexIntentDetector implements IntentDetector with the fixed pattern set.
type regexIntentDetector struct{}

// NewIntentDetector creates the default regex-backed IntentDetector.
//
// # Examples
//
//	detector := files.NewIntentDetector()
//	names := detector.Detect("please read file notes.txt")
//	// names == []string{"notes.txt"}
func NewIntentDetector() IntentDetector {
	return &regexIntentDetector{}
}

// Detect scans text with every pattern in priority order.
//
// # Description
//
// Each pattern contributes all of its matches; the final result is
// deduplicated case-sensitively while preserving first-seen order across
// the whole pattern sequence. A single pass per pattern, no per-call
// compilation.
//
// # Inputs
//
//   - text: The user message to scan.
//
// # Outputs
//
//   - []string: Candidate filenames, possibly empty, never nil.
func (d *regexIntentDetector) Detect(text string) []string {
	candidates := make([]string, 0, 2)
	seen := make(map[string]struct{}, 2)

	for _, pattern := range intentPatterns {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			name := strings.TrimSpace(match[1])
			if name == "" {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			candidates = append(candidates, name)
		}
	}

	return candidates
}

// Compile-time interface check
var _ IntentDetector = (*regexIntentDetector)(nil)
