// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package files provides root-confined file access and file-intent
// detection for the chat relay's data side-channel.
package files

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// =============================================================================
// Error Kinds
// =============================================================================

// AccessErrorKind classifies guard failures.
//
// Every failure mode the orchestrator needs to branch on is a kind, not a
// distinct error type, keeping "file not found" on the same cheap path as
// "file found".
type AccessErrorKind string

const (
	// ErrKindInvalidName rejects empty names and names carrying traversal
	// markers before any filesystem access.
	ErrKindInvalidName AccessErrorKind = "invalid_name"

	// ErrKindPathEscape rejects names whose resolved path leaves the root.
	ErrKindPathEscape AccessErrorKind = "path_escape"

	// ErrKindNotFound covers missing paths and non-regular files.
	ErrKindNotFound AccessErrorKind = "not_found"

	// ErrKindNotText covers files whose bytes are not valid UTF-8.
	ErrKindNotText AccessErrorKind = "not_text"
)

// AccessError is the typed failure returned by Guard.Read.
//
// # Description
//
// Wraps the failure kind and the offending filename. Use errors.As to
// recover the kind, or the IsKind helper for a single-kind check. The
// wrapped cause (if any) is reachable via Unwrap for logging; it must not
// be surfaced to clients.
type AccessError struct {
	Kind     AccessErrorKind
	Filename string
	cause    error
}

func (e *AccessError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("file access %s: %q: %v", e.Kind, e.Filename, e.cause)
	}
	return fmt.Sprintf("file access %s: %q", e.Kind, e.Filename)
}

func (e *AccessError) Unwrap() error {
	return e.cause
}

// IsKind reports whether err is an AccessError of the given kind.
func IsKind(err error, kind AccessErrorKind) bool {
	var ae *AccessError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Kind == kind
}

// =============================================================================
// File Info
// =============================================================================

// FileInfo is the result of a successful guarded read.
//
// # Fields
//
//   - Filename: The requested name, as given.
//   - Content: Full file content, valid UTF-8.
//   - SizeBytes: UTF-8 byte length of Content (not rune count).
//   - RelativePath: Resolved path relative to the guard root. Never begins
//     with ".." or a path separator.
type FileInfo struct {
	Filename     string
	Content      string
	SizeBytes    int
	RelativePath string
}

// =============================================================================
// Guard
// =============================================================================

// Guard resolves requested filenames against a fixed root directory.
//
// # Description
//
// Guard is the only component allowed to touch the filesystem on behalf of
// chat requests. It rejects traversal and absolute paths on the raw name,
// then re-checks containment on the fully resolved path so symlink and
// relative-path tricks cannot escape the root.
//
// Reads are not cached; each call re-reads from disk. Expected file sizes
// make this acceptable and it keeps content fresh per request.
//
// # Thread Safety
//
// Thread-safe. The guard holds only immutable configuration.
type Guard struct {
	root string
}

// NewGuard creates a Guard confined to the given root directory.
//
// # Description
//
// Resolves the root to an absolute, symlink-free path at construction so
// later containment checks compare like with like. Fails if the root does
// not exist or is not a directory.
//
// # Inputs
//
//   - root: Directory that bounds all reads. Must exist.
//
// # Outputs
//
//   - *Guard: Ready for use.
//   - error: Non-nil if the root cannot be resolved or is not a directory.
//
// # Examples
//
//	guard, err := files.NewGuard("/srv/chat-files")
//	if err != nil {
//	    log.Fatalf("file guard: %v", err)
//	}
func NewGuard(root string) (*Guard, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat root %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %q is not a directory", root)
	}
	return &Guard{root: resolved}, nil
}

// Root returns the resolved root directory.
func (g *Guard) Root() string {
	return g.root
}

// Read loads a file confined to the guard root.
//
// # Description
//
// The check sequence is fixed:
//  1. Name sanity: empty/whitespace names, "..", a leading separator, or
//     any backslash fail with invalid_name. Backslashes are rejected
//     unconditionally to defend against traversal regardless of platform.
//  2. Containment: the name is joined to the root, resolved (symlinks
//     included), and must remain a descendant of the root, else path_escape.
//  3. Existence: the resolved path must exist and be a regular file, else
//     not_found.
//  4. Encoding: the bytes must decode as UTF-8, else not_text.
//
// # Inputs
//
//   - filename: Relative filename as extracted from the user message.
//
// # Outputs
//
//   - *FileInfo: Content plus metadata on success.
//   - error: *AccessError classifying the failure.
//
// # Limitations
//
//   - Only UTF-8 text files are supported.
//   - No size limit is enforced here; callers cap injected context instead.
//
// # Assumptions
//
//   - The root existed at construction time and has not been removed.
func (g *Guard) Read(filename string) (*FileInfo, error) {
	name := strings.TrimSpace(filename)
	if name == "" {
		return nil, &AccessError{Kind: ErrKindInvalidName, Filename: filename}
	}
	if strings.Contains(name, "..") ||
		strings.HasPrefix(name, "/") ||
		strings.Contains(name, "\\") {
		return nil, &AccessError{Kind: ErrKindInvalidName, Filename: filename}
	}

	joined := filepath.Join(g.root, name)
	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &AccessError{Kind: ErrKindNotFound, Filename: filename, cause: err}
		}
		return nil, &AccessError{Kind: ErrKindNotFound, Filename: filename, cause: err}
	}

	// Containment is checked on the resolved path, not the raw string, so a
	// symlink inside the root cannot point a read outside of it.
	if !isWithinRoot(g.root, resolved) {
		return nil, &AccessError{Kind: ErrKindPathEscape, Filename: filename}
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, &AccessError{Kind: ErrKindNotFound, Filename: filename, cause: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &AccessError{Kind: ErrKindNotFound, Filename: filename}
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, &AccessError{Kind: ErrKindNotFound, Filename: filename, cause: err}
	}
	if !utf8.Valid(data) {
		return nil, &AccessError{Kind: ErrKindNotText, Filename: filename}
	}

	rel, err := filepath.Rel(g.root, resolved)
	if err != nil {
		// Containment already passed; Rel failing here would be a logic bug.
		slog.Error("Failed to relativize contained path", "path", resolved, "error", err)
		return nil, &AccessError{Kind: ErrKindPathEscape, Filename: filename, cause: err}
	}

	content := string(data)
	return &FileInfo{
		Filename:     filename,
		Content:      content,
		SizeBytes:    len(content),
		RelativePath: filepath.ToSlash(rel),
	}, nil
}

// isWithinRoot reports whether path is root itself or a descendant of root.
func isWithinRoot(root, path string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
