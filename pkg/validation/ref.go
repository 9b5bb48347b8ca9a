// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for identifiers that end up in store
// keys and file paths. Experiment names, scenario ids, and KDMA names
// arrive from external experiment output; validating and sanitizing
// them at the build boundary keeps the key space clean and prevents
// path-style games ("..", separators) from reaching the payload store.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxSegmentLen = 128
	maxKeyLen     = 256
	maxRefLen     = 512
)

// segmentPattern matches one result-ref path segment.
// Allows: letters, digits, then dots, underscores, hyphens.
// A segment never contains "/" and cannot start with a dot, so ".." is
// unrepresentable.
var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,127}$`)

// keyPattern matches experiment keys ("{adm}_{llm}" plus optional KDMA
// and variant parts). Same alphabet as segments, longer budget.
var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,255}$`)

// nonSegmentRune matches every rune a segment may not contain.
var nonSegmentRune = regexp.MustCompile(`[^A-Za-z0-9._\-]`)

// ValidateRefSegment validates one path segment of a result ref
// (an experiment key part, scenario id, or scene id).
//
// Valid segments:
//   - 1-128 characters
//   - Letters, digits, dots, underscores, hyphens
//   - First character is a letter or digit
//
// Returns an error if the segment is invalid.
func ValidateRefSegment(segment string) error {
	if segment == "" {
		return fmt.Errorf("ref segment cannot be empty")
	}
	if !segmentPattern.MatchString(segment) {
		return fmt.Errorf("invalid ref segment: %q (must be 1-128 alphanumeric chars, dots, underscores, or hyphens, starting alphanumeric)", segment)
	}
	return nil
}

// ValidateExperimentKey validates a composed experiment key.
func ValidateExperimentKey(key string) error {
	if key == "" {
		return fmt.Errorf("experiment key cannot be empty")
	}
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("invalid experiment key: %q", key)
	}
	return nil
}

// ValidateResultRef validates a full result ref
// ("{experiment key}/{scenario}/{scene}").
//
// Valid refs have exactly three non-empty segments; the first is an
// experiment key, the rest are plain segments.
func ValidateResultRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("result ref cannot be empty")
	}
	if len(ref) > maxRefLen {
		return fmt.Errorf("result ref too long: %d bytes", len(ref))
	}
	parts := strings.Split(ref, "/")
	if len(parts) != 3 {
		return fmt.Errorf("invalid result ref: %q (want key/scenario/scene)", ref)
	}
	if err := ValidateExperimentKey(parts[0]); err != nil {
		return fmt.Errorf("invalid result ref %q: %w", ref, err)
	}
	for _, part := range parts[1:] {
		if err := ValidateRefSegment(part); err != nil {
			return fmt.Errorf("invalid result ref %q: %w", ref, err)
		}
	}
	return nil
}

// SanitizeRefSegment normalizes an externally supplied identifier into
// a valid ref segment: disallowed runes become underscores, leading
// non-alphanumerics are stripped, and the result is truncated to the
// segment budget. Returns "unknown" when nothing survives.
//
// Use this where experiment output names enter key composition:
//
//	scenarioID = validation.SanitizeRefSegment(entry.Input.ScenarioID)
func SanitizeRefSegment(s string) string {
	s = nonSegmentRune.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.TrimLeft(s, "._-")
	if len(s) > maxSegmentLen {
		s = s[:maxSegmentLen]
	}
	if s == "" {
		return "unknown"
	}
	return s
}
