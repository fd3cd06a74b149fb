// Copyright 2026 Google LLC
// SPDX-License-Identifier: Apache-2.0

package scanner

import (
	"path/filepath"
	"strings"
)

// FindScripts resolves a breakpoint's user-supplied, possibly-partial
// path hint against the scanned file tree (spec §4.1):
//
//  1. Exact normalize + prefix: canonicalize separators; if pathHint is
//     rooted under appPathRelativeToRepository, rebase it into the
//     working directory before matching.
//  2. If that yields no match, fall back to FindScriptsFuzzy.
//
// Returns the matching canonical paths. Empty means "not found";
// len >= 2 means ambiguous — callers (DebugAPI) treat both as a
// BREAKPOINT_SOURCE_LOCATION error, but distinguish them in messaging.
func (s *Scanner) FindScripts(pathHint, appPathRelativeToRepository string) []string {
	hint := canonicalize(pathHint)

	if appPathRelativeToRepository != "" {
		rel := canonicalize(appPathRelativeToRepository)
		if strings.HasPrefix(hint, rel) {
			hint = strings.TrimPrefix(hint, rel)
			hint = strings.TrimPrefix(hint, "/")
		}
	}

	// Exact match: the hint, rebased under the scan root, names a
	// known file outright.
	candidate := canonicalize(filepath.Join(s.root, hint))
	if _, ok := s.stats[candidate]; ok {
		return []string{candidate}
	}

	return s.FindScriptsFuzzy(hint, s.allFiles())
}

// FindScriptsFuzzy treats pathHint as a path suffix against fileList
// (spec §4.1 "Fuzzy suffix disambiguation"):
//
//   - Return every file whose full path ends with pathHint.
//   - If none match, return every file whose basename equals
//     basename(pathHint) — but only when that basename is unique
//     across fileList.
//   - "." in pathHint is never treated as a regex metacharacter; all
//     comparisons are plain string suffix/equality checks.
func (s *Scanner) FindScriptsFuzzy(pathHint string, fileList []string) []string {
	hint := canonicalize(pathHint)
	hint = strings.TrimPrefix(hint, "/")

	var suffixMatches []string
	for _, f := range fileList {
		if strings.HasSuffix(f, hint) && suffixBoundary(f, hint) {
			suffixMatches = append(suffixMatches, f)
		}
	}
	if len(suffixMatches) > 0 {
		return suffixMatches
	}

	wantBase := filepath.Base(hint)
	var basenameMatches []string
	for _, f := range fileList {
		if filepath.Base(f) == wantBase {
			basenameMatches = append(basenameMatches, f)
		}
	}
	// Only a basename unique across the whole file set can
	// disambiguate — two files named "foo.js" in different
	// directories must still be rejected as ambiguous.
	if len(basenameMatches) == 1 {
		return basenameMatches
	}
	return nil
}

// suffixBoundary reports whether matching hint as a suffix of f lands
// on a path-component boundary (or consumes the whole string) — so
// that hint "foo.js" does not spuriously match ".../barfoo.js".
func suffixBoundary(f, hint string) bool {
	if len(f) == len(hint) {
		return true
	}
	cut := len(f) - len(hint)
	return cut > 0 && f[cut-1] == '/'
}

// allFiles returns every scanned canonical path, unsorted order is
// irrelevant since FindScriptsFuzzy's ambiguity check is set-based.
func (s *Scanner) allFiles() []string {
	out := make([]string, 0, len(s.stats))
	for path := range s.stats {
		out = append(out, path)
	}
	return out
}
