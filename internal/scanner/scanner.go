// Copyright 2026 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package scanner implements FileScanner (spec §4.1): a one-time walk
// of the working directory producing a canonical-path → {hash,
// lineCount} map, plus the fuzzy path-matching rules DebugAPI uses to
// resolve a breakpoint's user-supplied, possibly-partial path.
package scanner

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// Digest is a stable content hash, used to detect version skew between
// the deployed code and the Controller's view of it (spec §4.1). It is
// deliberately not cryptographically significant — any hash stable
// across identical content is sufficient, mirroring the idiom in
// lib/artifact/hash.go where BLAKE3 is reached for as the fast, already-
// vendored content hash rather than crypto/sha256.
type Digest [32]byte

// FormatDigest renders a Digest as a hex string, the canonical form
// used in logs and breakpoint diagnostics.
func FormatDigest(d Digest) string {
	return fmt.Sprintf("%x", d[:])
}

// Stats describes one scanned source file.
type Stats struct {
	Hash      Digest
	LineCount int
}

// Scanner holds the result of one FileScanner walk. It is owned by the
// process for its lifetime (spec §3 "Ownership") — rebuilding it means
// constructing a new Scanner, not mutating an existing one in place.
type Scanner struct {
	root string

	// stats maps a canonicalized absolute path under root to its Stats.
	stats map[string]Stats
}

// Config selects which files FileScanner considers source vs source
// map.
type Config struct {
	// SourceFilePattern matches source files to hash and line-count
	// (e.g. `\.js$`).
	SourceFilePattern *regexp.Regexp

	// SourceMapPattern matches emitted source map files (e.g. `\.map$`).
	SourceMapPattern *regexp.Regexp
}

// DefaultConfig matches plain JavaScript sources and their source maps.
func DefaultConfig() Config {
	return Config{
		SourceFilePattern: regexp.MustCompile(`\.js$`),
		SourceMapPattern:  regexp.MustCompile(`\.map$`),
	}
}

// Scan walks root once, recording Stats for every file matching
// cfg.SourceFilePattern. Other files, source maps included, are not
// recorded, and cfg.SourceMapPattern is not consulted here; source map
// files are located separately and SourceMapper owns their content.
func Scan(root string, cfg Config) (*Scanner, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("scanner: resolving working directory %s: %w", root, err)
	}

	s := &Scanner{
		root:  absRoot,
		stats: make(map[string]Stats),
	}

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Skip unreadable subtrees rather than aborting the whole
			// scan — one permission-denied directory should not take
			// down breakpoint resolution for the rest of the tree.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		canonical := canonicalize(path)
		if cfg.SourceFilePattern != nil && cfg.SourceFilePattern.MatchString(canonical) {
			stats, statErr := hashFile(path)
			if statErr != nil {
				return fmt.Errorf("scanner: hashing %s: %w", path, statErr)
			}
			s.stats[canonical] = stats
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Root returns the absolute, canonicalized working directory this
// Scanner was built from.
func (s *Scanner) Root() string { return s.root }

// selectStats returns every {path: Stats} entry whose canonicalized
// path matches re.
func (s *Scanner) selectStats(re *regexp.Regexp) map[string]Stats {
	out := make(map[string]Stats)
	for path, stats := range s.stats {
		if re.MatchString(path) {
			out[path] = stats
		}
	}
	return out
}

// selectFiles returns every scanned path matching re, rebased under
// base when base is non-empty.
func (s *Scanner) selectFiles(re *regexp.Regexp, base string) []string {
	var out []string
	for path := range s.stats {
		if !re.MatchString(path) {
			continue
		}
		if base != "" {
			path = filepath.Join(base, strings.TrimPrefix(path, s.root))
		}
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Stat returns the Stats recorded for a canonical (already-resolved)
// path, as found by FindScripts.
func (s *Scanner) Stat(canonicalPath string) (Stats, bool) {
	stats, ok := s.stats[canonicalPath]
	return stats, ok
}

// Files returns every scanned source file's canonical path, sorted,
// so a caller loading them into a host runtime does so in a
// deterministic order.
func (s *Scanner) Files() []string {
	out := make([]string, 0, len(s.stats))
	for path := range s.stats {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// canonicalize normalizes path separators for cross-platform stable
// comparison. Deployed source maps and breakpoint path hints may use
// either separator; everything is compared in forward-slash form.
func canonicalize(path string) string {
	return filepath.ToSlash(path)
}

func hashFile(path string) (Stats, error) {
	file, err := os.Open(path)
	if err != nil {
		return Stats{}, err
	}
	defer file.Close()

	hasher := blake3.New()
	lineCount := 0
	buf := make([]byte, 64*1024)
	sawAnyByte := false
	lastByte := byte(0)

	for {
		n, readErr := file.Read(buf)
		if n > 0 {
			sawAnyByte = true
			hasher.Write(buf[:n])
			for _, b := range buf[:n] {
				if b == '\n' {
					lineCount++
				}
			}
			lastByte = buf[n-1]
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return Stats{}, readErr
		}
	}

	// A file whose last byte is not a newline still has one more line
	// than the number of newlines it contains (the unterminated final
	// line). An empty file has zero lines.
	if sawAnyByte && lastByte != '\n' {
		lineCount++
	}

	var digest Digest
	sum := hasher.Sum(nil)
	copy(digest[:], sum)

	return Stats{Hash: digest, LineCount: lineCount}, nil
}
