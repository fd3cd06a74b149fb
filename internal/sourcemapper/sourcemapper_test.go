// Copyright 2026 Google LLC
// SPDX-License-Identifier: Apache-2.0

package sourcemapper

import (
	"os"
	"path/filepath"
	"testing"
)

// writeMap lays out a generated file and a hand-built source map
// alongside it: "function f(){\nconsole.log(1);\n}\n", mapped with an
// explicit mappings string in which generated lines 1-3 map, at column
// 0, to original lines 1-3 of source 0 (AAAA, then AACA moving one
// original line down each time).
func writeMap(t *testing.T, dir string) {
	t.Helper()
	gen := "function f(){\nconsole.log(1);\n}\n"
	if err := os.WriteFile(filepath.Join(dir, "out.js"), []byte(gen), 0o644); err != nil {
		t.Fatalf("write out.js: %v", err)
	}

	mapJSON := `{
		"version": 3,
		"file": "out.js",
		"sources": ["src.js"],
		"names": [],
		"mappings": "AAAA;AACA;AACA"
	}`
	if err := os.WriteFile(filepath.Join(dir, "out.js.map"), []byte(mapJSON), 0o644); err != nil {
		t.Fatalf("write out.js.map: %v", err)
	}
}

func TestLoadRejectsEmptySources(t *testing.T) {
	dir := t.TempDir()
	mapJSON := `{"version":3,"file":"out.js","sources":[],"names":[],"mappings":""}`
	path := filepath.Join(dir, "empty.map")
	if err := os.WriteFile(path, []byte(mapJSON), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := Load([]string{path}); err == nil {
		t.Fatal("Load with empty sources list, want error")
	}
}

func TestMappingInfoResolvesGeneratedLine(t *testing.T) {
	dir := t.TempDir()
	writeMap(t, dir)

	m, err := Load([]string{filepath.Join(dir, "out.js.map")})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	srcPath := filepath.Join(dir, "src.js")
	if !m.HasMapping(srcPath) {
		t.Fatalf("HasMapping(%s) = false, want true", srcPath)
	}

	pos, ok := m.MappingInfo(srcPath, 0, 0)
	if !ok {
		t.Fatal("MappingInfo: no mapping found for line 0")
	}
	if pos.Line0Based != 0 {
		t.Errorf("Line0Based = %d, want 0", pos.Line0Based)
	}
	if filepath.Base(pos.File) != "out.js" {
		t.Errorf("File = %s, want out.js", pos.File)
	}
}

func TestMappingInfoUnknownPath(t *testing.T) {
	dir := t.TempDir()
	writeMap(t, dir)

	m, err := Load([]string{filepath.Join(dir, "out.js.map")})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, ok := m.MappingInfo(filepath.Join(dir, "nope.js"), 0, 0); ok {
		t.Error("MappingInfo for unmapped path, want ok=false")
	}
}
