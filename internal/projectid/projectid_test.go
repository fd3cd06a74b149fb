// Copyright 2026 Google LLC
// SPDX-License-Identifier: Apache-2.0

package projectid

import (
	"context"
	"errors"
	"testing"
)

type stubResolver struct {
	id  string
	err error
}

func (s stubResolver) Resolve(ctx context.Context) (string, error) {
	return s.id, s.err
}

func TestResolveUsesExplicitFirst(t *testing.T) {
	t.Setenv(EnvVar, "from-env")
	id, err := Resolve(context.Background(), "from-config", stubResolver{id: "from-metadata"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != "from-config" {
		t.Errorf("id = %q, want %q", id, "from-config")
	}
}

func TestResolveFallsBackToEnv(t *testing.T) {
	t.Setenv(EnvVar, "from-env")
	id, err := Resolve(context.Background(), "", stubResolver{id: "from-metadata"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != "from-env" {
		t.Errorf("id = %q, want %q", id, "from-env")
	}
}

func TestResolveFallsBackToMetadata(t *testing.T) {
	t.Setenv(EnvVar, "")
	id, err := Resolve(context.Background(), "", stubResolver{id: "from-metadata"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != "from-metadata" {
		t.Errorf("id = %q, want %q", id, "from-metadata")
	}
}

func TestResolveSurfacesMetadataError(t *testing.T) {
	t.Setenv(EnvVar, "")
	_, err := Resolve(context.Background(), "", stubResolver{err: errors.New("no metadata server")})
	if err == nil {
		t.Fatalf("Resolve = nil error, want failure when every tier is exhausted")
	}
}

func TestResolveRejectsEmptyMetadataResult(t *testing.T) {
	t.Setenv(EnvVar, "")
	_, err := Resolve(context.Background(), "", stubResolver{id: ""})
	if err == nil {
		t.Fatalf("Resolve = nil error, want failure for an empty metadata response")
	}
}
