// Copyright 2026 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package projectid resolves the GCP project id the debuglet
// registers itself under (spec §4.7 "Init"): explicit configuration
// first, then an environment variable, then the GCP metadata service.
// The metadata lookup is the one genuinely "peripheral" piece spec.md
// §1 calls out — it is behind a Resolver interface so tests never make
// a real network call.
package projectid

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// EnvVar is the environment variable checked after explicit
// configuration and before the metadata service.
const EnvVar = "GOOGLE_CLOUD_PROJECT"

// metadataURL is the GCE/GKE metadata server's project id endpoint.
const metadataURL = "http://metadata.google.internal/computeMetadata/v1/project/project-id"

// Resolver looks up a project id from one source. MetadataResolver is
// the production implementation; tests supply a stub instead.
type Resolver interface {
	Resolve(ctx context.Context) (string, error)
}

// Resolve runs the full chain: explicit (if non-empty), then EnvVar,
// then metadata.Resolve. metadata may be nil, in which case a
// MetadataResolver using http.DefaultClient is used.
func Resolve(ctx context.Context, explicit string, metadata Resolver) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if v := os.Getenv(EnvVar); v != "" {
		return v, nil
	}
	if metadata == nil {
		metadata = MetadataResolver{}
	}
	id, err := metadata.Resolve(ctx)
	if err != nil {
		return "", fmt.Errorf("projectid: resolving from metadata service: %w", err)
	}
	if id == "" {
		return "", fmt.Errorf("projectid: metadata service returned an empty project id")
	}
	return id, nil
}

// MetadataResolver queries the GCE/GKE metadata service. Only reached
// when both explicit configuration and EnvVar are unset.
type MetadataResolver struct {
	HTTPClient *http.Client
}

func (m MetadataResolver) Resolve(ctx context.Context) (string, error) {
	client := m.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return "", err
	}
	request.Header.Set("Metadata-Flavor", "Google")

	response, err := client.Do(request)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metadata service: HTTP %d", response.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, 4096))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
