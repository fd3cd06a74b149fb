// Copyright 2026 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package controller implements the Controller client (spec §4.6, §6):
// the three fixed HTTP calls a debuglet makes against the Debug
// Controller — register, the hanging-GET breakpoint poll, and
// updateBreakpoint — with capped exponential backoff on transient
// failures.
package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/clock"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/model"
)

// maxResponseSize bounds a Controller response body read, guarding
// against a misbehaving server rather than any expected payload size.
const maxResponseSize int64 = 32 << 20

// successOnTimeoutParam is the long-poll query parameter this port
// standardizes on (spec.md §9 Open Question, resolved in SPEC_FULL.md
// §5: one Controller version, no protocol flag).
const successOnTimeoutParam = "successOnTimeout=true"

// maxAttempts bounds how many times one logical call retries a
// transient failure before giving up and returning the last error to
// the caller.
const maxAttempts = 5

// maxBackoff caps the exponential backoff delay between attempts.
const maxBackoff = 30 * time.Second

// Client is the Controller HTTP client. One Client is shared by the
// whole debuglet for the lifetime of one Debuggee registration.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clock      clock.Clock
	logger     *slog.Logger
}

// New creates a Client against baseURL (e.g.
// "https://clouddebugger.googleapis.com/v2/controller"). httpClient
// may be a default &http.Client{} in production or one pointed at an
// httptest.Server in tests (the faketroller package does this).
func New(httpClient *http.Client, baseURL string, clk clock.Clock, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{httpClient: httpClient, baseURL: baseURL, clock: clk, logger: logger}
}

// RegisterResult is the decoded response to POST /debuggees/register.
type RegisterResult struct {
	Debuggee        model.Debuggee
	ActivePeriodSec int
}

// Register sends the local Debuggee description and returns the
// server-assigned id (and, if present, the isDisabled flag folded
// into Debuggee) plus the re-registration interval (spec §6 row 1).
func (c *Client) Register(ctx context.Context, debuggee model.Debuggee) (RegisterResult, error) {
	request := struct {
		Debuggee model.Debuggee `json:"debuggee"`
	}{Debuggee: debuggee}

	var response struct {
		Debuggee        model.Debuggee `json:"debuggee"`
		ActivePeriodSec int            `json:"activePeriodSec"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/debuggees/register", request, &response); err != nil {
		return RegisterResult{}, fmt.Errorf("controller: register: %w", err)
	}
	return RegisterResult{Debuggee: response.Debuggee, ActivePeriodSec: response.ActivePeriodSec}, nil
}

// ListBreakpointsResult is the decoded response to the hanging-GET
// breakpoint poll.
type ListBreakpointsResult struct {
	Breakpoints []model.Breakpoint
	WaitExpired bool
}

// ListBreakpoints performs the hanging GET for debuggeeID's active
// breakpoint set (spec §6 row 2). A normal long-poll timeout comes
// back as WaitExpired=true, not as an error; a missing or
// unparseable breakpoints field is treated as "no breakpoints"
// rather than failing the call, per spec §4.7's fetch-loop note.
func (c *Client) ListBreakpoints(ctx context.Context, debuggeeID string) (ListBreakpointsResult, error) {
	path := fmt.Sprintf("/debuggees/%s/breakpoints?%s", debuggeeID, successOnTimeoutParam)

	var response struct {
		Breakpoints json.RawMessage `json:"breakpoints"`
		WaitExpired bool            `json:"waitExpired"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &response); err != nil {
		return ListBreakpointsResult{}, fmt.Errorf("controller: listBreakpoints: %w", err)
	}
	var breakpoints []model.Breakpoint
	if len(response.Breakpoints) > 0 {
		if err := json.Unmarshal(response.Breakpoints, &breakpoints); err != nil {
			c.logger.Warn("controller returned unparseable breakpoints, treating as none", "error", err)
			breakpoints = nil
		}
	}
	return ListBreakpointsResult{Breakpoints: breakpoints, WaitExpired: response.WaitExpired}, nil
}

// UpdateBreakpoint reports a finalized breakpoint back to the
// Controller (spec §6 row 3). Sent exactly once per breakpoint id, by
// the debuglet's bookkeeping, never by this client.
func (c *Client) UpdateBreakpoint(ctx context.Context, debuggeeID string, bp model.Breakpoint) error {
	request := struct {
		DebuggeeID string          `json:"debuggeeId"`
		Breakpoint model.Breakpoint `json:"breakpoint"`
	}{DebuggeeID: debuggeeID, Breakpoint: bp}

	path := fmt.Sprintf("/debuggees/%s/breakpoints/%s", debuggeeID, bp.ID)
	if err := c.doJSON(ctx, http.MethodPut, path, request, nil); err != nil {
		return fmt.Errorf("controller: updateBreakpoint %s: %w", bp.ID, err)
	}
	return nil
}

// doJSON issues one retried HTTP call with a JSON body (or no body,
// when body is nil) and decodes a JSON response into out (skipped
// when out is nil, e.g. updateBreakpoint's ack).
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	}

	response, err := c.doWithRetry(ctx, method, path, encoded)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if out == nil {
		io.Copy(io.Discard, io.LimitReader(response.Body, maxResponseSize))
		return nil
	}
	return decodeResponse(response.Body, out)
}

// doWithRetry performs one HTTP round trip, retrying transient
// failures with capped exponential backoff (spec.md §4.7's "on
// non-2xx retry with capped exponential backoff", the same doubling
// idiom as cmd/bureau-daemon/retry.go's isTransientError/backoff
// pattern). A permanent 4xx (other than 429) and context
// cancellation both return immediately.
func (c *Client) doWithRetry(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-c.clock.After(backoff):
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		if body != nil {
			request.Header.Set("Content-Type", "application/json")
		}

		response, err := c.httpClient.Do(request)
		if err != nil {
			lastErr = err
			c.logger.Warn("controller request failed, retrying", "method", method, "path", path, "attempt", attempt+1, "error", err)
			continue
		}

		if response.StatusCode >= 200 && response.StatusCode < 300 {
			return response, nil
		}

		errBody := errorBody(response.Body)
		response.Body.Close()
		statusErr := fmt.Errorf("HTTP %d: %s", response.StatusCode, errBody)

		if !isTransientStatus(response.StatusCode) {
			return nil, statusErr
		}
		lastErr = statusErr
		c.logger.Warn("controller request transient failure, retrying", "method", method, "path", path, "attempt", attempt+1, "status", response.StatusCode)
	}
	return nil, lastErr
}

// isTransientStatus reports whether an HTTP status code is worth
// retrying: 429 (rate limit) and 5xx (server error) are transient;
// every other 4xx is a permanent client error, mirroring
// cmd/bureau-daemon/retry.go's isTransientError classification.
func isTransientStatus(status int) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500
}

func decodeResponse(body io.Reader, out any) error {
	data, err := io.ReadAll(io.LimitReader(body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func errorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxResponseSize))
	return string(data)
}
