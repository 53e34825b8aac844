// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry looks up the latest published version of packages on a
// package index. The default index is PyPI's JSON API.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AleutianAI/DepScope/pkg/validation"
)

// ErrNotFound is returned when the index does not know the package. Callers
// treat this as a normal, non-fatal outcome.
var ErrNotFound = errors.New("package not found in registry")

const (
	defaultBaseURL = "https://pypi.org"
	defaultTimeout = 10 * time.Second
)

// Client queries a PyPI-compatible JSON API.
//
// Thread Safety: Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different index, e.g. a test server
// or a private mirror.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(base, "/")
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// NewClient creates a registry client with a 10 second request timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// pypiResponse is the subset of PyPI's package JSON we consume.
type pypiResponse struct {
	Info struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"info"`
}

// LatestVersion returns the latest version string the index reports for the
// package. Returns ErrNotFound when the index responds 404.
func (c *Client) LatestVersion(ctx context.Context, pkg string) (string, error) {
	if err := validation.ValidatePackageName(pkg); err != nil {
		return "", err
	}
	u := fmt.Sprintf("%s/pypi/%s/json", c.baseURL, url.PathEscape(pkg))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("build registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("registry request for %s: %w", pkg, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", ErrNotFound, pkg)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("registry returned %d for %s", resp.StatusCode, pkg)
	}

	var body pypiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode registry response for %s: %w", pkg, err)
	}
	if body.Info.Version == "" {
		return "", fmt.Errorf("registry response for %s has no version", pkg)
	}
	return body.Info.Version, nil
}
