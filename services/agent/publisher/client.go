// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package publisher pushes artifacts to GitHub and manages the review
// surface around them: repositories, branches, pull requests, Pages
// hosting and issue comments.
//
// It talks to the REST v3 API directly over net/http. All calls carry
// the client timeout; none of them blocks indefinitely.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ForgelineAI/forgeline/services/agent/config"
)

// Client is a GitHub REST API client scoped to one account.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	owner   string
}

// NewClient builds a client from the publisher configuration.
func NewClient(cfg config.GitHubConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		owner:   cfg.Owner,
	}
}

// Owner returns the account name the client publishes under.
func (c *Client) Owner() string { return c.owner }

// apiError is a non-2xx response from the API.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("github: status %d: %s", e.StatusCode, e.Body)
}

// statusOf extracts the HTTP status from an API error, 0 otherwise.
func statusOf(err error) int {
	if ae, ok := err.(*apiError); ok {
		return ae.StatusCode
	}
	return 0
}

// do performs an authenticated request and decodes a 2xx JSON response
// into out (out may be nil). Non-2xx responses become *apiError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "token "+c.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apiError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
