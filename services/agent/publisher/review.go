// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// PullRequest identifies a review request on the hosting provider.
type PullRequest struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
	Title   string `json:"title"`
}

// Comment is one issue or review comment.
type Comment struct {
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

// CreatePullRequest opens a PR from branch into the base branch. If a PR
// for that branch already exists (the provider rejects duplicates), the
// existing one is fetched and returned, so calling this once per attempt
// still yields exactly one review request per task.
func (c *Client) CreatePullRequest(ctx context.Context, repo, branch, title, body string) (*PullRequest, error) {
	payload := map[string]any{
		"title": title,
		"body":  body,
		"head":  branch,
		"base":  "main",
	}

	var pr PullRequest
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/pulls", c.owner, repo), payload, &pr)
	if err == nil {
		slog.Info("created pull request", "repo", repo, "number", pr.Number, "url", pr.HTMLURL)
		return &pr, nil
	}
	if statusOf(err) != http.StatusUnprocessableEntity {
		return nil, fmt.Errorf("creating pull request for %s: %w", branch, err)
	}

	// 422: a PR for this head already exists. Find and reuse it.
	existing, findErr := c.findPullRequest(ctx, repo, branch)
	if findErr != nil {
		return nil, fmt.Errorf("creating pull request for %s: %w", branch, err)
	}
	slog.Info("reusing existing pull request", "repo", repo, "number", existing.Number)
	return existing, nil
}

func (c *Client) findPullRequest(ctx context.Context, repo, branch string) (*PullRequest, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls?state=open&head=%s",
		c.owner, repo, url.QueryEscape(c.owner+":"+branch))

	var prs []PullRequest
	if err := c.do(ctx, http.MethodGet, path, nil, &prs); err != nil {
		return nil, err
	}
	if len(prs) == 0 {
		return nil, fmt.Errorf("no open pull request for %s", branch)
	}
	return &prs[0], nil
}

// ListIssueComments returns the comments on an issue or pull request in
// creation order.
func (c *Client) ListIssueComments(ctx context.Context, repo string, number int) ([]Comment, error) {
	var comments []Comment
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", c.owner, repo, number)
	if err := c.do(ctx, http.MethodGet, path, nil, &comments); err != nil {
		return nil, fmt.Errorf("listing comments on #%d: %w", number, err)
	}
	return comments, nil
}

// CreateIssueComment posts a comment on an issue or pull request.
func (c *Client) CreateIssueComment(ctx context.Context, repo string, number int, body string) error {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", c.owner, repo, number)
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"body": body}, nil); err != nil {
		return fmt.Errorf("commenting on #%d: %w", number, err)
	}
	return nil
}

// Issue is the task description record driving an attempt loop.
type Issue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// GetIssue fetches an issue by number.
func (c *Client) GetIssue(ctx context.Context, repo string, number int) (*Issue, error) {
	var issue Issue
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", c.owner, repo, number)
	if err := c.do(ctx, http.MethodGet, path, nil, &issue); err != nil {
		return nil, fmt.Errorf("fetching issue #%d: %w", number, err)
	}
	return &issue, nil
}
