// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package publisher

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ForgelineAI/forgeline/services/agent/datatypes"
)

type repoInfo struct {
	Name    string `json:"name"`
	HTMLURL string `json:"html_url"`
	Owner   struct {
		Login string `json:"login"`
	} `json:"owner"`
}

type contentFile struct {
	SHA     string `json:"sha"`
	Content string `json:"content"`
	Emit    string `json:"encoding"`
}

type branchInfo struct {
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

type refInfo struct {
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

// EnsureRepo returns the repository, creating a public one if absent.
// The created flag tells the caller the repo has no commits yet, which
// changes how the first file must be written.
func (c *Client) EnsureRepo(ctx context.Context, name string) (created bool, err error) {
	err = c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s", c.owner, name), nil, &repoInfo{})
	if err == nil {
		return false, nil
	}
	if statusOf(err) != http.StatusNotFound {
		return false, fmt.Errorf("checking repo %s: %w", name, err)
	}

	slog.Info("repository not found, creating", "repo", name)
	body := map[string]any{"name": name, "private": false}
	if err := c.do(ctx, http.MethodPost, "/user/repos", body, nil); err != nil {
		return false, fmt.Errorf("creating repo %s: %w", name, err)
	}
	return true, nil
}

// GetFile fetches a file's decoded content from the given ref (empty for
// the default branch).
func (c *Client) GetFile(ctx context.Context, repo, path, ref string) (string, error) {
	p := fmt.Sprintf("/repos/%s/%s/contents/%s", c.owner, repo, path)
	if ref != "" {
		p += "?ref=" + url.QueryEscape(ref)
	}

	var f contentFile
	if err := c.do(ctx, http.MethodGet, p, nil, &f); err != nil {
		return "", fmt.Errorf("fetching %s: %w", path, err)
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(f.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", path, err)
	}
	return string(decoded), nil
}

// putFile creates or updates one file on a branch (empty branch means the
// default branch). Writes are skipped when the remote content is already
// identical, which keeps repeated publishes of the same artifact from
// piling up empty-change commits.
func (c *Client) putFile(ctx context.Context, repo, branch, path, content, message string) error {
	getPath := fmt.Sprintf("/repos/%s/%s/contents/%s", c.owner, repo, path)
	if branch != "" {
		getPath += "?ref=" + url.QueryEscape(branch)
	}

	var existing contentFile
	sha := ""
	err := c.do(ctx, http.MethodGet, getPath, nil, &existing)
	switch {
	case err == nil:
		current, decErr := base64.StdEncoding.DecodeString(strings.ReplaceAll(existing.Content, "\n", ""))
		if decErr == nil && string(current) == content {
			slog.Debug("file unchanged, skipping write", "repo", repo, "path", path)
			return nil
		}
		sha = existing.SHA
	case statusOf(err) == http.StatusNotFound:
		// create below
	default:
		return fmt.Errorf("checking %s: %w", path, err)
	}

	body := map[string]any{
		"message": message,
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
	}
	if sha != "" {
		body["sha"] = sha
	}
	if branch != "" {
		body["branch"] = branch
	}

	putPath := fmt.Sprintf("/repos/%s/%s/contents/%s", c.owner, repo, path)
	if err := c.do(ctx, http.MethodPut, putPath, body, nil); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Publish creates-or-updates every artifact file in repo, creating the
// repository first when needed.
//
// Ordering is load-bearing for a brand new repository: it has no commits,
// so the first artifact file is written as the initializing commit before
// any other write. Per-file failures after that are collected and the
// remaining files still published; the batch error is returned alongside
// a usable PublishResult only when at least one file landed.
func (c *Client) Publish(ctx context.Context, repo string, artifact *datatypes.Artifact, message string) (*datatypes.PublishResult, error) {
	files := artifact.Files()
	if len(files) == 0 {
		return nil, fmt.Errorf("artifact for %s is empty", repo)
	}

	created, err := c.EnsureRepo(ctx, repo)
	if err != nil {
		return nil, err
	}

	start := 0
	if created {
		first := files[0]
		slog.Info("initializing new repository", "repo", repo, "path", first.Path)
		if err := c.putFile(ctx, repo, "", first.Path, first.Content, message+" for "+first.Path); err != nil {
			return nil, fmt.Errorf("initializing repo %s: %w", repo, err)
		}
		start = 1
	}

	var fileErrs []error
	wrote := created
	for _, f := range files[start:] {
		if err := c.putFile(ctx, repo, "", f.Path, f.Content, message+" for "+f.Path); err != nil {
			slog.Error("file publish failed", "repo", repo, "path", f.Path, "error", err)
			fileErrs = append(fileErrs, err)
			continue
		}
		wrote = true
	}

	if !wrote && len(fileErrs) > 0 {
		return nil, fmt.Errorf("publishing %s: %w", repo, errors.Join(fileErrs...))
	}

	sha, err := c.headSHA(ctx, repo, "")
	if err != nil {
		return nil, err
	}

	result := &datatypes.PublishResult{
		Owner:     c.owner,
		Repo:      repo,
		RepoURL:   fmt.Sprintf("https://github.com/%s/%s", c.owner, repo),
		CommitSHA: sha,
	}
	if len(fileErrs) > 0 {
		return result, fmt.Errorf("publishing %s (partial): %w", repo, errors.Join(fileErrs...))
	}
	return result, nil
}

// PublishToBranch is Publish targeting a specific branch, used by the
// attempt loop. The repository and branch must already exist.
func (c *Client) PublishToBranch(ctx context.Context, repo, branch string, artifact *datatypes.Artifact, message string) (*datatypes.PublishResult, error) {
	files := artifact.Files()
	if len(files) == 0 {
		return nil, fmt.Errorf("artifact for %s is empty", repo)
	}

	var fileErrs []error
	wrote := false
	for _, f := range files {
		if err := c.putFile(ctx, repo, branch, f.Path, f.Content, message); err != nil {
			slog.Error("file publish failed", "repo", repo, "branch", branch, "path", f.Path, "error", err)
			fileErrs = append(fileErrs, err)
			continue
		}
		wrote = true
	}
	if !wrote && len(fileErrs) > 0 {
		return nil, fmt.Errorf("publishing %s@%s: %w", repo, branch, errors.Join(fileErrs...))
	}

	sha, err := c.headSHA(ctx, repo, branch)
	if err != nil {
		return nil, err
	}
	result := &datatypes.PublishResult{
		Owner:     c.owner,
		Repo:      repo,
		RepoURL:   fmt.Sprintf("https://github.com/%s/%s", c.owner, repo),
		CommitSHA: sha,
	}
	if len(fileErrs) > 0 {
		return result, fmt.Errorf("publishing %s@%s (partial): %w", repo, branch, errors.Join(fileErrs...))
	}
	return result, nil
}

// EnsureBranch makes sure branch exists, creating it from the base branch
// head if absent. Reusing an existing branch is not an error: every
// attempt for a task must land on the same branch.
func (c *Client) EnsureBranch(ctx context.Context, repo, branch string) error {
	var ref refInfo
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/git/ref/heads/%s", c.owner, repo, branch), nil, &ref)
	if err == nil {
		slog.Debug("branch already exists, reusing", "repo", repo, "branch", branch)
		return nil
	}
	if statusOf(err) != http.StatusNotFound {
		return fmt.Errorf("checking branch %s: %w", branch, err)
	}

	baseSHA, err := c.baseBranchSHA(ctx, repo)
	if err != nil {
		return err
	}

	body := map[string]any{"ref": "refs/heads/" + branch, "sha": baseSHA}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/git/refs", c.owner, repo), body, nil); err != nil {
		// Lost a race with a concurrent create; the branch exists now.
		if statusOf(err) == http.StatusUnprocessableEntity {
			return nil
		}
		return fmt.Errorf("creating branch %s: %w", branch, err)
	}
	return nil
}

// headSHA returns the latest commit SHA of branch, or of the base branch
// when branch is empty.
func (c *Client) headSHA(ctx context.Context, repo, branch string) (string, error) {
	if branch == "" {
		return c.baseBranchSHA(ctx, repo)
	}
	var b branchInfo
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/branches/%s", c.owner, repo, branch), nil, &b); err != nil {
		return "", fmt.Errorf("resolving head of %s: %w", branch, err)
	}
	return b.Commit.SHA, nil
}

// baseBranchSHA resolves the head of main, falling back to master for
// older repositories.
func (c *Client) baseBranchSHA(ctx context.Context, repo string) (string, error) {
	var b branchInfo
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/branches/main", c.owner, repo), nil, &b)
	if err == nil {
		return b.Commit.SHA, nil
	}
	if statusOf(err) != http.StatusNotFound {
		return "", fmt.Errorf("resolving main: %w", err)
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/branches/master", c.owner, repo), nil, &b); err != nil {
		return "", fmt.Errorf("resolving base branch: %w", err)
	}
	return b.Commit.SHA, nil
}

// EnablePages turns on GitHub Pages for the repository, serving the base
// branch root. An already-enabled site (409) is success, not an error.
func (c *Client) EnablePages(ctx context.Context, repo string) error {
	body := map[string]any{"source": map[string]string{"branch": "main", "path": "/"}}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/pages", c.owner, repo), body, nil)
	if err == nil {
		slog.Info("enabled pages hosting", "repo", repo)
		return nil
	}
	if statusOf(err) == http.StatusConflict {
		slog.Info("pages hosting already enabled", "repo", repo)
		return nil
	}
	return fmt.Errorf("enabling pages for %s: %w", repo, err)
}

// PagesURL returns the public hosting URL for a published repository.
func (c *Client) PagesURL(repo string) string {
	return fmt.Sprintf("https://%s.github.io/%s/", c.owner, repo)
}
