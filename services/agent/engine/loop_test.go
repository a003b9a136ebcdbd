// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ForgelineAI/forgeline/services/agent/config"
	"github.com/ForgelineAI/forgeline/services/agent/datatypes"
	"github.com/ForgelineAI/forgeline/services/agent/generator"
	"github.com/ForgelineAI/forgeline/services/agent/publisher"
)

// fakeGenerator records every request and returns a minimal artifact.
type fakeGenerator struct {
	requests []generator.Request
}

func (g *fakeGenerator) Generate(_ context.Context, req generator.Request) *datatypes.Artifact {
	g.requests = append(g.requests, req)
	a := datatypes.NewArtifact()
	a.Put(datatypes.PrimaryFile, fmt.Sprintf("<html>attempt %d</html>", len(g.requests)))
	return a
}

// fakePublisher records calls and simulates branch/PR bookkeeping.
type fakePublisher struct {
	publishes     []string // commit messages, in order
	branches      []string // branch names passed to PublishToBranch
	ensuredBranch []string
	prCreates     int
	issueComments []string
	publishErr    error
	publishNil    bool
	ensureErr     error
	prErr         error
	pagesCalls    int
	filesByRef    map[string]string
	getFileErr    error
	commitCounter int
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{filesByRef: map[string]string{}}
}

func (p *fakePublisher) Publish(_ context.Context, repo string, _ *datatypes.Artifact, message string) (*datatypes.PublishResult, error) {
	if p.publishNil {
		return nil, p.publishErr
	}
	p.publishes = append(p.publishes, message)
	p.commitCounter++
	return &datatypes.PublishResult{
		Repo:      repo,
		RepoURL:   "https://github.com/acme/" + repo,
		CommitSHA: fmt.Sprintf("sha-%d", p.commitCounter),
	}, p.publishErr
}

func (p *fakePublisher) PublishToBranch(_ context.Context, repo, branch string, _ *datatypes.Artifact, message string) (*datatypes.PublishResult, error) {
	if p.publishNil {
		return nil, p.publishErr
	}
	p.publishes = append(p.publishes, message)
	p.branches = append(p.branches, branch)
	p.commitCounter++
	return &datatypes.PublishResult{
		Repo:      repo,
		RepoURL:   "https://github.com/acme/" + repo,
		CommitSHA: fmt.Sprintf("sha-%d", p.commitCounter),
	}, p.publishErr
}

func (p *fakePublisher) EnsureBranch(_ context.Context, _, branch string) error {
	p.ensuredBranch = append(p.ensuredBranch, branch)
	return p.ensureErr
}

func (p *fakePublisher) CreatePullRequest(_ context.Context, repo, branch, title, _ string) (*publisher.PullRequest, error) {
	if p.prErr != nil {
		return nil, p.prErr
	}
	p.prCreates++
	return &publisher.PullRequest{
		Number:  42,
		HTMLURL: fmt.Sprintf("https://github.com/acme/%s/pull/42", repo),
		Title:   title,
	}, nil
}

func (p *fakePublisher) EnablePages(_ context.Context, _ string) error {
	p.pagesCalls++
	return nil
}

func (p *fakePublisher) GetFile(_ context.Context, _, path, _ string) (string, error) {
	if p.getFileErr != nil {
		return "", p.getFileErr
	}
	content, ok := p.filesByRef[path]
	if !ok {
		return "", errors.New("not found")
	}
	return content, nil
}

func (p *fakePublisher) CreateIssueComment(_ context.Context, _ string, _ int, body string) error {
	p.issueComments = append(p.issueComments, body)
	return nil
}

func (p *fakePublisher) PagesURL(repo string) string {
	return "https://acme.github.io/" + repo + "/"
}

// fakeVerdicts replays a scripted sequence of verdicts, then sticks on
// the last one.
type fakeVerdicts struct {
	script   []datatypes.Verdict
	feedback []string
	polls    int
}

func (v *fakeVerdicts) Poll(_ context.Context, _ string, _ int) (datatypes.Verdict, string) {
	i := v.polls
	v.polls++
	if i >= len(v.script) {
		i = len(v.script) - 1
	}
	fb := ""
	if i < len(v.feedback) {
		fb = v.feedback[i]
	}
	return v.script[i], fb
}

func instantLoopConfig() config.LoopConfig {
	return config.LoopConfig{
		MaxAttempts: 3,
		MaxPolls:    3,
		// All delays zero so tests run instantly.
	}
}

func TestLoopApprovedFirstAttempt(t *testing.T) {
	gen := &fakeGenerator{}
	pub := newFakePublisher()
	verdicts := &fakeVerdicts{script: []datatypes.Verdict{datatypes.VerdictApproved}}

	loop := NewLoop(gen, pub, verdicts, instantLoopConfig())
	out := loop.Run(context.Background(), ReviewTask{Repo: "proj", Issue: 7, Title: "Fix the header", Brief: "header is broken"})

	assert.Equal(t, datatypes.OutcomeSuccess, out.Status)
	require.Len(t, out.Attempts, 1)
	assert.Equal(t, datatypes.VerdictApproved, out.Attempts[0].Verdict)
	require.NotNil(t, out.FinalPublish)
	assert.Equal(t, "sha-1", out.FinalPublish.CommitSHA)
	assert.Equal(t, "https://github.com/acme/proj/pull/42", out.ReviewURL)

	// One branch prepared, one publish, one PR.
	assert.Equal(t, []string{"agent/issue-7"}, pub.ensuredBranch)
	assert.Equal(t, []string{"agent/issue-7"}, pub.branches)
	assert.Equal(t, 1, pub.prCreates)
}

func TestLoopChangesRequestedThenApproved(t *testing.T) {
	gen := &fakeGenerator{}
	pub := newFakePublisher()
	verdicts := &fakeVerdicts{
		script:   []datatypes.Verdict{datatypes.VerdictChangesRequested, datatypes.VerdictApproved},
		feedback: []string{"Please add error handling"},
	}

	loop := NewLoop(gen, pub, verdicts, instantLoopConfig())
	out := loop.Run(context.Background(), ReviewTask{Repo: "proj", Issue: 3, Title: "Bug", Brief: "it crashes"})

	assert.Equal(t, datatypes.OutcomeSuccess, out.Status)
	require.Len(t, out.Attempts, 2)
	assert.Equal(t, datatypes.VerdictChangesRequested, out.Attempts[0].Verdict)
	assert.Equal(t, datatypes.VerdictApproved, out.Attempts[1].Verdict)

	// Second generation saw the reviewer feedback, first did not.
	require.Len(t, gen.requests, 2)
	assert.Empty(t, gen.requests[0].Feedback)
	assert.Equal(t, "Please add error handling", gen.requests[1].Feedback)

	// Both publishes hit the same branch; the PR was created exactly once.
	assert.Equal(t, []string{"agent/issue-3", "agent/issue-3"}, pub.branches)
	assert.Equal(t, []string{"agent/issue-3"}, pub.ensuredBranch)
	assert.Equal(t, 1, pub.prCreates)
}

func TestLoopExhaustion(t *testing.T) {
	gen := &fakeGenerator{}
	pub := newFakePublisher()
	verdicts := &fakeVerdicts{script: []datatypes.Verdict{datatypes.VerdictPending}}

	cfg := instantLoopConfig()
	loop := NewLoop(gen, pub, verdicts, cfg)
	out := loop.Run(context.Background(), ReviewTask{Repo: "proj", Issue: 9, Title: "Stuck", Brief: "nothing happens"})

	assert.Equal(t, datatypes.OutcomeExhausted, out.Status)
	assert.Len(t, out.Attempts, cfg.MaxAttempts)
	require.NotNil(t, out.FinalPublish, "exhausted outcome keeps the last publish")
	assert.Equal(t, fmt.Sprintf("sha-%d", cfg.MaxAttempts), out.FinalPublish.CommitSHA)

	// Total polls bounded: MaxAttempts * MaxPolls, never more.
	assert.Equal(t, cfg.MaxAttempts*cfg.MaxPolls, verdicts.polls)

	// The give-up note landed on the issue.
	require.Len(t, pub.issueComments, 1)
	assert.Contains(t, pub.issueComments[0], "3 attempts")
	assert.Contains(t, pub.issueComments[0], out.ReviewURL)
}

func TestLoopVerdictErrorAdvancesAttempt(t *testing.T) {
	gen := &fakeGenerator{}
	pub := newFakePublisher()
	verdicts := &fakeVerdicts{
		script: []datatypes.Verdict{datatypes.VerdictError, datatypes.VerdictApproved},
	}

	loop := NewLoop(gen, pub, verdicts, instantLoopConfig())
	out := loop.Run(context.Background(), ReviewTask{Repo: "proj", Issue: 1, Title: "T", Brief: "b"})

	assert.Equal(t, datatypes.OutcomeSuccess, out.Status)
	require.Len(t, out.Attempts, 2)
	// Errored verdicts never carry feedback forward.
	assert.Empty(t, gen.requests[1].Feedback)
}

func TestLoopPublishFailureIsFatal(t *testing.T) {
	gen := &fakeGenerator{}
	pub := newFakePublisher()
	pub.publishNil = true
	pub.publishErr = errors.New("api down")
	verdicts := &fakeVerdicts{script: []datatypes.Verdict{datatypes.VerdictPending}}

	loop := NewLoop(gen, pub, verdicts, instantLoopConfig())
	out := loop.Run(context.Background(), ReviewTask{Repo: "proj", Issue: 2, Title: "T", Brief: "b"})

	assert.Equal(t, datatypes.OutcomeFatal, out.Status)
	require.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "api down")
	assert.Nil(t, out.FinalPublish)
}

func TestLoopBranchPreparationFailureIsFatal(t *testing.T) {
	gen := &fakeGenerator{}
	pub := newFakePublisher()
	pub.ensureErr = errors.New("no base branch")
	verdicts := &fakeVerdicts{script: []datatypes.Verdict{datatypes.VerdictPending}}

	loop := NewLoop(gen, pub, verdicts, instantLoopConfig())
	out := loop.Run(context.Background(), ReviewTask{Repo: "proj", Issue: 4, Title: "T", Brief: "b"})

	assert.Equal(t, datatypes.OutcomeFatal, out.Status)
	require.Error(t, out.Err)
}

func TestLoopCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &fakeGenerator{}
	pub := newFakePublisher()
	verdicts := &fakeVerdicts{script: []datatypes.Verdict{datatypes.VerdictPending}}

	cfg := instantLoopConfig()
	loop := NewLoop(gen, pub, verdicts, cfg)
	out := loop.Run(ctx, ReviewTask{Repo: "proj", Issue: 5, Title: "T", Brief: "b"})

	assert.Equal(t, datatypes.OutcomeFatal, out.Status)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.LessOrEqual(t, len(out.Attempts), 1)
}

func TestLoopCommitMessageTruncatesTitle(t *testing.T) {
	gen := &fakeGenerator{}
	pub := newFakePublisher()
	verdicts := &fakeVerdicts{script: []datatypes.Verdict{datatypes.VerdictApproved}}

	long := "This is an extremely long issue title that keeps going well past thirty characters"
	loop := NewLoop(gen, pub, verdicts, instantLoopConfig())
	loop.Run(context.Background(), ReviewTask{Repo: "proj", Issue: 11, Title: long, Brief: "b"})

	require.Len(t, pub.publishes, 1)
	assert.Equal(t, "Fix Issue #11 (attempt 1): "+long[:30]+"...", pub.publishes[0])
}

func TestLoopCommitMessageTruncatesOnRuneBoundary(t *testing.T) {
	gen := &fakeGenerator{}
	pub := newFakePublisher()
	verdicts := &fakeVerdicts{script: []datatypes.Verdict{datatypes.VerdictApproved}}

	long := strings.Repeat("héllo wörld ", 5)
	loop := NewLoop(gen, pub, verdicts, instantLoopConfig())
	loop.Run(context.Background(), ReviewTask{Repo: "proj", Issue: 12, Title: long, Brief: "b"})

	require.Len(t, pub.publishes, 1)
	message := pub.publishes[0]
	assert.True(t, utf8.ValidString(message), "commit message must stay valid UTF-8: %q", message)
	assert.Equal(t, "Fix Issue #12 (attempt 1): "+string([]rune(long)[:30])+"...", message)
}
