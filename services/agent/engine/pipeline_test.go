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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ForgelineAI/forgeline/services/agent/config"
	"github.com/ForgelineAI/forgeline/services/agent/datatypes"
	"github.com/ForgelineAI/forgeline/services/agent/generator"
)

// fakeNotifier records delivered payloads.
type fakeNotifier struct {
	calls    []datatypes.NotificationPayload
	urls     []string
	err      error
}

func (n *fakeNotifier) Notify(_ context.Context, url string, payload datatypes.NotificationPayload) error {
	n.urls = append(n.urls, url)
	n.calls = append(n.calls, payload)
	return n.err
}

// panicGenerator simulates a bug in a generation backend.
type panicGenerator struct{}

func (panicGenerator) Generate(context.Context, generator.Request) *datatypes.Artifact {
	panic("nil template")
}

func instantBuildConfig() config.BuildConfig {
	return config.BuildConfig{} // zero settle, tests run instantly
}

func testTask(round int) *datatypes.Task {
	return &datatypes.Task{
		ID:            "site-abc123",
		Email:         "student@example.com",
		Round:         round,
		Nonce:         "nonce-1",
		Brief:         "Build a landing page",
		EvaluationURL: "https://eval.example.com/notify",
	}
}

func TestPipelineHappyPath(t *testing.T) {
	gen := &fakeGenerator{}
	pub := newFakePublisher()
	notify := &fakeNotifier{}

	p := NewPipeline(gen, pub, notify, instantBuildConfig())
	err := p.Execute(context.Background(), testTask(1))
	require.NoError(t, err)

	// Generate, publish, expose, notify — in that order, each once.
	require.Len(t, gen.requests, 1)
	require.Len(t, pub.publishes, 1)
	assert.Equal(t, "feat: Round 1 update", pub.publishes[0])
	assert.Equal(t, 1, pub.pagesCalls)
	require.Len(t, notify.calls, 1)

	got := notify.calls[0]
	assert.Equal(t, "student@example.com", got.Email)
	assert.Equal(t, "site-abc123", got.Task)
	assert.Equal(t, 1, got.Round)
	assert.Equal(t, "nonce-1", got.Nonce)
	assert.Equal(t, "sha-1", got.CommitSHA)
	assert.Equal(t, "https://github.com/acme/site-abc123", got.RepoURL)
	assert.Equal(t, "https://acme.github.io/site-abc123/", got.PagesURL)
	assert.Equal(t, []string{"https://eval.example.com/notify"}, notify.urls)
}

func TestPipelineRevisionFetchesPriorArtifact(t *testing.T) {
	gen := &fakeGenerator{}
	pub := newFakePublisher()
	pub.filesByRef[datatypes.PrimaryFile] = "<html>round one</html>"
	notify := &fakeNotifier{}

	p := NewPipeline(gen, pub, notify, instantBuildConfig())
	require.NoError(t, p.Execute(context.Background(), testTask(2)))

	require.Len(t, gen.requests, 1)
	assert.Equal(t, "<html>round one</html>", gen.requests[0].PriorPrimary)
}

func TestPipelineFirstRoundSkipsPriorFetch(t *testing.T) {
	gen := &fakeGenerator{}
	pub := newFakePublisher()
	pub.getFileErr = errors.New("should not be called")
	notify := &fakeNotifier{}

	p := NewPipeline(gen, pub, notify, instantBuildConfig())
	require.NoError(t, p.Execute(context.Background(), testTask(1)))
	assert.Empty(t, gen.requests[0].PriorPrimary)
}

func TestPipelinePriorFetchFailureIsNotFatal(t *testing.T) {
	gen := &fakeGenerator{}
	pub := newFakePublisher()
	pub.getFileErr = errors.New("404")
	notify := &fakeNotifier{}

	p := NewPipeline(gen, pub, notify, instantBuildConfig())
	require.NoError(t, p.Execute(context.Background(), testTask(3)))

	// Generated from scratch and still delivered.
	assert.Empty(t, gen.requests[0].PriorPrimary)
	assert.Len(t, notify.calls, 1)
}

func TestPipelinePublishFailureAborts(t *testing.T) {
	gen := &fakeGenerator{}
	pub := newFakePublisher()
	pub.publishNil = true
	pub.publishErr = errors.New("rate limited")
	notify := &fakeNotifier{}

	p := NewPipeline(gen, pub, notify, instantBuildConfig())
	err := p.Execute(context.Background(), testTask(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Empty(t, notify.calls, "no notification for an unpublished artifact")
}

func TestPipelinePartialPublishContinues(t *testing.T) {
	gen := &fakeGenerator{}
	pub := newFakePublisher()
	pub.publishErr = errors.New("LICENSE: 500")
	notify := &fakeNotifier{}

	p := NewPipeline(gen, pub, notify, instantBuildConfig())
	require.NoError(t, p.Execute(context.Background(), testTask(1)))

	// Some files landed, so hosting was exposed and delivery happened.
	assert.Equal(t, 1, pub.pagesCalls)
	assert.Len(t, notify.calls, 1)
}

func TestPipelineNotifyExhaustionIsFatal(t *testing.T) {
	gen := &fakeGenerator{}
	pub := newFakePublisher()
	notify := &fakeNotifier{err: errors.New("endpoint unreachable after 5 attempts")}

	p := NewPipeline(gen, pub, notify, instantBuildConfig())
	err := p.Execute(context.Background(), testTask(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestPipelineRecoversFromPanic(t *testing.T) {
	pub := newFakePublisher()
	notify := &fakeNotifier{}

	p := NewPipeline(panicGenerator{}, pub, notify, instantBuildConfig())
	err := p.Execute(context.Background(), testTask(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline panic")
	assert.Empty(t, pub.publishes)
}
