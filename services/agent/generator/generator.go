// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package generator produces build artifacts from task briefs.
//
// The Service wraps an LLM backend (Gemini or any OpenAI-compatible API)
// and is total: a backend failure never propagates, it is substituted
// with a deterministic fallback artifact so the pipeline can always
// publish something observable.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ForgelineAI/forgeline/services/agent/datatypes"
)

// LLM is the minimal contract a generation backend must satisfy.
type LLM interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Request carries everything the generator needs for one artifact.
type Request struct {
	// Brief is the build instruction.
	Brief string

	// Attachments are optional data-URI blobs referenced by the brief.
	Attachments []datatypes.Attachment

	// PriorPrimary is the previously published primary file, empty when
	// building from scratch.
	PriorPrimary string

	// Feedback is reviewer feedback from the previous attempt, empty on
	// the first attempt. When set it is appended to the brief context.
	Feedback string
}

// Service turns Requests into Artifacts.
type Service struct {
	llm     LLM
	timeout time.Duration
}

// New creates a generator service around the given backend. The timeout
// bounds each backend call; zero means no extra deadline.
func New(llm LLM, timeout time.Duration) *Service {
	return &Service{llm: llm, timeout: timeout}
}

// Generate produces an artifact for the request. It never fails: backend
// errors are logged and replaced by the fallback artifact, so the result
// always contains the primary file.
func (s *Service) Generate(ctx context.Context, req Request) *datatypes.Artifact {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	prompt := buildPrompt(req)

	raw, err := s.llm.Generate(ctx, prompt)
	if err != nil {
		slog.Error("generation backend failed, using fallback artifact", "error", err)
		return Fallback(err, req.Brief)
	}

	code := StripFences(raw)
	if strings.TrimSpace(code) == "" {
		slog.Warn("generation backend returned empty output, using fallback artifact")
		return Fallback(fmt.Errorf("empty model output"), req.Brief)
	}

	return assemble(code, req.Brief)
}

// assemble wraps the generated primary file with its companion files.
// File order matters: the primary file is first so a fresh repository is
// initialized with it.
func assemble(code, brief string) *datatypes.Artifact {
	return datatypes.NewArtifact(
		datatypes.ArtifactFile{Path: datatypes.PrimaryFile, Content: code},
		datatypes.ArtifactFile{Path: "README.md", Content: readme(brief)},
		datatypes.ArtifactFile{Path: "LICENSE", Content: mitLicense},
	)
}

// StripFences removes an accidental surrounding markdown code fence from
// model output. Output without fences passes through unchanged.
func StripFences(code string) string {
	trimmed := strings.TrimSpace(code)
	if !strings.HasPrefix(trimmed, "```") {
		return code
	}

	lines := strings.Split(trimmed, "\n")
	lines = lines[1:]
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

func readme(brief string) string {
	title := brief
	if len(title) > 50 {
		title = title[:50] + "..."
	}
	return fmt.Sprintf(`# Project: %s

## Summary
This project was automatically generated to solve the task: %q.

## How to use
Open `+"`index.html`"+` in a browser to view the single-file application.

## License
This project is licensed under the MIT License. See the LICENSE file for details.
`, title, brief)
}
