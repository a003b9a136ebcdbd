// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package generator

import (
	"context"
	"fmt"
	"log/slog"

	genai "google.golang.org/genai"
)

// GeminiLLM is a thin wrapper around the official genai client.
// Cross-cutting concerns (fallback, fence stripping) live in Service.
type GeminiLLM struct {
	cli   *genai.Client
	model string
}

// NewGeminiLLM creates the Gemini backend. The API key may be empty, in
// which case the genai client reads it from the environment.
func NewGeminiLLM(ctx context.Context, apiKey, model string) (*GeminiLLM, error) {
	cfg := &genai.ClientConfig{Backend: genai.BackendGeminiAPI}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	cli, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-2.0-flash"
		slog.Warn("LLM_MODEL not set, defaulting to gemini-2.0-flash")
	}
	return &GeminiLLM{cli: cli, model: model}, nil
}

// Generate implements the LLM interface.
func (g *GeminiLLM) Generate(ctx context.Context, prompt string) (string, error) {
	slog.Debug("generating via Gemini", "model", g.model)

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}
