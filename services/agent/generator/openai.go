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

	openai "github.com/sashabaranov/go-openai"
)

// OpenAILLM talks to any OpenAI-compatible chat completion endpoint.
// With a DeepSeek base URL and model it serves as the DeepSeek backend.
type OpenAILLM struct {
	client *openai.Client
	model  string
}

// NewOpenAILLM creates the backend. baseURL is optional; when set it
// overrides the default OpenAI endpoint (e.g. "https://api.deepseek.com/v1").
func NewOpenAILLM(apiKey, model, baseURL string) (*OpenAILLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key not set for OpenAI-compatible backend")
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("LLM_MODEL not set, defaulting to gpt-4o-mini")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	slog.Info("initializing OpenAI-compatible client", "model", model, "base_url", cfg.BaseURL)

	return &OpenAILLM{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

// Generate implements the LLM interface.
func (o *OpenAILLM) Generate(ctx context.Context, prompt string) (string, error) {
	slog.Debug("generating via OpenAI-compatible API", "model", o.model)

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are an expert web developer. Follow the instructions exactly."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
