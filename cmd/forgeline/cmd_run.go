// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/ForgelineAI/forgeline/services/agent/config"
	"github.com/ForgelineAI/forgeline/services/agent/engine"
	"github.com/ForgelineAI/forgeline/services/agent/generator"
	"github.com/ForgelineAI/forgeline/services/agent/publisher"
	"github.com/ForgelineAI/forgeline/services/agent/review"
)

var (
	runRepo  string
	runIssue int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one bounded fix loop against a repository issue",
	Long: `Fetches the issue, then repeatedly generates a change, publishes
it to the issue's work branch, opens or reuses a pull request, and polls
for a review verdict. Stops on approval or after the attempt budget.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.FromEnv()
		ctx := context.Background()

		llm, err := newRunLLM(ctx, cfg.LLM)
		if err != nil {
			log.Fatalf("Failed to initialize LLM backend: %v", err)
		}

		pub := publisher.NewClient(cfg.GitHub)
		issue, err := pub.GetIssue(ctx, runRepo, runIssue)
		if err != nil {
			log.Fatalf("Failed to fetch issue #%d in %s: %v", runIssue, runRepo, err)
		}

		loop := engine.NewLoop(
			generator.New(llm, cfg.LLM.Timeout),
			pub,
			&review.PRPoller{Client: pub},
			cfg.Loop,
		)

		outcome := loop.Run(ctx, engine.ReviewTask{
			Repo:  runRepo,
			Issue: runIssue,
			Title: issue.Title,
			Brief: issue.Body,
		})

		fmt.Printf("Outcome: %s (%d attempts)\n", outcome.Status, len(outcome.Attempts))
		if outcome.ReviewURL != "" {
			fmt.Printf("Pull request: %s\n", outcome.ReviewURL)
		}
		if outcome.Err != nil {
			log.Fatalf("Loop error: %v", outcome.Err)
		}
	},
}

func newRunLLM(ctx context.Context, cfg config.LLMConfig) (generator.LLM, error) {
	switch cfg.Backend {
	case "gemini", "":
		return generator.NewGeminiLLM(ctx, cfg.APIKey, cfg.Model)
	case "openai", "deepseek":
		return generator.NewOpenAILLM(cfg.APIKey, cfg.Model, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unknown LLM backend %q", cfg.Backend)
	}
}

func init() {
	runCmd.Flags().StringVar(&runRepo, "repo", "", "repository name (required)")
	runCmd.Flags().IntVar(&runIssue, "issue", 0, "issue number (required)")
	_ = runCmd.MarkFlagRequired("repo")
	_ = runCmd.MarkFlagRequired("issue")
	rootCmd.AddCommand(runCmd)
}
