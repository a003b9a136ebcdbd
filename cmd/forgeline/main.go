// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command forgeline runs the build agent, either as a long-lived HTTP
// service (serve) or as a one-shot issue-driven attempt loop (run).
package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ForgelineAI/forgeline/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "forgeline",
	Short: "LLM-driven code generation and deployment agent",
	Long: `Forgeline accepts build briefs over HTTP, generates web artifacts
with an LLM, publishes them to GitHub with Pages hosting, and notifies
an evaluation endpoint. The run subcommand drives a bounded
generate/review/retry loop against a single repository issue.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		// Load .env before anything reads configuration. A missing file
		// is fine in containerized deployments.
		if err := godotenv.Load(); err == nil {
			slog.Debug("loaded environment from .env")
		}

		level := logging.LevelInfo
		if os.Getenv("LOG_LEVEL") == "debug" {
			level = logging.LevelDebug
		}
		logger := logging.New(logging.Config{
			Level:   level,
			LogDir:  os.Getenv("LOG_DIR"),
			Service: "forgeline",
		})
		slog.SetDefault(logger.Slog())
	}
}
