// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/ForgelineAI/forgeline/services/agent"
	"github.com/ForgelineAI/forgeline/services/agent/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the build agent HTTP service",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.FromEnv()

		svc, err := agent.New(cfg)
		if err != nil {
			log.Fatalf("Failed to create agent service: %v", err)
		}
		defer svc.Shutdown(context.Background())

		if err := svc.Run(); err != nil {
			log.Fatalf("Agent server error: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
