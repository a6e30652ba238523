// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command lautan manages the LautanCore consulting agent.
//
// # Subcommands
//
//   - serve: start the agent HTTP server
//   - ask:   send one question to a running server
//
// # Environment Variables
//
//   - LAUTAN_PORT: HTTP server port (default: 12310)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (optional)
//   - OLLAMA_SERVICE_URL: Ollama URL for embeddings (default: http://localhost:11434)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: lautan-otel-collector:4317)
//   - ANTHROPIC_API_KEY / OPENAI_API_KEY: model backend credentials
package main

import (
	"log"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "lautan",
	Short: "A CLI to run and query the Lautan consulting agent",
	Long: `Lautan is the market-entry consulting agent for Indonesia.
The serve command runs the agent server; ask sends a single question
to a running instance.`,
	Version: version,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
