// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/LautanAI/LautanCore/pkg/logging"
	"github.com/LautanAI/LautanCore/services/agent"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agent HTTP server",
	Long: `Starts the Lautan agent server: model fallback chain, tool registry,
retrieval, golden answer cache, and the HTTP/SSE/WebSocket surface.
Configuration is read from environment variables.`,
	Run: runServeCommand,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServeCommand(cmd *cobra.Command, args []string) {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("LOG_LEVEL")),
		LogDir:  os.Getenv("LOG_DIR"),
		Service: "lautan-core",
	})
	defer logger.Close()
	logger.SetAsDefault()

	cfg := agent.ServiceConfig{
		Port:               getEnvInt("LAUTAN_PORT", 12310),
		Version:            version,
		WeaviateURL:        os.Getenv("WEAVIATE_SERVICE_URL"),
		OllamaURL:          os.Getenv("OLLAMA_SERVICE_URL"),
		EmbedModel:         os.Getenv("EMBED_MODEL"),
		OTelEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		AuditDBPath:        os.Getenv("AUDIT_DB_PATH"),
		MemoryDBPath:       os.Getenv("MEMORY_DB_PATH"),
		ReferenceDBPath:    os.Getenv("REFERENCE_DB_PATH"),
		PricingCatalogPath: os.Getenv("PRICING_CATALOG_PATH"),
		DocsDir:            os.Getenv("DOCS_DIR"),
		GatedUserIDs:       splitCommaList(os.Getenv("GATED_USER_IDS")),
		GinMode:            os.Getenv("GIN_MODE"),
	}

	logger.Info("Starting Lautan agent",
		"port", cfg.Port,
		"weaviate_url", cfg.WeaviateURL,
	)

	svc, err := agent.NewService(cfg)
	if err != nil {
		log.Fatalf("Failed to create agent service: %v", err)
	}
	if err := svc.Run(); err != nil {
		log.Fatalf("Agent server error: %v", err)
	}
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// splitCommaList parses a comma-separated env value into trimmed entries.
func splitCommaList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
