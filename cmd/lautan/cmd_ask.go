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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/LautanAI/LautanCore/services/agent/datatypes"
)

var (
	askServerURL string
	askUserID    string

	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the agent a question",
		Long: `Sends a question to a running Lautan agent and prints the answer
with its cited sources. The agent retrieves regulatory context, runs
tools as needed, and answers with citations.`,
		Args: cobra.MinimumNArgs(1),
		Run:  runAskCommand,
	}
)

func init() {
	askCmd.Flags().StringVar(&askServerURL, "server",
		getEnvString("LAUTAN_SERVER_URL", "http://localhost:12310"),
		"Agent server base URL")
	askCmd.Flags().StringVar(&askUserID, "user", "", "User ID for gated tools")
	rootCmd.AddCommand(askCmd)
}

func runAskCommand(cmd *cobra.Command, args []string) {
	question := strings.Join(args, " ")

	payload, err := json.Marshal(datatypes.QueryRequest{
		Query:  question,
		UserID: askUserID,
	})
	if err != nil {
		log.Fatalf("Failed to encode request: %v", err)
	}

	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Post(askServerURL+"/v1/agent/query",
		"application/json", bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Failed to read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var answer datatypes.QueryResponse
	if err := json.Unmarshal(body, &answer); err != nil {
		log.Fatalf("Failed to decode response: %v", err)
	}

	fmt.Println(answer.Answer)
	if len(answer.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, source := range answer.Sources {
			fmt.Printf("  - %s\n", source)
		}
	}
	fmt.Fprintf(os.Stderr, "\n[%d steps, %d tool calls, correlation %s]\n",
		answer.TotalSteps, answer.ToolsCalled, answer.CorrelationID)
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
