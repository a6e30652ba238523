// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `[
  {"service_type": "company_incorporation", "description": "PT PMA company setup end to end", "price_idr": 25000000, "price_usd": 1600, "lead_time": "4-6 weeks"},
  {"service_type": "kitas_visa", "description": "Work and stay permit processing", "price_idr": 15000000, "price_usd": 950, "lead_time": "3-4 weeks"}
]`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pricing.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPricingTool_ExactMatch(t *testing.T) {
	tool, err := NewPricingTool(writeCatalog(t, testCatalog))
	require.NoError(t, err)
	defer tool.Close()

	out, err := tool.Execute(context.Background(), map[string]string{"service_type": "kitas_visa"})
	require.NoError(t, err)
	assert.Contains(t, out, "kitas_visa")
	assert.Contains(t, out, "IDR 15000000")
}

func TestPricingTool_FuzzyMatch(t *testing.T) {
	tool, err := NewPricingTool(writeCatalog(t, testCatalog))
	require.NoError(t, err)
	defer tool.Close()

	out, err := tool.Execute(context.Background(), map[string]string{"service_type": "company setup"})
	require.NoError(t, err)
	assert.Contains(t, out, "company_incorporation")
}

func TestPricingTool_NoMatchListsServices(t *testing.T) {
	tool, err := NewPricingTool(writeCatalog(t, testCatalog))
	require.NoError(t, err)
	defer tool.Close()

	out, err := tool.Execute(context.Background(), map[string]string{"service_type": "zzz"})
	require.NoError(t, err)
	assert.Contains(t, out, "No pricing found")
	assert.Contains(t, out, "company_incorporation")
	assert.Contains(t, out, "kitas_visa")
}

func TestPricingTool_ReloadsOnFileChange(t *testing.T) {
	path := writeCatalog(t, testCatalog)
	tool, err := NewPricingTool(path)
	require.NoError(t, err)
	defer tool.Close()

	updated := strings.Replace(testCatalog, "25000000", "30000000", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool {
		out, err := tool.Execute(context.Background(), map[string]string{"service_type": "company_incorporation"})
		return err == nil && strings.Contains(out, "IDR 30000000")
	}, 3*time.Second, 50*time.Millisecond)
}

func TestPricingTool_InvalidCatalogFailsConstruction(t *testing.T) {
	_, err := NewPricingTool(writeCatalog(t, "not json"))
	assert.Error(t, err)
}
