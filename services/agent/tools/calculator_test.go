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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalExpression(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"5+5", 10},
		{"2 * 3 + 4", 10},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"10 / 4", 2.5},
		{"-3 + 5", 2},
		{"2^10", 1024},
		{"10 % 3", 1},
		{"1500000000 * 0.25", 375000000},
		{"((1))", 1},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := evalExpression(tt.expr)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestEvalExpression_Rejects(t *testing.T) {
	tests := []string{
		"",
		"5+",
		"(5+5",
		"5 5",
		"1/0",
		"import os",
		"a+b",
		"__import__('os')",
	}
	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			_, err := evalExpression(expr)
			assert.Error(t, err)
		})
	}
}

func TestCalculatorTool_Execute(t *testing.T) {
	tool := NewCalculatorTool()

	out, err := tool.Execute(context.Background(), map[string]string{"expression": "5+5"})
	require.NoError(t, err)
	assert.Equal(t, "5+5 = 10", out)
}

func TestCalculatorTool_ExecuteInvalid(t *testing.T) {
	tool := NewCalculatorTool()
	_, err := tool.Execute(context.Background(), map[string]string{"expression": "rm -rf /"})
	assert.Error(t, err)
}
