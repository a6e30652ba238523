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
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// maxQueryRows bounds result size fed back into the loop.
const maxQueryRows = 20

// DatabaseQueryTool runs read-only SELECT statements against the reference
// SQLite database (fee schedules, regional minimum capital tables). Always
// wrapped in a GatedTool.
//
// # Limitations
//
// Only a leading SELECT is accepted; everything else is rejected before
// reaching the driver. The connection is additionally opened in read-only
// mode so a bypass cannot write.
type DatabaseQueryTool struct {
	db *sql.DB
}

// NewDatabaseQueryTool opens the reference database read-only.
func NewDatabaseQueryTool(path string) (*DatabaseQueryTool, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open reference database: %w", err)
	}
	return &DatabaseQueryTool{db: db}, nil
}

// Close releases the database handle.
func (t *DatabaseQueryTool) Close() error {
	return t.db.Close()
}

// Descriptor implements the Tool interface.
func (t *DatabaseQueryTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "db_query",
		Description: "Runs a read-only SQL SELECT against the reference tables (fee_schedule, minimum_capital, license_types).",
		Parameters: map[string]ParamDef{
			"query": {
				Description: "A single SELECT statement",
				Required:    true,
			},
		},
	}
}

// Execute implements the Tool interface.
func (t *DatabaseQueryTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	query := strings.TrimSpace(args["query"])
	if !strings.HasPrefix(strings.ToUpper(query), "SELECT") {
		return "", fmt.Errorf("only SELECT statements are allowed")
	}
	if strings.Contains(query, ";") {
		return "", fmt.Errorf("multiple statements are not allowed")
	}

	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("failed to read columns: %w", err)
	}

	var b strings.Builder
	b.WriteString(strings.Join(columns, " | "))
	b.WriteString("\n")

	count := 0
	values := make([]any, len(columns))
	scanTargets := make([]any, len(columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}
	for rows.Next() {
		if count >= maxQueryRows {
			b.WriteString("[more rows truncated]\n")
			break
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return "", fmt.Errorf("failed to scan row: %w", err)
		}
		cells := make([]string, len(values))
		for i, v := range values {
			switch val := v.(type) {
			case nil:
				cells[i] = "NULL"
			case []byte:
				cells[i] = string(val)
			default:
				cells[i] = fmt.Sprintf("%v", val)
			}
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
		count++
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}
	if count == 0 {
		return "Query returned no rows.", nil
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}
