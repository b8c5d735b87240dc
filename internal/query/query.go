package query

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotReadOnly marks statements rejected before execution.
var ErrNotReadOnly = errors.New("only read-only SELECT/WITH queries are allowed")

type Request struct {
	SQL      string
	RowLimit int
}

type Result struct {
	Columns   []string
	Rows      [][]any
	RowCount  int
	Truncated bool
	Duration  time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// IsReadOnly reports whether the statement may reach the target database.
// Model output goes through the same gate as user-supplied SQL.
func IsReadOnly(sqlText string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sqlText))
	if normalized == "" {
		return false
	}
	if strings.Contains(normalized, ";") {
		// A single trailing semicolon is tolerated, anything after it is not.
		rest := strings.TrimSpace(normalized[strings.Index(normalized, ";")+1:])
		if rest != "" {
			return false
		}
	}
	return strings.HasPrefix(normalized, "select") || strings.HasPrefix(normalized, "with")
}
