package target

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sqltalk/sqltalk/internal/nl2sql"
)

// Inspector builds schema context for prompting and for the UI schema
// preview: the table list comes from the dialect's catalog, column names and
// sample rows from a bounded probe query per table.
type Inspector struct {
	Handle     *Handle
	SampleRows int
}

func NewInspector(handle *Handle, sampleRows int) *Inspector {
	if sampleRows <= 0 {
		sampleRows = 5
	}
	return &Inspector{Handle: handle, SampleRows: sampleRows}
}

func (i *Inspector) TableContexts(ctx context.Context) ([]nl2sql.TableContext, error) {
	if i.Handle == nil || i.Handle.DB == nil {
		return nil, fmt.Errorf("target handle is required")
	}

	tables, err := i.listTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	contexts := make([]nl2sql.TableContext, 0, len(tables))
	for _, table := range tables {
		tableCtx := nl2sql.TableContext{TableName: table}
		probeSQL := "SELECT * FROM " + quoteIdent(i.Handle.Dialect, table) + " LIMIT " + strconv.Itoa(i.SampleRows)
		rows, err := i.Handle.DB.QueryContext(ctx, probeSQL)
		if err != nil {
			// A table the user cannot read still shows up by name.
			contexts = append(contexts, tableCtx)
			continue
		}

		columns, err := rows.Columns()
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("columns for %q: %w", table, err)
		}
		tableCtx.Columns = columns

		for rows.Next() {
			values := make([]any, len(columns))
			scanTargets := make([]any, len(columns))
			for idx := range values {
				scanTargets[idx] = &values[idx]
			}
			if err := rows.Scan(scanTargets...); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("scan sample row for %q: %w", table, err)
			}
			tableCtx.SampleRows = append(tableCtx.SampleRows, normalizeValues(values))
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("iterate sample rows for %q: %w", table, err)
		}
		_ = rows.Close()

		contexts = append(contexts, tableCtx)
	}

	return contexts, nil
}

func (i *Inspector) listTables(ctx context.Context) ([]string, error) {
	query := tableListQuery(i.Handle.Dialect)
	rows, err := i.Handle.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tables, nil
}

func tableListQuery(dialect string) string {
	switch dialect {
	case "PostgreSQL":
		return `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' AND table_type = 'BASE TABLE' ORDER BY table_name`
	case "MySQL":
		return `SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name`
	case "DuckDB":
		return `SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' ORDER BY table_name`
	default:
		return `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	}
}

func quoteIdent(dialect, value string) string {
	if dialect == "MySQL" {
		return "`" + strings.ReplaceAll(value, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
