package storage

import (
	"testing"
	"time"
)

func TestBuildExportPath(t *testing.T) {
	exportedAt := time.Date(2026, 8, 29, 14, 30, 0, 0, time.UTC)

	got, err := BuildExportPath("session-1", "parquet", exportedAt)
	if err != nil {
		t.Fatalf("BuildExportPath() error = %v", err)
	}
	want := "exports/session-1/date=2026-08-29/result-1788013800.parquet"
	if got != want {
		t.Fatalf("BuildExportPath() = %q, want %q", got, want)
	}
}

func TestBuildExportPathRejectsBadComponents(t *testing.T) {
	exportedAt := time.Now()

	cases := map[string][2]string{
		"empty session":    {"", "csv"},
		"traversal":        {"../secrets", "csv"},
		"slash in session": {"a/b", "csv"},
		"empty format":     {"session-1", ""},
		"slash in format":  {"session-1", "cs/v"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := BuildExportPath(c[0], c[1], exportedAt); err == nil {
				t.Fatalf("expected error for session=%q format=%q", c[0], c[1])
			}
		})
	}
}
