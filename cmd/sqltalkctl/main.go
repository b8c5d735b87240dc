package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sqltalk/sqltalk/internal/cli/sqltalkctl"
)

func main() {
	_ = godotenv.Load()

	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("SQLTALK_CLI_TIMEOUT")), 60*time.Second)
	options := sqltalkctl.Options{
		BaseURL:   envOr("SQLTALK_API_URL", "http://localhost:8080"),
		APIKey:    strings.TrimSpace(os.Getenv("SQLTALK_API_KEY")),
		UserID:    strings.TrimSpace(os.Getenv("SQLTALK_USER_ID")),
		SessionID: strings.TrimSpace(os.Getenv("SQLTALK_SESSION_ID")),
		Timeout:   timeout,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}

	code := sqltalkctl.Run(context.Background(), os.Args[1:], options)
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid SQLTALK_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
