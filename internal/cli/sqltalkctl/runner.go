// Package sqltalkctl implements the command-line client for the
// SQLTalk API.
package sqltalkctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	UserID     string
	SessionID  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// Run executes one CLI invocation. Exit codes: 0 success, 1 request
// failure, 2 usage error.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("sqltalkctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "SQLTalk API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	userID := fs.String("user-id", defaults.UserID, "User ID header (used when auth is disabled)")
	sessionID := fs.String("session", firstNonEmpty(defaults.SessionID, "cli"), "Chat session ID")
	format := fs.String("format", "csv", "Export format for the export command (csv or parquet)")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout (e.g. 60s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	argument := strings.TrimSpace(strings.Join(fs.Args()[1:], " "))

	method := ""
	path := ""
	var payload any
	switch command {
	case "health":
		method, path = http.MethodGet, "/v1/health"
	case "ready":
		method, path = http.MethodGet, "/v1/ready"
	case "schema":
		method, path = http.MethodGet, "/v1/schema"
	case "history":
		method, path = http.MethodGet, "/v1/sessions/"+*sessionID+"/history"
	case "clear":
		method, path = http.MethodDelete, "/v1/sessions/"+*sessionID+"/history"
	case "ask":
		if argument == "" {
			_, _ = fmt.Fprintln(stderr, "ask requires a question")
			return 2
		}
		method, path = http.MethodPost, "/v1/chat"
		payload = map[string]any{"session_id": *sessionID, "question": argument}
	case "translate":
		if argument == "" {
			_, _ = fmt.Fprintln(stderr, "translate requires a question")
			return 2
		}
		method, path = http.MethodPost, "/v1/translate"
		payload = map[string]any{"question": argument}
	case "query":
		if argument == "" {
			_, _ = fmt.Fprintln(stderr, "query requires a SQL statement")
			return 2
		}
		method, path = http.MethodPost, "/v1/query"
		payload = map[string]any{"sql": argument}
	case "export":
		if argument == "" {
			_, _ = fmt.Fprintln(stderr, "export requires a SQL statement")
			return 2
		}
		method, path = http.MethodPost, "/v1/exports"
		payload = map[string]any{"session_id": *sessionID, "format": *format, "sql": argument}
	case "fetch":
		if argument == "" {
			_, _ = fmt.Fprintln(stderr, "fetch requires an export key")
			return 2
		}
		method, path = http.MethodGet, "/v1/exports/"+argument
	case "rm":
		if argument == "" {
			_, _ = fmt.Fprintln(stderr, "rm requires an export key")
			return 2
		}
		method, path = http.MethodDelete, "/v1/exports/"+argument
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, method, endpoint, *apiKey, *userID, payload)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey, userID string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}
	if strings.TrimSpace(userID) != "" {
		req.Header.Set("X-User-ID", strings.TrimSpace(userID))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: sqltalkctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health            GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready             GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  schema            GET /v1/schema")
	_, _ = fmt.Fprintln(w, "  ask <question>    POST /v1/chat")
	_, _ = fmt.Fprintln(w, "  translate <q>     POST /v1/translate")
	_, _ = fmt.Fprintln(w, "  query <sql>       POST /v1/query")
	_, _ = fmt.Fprintln(w, "  export <sql>      POST /v1/exports (see -format)")
	_, _ = fmt.Fprintln(w, "  fetch <key>       GET /v1/exports/<key>")
	_, _ = fmt.Fprintln(w, "  rm <key>          DELETE /v1/exports/<key>")
	_, _ = fmt.Fprintln(w, "  history           GET /v1/sessions/<session>/history")
	_, _ = fmt.Fprintln(w, "  clear             DELETE /v1/sessions/<session>/history")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
