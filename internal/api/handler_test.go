package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sqltalk/sqltalk/internal/auth"
	"github.com/sqltalk/sqltalk/internal/chat"
	"github.com/sqltalk/sqltalk/internal/config"
	"github.com/sqltalk/sqltalk/internal/export"
	"github.com/sqltalk/sqltalk/internal/nl2sql"
	"github.com/sqltalk/sqltalk/internal/query"
	"github.com/sqltalk/sqltalk/internal/session"
)

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func testConfig(t *testing.T, env map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load("sqltalk-test", mapLookup(env))
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return cfg
}

type fakeChat struct {
	turn    chat.Turn
	err     error
	history []session.Message
	cleared []string
	chunks  []string
}

func (f *fakeChat) Respond(_ context.Context, request chat.TurnRequest) (chat.Turn, error) {
	if f.err != nil {
		return chat.Turn{}, f.err
	}
	turn := f.turn
	turn.SessionID = request.SessionID
	return turn, nil
}

func (f *fakeChat) RespondStream(ctx context.Context, request chat.TurnRequest, onChunk func(string) error) (chat.Turn, error) {
	if f.err != nil {
		return chat.Turn{}, f.err
	}
	for _, chunk := range f.chunks {
		if err := onChunk(chunk); err != nil {
			return chat.Turn{}, err
		}
	}
	return f.Respond(ctx, request)
}

func (f *fakeChat) History(context.Context, string) ([]session.Message, error) {
	return f.history, nil
}

func (f *fakeChat) Clear(_ context.Context, sessionID string) error {
	f.cleared = append(f.cleared, sessionID)
	return nil
}

type fakeSchemaSource struct {
	tables []nl2sql.TableContext
	err    error
}

func (f *fakeSchemaSource) TableContexts(context.Context) ([]nl2sql.TableContext, error) {
	return f.tables, f.err
}

type fakeQueryEngine struct {
	result query.Result
	err    error
}

func (f *fakeQueryEngine) Execute(context.Context, query.Request) (query.Result, error) {
	return f.result, f.err
}

type fakeExporter struct {
	receipt  export.Receipt
	err      error
	object   export.Object
	body     string
	fetchErr error
	removed  []string
}

func (f *fakeExporter) Export(context.Context, export.Request) (export.Receipt, error) {
	return f.receipt, f.err
}

func (f *fakeExporter) Fetch(context.Context, string) (export.Object, error) {
	if f.fetchErr != nil {
		return export.Object{}, f.fetchErr
	}
	object := f.object
	object.Body = io.NopCloser(strings.NewReader(f.body))
	return object, nil
}

func (f *fakeExporter) Remove(_ context.Context, key string) error {
	f.removed = append(f.removed, key)
	return nil
}

func testDependencies() Dependencies {
	return Dependencies{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Chat: &fakeChat{turn: chat.Turn{
			Answer:   "There are 12 students.",
			SQL:      "SELECT COUNT(*) FROM students",
			Columns:  []string{"count"},
			Rows:     [][]any{{float64(12)}},
			RowCount: 1,
		}},
		Schema:      &fakeSchemaSource{tables: []nl2sql.TableContext{{TableName: "students"}}},
		QueryEngine: &fakeQueryEngine{result: query.Result{Columns: []string{"count"}, Rows: [][]any{{float64(12)}}, RowCount: 1}},
		Exporter:    &fakeExporter{receipt: export.Receipt{Key: "exports/s1/result.csv", Format: "csv"}},
	}
}

func TestHealthEndpoint(t *testing.T) {
	handler := NewHandler(testConfig(t, nil), testDependencies())

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["service"] != "sqltalk-test" {
		t.Fatalf("service = %v", body["service"])
	}
}

func TestReadyReportsFailure(t *testing.T) {
	deps := testDependencies()
	deps.Readiness = func(context.Context) error { return errors.New("session store unreachable") }
	handler := NewHandler(testConfig(t, nil), deps)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", recorder.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error_code"] != "NOT_READY" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
	if body["trace_id"] == "" {
		t.Fatal("trace_id missing from error envelope")
	}
}

func TestProtectedRoutesRequireAPIKey(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		"SQLTALK_AUTH_REQUIRED":    "true",
		"SQLTALK_AUTH_STATIC_KEYS": "secret:alice:chat_user|query_reader",
	})
	validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	deps := testDependencies()
	deps.AuthMiddleware = auth.Middleware(deps.Logger, validator)
	handler := NewHandler(cfg, deps)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", recorder.Code)
	}

	request := httptest.NewRequest(http.MethodGet, "/v1/schema", nil)
	request.Header.Set("X-API-Key", "secret")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
}

func TestAuthRequiredWithoutMiddlewareFailsClosed(t *testing.T) {
	cfg := testConfig(t, map[string]string{"SQLTALK_AUTH_REQUIRED": "true"})
	handler := NewHandler(cfg, testDependencies())

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestSchemaEndpointReturnsTables(t *testing.T) {
	handler := NewHandler(testConfig(t, nil), testDependencies())

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	var body struct {
		Tables []nl2sql.TableContext `json:"tables"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Tables) != 1 || body.Tables[0].TableName != "students" {
		t.Fatalf("tables = %+v", body.Tables)
	}
}

func TestCombineReadinessChecksStopsAtFirstFailure(t *testing.T) {
	calls := 0
	failing := func(context.Context) error { calls++; return errors.New("down") }
	never := func(context.Context) error { calls++; return nil }

	check := CombineReadinessChecks(nil, failing, never)
	if err := check(t.Context()); err == nil {
		t.Fatal("expected combined check to fail")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestUIFallbackDoesNotServeAPIPaths(t *testing.T) {
	deps := testDependencies()
	deps.UI = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html>chat</html>"))
	})
	handler := NewHandler(testConfig(t, nil), deps)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/chat", nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("GET /v1/chat status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error_code"] != "NOT_FOUND" {
		t.Fatalf("error_code = %v", body["error_code"])
	}

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	if recorder.Code != http.StatusOK || recorder.Body.String() != "<html>chat</html>" {
		t.Fatalf("GET / status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
}
