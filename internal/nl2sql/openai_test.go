package nl2sql

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStripMarkdownSQL(t *testing.T) {
	got := stripMarkdownSQL("```sql\nSELECT 1;\n```")
	if got != "SELECT 1;" {
		t.Fatalf("stripMarkdownSQL() = %q", got)
	}
	if got := stripMarkdownSQL("  SELECT 2  "); got != "SELECT 2" {
		t.Fatalf("stripMarkdownSQL() = %q", got)
	}
}

func TestBuildTranslateMessagesIncludesDialectAndHistory(t *testing.T) {
	messages, err := buildTranslateMessages(Request{
		Dialect:         "MySQL",
		NaturalLanguage: "top 5 students by score",
		Tables:          []TableContext{{TableName: "students", Columns: []string{"name", "score"}}},
		History: []HistoryMessage{
			{Role: "user", Content: "how many students are there?"},
			{Role: "assistant", Content: "There are 12 students."},
			{Role: "system", Content: "should be filtered"},
		},
		RowLimit: 50,
	})
	if err != nil {
		t.Fatalf("buildTranslateMessages() error = %v", err)
	}
	if len(messages) != 4 {
		t.Fatalf("len(messages) = %d", len(messages))
	}
	if !strings.Contains(messages[0]["content"], "MySQL") {
		t.Fatalf("system prompt = %q", messages[0]["content"])
	}
	last := messages[len(messages)-1]["content"]
	if !strings.Contains(last, "students") || !strings.Contains(last, "LIMIT 50") {
		t.Fatalf("user prompt = %q", last)
	}
}

func TestTranslateParsesCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("authorization = %q", got)
		}
		var payload struct {
			Model  string `json:"model"`
			Stream bool   `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload.Stream {
			t.Fatal("translate must not stream")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "```sql\nSELECT name FROM students LIMIT 5\n```"}},
			},
		})
	}))
	defer server.Close()

	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}

	result, err := client.Translate(t.Context(), Request{NaturalLanguage: "first five student names"})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if result.SQL != "SELECT name FROM students LIMIT 5" {
		t.Fatalf("SQL = %q", result.SQL)
	}
	if result.Model != "llama-3.3-70b-versatile" {
		t.Fatalf("Model = %q", result.Model)
	}
}

func TestTranslateSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL, APIKey: "bad"})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}
	if _, err := client.Translate(t.Context(), Request{NaturalLanguage: "anything"}); err == nil {
		t.Fatal("expected error from 401 response")
	}
}

func TestComposeStreamCollectsDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"There ", "are ", "12 students."} {
			chunk := map[string]any{
				"choices": []map[string]any{{"delta": map[string]string{"content": delta}}},
			}
			encoded, _ := json.Marshal(chunk)
			_, _ = fmt.Fprintf(w, "data: %s\n\n", encoded)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}

	var chunks []string
	answer, err := client.ComposeStream(t.Context(), AnswerRequest{Question: "how many students?"}, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("ComposeStream() error = %v", err)
	}
	if answer != "There are 12 students." {
		t.Fatalf("answer = %q", answer)
	}
	if len(chunks) != 3 {
		t.Fatalf("chunks = %v", chunks)
	}
}

func TestNewOpenAIClientRequiresKeyAndURL(t *testing.T) {
	if _, err := NewOpenAIClient(OpenAIConfig{APIKey: "k"}); err == nil {
		t.Fatal("expected error for missing base URL")
	}
	if _, err := NewOpenAIClient(OpenAIConfig{BaseURL: "https://api.groq.com/openai"}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
