package nl2sql

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OpenAIClient speaks the OpenAI-compatible chat-completions API. Groq
// serves the same surface, so the default wiring points there.
type OpenAIClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClient{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

func (c *OpenAIClient) Translate(ctx context.Context, req Request) (Result, error) {
	messages, err := buildTranslateMessages(req)
	if err != nil {
		return Result{}, err
	}

	content, err := c.complete(ctx, messages)
	if err != nil {
		return Result{}, err
	}

	sqlText := stripMarkdownSQL(content)
	if strings.TrimSpace(sqlText) == "" {
		return Result{}, fmt.Errorf("model returned empty SQL")
	}
	return Result{
		SQL:      sqlText,
		Provider: "openai-compatible",
		Model:    c.model,
	}, nil
}

func (c *OpenAIClient) Compose(ctx context.Context, req AnswerRequest) (string, error) {
	answer, err := c.complete(ctx, buildAnswerMessages(req))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("model returned empty answer")
	}
	return answer, nil
}

func (c *OpenAIClient) ComposeStream(ctx context.Context, req AnswerRequest, onChunk func(chunk string) error) (string, error) {
	return c.completeStream(ctx, buildAnswerMessages(req), onChunk)
}

func (c *OpenAIClient) complete(ctx context.Context, messages []map[string]string) (string, error) {
	resp, err := c.post(ctx, messages, false)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, string(rawBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return "", fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty chat completion choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) completeStream(ctx context.Context, messages []map[string]string, onChunk func(chunk string) error) (string, error) {
	resp, err := c.post(ctx, messages, true)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		rawBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chat stream failed status=%d body=%s", resp.StatusCode, string(rawBody))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	var full strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}

		text := chunk.Choices[0].Delta.Content
		full.WriteString(text)
		if onChunk != nil {
			if err := onChunk(text); err != nil {
				return "", err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan chat stream: %w", err)
	}
	if full.Len() == 0 {
		return "", fmt.Errorf("model returned empty answer")
	}
	return full.String(), nil
}

func (c *OpenAIClient) post(ctx context.Context, messages []map[string]string, stream bool) (*http.Response, error) {
	payload := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": c.temperature,
		"stream":      stream,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request chat completion: %w", err)
	}
	return resp, nil
}

func buildTranslateMessages(req Request) ([]map[string]string, error) {
	tablesJSON, err := json.Marshal(req.Tables)
	if err != nil {
		return nil, fmt.Errorf("marshal table context: %w", err)
	}

	dialect := strings.TrimSpace(req.Dialect)
	if dialect == "" {
		dialect = "SQLite"
	}
	rowLimit := req.RowLimit
	if rowLimit <= 0 {
		rowLimit = 200
	}

	systemPrompt := fmt.Sprintf(
		"You convert natural language questions about a relational database into a single %s SQL query. "+
			"Return ONLY SQL. No markdown, no explanation.", dialect)
	userPrompt := fmt.Sprintf(
		"Schema and sample context (JSON):\n%s\n\nUser question:\n%s\n\nRules:\n- Use only listed tables.\n- Prefer explicit columns.\n- Read-only: SELECT or WITH only.\n- Add LIMIT %s unless the user asks otherwise.\n- Output a single SQL query only.",
		string(tablesJSON),
		strings.TrimSpace(req.NaturalLanguage),
		strconv.Itoa(rowLimit),
	)

	messages := []map[string]string{{"role": "system", "content": systemPrompt}}
	for _, item := range req.History {
		if item.Role != "user" && item.Role != "assistant" {
			continue
		}
		messages = append(messages, map[string]string{"role": item.Role, "content": item.Content})
	}
	messages = append(messages, map[string]string{"role": "user", "content": userPrompt})
	return messages, nil
}

func buildAnswerMessages(req AnswerRequest) []map[string]string {
	resultJSON, err := json.Marshal(map[string]any{
		"columns":   req.Columns,
		"rows":      req.Rows,
		"truncated": req.Truncated,
	})
	if err != nil {
		resultJSON = []byte("{}")
	}

	systemPrompt := "You are a database assistant. Summarize query results for the user conversationally. " +
		"Be concise, mention concrete values, and note when the result was truncated."
	userPrompt := fmt.Sprintf(
		"Question:\n%s\n\nExecuted SQL:\n%s\n\nResult (JSON):\n%s",
		strings.TrimSpace(req.Question),
		strings.TrimSpace(req.SQL),
		string(resultJSON),
	)

	return []map[string]string{
		{"role": "system", "content": systemPrompt},
		{"role": "user", "content": userPrompt},
	}
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
