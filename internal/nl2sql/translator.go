package nl2sql

import "context"

type TableContext struct {
	TableName  string   `json:"table_name"`
	Columns    []string `json:"columns"`
	SampleRows [][]any  `json:"sample_rows"`
}

// HistoryMessage is a prior conversation turn included for context.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Dialect         string           `json:"dialect"`
	NaturalLanguage string           `json:"natural_language"`
	Tables          []TableContext   `json:"tables"`
	History         []HistoryMessage `json:"history,omitempty"`
	RowLimit        int              `json:"row_limit"`
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// AnswerRequest asks the model to phrase an executed result for the user.
type AnswerRequest struct {
	Question  string
	SQL       string
	Columns   []string
	Rows      [][]any
	Truncated bool
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

// Composer turns an executed query result into a conversational answer.
// ComposeStream emits answer deltas through onChunk and returns the full
// answer text.
type Composer interface {
	Compose(ctx context.Context, req AnswerRequest) (string, error)
	ComposeStream(ctx context.Context, req AnswerRequest, onChunk func(chunk string) error) (string, error)
}
