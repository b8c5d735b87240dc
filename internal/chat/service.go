// Package chat orchestrates a conversational turn: history, schema
// context, translation, execution, and the composed answer.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sqltalk/sqltalk/internal/nl2sql"
	"github.com/sqltalk/sqltalk/internal/observability"
	"github.com/sqltalk/sqltalk/internal/query"
	"github.com/sqltalk/sqltalk/internal/session"
)

// SchemaSource supplies table context for prompt assembly. The target
// package's Inspector satisfies it.
type SchemaSource interface {
	TableContexts(ctx context.Context) ([]nl2sql.TableContext, error)
}

type Options struct {
	Dialect       string
	RowLimit      int
	HistoryWindow int
}

type Service struct {
	logger     *slog.Logger
	translator nl2sql.Translator
	composer   nl2sql.Composer
	engine     query.Engine
	schema     SchemaSource
	store      session.Store
	options    Options
}

func NewService(
	logger *slog.Logger,
	translator nl2sql.Translator,
	composer nl2sql.Composer,
	engine query.Engine,
	schema SchemaSource,
	store session.Store,
	options Options,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:     logger,
		translator: translator,
		composer:   composer,
		engine:     engine,
		schema:     schema,
		store:      store,
		options:    options,
	}
}

type TurnRequest struct {
	SessionID string
	UserID    string
	Question  string
}

// Turn is a completed assistant response including the statement that
// produced it.
type Turn struct {
	SessionID string        `json:"session_id"`
	Answer    string        `json:"answer"`
	SQL       string        `json:"sql"`
	Columns   []string      `json:"columns"`
	Rows      [][]any       `json:"rows"`
	RowCount  int           `json:"row_count"`
	Truncated bool          `json:"truncated"`
	Duration  time.Duration `json:"-"`
}

// Respond runs one full chat turn and returns the composed answer.
func (s *Service) Respond(ctx context.Context, request TurnRequest) (Turn, error) {
	return s.respond(ctx, request, nil)
}

// RespondStream runs one full chat turn, emitting answer deltas through
// onChunk as they arrive from the model.
func (s *Service) RespondStream(ctx context.Context, request TurnRequest, onChunk func(chunk string) error) (Turn, error) {
	if onChunk == nil {
		return Turn{}, fmt.Errorf("stream callback is required")
	}
	return s.respond(ctx, request, onChunk)
}

func (s *Service) respond(ctx context.Context, request TurnRequest, onChunk func(chunk string) error) (Turn, error) {
	start := time.Now()
	question := strings.TrimSpace(request.Question)
	if question == "" {
		return Turn{}, fmt.Errorf("question is required")
	}
	if strings.TrimSpace(request.SessionID) == "" {
		return Turn{}, fmt.Errorf("session id is required")
	}

	history, err := s.store.RecentMessages(ctx, request.SessionID, s.options.HistoryWindow)
	if err != nil {
		return Turn{}, fmt.Errorf("load history: %w", err)
	}

	// The question is recorded before translation so a failed turn still
	// shows up in the transcript.
	if _, err := s.store.AppendMessage(ctx, session.Message{
		SessionID: request.SessionID,
		UserID:    request.UserID,
		Role:      session.RoleUser,
		Content:   question,
	}); err != nil {
		return Turn{}, fmt.Errorf("record question: %w", err)
	}

	turn, err := s.answer(ctx, request, question, history, onChunk)
	if err != nil {
		observability.ObserveChatTurn("error", time.Since(start))
		return Turn{}, err
	}

	if _, err := s.store.AppendMessage(ctx, session.Message{
		SessionID: request.SessionID,
		UserID:    request.UserID,
		Role:      session.RoleAssistant,
		Content:   turn.Answer,
		SQL:       turn.SQL,
	}); err != nil {
		observability.ObserveChatTurn("error", time.Since(start))
		return Turn{}, fmt.Errorf("record answer: %w", err)
	}

	turn.Duration = time.Since(start)
	observability.ObserveChatTurn("ok", turn.Duration)
	s.logger.InfoContext(ctx, "chat turn completed",
		slog.String("session_id", request.SessionID),
		slog.Int("row_count", turn.RowCount),
		slog.Duration("duration", turn.Duration),
	)
	return turn, nil
}

func (s *Service) answer(
	ctx context.Context,
	request TurnRequest,
	question string,
	history []session.Message,
	onChunk func(chunk string) error,
) (Turn, error) {
	tables, err := s.schema.TableContexts(ctx)
	if err != nil {
		return Turn{}, fmt.Errorf("inspect schema: %w", err)
	}

	translateStart := time.Now()
	translated, err := s.translator.Translate(ctx, nl2sql.Request{
		Dialect:         s.options.Dialect,
		NaturalLanguage: question,
		Tables:          tables,
		History:         historyForPrompt(history),
		RowLimit:        s.options.RowLimit,
	})
	if err != nil {
		return Turn{}, fmt.Errorf("translate question: %w", err)
	}
	observability.ObserveTranslate(time.Since(translateStart))

	result, err := s.engine.Execute(ctx, query.Request{
		SQL:      translated.SQL,
		RowLimit: s.options.RowLimit,
	})
	if err != nil {
		// The raw database error text is part of the answer contract so
		// the user can rephrase the question.
		return Turn{}, fmt.Errorf("execute %q: %w", translated.SQL, err)
	}

	answerRequest := nl2sql.AnswerRequest{
		Question:  question,
		SQL:       translated.SQL,
		Columns:   result.Columns,
		Rows:      result.Rows,
		Truncated: result.Truncated,
	}

	var answer string
	if onChunk != nil {
		answer, err = s.composer.ComposeStream(ctx, answerRequest, onChunk)
	} else {
		answer, err = s.composer.Compose(ctx, answerRequest)
	}
	if err != nil {
		return Turn{}, fmt.Errorf("compose answer: %w", err)
	}

	return Turn{
		SessionID: request.SessionID,
		Answer:    answer,
		SQL:       translated.SQL,
		Columns:   result.Columns,
		Rows:      result.Rows,
		RowCount:  result.RowCount,
		Truncated: result.Truncated,
	}, nil
}

// History returns the full transcript for a session.
func (s *Service) History(ctx context.Context, sessionID string) ([]session.Message, error) {
	return s.store.ListMessages(ctx, sessionID)
}

// Clear discards the transcript for a session.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	return s.store.ClearSession(ctx, sessionID)
}

func historyForPrompt(messages []session.Message) []nl2sql.HistoryMessage {
	history := make([]nl2sql.HistoryMessage, 0, len(messages))
	for _, message := range messages {
		history = append(history, nl2sql.HistoryMessage{
			Role:    message.Role,
			Content: message.Content,
		})
	}
	return history
}
