package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/sqltalk/sqltalk/internal/nl2sql"
	"github.com/sqltalk/sqltalk/internal/query"
	"github.com/sqltalk/sqltalk/internal/session"
)

type fakeTranslator struct {
	result  nl2sql.Result
	err     error
	lastReq nl2sql.Request
}

func (f *fakeTranslator) Translate(_ context.Context, req nl2sql.Request) (nl2sql.Result, error) {
	f.lastReq = req
	return f.result, f.err
}

type fakeComposer struct {
	answer string
	err    error
	chunks []string
}

func (f *fakeComposer) Compose(context.Context, nl2sql.AnswerRequest) (string, error) {
	return f.answer, f.err
}

func (f *fakeComposer) ComposeStream(_ context.Context, _ nl2sql.AnswerRequest, onChunk func(string) error) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	var builder strings.Builder
	for _, chunk := range f.chunks {
		if err := onChunk(chunk); err != nil {
			return "", err
		}
		builder.WriteString(chunk)
	}
	return builder.String(), nil
}

type fakeEngine struct {
	result  query.Result
	err     error
	lastReq query.Request
}

func (f *fakeEngine) Execute(_ context.Context, request query.Request) (query.Result, error) {
	f.lastReq = request
	return f.result, f.err
}

type fakeSchema struct {
	tables []nl2sql.TableContext
	err    error
}

func (f *fakeSchema) TableContexts(context.Context) ([]nl2sql.TableContext, error) {
	return f.tables, f.err
}

func newTestService(translator *fakeTranslator, composer *fakeComposer, engine *fakeEngine, store session.Store) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	schema := &fakeSchema{tables: []nl2sql.TableContext{{TableName: "students", Columns: []string{"name", "score"}}}}
	return NewService(logger, translator, composer, engine, schema, store, Options{
		Dialect:       "SQLite",
		RowLimit:      200,
		HistoryWindow: 20,
	})
}

func TestRespondRunsFullTurnAndPersistsBothMessages(t *testing.T) {
	ctx := t.Context()
	store := session.NewMemoryStore()
	translator := &fakeTranslator{result: nl2sql.Result{SQL: "SELECT COUNT(*) FROM students"}}
	composer := &fakeComposer{answer: "There are 12 students."}
	engine := &fakeEngine{result: query.Result{Columns: []string{"count"}, Rows: [][]any{{int64(12)}}, RowCount: 1}}

	service := newTestService(translator, composer, engine, store)

	turn, err := service.Respond(ctx, TurnRequest{SessionID: "s1", UserID: "student", Question: "how many students?"})
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if turn.Answer != "There are 12 students." {
		t.Fatalf("Answer = %q", turn.Answer)
	}
	if turn.SQL != "SELECT COUNT(*) FROM students" {
		t.Fatalf("SQL = %q", turn.SQL)
	}
	if engine.lastReq.RowLimit != 200 {
		t.Fatalf("engine row limit = %d", engine.lastReq.RowLimit)
	}
	if translator.lastReq.Dialect != "SQLite" || len(translator.lastReq.Tables) != 1 {
		t.Fatalf("translator request = %+v", translator.lastReq)
	}

	messages, err := store.ListMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("stored %d messages, want 2", len(messages))
	}
	if messages[0].Role != session.RoleUser || messages[1].Role != session.RoleAssistant {
		t.Fatalf("unexpected roles: %s, %s", messages[0].Role, messages[1].Role)
	}
	if messages[1].SQL != turn.SQL {
		t.Fatalf("assistant SQL = %q", messages[1].SQL)
	}
}

func TestRespondIncludesHistoryInPrompt(t *testing.T) {
	ctx := t.Context()
	store := session.NewMemoryStore()
	seedTurn(t, ctx, store, "s1", "first question", "First answer.")

	translator := &fakeTranslator{result: nl2sql.Result{SQL: "SELECT 1"}}
	composer := &fakeComposer{answer: "ok"}
	engine := &fakeEngine{result: query.Result{Columns: []string{"one"}, Rows: [][]any{{int64(1)}}, RowCount: 1}}
	service := newTestService(translator, composer, engine, store)

	if _, err := service.Respond(ctx, TurnRequest{SessionID: "s1", Question: "and now?"}); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if len(translator.lastReq.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(translator.lastReq.History))
	}
	if translator.lastReq.History[0].Content != "first question" {
		t.Fatalf("history[0] = %+v", translator.lastReq.History[0])
	}
}

func TestRespondRecordsQuestionEvenWhenExecutionFails(t *testing.T) {
	ctx := t.Context()
	store := session.NewMemoryStore()
	translator := &fakeTranslator{result: nl2sql.Result{SQL: "SELECT nope FROM students"}}
	composer := &fakeComposer{answer: "unused"}
	engine := &fakeEngine{err: errors.New("no such column: nope")}
	service := newTestService(translator, composer, engine, store)

	_, err := service.Respond(ctx, TurnRequest{SessionID: "s1", Question: "bad question"})
	if err == nil {
		t.Fatal("expected execution error")
	}
	if !strings.Contains(err.Error(), "no such column: nope") {
		t.Fatalf("database error text missing from %q", err.Error())
	}

	messages, listErr := store.ListMessages(ctx, "s1")
	if listErr != nil {
		t.Fatalf("ListMessages() error = %v", listErr)
	}
	if len(messages) != 1 || messages[0].Role != session.RoleUser {
		t.Fatalf("expected only the user message, got %+v", messages)
	}
}

func TestRespondRejectsBlankInput(t *testing.T) {
	service := newTestService(&fakeTranslator{}, &fakeComposer{}, &fakeEngine{}, session.NewMemoryStore())

	if _, err := service.Respond(t.Context(), TurnRequest{SessionID: "s1", Question: "   "}); err == nil {
		t.Fatal("expected error for blank question")
	}
	if _, err := service.Respond(t.Context(), TurnRequest{Question: "hello"}); err == nil {
		t.Fatal("expected error for missing session id")
	}
}

func TestRespondStreamEmitsChunks(t *testing.T) {
	ctx := t.Context()
	store := session.NewMemoryStore()
	translator := &fakeTranslator{result: nl2sql.Result{SQL: "SELECT 1"}}
	composer := &fakeComposer{chunks: []string{"There are ", "12 students."}}
	engine := &fakeEngine{result: query.Result{Columns: []string{"one"}, Rows: [][]any{{int64(1)}}, RowCount: 1}}
	service := newTestService(translator, composer, engine, store)

	var received []string
	turn, err := service.RespondStream(ctx, TurnRequest{SessionID: "s1", Question: "how many?"}, func(chunk string) error {
		received = append(received, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("RespondStream() error = %v", err)
	}
	if len(received) != 2 {
		t.Fatalf("received %d chunks", len(received))
	}
	if turn.Answer != "There are 12 students." {
		t.Fatalf("Answer = %q", turn.Answer)
	}

	messages, err := store.ListMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(messages) != 2 || messages[1].Content != turn.Answer {
		t.Fatalf("stored transcript mismatch: %+v", messages)
	}
}

func seedTurn(t *testing.T, ctx context.Context, store session.Store, sessionID, question, answer string) {
	t.Helper()
	if _, err := store.AppendMessage(ctx, session.Message{SessionID: sessionID, Role: session.RoleUser, Content: question}); err != nil {
		t.Fatalf("seed user message: %v", err)
	}
	if _, err := store.AppendMessage(ctx, session.Message{SessionID: sessionID, Role: session.RoleAssistant, Content: answer}); err != nil {
		t.Fatalf("seed assistant message: %v", err)
	}
}
