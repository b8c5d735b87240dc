package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sqltalk/sqltalk/internal/auth"
	"github.com/sqltalk/sqltalk/internal/chat"
	"github.com/sqltalk/sqltalk/internal/config"
	"github.com/sqltalk/sqltalk/internal/query"
)

type chatRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

type chatResponse struct {
	SessionID string         `json:"session_id"`
	Answer    string         `json:"answer"`
	SQL       string         `json:"sql"`
	Columns   []string       `json:"columns"`
	Rows      [][]any        `json:"rows"`
	RowCount  int            `json:"row_count"`
	Truncated bool           `json:"truncated"`
	Stats     map[string]any `json:"stats"`
}

func handleChat(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	request, err := decodeChatRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), false, nil)
		return
	}

	turn, err := deps.Chat.Respond(r.Context(), chat.TurnRequest{
		SessionID: request.SessionID,
		UserID:    userFromRequest(r),
		Question:  request.Question,
	})
	if err != nil {
		writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatTurnResponse(turn))
}

// handleChatStream answers over SSE: "delta" events carry answer text
// as it arrives, a final "turn" event carries the full payload.
func handleChatStream(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	request, err := decodeChatRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), false, nil)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(r.Context(), w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "response writer does not support streaming", false, nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	turn, err := deps.Chat.RespondStream(r.Context(), chat.TurnRequest{
		SessionID: request.SessionID,
		UserID:    userFromRequest(r),
		Question:  request.Question,
	}, func(chunk string) error {
		if err := writeSSEEvent(w, "delta", map[string]any{"text": chunk}); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// Headers are gone; the error travels as a terminal event.
		_ = writeSSEEvent(w, "error", map[string]any{"message": err.Error()})
		flusher.Flush()
		return
	}

	_ = writeSSEEvent(w, "turn", chatTurnResponse(turn))
	flusher.Flush()
}

func handleHistory(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	sessionID := r.PathValue("session")
	messages, err := deps.Chat.History(r.Context(), sessionID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "HISTORY_FETCH_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"greeting":   cfg.UI.Greeting,
		"messages":   messages,
	})
}

func handleClearHistory(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	sessionID := r.PathValue("session")
	if err := deps.Chat.Clear(r.Context(), sessionID); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "HISTORY_CLEAR_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "cleared": true})
}

func decodeChatRequest(r *http.Request) (chatRequest, error) {
	var request chatRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		return chatRequest{}, fmt.Errorf("invalid chat request body: %w", err)
	}
	if strings.TrimSpace(request.SessionID) == "" {
		return chatRequest{}, fmt.Errorf("session_id is required")
	}
	if strings.TrimSpace(request.Question) == "" {
		return chatRequest{}, fmt.Errorf("question is required")
	}
	return request, nil
}

func chatTurnResponse(turn chat.Turn) chatResponse {
	return chatResponse{
		SessionID: turn.SessionID,
		Answer:    turn.Answer,
		SQL:       turn.SQL,
		Columns:   turn.Columns,
		Rows:      turn.Rows,
		RowCount:  turn.RowCount,
		Truncated: turn.Truncated,
		Stats: map[string]any{
			"duration_ms": turn.Duration.Milliseconds(),
		},
	}
}

func writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, query.ErrNotReadOnly) {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", err.Error(), false, nil)
		return
	}
	writeError(r.Context(), w, http.StatusBadGateway, "CHAT_TURN_FAILED", err.Error(), true, nil)
}

func writeSSEEvent(w http.ResponseWriter, event string, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode sse payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, encoded); err != nil {
		return fmt.Errorf("write sse event: %w", err)
	}
	return nil
}

func userFromRequest(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		if strings.TrimSpace(identity.UserID) != "" {
			return identity.UserID
		}
	}
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}
