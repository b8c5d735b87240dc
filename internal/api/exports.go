package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/sqltalk/sqltalk/internal/auth"
	"github.com/sqltalk/sqltalk/internal/config"
	"github.com/sqltalk/sqltalk/internal/export"
	"github.com/sqltalk/sqltalk/internal/query"
	"github.com/sqltalk/sqltalk/internal/storage"
)

type exportRequest struct {
	SessionID string `json:"session_id"`
	Format    string `json:"format"`
	SQL       string `json:"sql"`
	RowLimit  int    `json:"row_limit"`
}

// handleExport re-executes the statement and uploads the result, so
// exports always reflect current data rather than a stale chat payload.
func handleExport(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Exporter == nil || deps.QueryEngine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "export dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleExportWriter); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request exportRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid export request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SessionID) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SESSION_REQUIRED", "session_id is required", false, nil)
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	if request.Format != export.FormatCSV && request.Format != export.FormatParquet {
		writeError(r.Context(), w, http.StatusBadRequest, "FORMAT_UNSUPPORTED", "format must be csv or parquet", false, nil)
		return
	}

	rowLimit := request.RowLimit
	if rowLimit <= 0 {
		rowLimit = cfg.UI.DefaultRowLimit
	}

	result, err := deps.QueryEngine.Execute(r.Context(), query.Request{SQL: request.SQL, RowLimit: rowLimit})
	if err != nil {
		if errors.Is(err, query.ErrNotReadOnly) {
			writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", err.Error(), false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_FAILED", err.Error(), false, nil)
		return
	}

	receipt, err := deps.Exporter.Export(r.Context(), export.Request{
		SessionID: request.SessionID,
		Format:    request.Format,
		Result:    result,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func handleExportDownload(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Exporter == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "export dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleExportWriter); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	key := r.PathValue("key")
	if strings.TrimSpace(key) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "KEY_REQUIRED", "export key is required", false, nil)
		return
	}
	object, err := deps.Exporter.Fetch(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "EXPORT_NOT_FOUND", "no export stored under that key", false, map[string]any{"key": key})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_FETCH_FAILED", err.Error(), true, nil)
		return
	}
	defer func() { _ = object.Body.Close() }()

	w.Header().Set("Content-Type", object.ContentType)
	if object.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(object.SizeBytes, 10))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, object.Body)
}

func handleExportDelete(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Exporter == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "export dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleExportWriter); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	key := r.PathValue("key")
	if strings.TrimSpace(key) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "KEY_REQUIRED", "export key is required", false, nil)
		return
	}
	if err := deps.Exporter.Remove(r.Context(), key); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_DELETE_FAILED", err.Error(), true, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
