package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/sqltalk/sqltalk/internal/observability"
	"github.com/sqltalk/sqltalk/internal/query"
	"github.com/sqltalk/sqltalk/internal/storage"
)

type Service struct {
	logger *slog.Logger
	store  storage.ObjectStore
	now    func() time.Time
}

func NewService(logger *slog.Logger, store storage.ObjectStore) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, store: store, now: time.Now}
}

type Request struct {
	SessionID string
	Format    string
	Result    query.Result
}

type Receipt struct {
	Key         string `json:"key"`
	Format      string `json:"format"`
	SizeBytes   int64  `json:"size_bytes"`
	RowCount    int    `json:"row_count"`
	ContentType string `json:"content_type"`
}

// Export encodes the result and uploads it under a per-session,
// per-day key.
func (s *Service) Export(ctx context.Context, request Request) (Receipt, error) {
	var (
		body        []byte
		contentType string
		err         error
	)
	switch request.Format {
	case FormatCSV:
		body, err = encodeCSV(request.Result)
		contentType = "text/csv"
	case FormatParquet:
		body, err = encodeParquet(request.Result)
		contentType = "application/vnd.apache.parquet"
	default:
		return Receipt{}, fmt.Errorf("unsupported export format %q", request.Format)
	}
	if err != nil {
		return Receipt{}, fmt.Errorf("encode %s export: %w", request.Format, err)
	}

	key, err := storage.BuildExportPath(request.SessionID, request.Format, s.now())
	if err != nil {
		return Receipt{}, err
	}

	info, err := s.store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), storage.PutOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("upload export: %w", err)
	}

	observability.ObserveExport(request.Format, info.Size)
	s.logger.InfoContext(ctx, "result exported",
		slog.String("key", info.Key),
		slog.String("format", request.Format),
		slog.Int64("size_bytes", info.Size),
	)
	return Receipt{
		Key:         info.Key,
		Format:      request.Format,
		SizeBytes:   info.Size,
		RowCount:    request.Result.RowCount,
		ContentType: contentType,
	}, nil
}

// Object is a previously exported result ready to stream back to the
// caller. Body must be closed by the receiver.
type Object struct {
	Key         string
	SizeBytes   int64
	ContentType string
	Body        io.ReadCloser
}

// Fetch streams an exported object by the key from its receipt. The
// error wraps storage.ErrObjectNotFound when the key does not exist.
func (s *Service) Fetch(ctx context.Context, key string) (Object, error) {
	info, err := s.store.Stat(ctx, key)
	if err != nil {
		return Object{}, fmt.Errorf("stat export %q: %w", key, err)
	}
	body, err := s.store.Get(ctx, key)
	if err != nil {
		return Object{}, fmt.Errorf("fetch export %q: %w", key, err)
	}
	return Object{
		Key:         info.Key,
		SizeBytes:   info.Size,
		ContentType: contentTypeForKey(info.Key),
		Body:        body,
	}, nil
}

// Remove deletes an exported object. Missing keys are not an error.
func (s *Service) Remove(ctx context.Context, key string) error {
	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete export %q: %w", key, err)
	}
	s.logger.InfoContext(ctx, "export removed", slog.String("key", key))
	return nil
}

func contentTypeForKey(key string) string {
	switch path.Ext(key) {
	case ".csv":
		return "text/csv"
	case ".parquet":
		return "application/vnd.apache.parquet"
	default:
		return "application/octet-stream"
	}
}
