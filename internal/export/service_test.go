package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/sqltalk/sqltalk/internal/query"
	"github.com/sqltalk/sqltalk/internal/storage"
)

type fakeObjectStore struct {
	objects map[string][]byte
	lastOpt storage.PutOptions
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}}
}

func (f *fakeObjectStore) Put(_ context.Context, key string, body io.Reader, _ int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	f.objects[key] = data
	f.lastOpt = opts
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeObjectStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjectStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	data, ok := f.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeObjectStore) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func testResult() query.Result {
	return query.Result{
		Columns:  []string{"name", "score"},
		Rows:     [][]any{{"ada", int64(95)}, {"grace", int64(88)}},
		RowCount: 2,
	}
}

func newTestService(store storage.ObjectStore) *Service {
	service := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), store)
	service.now = func() time.Time { return time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC) }
	return service
}

func TestExportCSVWritesHeaderAndRows(t *testing.T) {
	store := newFakeObjectStore()
	service := newTestService(store)

	receipt, err := service.Export(t.Context(), Request{SessionID: "s1", Format: FormatCSV, Result: testResult()})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.HasPrefix(receipt.Key, "exports/s1/date=2026-08-29/") || !strings.HasSuffix(receipt.Key, ".csv") {
		t.Fatalf("Key = %q", receipt.Key)
	}
	if receipt.ContentType != "text/csv" || store.lastOpt.ContentType != "text/csv" {
		t.Fatalf("ContentType = %q", receipt.ContentType)
	}

	body := string(store.objects[receipt.Key])
	want := "name,score\nada,95\ngrace,88\n"
	if body != want {
		t.Fatalf("csv body = %q, want %q", body, want)
	}
}

func TestExportParquetRoundTrips(t *testing.T) {
	store := newFakeObjectStore()
	service := newTestService(store)

	receipt, err := service.Export(t.Context(), Request{SessionID: "s1", Format: FormatParquet, Result: testResult()})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if receipt.RowCount != 2 {
		t.Fatalf("RowCount = %d", receipt.RowCount)
	}

	body := store.objects[receipt.Key]
	records, err := parquet.Read[parquetRecord](bytes.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatalf("read parquet: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("decoded %d records", len(records))
	}
	if records[0].RowNumber != 1 || !strings.Contains(records[0].RecordJSON, `"name":"ada"`) {
		t.Fatalf("record[0] = %+v", records[0])
	}
}

func TestExportRejectsUnknownFormatAndEmptyResult(t *testing.T) {
	service := newTestService(newFakeObjectStore())

	if _, err := service.Export(t.Context(), Request{SessionID: "s1", Format: "xlsx", Result: testResult()}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
	if _, err := service.Export(t.Context(), Request{SessionID: "s1", Format: FormatCSV, Result: query.Result{Columns: []string{"a"}}}); err == nil {
		t.Fatal("expected error for empty result")
	}
}

func TestFetchStreamsUploadedObject(t *testing.T) {
	store := newFakeObjectStore()
	service := newTestService(store)

	receipt, err := service.Export(t.Context(), Request{SessionID: "s1", Format: FormatCSV, Result: testResult()})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	object, err := service.Fetch(t.Context(), receipt.Key)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	defer func() { _ = object.Body.Close() }()

	if object.ContentType != "text/csv" || object.SizeBytes != receipt.SizeBytes {
		t.Fatalf("object = %+v", object)
	}
	body, err := io.ReadAll(object.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "name,score\nada,95\ngrace,88\n" {
		t.Fatalf("body = %q", body)
	}
}

func TestFetchMissingObject(t *testing.T) {
	service := newTestService(newFakeObjectStore())

	_, err := service.Fetch(t.Context(), "exports/s1/date=2026-08-29/result-1.csv")
	if !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Fetch() error = %v", err)
	}
}

func TestRemoveDeletesObject(t *testing.T) {
	store := newFakeObjectStore()
	service := newTestService(store)

	receipt, err := service.Export(t.Context(), Request{SessionID: "s1", Format: FormatCSV, Result: testResult()})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if err := service.Remove(t.Context(), receipt.Key); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := service.Fetch(t.Context(), receipt.Key); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Fetch() after Remove() error = %v", err)
	}
}
