package target

import (
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

var errAccessDenied = errors.New("access denied")

func newMockHandle(t *testing.T, dialect string) (*Handle, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &Handle{DB: db, Dialect: dialect}, mock
}

func TestTableContextsCollectsColumnsAndSamples(t *testing.T) {
	handle, mock := newMockHandle(t, "SQLite")
	inspector := NewInspector(handle, 2)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("students"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "students" LIMIT 2`)).
		WillReturnRows(sqlmock.NewRows([]string{"name", "score"}).
			AddRow("ada", 95).
			AddRow([]byte("grace"), 88))

	contexts, err := inspector.TableContexts(t.Context())
	if err != nil {
		t.Fatalf("TableContexts() error = %v", err)
	}
	if len(contexts) != 1 {
		t.Fatalf("contexts = %d", len(contexts))
	}
	students := contexts[0]
	if students.TableName != "students" || len(students.Columns) != 2 {
		t.Fatalf("context = %+v", students)
	}
	if len(students.SampleRows) != 2 || students.SampleRows[1][0] != "grace" {
		t.Fatalf("sample rows = %+v", students.SampleRows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTableContextsKeepsUnreadableTables(t *testing.T) {
	handle, mock := newMockHandle(t, "SQLite")
	inspector := NewInspector(handle, 5)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name FROM sqlite_master`)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("hidden"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "hidden" LIMIT 5`)).
		WillReturnError(errAccessDenied)

	contexts, err := inspector.TableContexts(t.Context())
	if err != nil {
		t.Fatalf("TableContexts() error = %v", err)
	}
	if len(contexts) != 1 || contexts[0].TableName != "hidden" {
		t.Fatalf("contexts = %+v", contexts)
	}
	if contexts[0].Columns != nil {
		t.Fatalf("columns = %v, want nil", contexts[0].Columns)
	}
}

func TestTableContextsUsesMySQLBackticks(t *testing.T) {
	handle, mock := newMockHandle(t, "MySQL")
	inspector := NewInspector(handle, 1)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE()`)).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("orders"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `orders` LIMIT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	contexts, err := inspector.TableContexts(t.Context())
	if err != nil {
		t.Fatalf("TableContexts() error = %v", err)
	}
	if len(contexts) != 1 || contexts[0].Columns[0] != "id" {
		t.Fatalf("contexts = %+v", contexts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
