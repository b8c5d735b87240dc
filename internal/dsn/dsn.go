// Package dsn builds driver connection strings for the supported target
// backends, URL-escaping credentials so passwords with special characters
// survive the round trip.
package dsn

import (
	"fmt"
	"net/url"
	"strings"
)

type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendMySQL    Backend = "mysql"
	BackendDuckDB   Backend = "duckdb"
)

// Params carries the connection fields collected from configuration.
type Params struct {
	Backend  Backend
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Path     string
	ReadOnly bool
	SSLMode  string
}

// ParseError reports an invalid or incomplete set of connection parameters.
type ParseError struct {
	Backend Backend
	Reason  string
	Hint    string
}

func (e *ParseError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("invalid %s connection parameters: %s (hint: %s)", e.Backend, e.Reason, e.Hint)
	}
	return fmt.Sprintf("invalid %s connection parameters: %s", e.Backend, e.Reason)
}

func newParseError(backend Backend, reason, hint string) *ParseError {
	return &ParseError{Backend: backend, Reason: reason, Hint: hint}
}

// Build returns the driver name and DSN for the given parameters.
func Build(p Params) (driver string, dsn string, err error) {
	switch p.Backend {
	case BackendSQLite:
		dsn, err = buildSQLite(p)
		return "sqlite", dsn, err
	case BackendPostgres:
		dsn, err = buildPostgres(p)
		return "pgx", dsn, err
	case BackendMySQL:
		dsn, err = buildMySQL(p)
		return "mysql", dsn, err
	case BackendDuckDB:
		dsn, err = buildDuckDB(p)
		return "duckdb", dsn, err
	default:
		return "", "", newParseError(p.Backend, fmt.Sprintf("unsupported backend %q", p.Backend), "use sqlite, postgres, mysql or duckdb")
	}
}

func buildSQLite(p Params) (string, error) {
	path := strings.TrimSpace(p.Path)
	if path == "" {
		return "", newParseError(BackendSQLite, "database path is required", "set SQLTALK_TARGET_PATH")
	}
	if p.ReadOnly {
		return "file:" + path + "?mode=ro", nil
	}
	return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", nil
}

func buildPostgres(p Params) (string, error) {
	if err := requireNetworkFields(BackendPostgres, p); err != nil {
		return "", err
	}
	host := strings.TrimSpace(p.Host)
	port := strings.TrimSpace(p.Port)
	if port == "" {
		port = "5432"
	}
	sslMode := strings.TrimSpace(p.SSLMode)
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(strings.TrimSpace(p.User)),
		url.QueryEscape(p.Password),
		host,
		port,
		url.PathEscape(strings.TrimSpace(p.Database)),
		url.QueryEscape(sslMode),
	), nil
}

func buildMySQL(p Params) (string, error) {
	if err := requireNetworkFields(BackendMySQL, p); err != nil {
		return "", err
	}
	host := strings.TrimSpace(p.Host)
	port := strings.TrimSpace(p.Port)
	if port == "" {
		port = "3306"
	}
	// go-sql-driver DSN format; parseTime makes DATETIME scan as time.Time.
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		strings.TrimSpace(p.User),
		p.Password,
		host,
		port,
		strings.TrimSpace(p.Database),
	), nil
}

func buildDuckDB(p Params) (string, error) {
	path := strings.TrimSpace(p.Path)
	if path == "" {
		return "", newParseError(BackendDuckDB, "database path is required", "set SQLTALK_TARGET_PATH")
	}
	if p.ReadOnly {
		return path + "?access_mode=read_only", nil
	}
	return path, nil
}

func requireNetworkFields(backend Backend, p Params) error {
	if strings.TrimSpace(p.Host) == "" {
		return newParseError(backend, "host is required", "set SQLTALK_TARGET_HOST")
	}
	if strings.TrimSpace(p.User) == "" {
		return newParseError(backend, "user is required", "set SQLTALK_TARGET_USER")
	}
	if p.Password == "" {
		return newParseError(backend, "password is required", "set SQLTALK_TARGET_PASSWORD")
	}
	if strings.TrimSpace(p.Database) == "" {
		return newParseError(backend, "database name is required", "set SQLTALK_TARGET_DATABASE")
	}
	return nil
}

// Fingerprint identifies a parameter set without exposing the password.
// The target handle cache keys on it to detect config changes.
func Fingerprint(p Params) string {
	return strings.Join([]string{
		string(p.Backend),
		p.Host,
		p.Port,
		p.User,
		hashSecret(p.Password),
		p.Database,
		p.Path,
		fmt.Sprintf("ro=%t", p.ReadOnly),
		p.SSLMode,
	}, "|")
}

func hashSecret(secret string) string {
	if secret == "" {
		return ""
	}
	var sum uint64 = 1469598103934665603
	for i := 0; i < len(secret); i++ {
		sum ^= uint64(secret[i])
		sum *= 1099511628211
	}
	return fmt.Sprintf("%016x", sum)
}
