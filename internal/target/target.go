// Package target opens and introspects the database the assistant answers
// questions about.
package target

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"

	"github.com/sqltalk/sqltalk/internal/config"
	"github.com/sqltalk/sqltalk/internal/dsn"
)

// Handle bundles an open connection with the dialect the model should
// generate SQL for.
type Handle struct {
	DB      *sql.DB
	Dialect string
}

func ParamsFromConfig(cfg config.TargetConfig) dsn.Params {
	return dsn.Params{
		Backend:  dsn.Backend(cfg.Backend),
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Database,
		Path:     cfg.Path,
		ReadOnly: cfg.ReadOnly,
		SSLMode:  cfg.SSLMode,
	}
}

// Open connects to the configured target and verifies connectivity.
func Open(ctx context.Context, cfg config.TargetConfig) (*Handle, error) {
	driver, connString, err := dsn.Build(ParamsFromConfig(cfg))
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, connString)
	if err != nil {
		return nil, fmt.Errorf("open %s target: %w", cfg.Backend, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s target: %w", cfg.Backend, err)
	}

	return &Handle{DB: db, Dialect: DialectName(cfg.Backend)}, nil
}

func (h *Handle) Close() error {
	if h == nil || h.DB == nil {
		return nil
	}
	return h.DB.Close()
}

func (h *Handle) Ping(ctx context.Context) error {
	if h == nil || h.DB == nil {
		return fmt.Errorf("target handle is not open")
	}
	return h.DB.PingContext(ctx)
}

// DialectName maps a backend token to the display name used in SQL
// generation prompts.
func DialectName(backend string) string {
	switch backend {
	case "postgres":
		return "PostgreSQL"
	case "mysql":
		return "MySQL"
	case "duckdb":
		return "DuckDB"
	default:
		return "SQLite"
	}
}
