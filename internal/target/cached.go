package target

import (
	"context"
	"fmt"

	"github.com/sqltalk/sqltalk/internal/config"
	"github.com/sqltalk/sqltalk/internal/nl2sql"
	"github.com/sqltalk/sqltalk/internal/query"
	"github.com/sqltalk/sqltalk/internal/query/sqlexec"
)

// CachedEngine executes statements through the handle cache, so an
// expired or reconfigured connection is reopened transparently.
type CachedEngine struct {
	Cache  *Cache
	Config config.TargetConfig
}

func (e *CachedEngine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	handle, err := e.Cache.Acquire(ctx, e.Config)
	if err != nil {
		return query.Result{}, fmt.Errorf("acquire target: %w", err)
	}
	return sqlexec.NewEngine(handle.DB).Execute(ctx, request)
}

// CachedInspector resolves table context through the handle cache.
type CachedInspector struct {
	Cache      *Cache
	Config     config.TargetConfig
	SampleRows int
}

func (i *CachedInspector) TableContexts(ctx context.Context) ([]nl2sql.TableContext, error) {
	handle, err := i.Cache.Acquire(ctx, i.Config)
	if err != nil {
		return nil, fmt.Errorf("acquire target: %w", err)
	}
	return NewInspector(handle, i.SampleRows).TableContexts(ctx)
}
