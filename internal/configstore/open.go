package configstore

import (
	"context"

	"mourne/internal/infra"
)

// Open builds the backend selected by cfg.ConfigBackend. The returned close
// func releases the database pool when one was opened.
func Open(ctx context.Context, cfg *infra.Config, logger infra.Logger) (Backend, func(), error) {
	if cfg.ConfigBackend != infra.ConfigBackendPostgres {
		b, err := NewFileBackend(cfg.ConfigPath)
		if err != nil {
			return nil, nil, err
		}
		return b, func() {}, nil
	}
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	b := NewPostgresBackend(infra.NewSQLRunner(pool, logger))
	if err := b.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return b, pool.Close, nil
}
