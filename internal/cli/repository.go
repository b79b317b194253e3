package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/sagalog/internal/config"
	"github.com/roach88/sagalog/internal/store"
	"github.com/roach88/sagalog/internal/store/pgstore"
	"github.com/roach88/sagalog/internal/store/redisstore"
)

// openRepository opens the repository selected by cfg. The returned close
// function is never nil.
func openRepository(ctx context.Context, cfg config.Config) (store.Repository, func(), error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return store.NewMemory(), func() {}, nil
	case config.BackendSQLite:
		st, err := store.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, closer("sqlite", st.Close), nil
	case config.BackendPostgres:
		st, err := pgstore.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return st, closer("postgres", st.Close), nil
	case config.BackendRedis:
		st, err := redisstore.Dial(ctx, cfg.RedisAddr, cfg.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		return st, closer("redis", st.Close), nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func closer(backend string, closeFn func() error) func() {
	return func() {
		if err := closeFn(); err != nil {
			slog.Error("error closing repository", "backend", backend, "error", err)
		}
	}
}

// repository returns the test override or opens the configured backend.
func (o *RootOptions) repository(ctx context.Context) (store.Repository, func(), error) {
	if o.Repository != nil {
		return o.Repository, func() {}, nil
	}
	repo, closeFn, err := openRepository(ctx, o.Config)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError,
			fmt.Sprintf("failed to open %s repository", o.Config.Backend), err)
	}
	slog.Debug("repository ready", "backend", o.Config.Backend)
	return repo, closeFn, nil
}
