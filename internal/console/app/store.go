package app

import (
	"context"
	"fmt"
	"io"

	"github.com/aussiebroadwan/saccoesb/pkg/storex"
	"github.com/aussiebroadwan/saccoesb/pkg/storex/drivers/redis"
	"github.com/aussiebroadwan/saccoesb/pkg/storex/drivers/sqlite"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openBackend opens the configured session store driver. Values are sealed
// when a master key is available from STORE_KEY_PATH or STORE_MASTER_KEY.
func openBackend(ctx context.Context, cfg Config) (storex.Backend, io.Closer, error) {
	var (
		backend storex.Backend
		closer  io.Closer
	)

	switch cfg.StoreDriver {
	case DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.StoreFile)
		if err != nil {
			return nil, nil, err
		}
		backend, closer = db, db
	case DriverRedis:
		rdb, err := redis.Open(ctx, redis.Config{
			Addr:     cfg.StoreRedisAddr,
			Password: cfg.StoreRedisPassword,
			DB:       cfg.StoreRedisDB,
			TTL:      cfg.StoreRedisTTL,
		})
		if err != nil {
			return nil, nil, err
		}
		backend, closer = rdb, rdb
	case DriverMemory:
		backend, closer = storex.NewMemory(), nopCloser{}
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	key, err := storex.LoadMasterKey(cfg.StoreKeyPath)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	if key == nil {
		return backend, closer, nil
	}

	sealed, err := storex.NewSealed(backend, key)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return sealed, closer, nil
}
