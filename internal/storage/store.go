package storage

import (
	"context"
	"fmt"

	"github.com/garyellow/osvita-occupancy/internal/config"
	"github.com/garyellow/osvita-occupancy/internal/metrics"
)

// Open creates the store selected by cfg.StorageBackend.
func Open(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (Store, error) {
	switch cfg.StorageBackend {
	case config.BackendRedis:
		s, err := NewRedisStore(ctx, RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		s.SetMetrics(m)
		return s, nil
	case config.BackendSQLite, "":
		db, err := New(ctx, cfg.SQLitePath())
		if err != nil {
			return nil, err
		}
		db.SetMetrics(m)
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
