package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"
	goredis "github.com/redis/go-redis/v9"

	"github.com/garyellow/osvita-occupancy/internal/config"
	apperrors "github.com/garyellow/osvita-occupancy/internal/errors"
	"github.com/garyellow/osvita-occupancy/internal/metrics"
)

const (
	backendRedis = "redis"

	redisKeyPrefix    = "osvita:"
	redisOccupancyKey = redisKeyPrefix + "occupancy:"
	redisLinksKey     = redisKeyPrefix + settingLinks
	redisTimesKey     = redisKeyPrefix + settingTimes

	redisSetLinkAttempts = 5
)

// RedisStore keeps results and settings in Redis. Result expiry is left to
// Redis key TTLs.
type RedisStore struct {
	rdb     goredis.UniversalClient
	metrics *metrics.Metrics
	now     func() time.Time
}

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	// MaxElapsed bounds the connect retries. Zero means one minute.
	MaxElapsed time.Duration
}

// NewRedisStore connects to Redis, retrying the initial ping with
// exponential backoff.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = time.Second
	expBackoff.MaxElapsedTime = time.Minute
	if opts.MaxElapsed > 0 {
		expBackoff.MaxElapsedTime = opts.MaxElapsed
	}

	operation := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			slog.WarnContext(ctx, "redis ping failed, retrying", "addr", opts.Addr, "error", err)
			return err
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis after retries: %w", err)
	}

	slog.InfoContext(ctx, "redis connected", "addr", opts.Addr)
	return NewRedisStoreWithClient(rdb), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(rdb goredis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb, now: time.Now}
}

// SetMetrics sets the metrics recorder.
func (s *RedisStore) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Backend returns "redis".
func (s *RedisStore) Backend() string {
	return backendRedis
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) record(op string, err error) {
	status := "success"
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		status = "error"
	}
	s.metrics.RecordStoreOperation(backendRedis, op, status)
}

// SaveOccupancy stores the result with a Redis TTL.
func (s *RedisStore) SaveOccupancy(ctx context.Context, rec *Occupancy, ttl time.Duration) (err error) {
	defer func() { s.record("save_occupancy", err) }()

	if rec == nil || rec.Date == "" {
		return apperrors.NewValidationError("date", "required")
	}
	if ttl <= 0 {
		ttl = config.OccupancyResultTTL
	}
	now := s.now()
	stored := *rec
	stored.StoredAt = now
	stored.ExpiresAt = now.Add(ttl)

	doc, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode occupancy: %w", err)
	}
	if err = s.rdb.Set(ctx, redisOccupancyKey+rec.Date, doc, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save occupancy: %w", err)
	}
	rec.StoredAt = stored.StoredAt
	rec.ExpiresAt = stored.ExpiresAt
	return nil
}

// GetOccupancy returns the result for date or errors.ErrNotFound.
func (s *RedisStore) GetOccupancy(ctx context.Context, date string) (_ *Occupancy, err error) {
	defer func() { s.record("get_occupancy", err) }()

	doc, err := s.rdb.Get(ctx, redisOccupancyKey+date).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query occupancy: %w", err)
	}
	var rec Occupancy
	if err = json.Unmarshal(doc, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode occupancy: %w", err)
	}
	return &rec, nil
}

// DeleteExpired is a no-op; Redis expires keys itself.
func (s *RedisStore) DeleteExpired(context.Context) (int64, error) {
	return 0, nil
}

// GetLinks returns the links document.
func (s *RedisStore) GetLinks(ctx context.Context) (_ Links, err error) {
	defer func() { s.record("get_links", err) }()

	raw, err := s.getDoc(ctx, s.rdb, redisLinksKey)
	if err != nil {
		return nil, err
	}
	return decodeLinks(raw)
}

// SetLink updates one key with an optimistic WATCH/MULTI transaction.
func (s *RedisStore) SetLink(ctx context.Context, key string, value json.RawMessage) (err error) {
	defer func() { s.record("set_link", err) }()

	if key == "" {
		return apperrors.NewValidationError("key", "required")
	}

	txf := func(tx *goredis.Tx) error {
		raw, err := s.getDoc(ctx, tx, redisLinksKey)
		if err != nil {
			return err
		}
		links, err := decodeLinks(raw)
		if err != nil {
			return err
		}
		applyLink(links, key, value)
		doc, err := json.Marshal(links)
		if err != nil {
			return fmt.Errorf("failed to encode links: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, redisLinksKey, doc, 0)
			return nil
		})
		return err
	}

	for range redisSetLinkAttempts {
		err = s.rdb.Watch(ctx, txf, redisLinksKey)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("failed to update links: %w", err)
}

// GetTimes returns the times document.
func (s *RedisStore) GetTimes(ctx context.Context) (_ Times, err error) {
	defer func() { s.record("get_times", err) }()

	raw, err := s.getDoc(ctx, s.rdb, redisTimesKey)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return Times("{}"), nil
	}
	return Times(raw), nil
}

// SetTimes replaces the times document.
func (s *RedisStore) SetTimes(ctx context.Context, times Times) (err error) {
	defer func() { s.record("set_times", err) }()

	doc, err := normalizeTimes(times)
	if err != nil {
		return err
	}
	if err = s.rdb.Set(ctx, redisTimesKey, doc, 0).Err(); err != nil {
		return fmt.Errorf("failed to write times: %w", err)
	}
	return nil
}

func (s *RedisStore) getDoc(ctx context.Context, c goredis.Cmdable, key string) ([]byte, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return raw, nil
}
