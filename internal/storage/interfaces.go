// Package storage persists scan results and the admin key/value documents.
// SQLite is the default backend; Redis can be selected for shared deployments.
package storage

import (
	"context"
	"encoding/json"
	"time"
)

// OccupancyRepository stores scan results with an expiry.
type OccupancyRepository interface {
	// SaveOccupancy replaces the result for rec.Date. ttl <= 0 falls back to
	// the default result TTL.
	SaveOccupancy(ctx context.Context, rec *Occupancy, ttl time.Duration) error

	// GetOccupancy returns the live result for date or errors.ErrNotFound.
	GetOccupancy(ctx context.Context, date string) (*Occupancy, error)

	// DeleteExpired removes results past their expiry and returns how many
	// were removed.
	DeleteExpired(ctx context.Context) (int64, error)
}

// SettingsRepository stores the admin-managed links and times documents.
type SettingsRepository interface {
	GetLinks(ctx context.Context) (Links, error)

	// SetLink sets key to value; a nil value (or JSON null) deletes the key.
	SetLink(ctx context.Context, key string, value json.RawMessage) error

	GetTimes(ctx context.Context) (Times, error)
	SetTimes(ctx context.Context, times Times) error
}

// Store is everything the service persists.
type Store interface {
	OccupancyRepository
	SettingsRepository

	// Backend names the implementation for logs and metrics.
	Backend() string
	Ping(ctx context.Context) error
	Close() error
}

// Ensure implementations satisfy the interface.
var (
	_ Store = (*DB)(nil)
	_ Store = (*RedisStore)(nil)
)
