// Package snapshot archives finished scans to object storage as
// zstd-compressed JSON and restores the latest archive for a date.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/garyellow/osvita-occupancy/internal/metrics"
	"github.com/garyellow/osvita-occupancy/internal/r2client"
	"github.com/garyellow/osvita-occupancy/internal/storage"
)

const (
	keySuffix   = ".json.zst"
	contentType = "application/json"
)

// ErrNotFound is returned when no archive exists for a date.
var ErrNotFound = errors.New("snapshot: archive not found")

// ObjectStore keeps compressed documents by key. *r2client.Client
// implements it.
type ObjectStore interface {
	Put(ctx context.Context, key string, doc []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// Archiver uploads scan results under <prefix>/<date>/<scan-id>.json.zst.
type Archiver struct {
	store   ObjectStore
	prefix  string
	metrics *metrics.Metrics
}

// NewArchiver creates an Archiver. A nil Archiver is valid and does nothing.
func NewArchiver(store ObjectStore, prefix string, m *metrics.Metrics) *Archiver {
	return &Archiver{
		store:   store,
		prefix:  strings.Trim(prefix, "/"),
		metrics: m,
	}
}

// Key returns the object key of one scan.
func (a *Archiver) Key(date, scanID string) string {
	return path.Join(a.prefix, date, scanID) + keySuffix
}

// Archive compresses rec and uploads it. Scan ids are time-ordered, so the
// lexically greatest key of a date is the most recent scan.
func (a *Archiver) Archive(ctx context.Context, rec *storage.Occupancy) (string, error) {
	if a == nil {
		return "", nil
	}
	if rec == nil || rec.Date == "" || rec.ScanID == "" {
		return "", errors.New("snapshot: date and scan id are required")
	}

	doc, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("snapshot: encode: %w", err)
	}

	key := a.Key(rec.Date, rec.ScanID)
	etag, err := a.store.Put(ctx, key, doc, contentType)
	if err != nil {
		a.metrics.RecordArchiveUpload("error")
		return "", fmt.Errorf("snapshot: upload: %w", err)
	}
	a.metrics.RecordArchiveUpload("success")
	slog.InfoContext(ctx, "scan archived",
		"key", key,
		"etag", etag,
		"raw_bytes", len(doc))
	return key, nil
}

// Latest downloads the most recent archive for date.
func (a *Archiver) Latest(ctx context.Context, date string) (*storage.Occupancy, error) {
	if a == nil {
		return nil, ErrNotFound
	}
	keys, err := a.store.ListKeys(ctx, path.Join(a.prefix, date)+"/")
	if err != nil {
		return nil, fmt.Errorf("snapshot: list: %w", err)
	}
	keys = slices.DeleteFunc(keys, func(k string) bool { return !strings.HasSuffix(k, keySuffix) })
	if len(keys) == 0 {
		return nil, ErrNotFound
	}
	slices.Sort(keys)
	return a.load(ctx, keys[len(keys)-1])
}

func (a *Archiver) load(ctx context.Context, key string) (*storage.Occupancy, error) {
	doc, err := a.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, r2client.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("snapshot: download: %w", err)
	}
	var rec storage.Occupancy
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, fmt.Errorf("snapshot: decode %s: %w", key, err)
	}
	return &rec, nil
}
