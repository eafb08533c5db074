package respcache

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// FetchFunc performs the upstream call for a cache miss.
type FetchFunc func(ctx context.Context) (statusCode int, payload []byte, err error)

// Fetcher fronts upstream calls with a Cache. Concurrent misses for the
// same key share one upstream call.
type Fetcher struct {
	cache  *Cache
	flight singleflight.Group
}

// NewFetcher wraps cache.
func NewFetcher(cache *Cache) *Fetcher {
	return &Fetcher{cache: cache}
}

// Cache returns the underlying cache.
func (f *Fetcher) Cache() *Cache {
	return f.cache
}

// Get returns the cached entry for key or calls fetch and stores a
// successful result. hit reports whether the upstream call was skipped.
// Without a cache every call is a miss.
func (f *Fetcher) Get(ctx context.Context, key string, category Category, fetch FetchFunc) (entry *Entry, hit bool, err error) {
	if e, ok := f.cache.Get(key); ok {
		f.cache.recordLookup(category, true)
		return e, true, nil
	}
	f.cache.recordLookup(category, false)

	v, err, _ := f.flight.Do(key, func() (any, error) {
		status, payload, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if status >= 200 && status < 300 {
			f.cache.Put(key, payload, status, category)
		}
		return &Entry{
			Key:        key,
			Payload:    payload,
			StatusCode: status,
			StoredAt:   f.cache.clock(),
			TTL:        f.cache.TTL(category),
			Category:   category,
		}, nil
	})
	if err != nil {
		return nil, false, err
	}
	cp := *v.(*Entry)
	return &cp, false, nil
}
