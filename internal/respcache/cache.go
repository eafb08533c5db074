// Package respcache is a bounded, TTL-based store for upstream responses.
//
// Entries are keyed by a normalized request signature, expire lazily on
// read, and are evicted in insertion order once the cache is full. The
// cache never returns errors: anything unexpected degrades to a miss.
package respcache

import (
	"container/list"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/garyellow/osvita-occupancy/internal/config"
	"github.com/garyellow/osvita-occupancy/internal/metrics"
)

// Category selects the TTL of an entry.
type Category int

const (
	// CategorySchedule is for schedule lookups that change during the day.
	CategorySchedule Category = iota
	// CategoryReference is for near-static lists such as faculties and chairs.
	CategoryReference
)

func (c Category) String() string {
	if c == CategoryReference {
		return "reference"
	}
	return "schedule"
}

// CategoryFor classifies an upstream action.
func CategoryFor(action string) Category {
	if strings.HasPrefix(action, "GetScheduleData") {
		return CategorySchedule
	}
	return CategoryReference
}

// volatileParams never affect the response body.
var volatileParams = map[string]struct{}{
	"callback": {},
	"_":        {},
}

// Normalize builds the cache key for action and params. Volatile parameters
// are dropped; the rest are serialized with sorted keys and, for repeated
// keys, sorted values.
func Normalize(action string, params url.Values) string {
	kept := make(url.Values, len(params))
	for k, v := range params {
		if _, skip := volatileParams[k]; skip {
			continue
		}
		vs := slices.Clone(v)
		slices.Sort(vs)
		kept[k] = vs
	}
	return action + "?" + kept.Encode()
}

// Entry is a cached upstream response.
type Entry struct {
	Key        string
	Payload    []byte
	StatusCode int
	StoredAt   time.Time
	TTL        time.Duration
	Category   Category
}

// Expired reports whether the entry is no longer valid at now.
func (e *Entry) Expired(now time.Time) bool {
	return now.Sub(e.StoredAt) >= e.TTL
}

// Options configures a Cache.
type Options struct {
	Capacity     int
	ScheduleTTL  time.Duration
	ReferenceTTL time.Duration
	Now          func() time.Time
	Metrics      *metrics.Metrics
}

// Cache is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front = oldest insertion
	capacity int
	ttls     [2]time.Duration
	now      func() time.Time
	metrics  *metrics.Metrics
}

// New creates a cache from opts, filling defaults.
func New(opts Options) *Cache {
	if opts.ScheduleTTL <= 0 {
		opts.ScheduleTTL = config.ScheduleCacheTTL
	}
	if opts.ReferenceTTL <= 0 {
		opts.ReferenceTTL = config.ReferenceCacheTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		capacity: opts.Capacity,
		ttls:     [2]time.Duration{opts.ScheduleTTL, opts.ReferenceTTL},
		now:      opts.Now,
		metrics:  opts.Metrics,
	}
}

// TTL returns the lifetime used for category. A nil cache keeps nothing.
func (c *Cache) TTL(category Category) time.Duration {
	if c == nil {
		return 0
	}
	if category == CategoryReference {
		return c.ttls[1]
	}
	return c.ttls[0]
}

func (c *Cache) clock() time.Time {
	if c == nil {
		return time.Now()
	}
	return c.now()
}

func (c *Cache) recordLookup(category Category, hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.metrics.RecordCacheHit(category.String())
	} else {
		c.metrics.RecordCacheMiss(category.String())
	}
}

// Get returns a copy of the live entry for key. A stale entry is removed.
func (c *Cache) Get(key string) (*Entry, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*Entry)
	if e.Expired(c.now()) {
		c.removeLocked(el)
		c.metrics.SetCacheEntries(len(c.entries))
		return nil, false
	}
	cp := *e
	return &cp, true
}

// Put stores payload under key. Overwriting an existing key keeps its
// insertion position; a new key evicts the oldest entry when full.
func (c *Cache) Put(key string, payload []byte, statusCode int, category Category) {
	if c == nil || c.capacity <= 0 {
		return
	}
	e := &Entry{
		Key:        key,
		Payload:    append([]byte(nil), payload...),
		StatusCode: statusCode,
		StoredAt:   c.now(),
		TTL:        c.TTL(category),
		Category:   category,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value = e
		return
	}
	for len(c.entries) >= c.capacity {
		c.removeLocked(c.order.Front())
		c.metrics.RecordCacheEviction()
	}
	c.entries[key] = c.order.PushBack(e)
	c.metrics.SetCacheEntries(len(c.entries))
}

func (c *Cache) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	e := c.order.Remove(el).(*Entry)
	delete(c.entries, e.Key)
}

// Len returns the number of stored entries, including ones not yet found stale.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge removes every entry.
func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.mu.Unlock()
	c.metrics.SetCacheEntries(0)
}
