package respcache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(capacity int) (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC)}
	return New(Options{
		Capacity:     capacity,
		ScheduleTTL:  10 * time.Minute,
		ReferenceTTL: 24 * time.Hour,
		Now:          clock.Now,
	}), clock
}

func TestNormalize_IgnoresVolatileParams(t *testing.T) {
	t.Parallel()
	a := url.Values{
		"aVuzID":        {"11927"},
		"aStudyGroupID": {`"G1"`},
		"callback":      {"jsonp1710147600000"},
		"_":             {"1710147600000"},
	}
	b := url.Values{
		"_":             {"1710147699999"},
		"aStudyGroupID": {`"G1"`},
		"callback":      {"jsonp1710147699999"},
		"aVuzID":        {"11927"},
	}

	assert.Equal(t, Normalize("GetScheduleDataX", a), Normalize("GetScheduleDataX", b))
	assert.NotContains(t, Normalize("GetScheduleDataX", a), "callback")
}

func TestNormalize_KeepsMeaningfulParams(t *testing.T) {
	t.Parallel()
	base := url.Values{"aStudyGroupID": {`"G1"`}}
	other := url.Values{"aStudyGroupID": {`"G2"`}}

	assert.NotEqual(t, Normalize("GetScheduleDataX", base), Normalize("GetScheduleDataX", other))
	assert.NotEqual(t, Normalize("GetScheduleDataX", base), Normalize("GetScheduleDataEmp", base))
}

func TestNormalize_RepeatedValuesOrderless(t *testing.T) {
	t.Parallel()
	a := url.Values{"aStudyGroupID": {`"G2"`, `"G1"`}, "aVuzID": {"11927"}}
	b := url.Values{"aVuzID": {"11927"}, "aStudyGroupID": {`"G1"`, `"G2"`}}

	assert.Equal(t, Normalize("GetScheduleDataX", a), Normalize("GetScheduleDataX", b))
	assert.Equal(t, []string{`"G2"`, `"G1"`}, a["aStudyGroupID"], "input must not be reordered")
}

func TestGetPut_TTL(t *testing.T) {
	t.Parallel()
	c, clock := newTestCache(10)

	c.Put("k", []byte(`[1]`), 200, CategorySchedule)

	e, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte(`[1]`), e.Payload)
	assert.Equal(t, 200, e.StatusCode)
	assert.Equal(t, 10*time.Minute, e.TTL)

	clock.Advance(10*time.Minute - time.Second)
	_, ok = c.Get("k")
	assert.True(t, ok, "entry still live just before TTL")

	clock.Advance(time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry expires at TTL")
	assert.Equal(t, 0, c.Len(), "stale entry removed on read")

	_, ok = c.Get("k")
	assert.False(t, ok, "re-query also misses")
}

func TestCategoryTTL(t *testing.T) {
	t.Parallel()
	c, clock := newTestCache(10)
	c.Put("sched", []byte("s"), 200, CategorySchedule)
	c.Put("ref", []byte("r"), 200, CategoryReference)

	clock.Advance(time.Hour)

	_, ok := c.Get("sched")
	assert.False(t, ok)
	_, ok = c.Get("ref")
	assert.True(t, ok)
	assert.Less(t, c.TTL(CategorySchedule), c.TTL(CategoryReference))
}

func TestCategoryFor(t *testing.T) {
	t.Parallel()
	assert.Equal(t, CategorySchedule, CategoryFor("GetScheduleDataX"))
	assert.Equal(t, CategorySchedule, CategoryFor("GetScheduleDataEmp"))
	assert.Equal(t, CategoryReference, CategoryFor("GetStudentScheduleFiltersData"))
	assert.Equal(t, CategoryReference, CategoryFor("GetEmployeeChairs"))
}

func TestCapacity_EvictsOldestInserted(t *testing.T) {
	t.Parallel()
	const capacity = 5
	c, _ := newTestCache(capacity)

	for i := 0; i <= capacity; i++ {
		c.Put(fmt.Sprintf("k%d", i), []byte{byte(i)}, 200, CategoryReference)
	}

	assert.Equal(t, capacity, c.Len())
	_, ok := c.Get("k0")
	assert.False(t, ok, "first inserted key evicted")
	for i := 1; i <= capacity; i++ {
		_, ok := c.Get(fmt.Sprintf("k%d", i))
		assert.True(t, ok, "k%d kept", i)
	}
}

func TestEviction_IsNotLRU(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(2)
	c.Put("a", nil, 200, CategoryReference)
	c.Put("b", nil, 200, CategoryReference)

	_, _ = c.Get("a") // reading does not refresh position
	c.Put("c", nil, 200, CategoryReference)

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
}

func TestPut_OverwriteKeepsSingleEntry(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(3)
	c.Put("k", []byte("old"), 200, CategorySchedule)
	c.Put("k", []byte("new"), 200, CategorySchedule)

	assert.Equal(t, 1, c.Len())
	e, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("new"), e.Payload)
}

func TestPut_CopiesPayload(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(3)
	buf := []byte("abc")
	c.Put("k", buf, 200, CategorySchedule)
	buf[0] = 'x'

	e, _ := c.Get("k")
	assert.Equal(t, []byte("abc"), e.Payload)
}

func TestZeroCapacityAndNilCacheDegrade(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(0)
	c.Put("k", []byte("v"), 200, CategorySchedule)
	_, ok := c.Get("k")
	assert.False(t, ok)

	var nilCache *Cache
	assert.NotPanics(t, func() {
		nilCache.Put("k", nil, 200, CategorySchedule)
		_, ok := nilCache.Get("k")
		assert.False(t, ok)
		assert.Equal(t, 0, nilCache.Len())
		nilCache.Purge()
	})
}

func TestConcurrentPutsKeepCapacity(t *testing.T) {
	t.Parallel()
	const capacity = 50
	c, _ := newTestCache(capacity)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%80)
				c.Put(key, []byte{byte(w)}, 200, CategorySchedule)
				_, _ = c.Get(key)
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), capacity)
	assert.Equal(t, c.Len(), c.order.Len())
}

func TestPurge(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(3)
	c.Put("a", nil, 200, CategorySchedule)
	c.Put("b", nil, 200, CategorySchedule)
	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestFetcher(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(10)
	f := NewFetcher(c)
	ctx := context.Background()

	var calls atomic.Int32
	fetch := func(context.Context) (int, []byte, error) {
		calls.Add(1)
		return 200, []byte(`{"ok":true}`), nil
	}

	e, hit, err := f.Get(ctx, "k", CategoryReference, fetch)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, `{"ok":true}`, string(e.Payload))

	_, hit, err = f.Get(ctx, "k", CategoryReference, fetch)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetcher_FailuresNotCached(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(10)
	f := NewFetcher(c)
	ctx := context.Background()

	_, _, err := f.Get(ctx, "err", CategorySchedule, func(context.Context) (int, []byte, error) {
		return 0, nil, errors.New("down")
	})
	require.Error(t, err)

	e, _, err := f.Get(ctx, "404", CategorySchedule, func(context.Context) (int, []byte, error) {
		return 404, []byte(`{}`), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 404, e.StatusCode)
	assert.Equal(t, 0, c.Len())
}

func TestFetcher_NilCacheFallsThrough(t *testing.T) {
	t.Parallel()
	f := NewFetcher(nil)
	ctx := context.Background()

	var calls atomic.Int32
	fetch := func(context.Context) (int, []byte, error) {
		calls.Add(1)
		return 200, []byte(`[]`), nil
	}

	for range 2 {
		e, hit, err := f.Get(ctx, "k", CategorySchedule, fetch)
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, `[]`, string(e.Payload))
		assert.Zero(t, e.TTL)
		assert.False(t, e.StoredAt.IsZero())
	}
	assert.Equal(t, int32(2), calls.Load())
}
