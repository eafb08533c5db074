package directory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/garyellow/osvita-occupancy/internal/errors"
	"github.com/garyellow/osvita-occupancy/internal/pool"
	"github.com/garyellow/osvita-occupancy/internal/upstream"
)

type listerFunc func(ctx context.Context, facultyID, form, course string) ([]upstream.Option, error)

func (f listerFunc) StudyGroups(ctx context.Context, facultyID, form, course string) ([]upstream.Option, error) {
	return f(ctx, facultyID, form, course)
}

func opts(keys ...string) []upstream.Option {
	out := make([]upstream.Option, len(keys))
	for i, k := range keys {
		out[i] = upstream.Option{Key: k, Value: "label-" + k}
	}
	return out
}

func TestTasks_CrossProduct(t *testing.T) {
	t.Parallel()
	tasks := Tasks(upstream.Filters{
		Faculties: opts("F1", "F2"),
		EducForms: opts("1", "2", "3"),
		Courses:   opts("1", "2"),
	})
	assert.Len(t, tasks, 12)

	seen := make(map[[3]string]bool)
	for _, tk := range tasks {
		seen[[3]string{tk.Faculty.Key, tk.Form.Key, tk.Course.Key}] = true
	}
	assert.Len(t, seen, 12)
}

func TestDiscover_DeduplicatesAcrossTriples(t *testing.T) {
	t.Parallel()
	lister := listerFunc(func(_ context.Context, fac, form, course string) ([]upstream.Option, error) {
		// the same group is listed under two different form/course triples
		if (form == "1" && course == "1") || (form == "2" && course == "2") {
			return []upstream.Option{{Key: "G1", Value: "A-1"}}, nil
		}
		if form == "1" && course == "2" {
			return []upstream.Option{{Key: "G2", Value: "A-2"}}, nil
		}
		return nil, nil
	})

	b := NewBuilder(lister, 5, 0)
	res, err := b.Discover(context.Background(), upstream.Filters{
		Faculties: opts("F1"),
		EducForms: opts("1", "2"),
		Courses:   opts("1", "2"),
	}, nil, nil)
	require.NoError(t, err)

	ids := make([]string, 0, len(res.Entities))
	for _, e := range res.Entities {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []string{"G1", "G2"}, ids)
	assert.Equal(t, 4, res.Tasks)
	assert.Equal(t, "label-F1", res.Entities[0].FacultyLabel)
}

func TestDiscover_FailingTriplesAreSkipped(t *testing.T) {
	t.Parallel()
	lister := listerFunc(func(_ context.Context, fac, _, _ string) ([]upstream.Option, error) {
		if fac == "F2" {
			return nil, errors.New("timeout")
		}
		return []upstream.Option{{Key: "G-" + fac, Value: fac}}, nil
	})

	res, err := NewBuilder(lister, 2, 0).Discover(context.Background(), upstream.Filters{
		Faculties: opts("F1", "F2", "F3"),
		EducForms: opts("1"),
		Courses:   opts("1"),
	}, nil, nil)
	require.NoError(t, err)
	assert.Len(t, res.Entities, 2)
	assert.Equal(t, 1, res.FailedTasks)
}

func TestDiscover_NoEntities(t *testing.T) {
	t.Parallel()
	lister := listerFunc(func(context.Context, string, string, string) ([]upstream.Option, error) {
		return nil, nil
	})

	res, err := NewBuilder(lister, 5, 0).Discover(context.Background(), upstream.Filters{
		Faculties: opts("F1"),
		EducForms: opts("1"),
		Courses:   opts("1", "2"),
	}, nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrNoEntities)
	assert.Empty(t, res.Entities)
	assert.False(t, res.Cancelled)
}

func TestDiscover_EmptyFilters(t *testing.T) {
	t.Parallel()
	lister := listerFunc(func(context.Context, string, string, string) ([]upstream.Option, error) {
		t.Fatal("no triples expected")
		return nil, nil
	})

	_, err := NewBuilder(lister, 5, 0).Discover(context.Background(), upstream.Filters{}, nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrNoEntities)
}

func TestDiscover_CancelReturnsCollected(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	lister := listerFunc(func(_ context.Context, fac, _, _ string) ([]upstream.Option, error) {
		calls.Add(1)
		return []upstream.Option{{Key: "G-" + fac}}, nil
	})

	flag := &pool.Flag{}
	var mu sync.Mutex
	var reports []Progress
	res, err := NewBuilder(lister, 2, 0).Discover(context.Background(), upstream.Filters{
		Faculties: opts("F1", "F2", "F3", "F4", "F5", "F6"),
		EducForms: opts("1"),
		Courses:   opts("1"),
	}, flag, func(p Progress) {
		mu.Lock()
		reports = append(reports, p)
		mu.Unlock()
		flag.Stop()
	})

	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Len(t, res.Entities, 2)
	assert.Equal(t, int32(2), calls.Load())
	require.Len(t, reports, 1)
	assert.Equal(t, Progress{Checked: 2, Total: 6, Found: 2}, reports[0])
}
