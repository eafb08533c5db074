// Package directory enumerates every study group known upstream.
//
// The upstream service can only list groups for one faculty, education form
// and course at a time, so discovery walks the full cross product of the
// three reference lists and merges the answers.
package directory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/garyellow/osvita-occupancy/internal/config"
	apperrors "github.com/garyellow/osvita-occupancy/internal/errors"
	"github.com/garyellow/osvita-occupancy/internal/pool"
	"github.com/garyellow/osvita-occupancy/internal/sliceutil"
	"github.com/garyellow/osvita-occupancy/internal/upstream"
)

// GroupLister lists the study groups of one faculty/form/course triple.
type GroupLister interface {
	StudyGroups(ctx context.Context, facultyID, form, course string) ([]upstream.Option, error)
}

// Task is one faculty/form/course triple.
type Task struct {
	Faculty upstream.Option
	Form    upstream.Option
	Course  upstream.Option
}

// Progress is reported after every chunk of tasks.
type Progress struct {
	Checked int
	Total   int
	Found   int
}

// Result is the outcome of a discovery run.
type Result struct {
	Entities    []upstream.Entity
	Tasks       int
	FailedTasks int
	Cancelled   bool
}

// Builder discovers entities.
type Builder struct {
	lister    GroupLister
	chunkSize int
	delay     time.Duration
}

// NewBuilder creates a Builder. Non-positive chunkSize or negative delay
// fall back to the defaults.
func NewBuilder(lister GroupLister, chunkSize int, delay time.Duration) *Builder {
	if chunkSize <= 0 {
		chunkSize = config.DiscoveryChunkSize
	}
	if delay < 0 {
		delay = config.DiscoveryChunkDelay
	}
	return &Builder{lister: lister, chunkSize: chunkSize, delay: delay}
}

// Tasks builds the faculty × form × course cross product.
func Tasks(filters upstream.Filters) []Task {
	tasks := make([]Task, 0, len(filters.Faculties)*len(filters.EducForms)*len(filters.Courses))
	for _, fac := range filters.Faculties {
		for _, form := range filters.EducForms {
			for _, course := range filters.Courses {
				tasks = append(tasks, Task{Faculty: fac, Form: form, Course: course})
			}
		}
	}
	return tasks
}

// Discover lists the groups of every triple and deduplicates them by id.
// A failing triple contributes nothing. Finding no entities after checking
// every triple returns errors.ErrNoEntities; a cancelled run returns what
// was collected without error.
func (b *Builder) Discover(ctx context.Context, filters upstream.Filters, flag *pool.Flag, onProgress func(Progress)) (Result, error) {
	tasks := Tasks(filters)
	res := Result{Tasks: len(tasks)}

	var (
		mu    sync.Mutex
		found []upstream.Entity
	)

	run := pool.Run(ctx, tasks, pool.Options{ChunkSize: b.chunkSize, Delay: b.delay}, flag,
		func(ctx context.Context, t Task) {
			groups, err := b.lister.StudyGroups(ctx, t.Faculty.Key, t.Form.Key, t.Course.Key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.FailedTasks++
				slog.DebugContext(ctx, "study group listing failed",
					"faculty", t.Faculty.Key,
					"form", t.Form.Key,
					"course", t.Course.Key,
					"error", err,
				)
				return
			}
			for _, g := range groups {
				if g.Key == "" {
					continue
				}
				found = append(found, upstream.Entity{ID: g.Key, Name: g.Value, FacultyLabel: t.Faculty.Value, Kind: upstream.KindGroup})
			}
		},
		func(done int) {
			if onProgress == nil {
				return
			}
			mu.Lock()
			n := len(found)
			mu.Unlock()
			onProgress(Progress{Checked: done, Total: len(tasks), Found: n})
		},
	)

	res.Entities = sliceutil.Deduplicate(found, func(e upstream.Entity) string { return e.ID })
	res.Cancelled = run.Cancelled

	if res.Cancelled {
		return res, nil
	}
	if len(res.Entities) == 0 {
		return res, apperrors.ErrNoEntities
	}
	return res, nil
}
