// Package warmup preloads reference data into the response cache at
// startup so the first scan and the readiness probe do not wait on it.
package warmup

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garyellow/osvita-occupancy/internal/logger"
	"github.com/garyellow/osvita-occupancy/internal/metrics"
	"github.com/garyellow/osvita-occupancy/internal/upstream"
)

// Module names.
const (
	ModuleFilters  = "filters"
	ModuleChairs   = "chairs"
	ModuleTeachers = "teachers"
)

// DefaultModules is used when none are configured.
var DefaultModules = []string{ModuleFilters, ModuleChairs, ModuleTeachers}

const (
	chairConcurrency    = 4
	employeeConcurrency = 4
)

// ReferenceSource is the cached reference lookup.
type ReferenceSource interface {
	Filters(ctx context.Context) (upstream.Filters, error)
	Chairs(ctx context.Context, facultyID string) ([]upstream.Option, error)
	Employees(ctx context.Context, facultyID, chairID string) ([]upstream.Option, error)
}

// Stats tracks warmup results. All fields use atomic operations.
type Stats struct {
	Faculties atomic.Int64
	Chairs    atomic.Int64
	Teachers  atomic.Int64
}

// Options configures warmup.
type Options struct {
	Modules []string
	Metrics *metrics.Metrics
	// OnTeachers receives the teacher directory, also after partial failures.
	OnTeachers func([]upstream.Entity)
}

// Run warms the selected modules. Teachers are listed per chair and chairs
// per faculty, so each module implies loading the ones before it.
func Run(ctx context.Context, src ReferenceSource, log *logger.Logger, opts Options) (*Stats, error) {
	stats := &Stats{}
	start := time.Now()
	modules := opts.Modules
	if len(modules) == 0 {
		modules = DefaultModules
	}

	wantFilters := slices.Contains(modules, ModuleFilters)
	wantTeachers := slices.Contains(modules, ModuleTeachers)
	wantChairs := wantTeachers || slices.Contains(modules, ModuleChairs)
	if !wantFilters && !wantChairs {
		return stats, nil
	}

	filters, err := src.Filters(ctx)
	if err == nil && filters.Empty() {
		err = errors.New("empty filter lists")
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	opts.Metrics.RecordWarmupTask(ModuleFilters, status)
	if err != nil {
		return stats, fmt.Errorf("warmup filters: %w", err)
	}
	stats.Faculties.Store(int64(len(filters.Faculties)))
	log.WithField("faculties", len(filters.Faculties)).Info("Reference filters loaded")

	if wantChairs {
		chairs, chairErr := warmupChairs(ctx, src, filters.Faculties, log, stats, opts.Metrics)
		if wantTeachers {
			teachers, err := warmupTeachers(ctx, src, chairs, log, opts.Metrics)
			stats.Teachers.Store(int64(len(teachers)))
			if opts.OnTeachers != nil && len(teachers) > 0 {
				opts.OnTeachers(teachers)
			}
			chairErr = errors.Join(chairErr, err)
		}
		if chairErr != nil {
			return stats, chairErr
		}
	}

	opts.Metrics.RecordWarmupDuration(time.Since(start).Seconds())
	return stats, nil
}

// facultyChair is one chair together with the faculty it was listed under.
type facultyChair struct {
	faculty string
	chair   upstream.Option
}

// warmupChairs tolerates per-faculty failures and reports them together.
// Chairs are returned in faculty order.
func warmupChairs(ctx context.Context, src ReferenceSource, faculties []upstream.Option, log *logger.Logger, stats *Stats, m *metrics.Metrics) ([]facultyChair, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chairConcurrency)

	perFaculty := make([][]upstream.Option, len(faculties))
	var failed atomic.Int64
	for i, fac := range faculties {
		g.Go(func() error {
			chairs, err := src.Chairs(gctx, fac.Key)
			if err != nil {
				failed.Add(1)
				log.WithError(err).WithField("faculty", fac.Key).Debug("Chair warmup failed")
				return nil
			}
			perFaculty[i] = chairs
			stats.Chairs.Add(int64(len(chairs)))
			return nil
		})
	}
	_ = g.Wait()

	var out []facultyChair
	for i, chairs := range perFaculty {
		for _, ch := range chairs {
			out = append(out, facultyChair{faculty: faculties[i].Key, chair: ch})
		}
	}

	if n := failed.Load(); n > 0 {
		m.RecordWarmupTask(ModuleChairs, "error")
		return out, fmt.Errorf("warmup chairs: %d of %d faculties failed", n, len(faculties))
	}
	m.RecordWarmupTask(ModuleChairs, "success")
	return out, nil
}

// warmupTeachers lists the employees of every chair. Each becomes a
// teacher entity labelled with its chair.
func warmupTeachers(ctx context.Context, src ReferenceSource, chairs []facultyChair, log *logger.Logger, m *metrics.Metrics) ([]upstream.Entity, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(employeeConcurrency)

	perChair := make([][]upstream.Option, len(chairs))
	var failed atomic.Int64
	for i, fc := range chairs {
		g.Go(func() error {
			emps, err := src.Employees(gctx, fc.faculty, fc.chair.Key)
			if err != nil {
				failed.Add(1)
				log.WithError(err).WithField("chair", fc.chair.Key).Debug("Employee warmup failed")
				return nil
			}
			perChair[i] = emps
			return nil
		})
	}
	_ = g.Wait()

	var teachers []upstream.Entity
	for i, emps := range perChair {
		for _, e := range emps {
			teachers = append(teachers, upstream.Entity{
				ID:           e.Key,
				Name:         e.Value,
				FacultyLabel: chairs[i].chair.Value,
				Kind:         upstream.KindTeacher,
			})
		}
	}
	log.WithField("teachers", len(teachers)).Info("Teacher directory loaded")

	if n := failed.Load(); n > 0 {
		m.RecordWarmupTask(ModuleTeachers, "error")
		return teachers, fmt.Errorf("warmup teachers: %d of %d chairs failed", n, len(chairs))
	}
	m.RecordWarmupTask(ModuleTeachers, "success")
	return teachers, nil
}

// RunInBackground runs warmup asynchronously and marks readiness when it
// finishes, even with errors, since scans reload reference data themselves.
func RunInBackground(ctx context.Context, src ReferenceSource, readiness *ReadinessState, log *logger.Logger, opts Options) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("Panic in background warmup")
				err = fmt.Errorf("warmup panic: %v", r)
			}
			if readiness != nil {
				readiness.Finish(err)
			}
		}()

		log.WithField("modules", opts.Modules).Info("Starting background warmup")

		var stats *Stats
		stats, err = Run(ctx, src, log, opts)
		if err != nil {
			log.WithError(err).Warn("Background warmup finished with errors")
			return
		}
		log.WithField("faculties", stats.Faculties.Load()).
			WithField("chairs", stats.Chairs.Load()).
			WithField("teachers", stats.Teachers.Load()).
			Info("Background warmup completed successfully")
	}()
}

// ParseModules converts a comma-separated string to a module list.
func ParseModules(modules string) []string {
	if modules == "" {
		return []string{}
	}

	var result []string
	for m := range strings.SplitSeq(modules, ",") {
		m = strings.TrimSpace(m)
		if m != "" {
			result = append(result, m)
		}
	}
	return result
}
