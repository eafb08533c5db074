package occupancy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/garyellow/osvita-occupancy/internal/config"
	"github.com/garyellow/osvita-occupancy/internal/metrics"
	"github.com/garyellow/osvita-occupancy/internal/pool"
	"github.com/garyellow/osvita-occupancy/internal/upstream"
)

// ScheduleFetcher fetches the lessons of one study group.
type ScheduleFetcher interface {
	GroupSchedule(ctx context.Context, groupID string, from, to time.Time) ([]upstream.Lesson, error)
}

// Progress is reported after every chunk.
type Progress struct {
	Current int
	Total   int
}

// Result is the outcome of Aggregate.
type Result struct {
	Grid       Snapshot
	ErrorCount int
	Processed  int
	Cancelled  bool
}

// EngineOptions configures an Engine. A non-positive ChunkSize or a negative
// Delay falls back to the defaults.
type EngineOptions struct {
	ChunkSize   int
	Delay       time.Duration
	CallTimeout time.Duration
	Metrics     *metrics.Metrics
}

// Engine fetches schedules for a list of entities and folds them into a grid.
type Engine struct {
	fetcher ScheduleFetcher
	opts    EngineOptions
}

// NewEngine creates an Engine.
func NewEngine(fetcher ScheduleFetcher, opts EngineOptions) *Engine {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = config.FetchChunkSize
	}
	if opts.Delay < 0 {
		opts.Delay = config.FetchChunkDelay
	}
	return &Engine{fetcher: fetcher, opts: opts}
}

// Aggregate fetches the schedule of every entity for date. A failed fetch
// counts towards ErrorCount and the scan goes on. onChunk, when non-nil,
// receives the progress and the grid after each chunk so callers can render
// partial results. A stopped flag ends the run at the next chunk boundary
// and the grid built so far is returned with Cancelled set.
func (e *Engine) Aggregate(ctx context.Context, entities []upstream.Entity, date time.Time, flag *pool.Flag, onChunk func(Progress, *Grid)) Result {
	grid := NewGrid()
	var (
		mu     sync.Mutex
		failed int
	)

	run := pool.Run(ctx, entities, pool.Options{ChunkSize: e.opts.ChunkSize, Delay: e.opts.Delay}, flag,
		func(ctx context.Context, ent upstream.Entity) {
			if e.opts.CallTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, e.opts.CallTimeout)
				defer cancel()
			}
			lessons, err := e.fetcher.GroupSchedule(ctx, ent.ID, date, date)
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				slog.DebugContext(ctx, "schedule fetch failed", "entity", ent.ID, "error", err)
				return
			}
			for _, l := range lessons {
				grid.Fold(ent, l)
			}
		},
		func(done int) {
			if onChunk != nil {
				onChunk(Progress{Current: min(done, len(entities)), Total: len(entities)}, grid)
			}
		},
	)

	mu.Lock()
	errCount := failed
	mu.Unlock()
	e.opts.Metrics.RecordEntityFetchErrors(errCount)

	return Result{
		Grid:       grid.Snapshot(),
		ErrorCount: errCount,
		Processed:  run.Done,
		Cancelled:  run.Cancelled,
	}
}
