// Package scan orchestrates one occupancy scan at a time: reference data,
// entity discovery, then schedule aggregation, with progress reporting and
// cooperative cancellation.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/garyellow/osvita-occupancy/internal/config"
	"github.com/garyellow/osvita-occupancy/internal/ctxutil"
	"github.com/garyellow/osvita-occupancy/internal/directory"
	apperrors "github.com/garyellow/osvita-occupancy/internal/errors"
	"github.com/garyellow/osvita-occupancy/internal/logger"
	"github.com/garyellow/osvita-occupancy/internal/metrics"
	"github.com/garyellow/osvita-occupancy/internal/occupancy"
	"github.com/garyellow/osvita-occupancy/internal/pool"
	"github.com/garyellow/osvita-occupancy/internal/storage"
	"github.com/garyellow/osvita-occupancy/internal/upstream"
)

// DateLayout is the external date format of scans.
const DateLayout = "2006-01-02"

const persistTimeout = 30 * time.Second

// ReferenceLoader loads faculties, education forms and courses.
type ReferenceLoader interface {
	Filters(ctx context.Context) (upstream.Filters, error)
}

// Discoverer enumerates entities.
type Discoverer interface {
	Discover(ctx context.Context, filters upstream.Filters, flag *pool.Flag, onProgress func(directory.Progress)) (directory.Result, error)
}

// Aggregator folds entity schedules into a grid.
type Aggregator interface {
	Aggregate(ctx context.Context, entities []upstream.Entity, date time.Time, flag *pool.Flag, onChunk func(occupancy.Progress, *occupancy.Grid)) occupancy.Result
}

// ResultSink persists finished grids.
type ResultSink interface {
	SaveOccupancy(ctx context.Context, rec *storage.Occupancy, ttl time.Duration) error
}

// Archiver copies completed grids to long-term storage.
type Archiver interface {
	Archive(ctx context.Context, rec *storage.Occupancy) (string, error)
}

// Options holds the optional collaborators of a Controller.
type Options struct {
	Sink      ResultSink
	Archiver  Archiver
	ResultTTL time.Duration
	Metrics   *metrics.Metrics
	Logger    *logger.Logger

	// OnFailure is called with the cause of a failed scan.
	OnFailure func(ctx context.Context, err error)

	// OnDiscovered receives the entity directory of every scan that found one.
	OnDiscovered func(entities []upstream.Entity)

	Now   func() time.Time
	NewID func() string
}

// Controller runs at most one scan at a time.
type Controller struct {
	refs ReferenceLoader
	disc Discoverer
	agg  Aggregator
	opts Options
	log  *logger.Logger

	mu     sync.Mutex
	state  State
	flag   *pool.Flag
	cancel context.CancelFunc
	done   chan struct{}
	subs   map[chan State]struct{}
}

// NewController creates an idle controller.
func NewController(refs ReferenceLoader, disc Discoverer, agg Aggregator, opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = newScanID
	}
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = config.OccupancyResultTTL
	}
	log := opts.Logger
	if log == nil {
		log = logger.New("info")
	}
	done := make(chan struct{})
	close(done)
	return &Controller{
		refs:  refs,
		disc:  disc,
		agg:   agg,
		opts:  opts,
		log:   log.WithModule("scan"),
		state: State{Phase: PhaseIdle},
		done:  done,
		subs:  make(map[chan State]struct{}),
	}
}

// newScanID returns a time-ordered id so archive keys sort by scan time.
func newScanID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, apperrors.NewValidationError("date", "expected YYYY-MM-DD")
	}
	return d, nil
}

// Start launches a scan of date in the background and returns its initial
// state. It returns errors.ErrScanInProgress while another scan runs; the
// running scan is left untouched.
func (c *Controller) Start(ctx context.Context, date time.Time) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase.Running() {
		return c.snapshotLocked(), apperrors.ErrScanInProgress
	}

	now := c.opts.Now()
	id := c.opts.NewID()
	dateStr := date.Format(DateLayout)

	c.flag = &pool.Flag{}
	c.state = State{
		ScanID:    id,
		Phase:     PhaseDiscovering,
		Date:      dateStr,
		StartedAt: &now,
		Rooms:     occupancy.Snapshot{},
	}
	c.done = make(chan struct{})

	// The scan outlives the request that started it.
	runCtx, cancel := context.WithCancel(ctxutil.PreserveTracing(ctx))
	runCtx = ctxutil.WithScanID(runCtx, id)
	runCtx = ctxutil.WithScanDate(runCtx, dateStr)
	c.cancel = cancel

	c.opts.Metrics.RecordScanStarted()
	c.log.WithScanID(id).Info("scan started", "date", dateStr)

	st := c.snapshotLocked()
	c.publishLocked()
	go c.run(runCtx, cancel, date, c.flag, c.done)
	return st, nil
}

// Cancel asks the running scan to stop at the next chunk boundary. It
// reports whether a scan was running.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Phase.Running() {
		return false
	}
	c.flag.Stop()
	return true
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Wait blocks until the current scan ends or ctx is done and returns the
// latest state.
func (c *Controller) Wait(ctx context.Context) (State, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	select {
	case <-done:
		return c.State(), nil
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

// Shutdown cancels a running scan and waits for it to finish. If ctx ends
// first, in-flight requests are aborted.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.Cancel()
	_, err := c.Wait(ctx)
	if err != nil {
		c.mu.Lock()
		if c.cancel != nil {
			c.cancel()
		}
		c.mu.Unlock()
	}
	return err
}

// Subscribe returns a channel receiving state updates, starting with the
// current state. Slow readers only see the newest state. The returned func
// unsubscribes and closes the channel.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	ch <- c.snapshotLocked()
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			c.mu.Unlock()
			close(ch)
		})
	}
}

func (c *Controller) snapshotLocked() State {
	return c.state
}

// publishLocked delivers the current state, replacing any unread one.
func (c *Controller) publishLocked() {
	st := c.snapshotLocked()
	for ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}

func (c *Controller) update(fn func(s *State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.state)
	c.publishLocked()
}

// run owns cancel and done of one scan. c.cancel may already belong to a
// newer scan started from a terminal update, so it is not touched here.
func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, date time.Time, flag *pool.Flag, done chan struct{}) {
	log := c.log.WithScanID(ctxutil.GetScanID(ctx))
	start := c.opts.Now()

	defer func() {
		if r := recover(); r != nil {
			c.fail(ctx, log, start, fmt.Errorf("scan panic: %v", r), "")
		}
		cancel()
		close(done)
	}()

	filters, err := c.refs.Filters(ctx)
	if err == nil && filters.Empty() {
		err = errors.New("empty filter lists")
	}
	if err != nil {
		c.fail(ctx, log, start, fmt.Errorf("%w: %w", apperrors.ErrReferenceData, err), textReference)
		return
	}

	disc, err := c.disc.Discover(ctx, filters, flag, func(p directory.Progress) {
		c.update(func(s *State) {
			s.Progress = Progress{
				Current: p.Checked,
				Total:   p.Total,
				Text:    fmt.Sprintf(textDiscovering, min(p.Checked, p.Total), p.Total),
			}
			s.Entities = p.Found
		})
	})
	if errors.Is(err, apperrors.ErrNoEntities) {
		c.fail(ctx, log, start, err, textNoEntities)
		return
	}
	if err != nil {
		c.fail(ctx, log, start, err, err.Error())
		return
	}

	c.opts.Metrics.RecordEntitiesDiscovered(len(disc.Entities))
	log.Info("discovery finished",
		"tasks", disc.Tasks,
		"failed_tasks", disc.FailedTasks,
		"entities", len(disc.Entities),
		"cancelled", disc.Cancelled)
	if c.opts.OnDiscovered != nil && len(disc.Entities) > 0 {
		c.opts.OnDiscovered(disc.Entities)
	}

	if disc.Cancelled {
		c.finish(ctx, log, start, occupancy.Result{Cancelled: true})
		return
	}

	c.update(func(s *State) {
		s.Phase = PhaseScanning
		s.Entities = len(disc.Entities)
		s.Progress = Progress{Current: 0, Total: len(disc.Entities), Text: textScanning}
	})

	res := c.agg.Aggregate(ctx, disc.Entities, date, flag, func(p occupancy.Progress, g *occupancy.Grid) {
		rooms := g.Snapshot()
		c.update(func(s *State) {
			s.Progress.Current = p.Current
			s.Progress.Total = p.Total
			s.Rooms = rooms
		})
	})
	c.finish(ctx, log, start, res)
}

func (c *Controller) finish(ctx context.Context, log *logger.Logger, start time.Time, res occupancy.Result) {
	phase, outcome, text := PhaseCompleted, "completed", textCompleted
	if res.Cancelled {
		phase, outcome, text = PhaseCancelled, "cancelled", textCancelled
	}
	rooms := res.Grid
	if rooms == nil {
		rooms = occupancy.Snapshot{}
	}

	st := c.State()
	rec := &storage.Occupancy{Date: st.Date, ScanID: st.ScanID, Rooms: rooms}

	// Results are still saved when shutdown aborted the scan context.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	// A cancelled scan only replaces the stored result when it found something.
	if c.opts.Sink != nil && (phase == PhaseCompleted || len(rooms) > 0) {
		if err := c.opts.Sink.SaveOccupancy(saveCtx, rec, c.opts.ResultTTL); err != nil {
			log.WithError(err).Warn("failed to persist scan result")
			text = textPersistError
		}
	}
	if phase == PhaseCompleted && c.opts.Archiver != nil {
		if _, err := c.opts.Archiver.Archive(saveCtx, rec); err != nil {
			log.WithError(err).Warn("failed to archive scan result")
		}
	}

	now := c.opts.Now()
	c.update(func(s *State) {
		s.Phase = phase
		s.Message = text
		s.ErrorCount = res.ErrorCount
		s.Rooms = rooms
		s.FinishedAt = &now
		if phase == PhaseCompleted {
			s.Progress.Current = s.Progress.Total
		}
	})

	dur := now.Sub(start)
	c.opts.Metrics.RecordScanFinished(outcome, dur.Seconds(), len(rooms))
	log.Info("scan finished",
		"phase", string(phase),
		"rooms", len(rooms),
		"processed", res.Processed,
		"error_count", res.ErrorCount,
		"duration_ms", dur.Milliseconds())
}

func (c *Controller) fail(ctx context.Context, log *logger.Logger, start time.Time, err error, text string) {
	if text == "" {
		text = err.Error()
	}
	now := c.opts.Now()
	c.update(func(s *State) {
		s.Phase = PhaseFailed
		s.Message = text
		s.FinishedAt = &now
	})

	c.opts.Metrics.RecordScanFinished("failed", now.Sub(start).Seconds(), 0)
	log.WithError(err).Error("scan failed")
	if c.opts.OnFailure != nil {
		c.opts.OnFailure(ctx, err)
	}
}

// LogValue keeps state logging compact.
func (s State) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("scan_id", s.ScanID),
		slog.String("phase", string(s.Phase)),
		slog.String("date", s.Date),
		slog.Int("current", s.Progress.Current),
		slog.Int("total", s.Progress.Total),
		slog.Int("error_count", s.ErrorCount),
	)
}
