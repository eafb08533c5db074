// Package pool runs work in fixed-size concurrent chunks.
//
// Each chunk is a join point: every item of a chunk finishes before the
// next chunk starts. Cancellation is cooperative and only observed at chunk
// boundaries, so an in-flight chunk always runs to completion.
package pool

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garyellow/osvita-occupancy/internal/sliceutil"
)

// Flag is a cancellation flag owned by one run. The zero value is ready.
type Flag struct {
	stopped atomic.Bool
}

// Stop requests cancellation at the next chunk boundary.
func (f *Flag) Stop() {
	if f != nil {
		f.stopped.Store(true)
	}
}

// Stopped reports whether Stop was called.
func (f *Flag) Stopped() bool {
	return f != nil && f.stopped.Load()
}

// Options controls chunking.
type Options struct {
	ChunkSize int
	Delay     time.Duration // pause between chunks, not after the last one
}

// Result summarizes a run.
type Result struct {
	Done      int  // items whose fn returned
	Cancelled bool // stopped before all items ran
}

// Run calls fn for every item, ChunkSize at a time. onChunk, when non-nil,
// is called after each chunk with the number of items done so far.
// Run stops early when flag is stopped or ctx is done.
func Run[T any](ctx context.Context, items []T, opts Options, flag *Flag, fn func(ctx context.Context, item T), onChunk func(done int)) Result {
	var res Result
	chunks := sliceutil.Chunk(items, opts.ChunkSize)
	for i, chunk := range chunks {
		if flag.Stopped() || ctx.Err() != nil {
			res.Cancelled = true
			return res
		}

		var g errgroup.Group
		for _, item := range chunk {
			g.Go(func() error {
				fn(ctx, item)
				return nil
			})
		}
		_ = g.Wait()

		res.Done += len(chunk)
		if onChunk != nil {
			onChunk(res.Done)
		}

		if i < len(chunks)-1 && opts.Delay > 0 {
			if !sleep(ctx, opts.Delay) {
				res.Cancelled = true
				return res
			}
		}
	}
	return res
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
