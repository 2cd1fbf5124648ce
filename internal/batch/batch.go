// Package batch runs a worker over a list of items in fixed-size slices.
// Items of one slice run concurrently; slices run one after the other with
// a pause in between to keep the request rate against the API bounded.
package batch

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/juju/clock"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one item. ID is the identifier the remote side
// assigned on success.
type Outcome struct {
	Index int
	ID    int64
	Err   error
}

func (o Outcome) OK() bool { return o.Err == nil }

// Worker processes a single item. index is the item's position in the full
// input, not in its slice.
type Worker[T any] func(ctx context.Context, item T, index int) (int64, error)

type Options struct {
	// Size is the maximum number of items in flight at once. Zero or less
	// runs every item in a single slice.
	Size int
	// Delay is the pause between two slices. There is no pause after the last.
	Delay time.Duration
	// Clock defaults to clock.WallClock.
	Clock clock.Clock
	// OnBatch, if set, is called before each slice starts with its 1-based
	// number, the index of its first item and its length.
	OnBatch func(batch, first, count int)
}

// Run processes every item and returns one Outcome per item, in input order.
// A failing or panicking worker never affects its siblings. If ctx is done
// before a slice starts, that slice and the ones after it are not run and
// their items are reported with the context error.
func Run[T any](ctx context.Context, items []T, opts Options, worker Worker[T]) []Outcome {
	outcomes := make([]Outcome, len(items))
	if len(items) == 0 {
		return outcomes
	}

	size := opts.Size
	if size <= 0 || size > len(items) {
		size = len(items)
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.WallClock
	}

	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))

		if err := ctx.Err(); err != nil {
			for i := start; i < len(items); i++ {
				outcomes[i] = Outcome{Index: i, Err: errors.Wrap(err, "not started")}
			}
			break
		}

		if opts.OnBatch != nil {
			opts.OnBatch(start/size+1, start, end-start)
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				outcomes[i] = call(ctx, worker, items[i], i)
				return nil
			})
		}
		_ = g.Wait()

		if end < len(items) && opts.Delay > 0 {
			select {
			case <-clk.After(opts.Delay):
			case <-ctx.Done():
			}
		}
	}
	return outcomes
}

func call[T any](ctx context.Context, worker Worker[T], item T, index int) (out Outcome) {
	out.Index = index
	defer func() {
		if r := recover(); r != nil {
			out.ID = 0
			out.Err = errors.Newf("worker panic: %v", r)
		}
	}()
	out.ID, out.Err = worker(ctx, item, index)
	return out
}

// Count returns the number of successful and failed outcomes.
func Count(outcomes []Outcome) (ok, failed int) {
	for _, o := range outcomes {
		if o.OK() {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}
