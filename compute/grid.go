package compute

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// bandsPerUnit oversubscribes the grid so uneven bands still balance.
const bandsPerUnit = 4

// Grid executes a two-dimensional NDRange by splitting it into row bands and
// running the bands on a bounded set of goroutines.
type Grid struct {
	limit int
}

// NewGrid returns a grid that runs at most limit bands at once. A
// non-positive limit means one.
func NewGrid(limit int) *Grid {
	if limit < 1 {
		limit = 1
	}
	return &Grid{limit: limit}
}

// Limit returns the maximum number of concurrently running bands.
func (g *Grid) Limit() int {
	return g.limit
}

// Run calls item once for every (x, y) with 0 <= x < width and 0 <= y < height.
// Calls are unordered. A panicking work item aborts the range and is reported
// as ErrDispatchFailure, as is cancellation of ctx.
//
// Arguments:
//   - ctx: Cancels the range between bands.
//   - width: The global size in x.
//   - height: The global size in y.
//   - item: The work item.
//
// Returns:
//   - error: ErrDispatchFailure on panic or cancellation.
func (g *Grid) Run(ctx context.Context, width, height int, item WorkItem) error {
	if width <= 0 || height <= 0 {
		return errors.Wrapf(ErrDispatchFailure, "empty range %dx%d", width, height)
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(ErrDispatchFailure, "%v", err)
	}

	bands := min(height, g.limit*bandsPerUnit)
	rows := (height + bands - 1) / bands

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.limit)

	for y0 := 0; y0 < height; y0 += rows {
		y1 := min(y0+rows, height)
		eg.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = errors.Wrapf(ErrDispatchFailure, "work item in rows [%d, %d) panicked: %v", y0, y1, r)
				}
			}()
			if err := egctx.Err(); err != nil {
				return errors.Wrapf(ErrDispatchFailure, "%v", err)
			}
			for y := y0; y < y1; y++ {
				for x := 0; x < width; x++ {
					item(x, y)
				}
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}
	return nil
}

// String describes the grid for logs.
func (g *Grid) String() string {
	return fmt.Sprintf("grid(limit=%d)", g.limit)
}
