package compute

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// queueDepth is the number of commands that can be pending before Enqueue
// blocks.
const queueDepth = 64

// Event names reported to the queue observer for transfers. Kernel
// executions are reported under the kernel name.
const (
	EventUpload   = "upload"
	EventDownload = "download"
)

// Observer is told how long every completed command took.
type Observer func(name string, elapsed time.Duration)

type command struct {
	name string
	ctx  context.Context
	run  func(ctx context.Context) error
	done chan error
}

// Queue is an in-order command queue. Commands run one after another on a
// single goroutine in the order they were enqueued. The first failure is kept
// and every later command is skipped until Finish reports it.
type Queue struct {
	grid *Grid
	cmds chan command

	// sendMu guards closed against concurrent enqueues.
	sendMu sync.RWMutex
	closed bool

	errMu    sync.Mutex
	err      error
	observer Observer

	wg sync.WaitGroup
}

func newQueue(grid *Grid) *Queue {
	q := &Queue{grid: grid, cmds: make(chan command, queueDepth)}
	q.wg.Add(1)
	go q.loop()
	return q
}

func (q *Queue) loop() {
	defer q.wg.Done()
	for cmd := range q.cmds {
		if cmd.done != nil {
			q.errMu.Lock()
			err := q.err
			q.err = nil
			q.errMu.Unlock()
			cmd.done <- err
			continue
		}

		q.errMu.Lock()
		failed := q.err != nil
		observer := q.observer
		q.errMu.Unlock()
		if failed {
			slogger().Debug("compute: skipping command after failure", "command", cmd.name)
			continue
		}

		var err error
		start := time.Now()
		if ctxErr := cmd.ctx.Err(); ctxErr != nil {
			err = errors.Wrapf(ErrDispatchFailure, "%s: %v", cmd.name, ctxErr)
		} else {
			err = cmd.run(cmd.ctx)
		}
		elapsed := time.Since(start)

		if err != nil {
			q.errMu.Lock()
			q.err = err
			q.errMu.Unlock()
			slogger().Debug("compute: command failed", "command", cmd.name, "error", err)
			continue
		}
		if observer != nil {
			observer(cmd.name, elapsed)
		}
	}
}

// SetObserver installs fn to receive the duration of every successful
// command. Pass nil to remove it.
func (q *Queue) SetObserver(fn Observer) {
	q.errMu.Lock()
	defer q.errMu.Unlock()
	q.observer = fn
}

func (q *Queue) enqueue(cmd command) error {
	q.sendMu.RLock()
	defer q.sendMu.RUnlock()
	if q.closed {
		return ErrContextClosed
	}
	q.cmds <- cmd
	return nil
}

// EnqueueWrite copies src into dst when the command runs. src must stay
// unchanged until Finish returns.
//
// Arguments:
//   - ctx: Checked right before the copy.
//   - dst: The device buffer.
//   - src: Host memory, exactly dst.Len() bytes.
//
// Returns:
//   - error: ErrContextClosed, or ErrDispatchFailure for a size mismatch.
func (q *Queue) EnqueueWrite(ctx context.Context, dst *Buffer, src []byte) error {
	if len(src) != dst.Len() && !dst.Released() {
		return errors.Wrapf(ErrDispatchFailure, "write of %d bytes into buffer %d of %d bytes", len(src), dst.id, dst.Len())
	}
	return q.enqueue(command{
		name: EventUpload,
		ctx:  ctx,
		run: func(context.Context) error {
			data, err := dst.Bytes()
			if err != nil {
				return err
			}
			copy(data, src)
			return nil
		},
	})
}

// EnqueueRead copies src into dst when the command runs. dst must not be
// touched until Finish returns.
func (q *Queue) EnqueueRead(ctx context.Context, dst []byte, src *Buffer) error {
	if len(dst) != src.Len() && !src.Released() {
		return errors.Wrapf(ErrDispatchFailure, "read of %d bytes from buffer %d of %d bytes", len(dst), src.id, src.Len())
	}
	return q.enqueue(command{
		name: EventDownload,
		ctx:  ctx,
		run: func(context.Context) error {
			data, err := src.Bytes()
			if err != nil {
				return err
			}
			copy(dst, data)
			return nil
		},
	})
}

// EnqueueNDRange runs kernel k over a width x height grid. Arguments are
// bound when the command starts, after every earlier command has finished.
//
// Arguments:
//   - ctx: Checked before binding and between bands.
//   - k: The kernel.
//   - width: The global size in x.
//   - height: The global size in y.
//   - args: The kernel arguments.
//
// Returns:
//   - error: ErrContextClosed if the queue is closed.
func (q *Queue) EnqueueNDRange(ctx context.Context, k *Kernel, width, height int, args ...any) error {
	bound := Args(args)
	return q.enqueue(command{
		name: k.name,
		ctx:  ctx,
		run: func(ctx context.Context) error {
			item, err := k.body(bound)
			if err != nil {
				if errors.Is(err, ErrDispatchFailure) {
					return err
				}
				return errors.Wrapf(ErrDispatchFailure, "%s: %v", k.name, err)
			}
			return q.grid.Run(ctx, width, height, item)
		},
	})
}

// Finish blocks until every command enqueued so far has completed and
// returns the first failure among them, if any. The failure is cleared so the
// queue can be reused.
func (q *Queue) Finish() error {
	done := make(chan error, 1)
	if err := q.enqueue(command{name: "finish", done: done}); err != nil {
		return err
	}
	return <-done
}

// close drains the queue and stops its goroutine.
func (q *Queue) close() {
	q.sendMu.Lock()
	if q.closed {
		q.sendMu.Unlock()
		return
	}
	q.closed = true
	close(q.cmds)
	q.sendMu.Unlock()
	q.wg.Wait()
}
