package compute

import (
	"sync"

	"github.com/pkg/errors"
)

// Buffer is a block of device memory owned by a Context. On the host-mirrored
// devices it is a plain byte slice that only queue commands touch.
type Buffer struct {
	id    int
	owner *Context

	mu       sync.Mutex
	data     []byte
	released bool
}

// ID returns the context-unique buffer id.
func (b *Buffer) ID() int {
	return b.id
}

// Len returns the buffer size in bytes, 0 once released.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Bytes returns the backing memory. Kernels call it when binding arguments.
func (b *Buffer) Bytes() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, errors.Wrapf(ErrDispatchFailure, "buffer %d used after release", b.id)
	}
	return b.data, nil
}

// Release frees the memory and removes the buffer from its context.
// Commands already enqueued that use it will fail. Releasing twice is a no-op.
func (b *Buffer) Release() {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return
	}
	b.released = true
	b.data = nil
	b.mu.Unlock()

	if b.owner != nil {
		b.owner.forget(b)
	}
}

// Released reports whether Release has been called.
func (b *Buffer) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}
