// Package compute owns the execution context of the data-parallel
// strategy: platform enumeration and the device heuristic, program builds
// with per-device diagnostics, device buffers, and an in-order command queue
// whose kernels run on a bounded grid of goroutines.
package compute

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

// ErrContextClosed is returned by every operation on a closed Context.
var ErrContextClosed = errors.New("compute: context closed")

// Context binds a selected device to its built programs, buffers and
// command queue. It is created once per process and released with Close.
type Context struct {
	device   Device
	executor Device
	backend Backend
	grid    *Grid
	queue   *Queue
	closers []io.Closer

	mu       sync.Mutex
	closed   bool
	programs map[string]*Program
	buffers  map[int]*Buffer
	nextID   int
}

// NewContext enumerates platforms, selects a device with the given affinity
// and opens it. When the enumerator implements io.Closer it is closed with
// the context.
//
// Arguments:
//   - enum: The platform source.
//   - affinity: The device preference.
//
// Returns:
//   - *Context: The opened context.
//   - error: ErrNoDevice, or the error that prevented opening the device.
func NewContext(enum Enumerator, affinity DeviceAffinity) (*Context, error) {
	platforms, err := enum.Platforms()
	if err != nil {
		return nil, errors.Wrap(err, "compute: enumerate platforms")
	}
	for _, p := range platforms {
		slogger().Debug("compute: platform", "name", p.Name, "vendor", p.Vendor, "devices", len(p.Devices))
	}

	dev, err := Select(platforms, affinity)
	if err != nil {
		if c, ok := enum.(io.Closer); ok {
			_ = c.Close()
		}
		return nil, err
	}

	c, err := NewContextWithDevice(dev)
	if err != nil {
		if cl, ok := enum.(io.Closer); ok {
			_ = cl.Close()
		}
		return nil, err
	}
	if cl, ok := enum.(io.Closer); ok {
		c.closers = append(c.closers, cl)
	}
	return c, nil
}

// NewContextWithDevice opens dev directly, bypassing selection.
func NewContextWithDevice(dev Device) (*Context, error) {
	var backend Backend = hostBackend{}
	if dev.open != nil {
		b, err := dev.open()
		if err != nil {
			return nil, err
		}
		backend = b
	}

	// Kernel bodies always run on the host grid. An accelerator only builds
	// the programs, so it is compile-only and the host is the executor.
	executor := dev
	if dev.Type != DeviceTypeCPU {
		executor = HostDevice()
		slogger().Info("compute: accelerator is compile-only, kernels run on the host",
			"build_device", dev.Name, "execution_device", executor.Name)
	}
	units := executor.ComputeUnits
	if units <= 0 {
		units = HostComputeUnits()
	}
	grid := NewGrid(units)

	slogger().Info("compute: device selected", "device", dev.Name, "type", dev.Type.String(), "vendor", dev.Vendor, "units", units)
	return &Context{
		device:   dev,
		executor: executor,
		backend:  backend,
		grid:     grid,
		queue:    newQueue(grid),
		programs: map[string]*Program{},
		buffers:  map[int]*Buffer{},
	}, nil
}

// Device returns the selected device, the one programs are built for.
func (c *Context) Device() Device {
	return c.device
}

// ExecutionDevice returns the device whose cores run the kernels. It is the
// selected device for CPUs and the host CPU otherwise.
func (c *Context) ExecutionDevice() Device {
	return c.executor
}

// CompileOnly reports whether the selected device only builds programs.
func (c *Context) CompileOnly() bool {
	return c.device.Type != DeviceTypeCPU
}

// Grid returns the executor used for kernel ranges.
func (c *Context) Grid() *Grid {
	return c.grid
}

// Queue returns the in-order command queue.
func (c *Context) Queue() *Queue {
	return c.queue
}

// Build compiles src for the device. Programs are cached by name, so
// building the same source twice is free.
//
// Returns:
//   - *Program: The built program.
//   - error: A *BuildError with the device log, or ErrContextClosed.
func (c *Context) Build(src ProgramSource) (*Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrContextClosed
	}
	if p, ok := c.programs[src.Name]; ok {
		return p, nil
	}

	if err := c.backend.Compile(src); err != nil {
		return nil, err
	}

	kernels := make(map[string]HostKernel, len(src.Kernels))
	for name, k := range src.Kernels {
		kernels[name] = k
	}
	p := &Program{name: src.Name, device: c.device.Name, kernels: kernels}
	c.programs[src.Name] = p

	slogger().Info("compute: program built", "program", src.Name, "device", c.device.Name, "kernels", p.EntryPoints())
	return p, nil
}

// NewBuffer allocates a zeroed device buffer of size bytes.
func (c *Context) NewBuffer(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, errors.Errorf("compute: invalid buffer size %d", size)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrContextClosed
	}
	c.nextID++
	b := &Buffer{id: c.nextID, owner: c, data: make([]byte, size)}
	c.buffers[b.id] = b
	slogger().Debug("compute: buffer allocated", "id", b.id, "bytes", size)
	return b, nil
}

// LiveBuffers returns the number of allocated buffers not yet released.
func (c *Context) LiveBuffers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffers)
}

func (c *Context) forget(b *Buffer) {
	c.mu.Lock()
	delete(c.buffers, b.id)
	c.mu.Unlock()
	slogger().Debug("compute: buffer released", "id", b.id)
}

// Close drains the queue, releases every buffer and the device. Closing
// twice is a no-op.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.queue.close()

	c.mu.Lock()
	live := c.buffers
	c.buffers = nil
	c.programs = nil
	c.mu.Unlock()
	for _, b := range live {
		b.Release()
	}

	err := c.backend.Close()
	for _, cl := range c.closers {
		if cerr := cl.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
