package compute

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/gogpu/naga"
	"github.com/pkg/errors"
)

var (
	// ErrBuildFailure is wrapped by every BuildError.
	ErrBuildFailure = errors.New("compute: program build failed")
	// ErrDispatchFailure is returned when an enqueued command cannot run to
	// completion. The rest of the queue is abandoned.
	ErrDispatchFailure = errors.New("compute: dispatch failed")
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// BuildError carries the per-device build log of a program that did not build.
type BuildError struct {
	// Device is the name of the device the build failed on.
	Device string
	// Program is the name of the program source.
	Program string
	// Log is the compiler diagnostic output.
	Log string
}

// Error implements error.
func (e *BuildError) Error() string {
	return fmt.Sprintf("compute: build of %q failed on %s", e.Program, e.Device)
}

// Unwrap lets errors.Is match ErrBuildFailure.
func (e *BuildError) Unwrap() error {
	return ErrBuildFailure
}

// Args are the arguments of one kernel enqueue, in declaration order.
type Args []any

// Buffer returns argument i as a device buffer.
func (a Args) Buffer(i int) (*Buffer, error) {
	if i >= len(a) {
		return nil, errors.Errorf("argument %d missing", i)
	}
	b, ok := a[i].(*Buffer)
	if !ok {
		return nil, errors.Errorf("argument %d is %T, want *compute.Buffer", i, a[i])
	}
	return b, nil
}

// Int returns argument i as an int.
func (a Args) Int(i int) (int, error) {
	if i >= len(a) {
		return 0, errors.Errorf("argument %d missing", i)
	}
	v, ok := a[i].(int)
	if !ok {
		return 0, errors.Errorf("argument %d is %T, want int", i, a[i])
	}
	return v, nil
}

// Float32 returns argument i as a float32.
func (a Args) Float32(i int) (float32, error) {
	if i >= len(a) {
		return 0, errors.Errorf("argument %d missing", i)
	}
	v, ok := a[i].(float32)
	if !ok {
		return 0, errors.Errorf("argument %d is %T, want float32", i, a[i])
	}
	return v, nil
}

// WorkItem is the body of a kernel for global id (x, y).
type WorkItem func(x, y int)

// HostKernel binds the arguments of one enqueue and returns the work item
// executed for every point of the grid.
type HostKernel func(args Args) (WorkItem, error)

// ProgramSource is a set of kernels: the WGSL source compiled for
// accelerators and the host bodies that mirror each entry point.
type ProgramSource struct {
	// Name labels the program in logs and build errors.
	Name string
	// WGSL is the kernel source.
	WGSL string
	// Kernels maps entry point names to their host bodies.
	Kernels map[string]HostKernel
}

// Backend builds programs for an opened device.
type Backend interface {
	// Compile builds src, returning a *BuildError on failure.
	Compile(src ProgramSource) error
	// Close releases device resources.
	Close() error
}

// Program is a built ProgramSource.
type Program struct {
	name    string
	device  string
	kernels map[string]HostKernel
}

// Name returns the program name.
func (p *Program) Name() string {
	return p.name
}

// EntryPoints lists the kernels of the program in sorted order.
func (p *Program) EntryPoints() []string {
	out := make([]string, 0, len(p.kernels))
	for name := range p.kernels {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Kernel returns the named entry point.
func (p *Program) Kernel(name string) (*Kernel, error) {
	body, ok := p.kernels[name]
	if !ok {
		return nil, errors.Wrapf(ErrDispatchFailure, "program %q has no kernel %q", p.name, name)
	}
	return &Kernel{name: name, program: p.name, body: body}, nil
}

// Kernel is one entry point of a built program.
type Kernel struct {
	name    string
	program string
	body    HostKernel
}

// Name returns the entry point name.
func (k *Kernel) Name() string {
	return k.name
}

// CompileWGSL compiles WGSL source to SPIR-V words.
//
// Arguments:
//   - source: The WGSL shader source.
//
// Returns:
//   - []uint32: The SPIR-V module, little-endian words.
//   - error: The naga diagnostic when the source does not compile.
func CompileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, err
	}
	if len(spirvBytes) < 4 || len(spirvBytes)%4 != 0 {
		return nil, errors.Errorf("invalid SPIR-V length %d", len(spirvBytes))
	}

	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	if words[0] != spirvMagic {
		return nil, errors.Errorf("bad SPIR-V magic 0x%08x", words[0])
	}
	return words, nil
}

var entryPointRe = regexp.MustCompile(`@compute[^{]*?fn\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

// WGSLEntryPoints lists the compute entry points declared in a WGSL source.
func WGSLEntryPoints(source string) []string {
	var out []string
	for _, m := range entryPointRe.FindAllStringSubmatch(source, -1) {
		out = append(out, m[1])
	}
	return out
}

// checkEntryPoints verifies that every host kernel has a compute entry point
// in the WGSL source and that the source declares no entry point without one.
func checkEntryPoints(device string, src ProgramSource) error {
	declared := map[string]bool{}
	for _, name := range WGSLEntryPoints(src.WGSL) {
		declared[name] = true
	}

	names := make([]string, 0, len(src.Kernels))
	for name := range src.Kernels {
		names = append(names, name)
	}
	sort.Strings(names)

	var log string
	for _, name := range names {
		if !declared[name] {
			log += fmt.Sprintf("error: kernel %q is not declared as a @compute entry point\n", name)
		}
	}
	for _, name := range WGSLEntryPoints(src.WGSL) {
		if _, ok := src.Kernels[name]; !ok {
			log += fmt.Sprintf("error: entry point %q has no host implementation\n", name)
		}
	}
	if len(src.Kernels) == 0 {
		log += "error: program declares no kernels\n"
	}

	if log != "" {
		return &BuildError{Device: device, Program: src.Name, Log: log}
	}
	return nil
}

// hostBackend builds programs for the host CPU.
type hostBackend struct{}

func (hostBackend) Compile(src ProgramSource) error {
	return checkEntryPoints(HostDevice().Name, src)
}

func (hostBackend) Close() error {
	return nil
}
