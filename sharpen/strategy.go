// Package sharpen implements the unsharp-mask pipeline: a chain of box blur
// passes followed by a weighted combine of the original and the blur, run by
// interchangeable execution strategies that produce byte-identical output.
package sharpen

import (
	"context"
	"fmt"
	"strings"

	"github.com/nvr-ai/go-sharpen/compute"
	"github.com/nvr-ai/go-sharpen/images"
	"github.com/nvr-ai/go-sharpen/profiler"
	"github.com/pkg/errors"
)

// Strategy runs the pipeline on one image.
type Strategy interface {
	// Name identifies the strategy in reports.
	Name() string
	// Run sharpens original. The returned buffer belongs to the strategy and
	// is overwritten by the next call.
	Run(ctx context.Context, original *images.PixelBuffer, p Params) (*images.PixelBuffer, error)
}

// Kind enumerates the available strategies.
type Kind int

// Strategy kinds.
const (
	KindSerial Kind = iota
	KindDataParallel
)

// String returns the name used for the kind in reports and flags.
func (k Kind) String() string {
	switch k {
	case KindSerial:
		return "serial"
	case KindDataParallel:
		return "data-parallel"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses the spelling produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "serial":
		return KindSerial, nil
	case "data-parallel", "parallel", "dataparallel":
		return KindDataParallel, nil
	default:
		return 0, errors.Errorf("sharpen: unknown strategy %q", s)
	}
}

// Options configure a strategy.
type Options struct {
	// Profiler receives per-stage timings. Nil disables profiling.
	Profiler *profiler.Profiler
	// UploadOnce skips re-uploading the original and the blur buffers when
	// the same original is run again. Callers must not mutate the original
	// between runs when this is set.
	UploadOnce bool
}

// Option mutates Options.
type Option func(*Options)

// WithProfiler installs a profiler.
func WithProfiler(p *profiler.Profiler) Option {
	return func(o *Options) { o.Profiler = p }
}

// WithUploadOnce sets Options.UploadOnce.
func WithUploadOnce(on bool) Option {
	return func(o *Options) { o.UploadOnce = on }
}

func buildOptions(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New constructs the strategy of the given kind. The data-parallel strategy
// needs a compute context and builds its programs here, outside any timed
// region.
//
// Arguments:
//   - kind: The strategy kind.
//   - cc: The compute context. Ignored by the serial strategy.
//   - opts: Strategy options.
//
// Returns:
//   - Strategy: The strategy.
//   - error: A *compute.BuildError when the kernels do not build.
func New(kind Kind, cc *compute.Context, opts ...Option) (Strategy, error) {
	switch kind {
	case KindSerial:
		return NewSerial(opts...), nil
	case KindDataParallel:
		if cc == nil {
			return nil, errors.New("sharpen: data-parallel strategy needs a compute context")
		}
		return NewDataParallel(cc, opts...)
	default:
		return nil, errors.Errorf("sharpen: unknown strategy kind %d", int(kind))
	}
}

// Close releases strategy resources when the strategy holds any.
func Close(s Strategy) error {
	if c, ok := s.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
