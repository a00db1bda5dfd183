package sharpen

import (
	"context"

	"github.com/nvr-ai/go-sharpen/compute"
	"github.com/nvr-ai/go-sharpen/images"
	"github.com/nvr-ai/go-sharpen/images/kernels"
	"github.com/pkg/errors"
)

// DataParallel runs every blur pass and the combine as NDRange kernels on a
// compute context, one work item per output pixel.
type DataParallel struct {
	cc         *compute.Context
	blur       *compute.Kernel
	combine    *compute.Kernel
	uploadOnce bool

	width, height int
	dOriginal     *compute.Buffer
	dBlur         [2]*compute.Buffer
	dSharpened    *compute.Buffer
	hostBlur      [2][]byte
	sharpened     *images.PixelBuffer
	uploaded      *images.PixelBuffer
}

// NewDataParallel builds the blur and add_weighted programs on cc.
//
// Arguments:
//   - cc: The compute context. It must outlive the strategy.
//   - opts: Strategy options.
//
// Returns:
//   - *DataParallel: The strategy.
//   - error: A *compute.BuildError carrying the device build log.
func NewDataParallel(cc *compute.Context, opts ...Option) (*DataParallel, error) {
	o := buildOptions(opts)

	blurProgram, err := cc.Build(BlurSource())
	if err != nil {
		return nil, err
	}
	combineProgram, err := cc.Build(AddWeightedSource())
	if err != nil {
		return nil, err
	}
	blur, err := blurProgram.Kernel(kernels.BlurEntryPoint)
	if err != nil {
		return nil, err
	}
	combine, err := combineProgram.Kernel(kernels.AddWeightedEntryPoint)
	if err != nil {
		return nil, err
	}

	if o.Profiler != nil {
		cc.Queue().SetObserver(o.Profiler.Record)
	}

	slogger().Info("sharpen: data-parallel strategy ready",
		"build_device", cc.Device().String(),
		"execution_device", cc.ExecutionDevice().String(),
		"uploadOnce", o.UploadOnce)
	return &DataParallel{
		cc:         cc,
		blur:       blur,
		combine:    combine,
		uploadOnce: o.UploadOnce,
	}, nil
}

// Name implements Strategy.
func (d *DataParallel) Name() string {
	return KindDataParallel.String()
}

// Device returns the device the kernels were built for.
func (d *DataParallel) Device() compute.Device {
	return d.cc.Device()
}

// ExecutionDevice returns the device whose cores run the kernels.
func (d *DataParallel) ExecutionDevice() compute.Device {
	return d.cc.ExecutionDevice()
}

// Run implements Strategy. It enqueues the transfers and kernels on the
// in-order queue and blocks in Finish until the sharpened image is back on
// the host.
func (d *DataParallel) Run(ctx context.Context, original *images.PixelBuffer, p Params) (*images.PixelBuffer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := original.Validate(); err != nil {
		return nil, err
	}
	if err := d.ensure(original.Width, original.Height); err != nil {
		return nil, err
	}

	w, h := original.Width, original.Height
	q := d.cc.Queue()

	if !d.uploadOnce || d.uploaded == nil || !d.uploaded.SharesStorage(original) {
		if err := q.EnqueueWrite(ctx, d.dOriginal, original.Samples); err != nil {
			return nil, err
		}
		for i := range d.dBlur {
			if err := q.EnqueueWrite(ctx, d.dBlur[i], d.hostBlur[i]); err != nil {
				return nil, err
			}
		}
		d.uploaded = original
	}

	final, err := blurChain(d.dOriginal, d.dBlur, p.Mode.Passes(), func(_ int, dst, src *compute.Buffer) error {
		return q.EnqueueNDRange(ctx, d.blur, w, h, dst, src, p.Radius, w, h)
	})
	if err != nil {
		return nil, err
	}

	err = q.EnqueueNDRange(ctx, d.combine, w, h,
		d.dSharpened, d.dOriginal, p.Weights.Alpha, final, p.Weights.Beta, p.Weights.Gamma, w, h)
	if err != nil {
		return nil, err
	}
	if err := q.EnqueueRead(ctx, d.sharpened.Samples, d.dSharpened); err != nil {
		return nil, err
	}

	if err := q.Finish(); err != nil {
		d.uploaded = nil
		slogger().Warn("sharpen: data-parallel run failed", "error", err)
		return nil, errors.Wrap(err, "sharpen: data-parallel")
	}
	return d.sharpened, nil
}

// ensure allocates the device working set for a width x height image,
// reusing the current one when the geometry is unchanged.
func (d *DataParallel) ensure(width, height int) error {
	if d.sharpened != nil && d.width == width && d.height == height {
		return nil
	}
	d.release()

	n := width * height * images.Channels
	var err error
	if d.dOriginal, err = d.cc.NewBuffer(n); err != nil {
		return err
	}
	for i := range d.dBlur {
		if d.dBlur[i], err = d.cc.NewBuffer(n); err != nil {
			return err
		}
		d.hostBlur[i] = make([]byte, n)
	}
	if d.dSharpened, err = d.cc.NewBuffer(n); err != nil {
		return err
	}
	d.sharpened = images.MustPixelBuffer(width, height)
	d.width, d.height = width, height

	slogger().Debug("sharpen: data-parallel working set", "width", width, "height", height, "bytes", 4*n)
	return nil
}

func (d *DataParallel) release() {
	for _, b := range []*compute.Buffer{d.dOriginal, d.dBlur[0], d.dBlur[1], d.dSharpened} {
		if b != nil {
			b.Release()
		}
	}
	d.dOriginal, d.dBlur, d.dSharpened = nil, [2]*compute.Buffer{}, nil
	d.sharpened, d.uploaded = nil, nil
}

// Close releases the device buffers. The compute context stays open.
func (d *DataParallel) Close() error {
	d.release()
	return nil
}
