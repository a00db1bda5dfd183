package sharpen

import (
	"github.com/nvr-ai/go-sharpen/compute"
	"github.com/nvr-ai/go-sharpen/images"
	"github.com/nvr-ai/go-sharpen/images/kernels"
	"github.com/pkg/errors"
)

// Program names.
const (
	BlurProgram        = "blur"
	AddWeightedProgram = "add_weighted"
)

// BlurSource is the box blur program. Arguments: dst, src buffers, radius,
// width, height.
func BlurSource() compute.ProgramSource {
	return compute.ProgramSource{
		Name:    BlurProgram,
		WGSL:    kernels.BlurShaderWGSL,
		Kernels: map[string]compute.HostKernel{kernels.BlurEntryPoint: blurKernel},
	}
}

// AddWeightedSource is the weighted combine program. Arguments: dst, a
// buffers, alpha, b buffer, beta, gamma, width, height.
func AddWeightedSource() compute.ProgramSource {
	return compute.ProgramSource{
		Name:    AddWeightedProgram,
		WGSL:    kernels.AddWeightedShaderWGSL,
		Kernels: map[string]compute.HostKernel{kernels.AddWeightedEntryPoint: addWeightedKernel},
	}
}

// view wraps device buffer argument i as a width x height pixel buffer.
func view(args compute.Args, i, width, height int) (*images.PixelBuffer, error) {
	buf, err := args.Buffer(i)
	if err != nil {
		return nil, err
	}
	data, err := buf.Bytes()
	if err != nil {
		return nil, err
	}
	return images.Wrap(width, height, data)
}

func blurKernel(args compute.Args) (compute.WorkItem, error) {
	radius, err := args.Int(2)
	if err != nil {
		return nil, err
	}
	width, err := args.Int(3)
	if err != nil {
		return nil, err
	}
	height, err := args.Int(4)
	if err != nil {
		return nil, err
	}
	dst, err := view(args, 0, width, height)
	if err != nil {
		return nil, errors.Wrap(err, "blur dst")
	}
	src, err := view(args, 1, width, height)
	if err != nil {
		return nil, errors.Wrap(err, "blur src")
	}
	if err := kernels.CheckBlurArgs(dst, src, radius); err != nil {
		return nil, err
	}

	return func(x, y int) {
		kernels.BlurPixel(dst, src, radius, x, y)
	}, nil
}

func addWeightedKernel(args compute.Args) (compute.WorkItem, error) {
	var (
		w   kernels.Weights
		err error
	)
	if w.Alpha, err = args.Float32(2); err != nil {
		return nil, err
	}
	if w.Beta, err = args.Float32(4); err != nil {
		return nil, err
	}
	if w.Gamma, err = args.Float32(5); err != nil {
		return nil, err
	}
	width, err := args.Int(6)
	if err != nil {
		return nil, err
	}
	height, err := args.Int(7)
	if err != nil {
		return nil, err
	}

	var bufs [3]*images.PixelBuffer
	for n, i := range []int{0, 1, 3} {
		if bufs[n], err = view(args, i, width, height); err != nil {
			return nil, errors.Wrapf(err, "add_weighted argument %d", i)
		}
	}
	dst, a, b := bufs[0], bufs[1], bufs[2]
	if err := kernels.CheckCombineArgs(dst, a, b); err != nil {
		return nil, err
	}

	return func(x, y int) {
		kernels.AddWeightedPixel(dst, a, b, w, x, y)
	}, nil
}
