package sharpen

import (
	"context"

	"github.com/nvr-ai/go-sharpen/images"
	"github.com/nvr-ai/go-sharpen/images/kernels"
	"github.com/nvr-ai/go-sharpen/profiler"
	"github.com/pkg/errors"
)

// Stage names reported to the profiler.
const (
	StageUpload   = "upload"
	StageBlur     = "blur"
	StageCombine  = "add_weighted"
	StageDownload = "download"
)

// Serial runs the pipeline on the calling goroutine with the separable
// reference kernels.
type Serial struct {
	prof *profiler.Profiler
	pool kernels.Pool

	blur      [2]*images.PixelBuffer
	sharpened *images.PixelBuffer
}

// NewSerial returns a serial strategy.
func NewSerial(opts ...Option) *Serial {
	o := buildOptions(opts)
	slogger().Info("sharpen: serial strategy ready")
	return &Serial{prof: o.Profiler}
}

// Name implements Strategy.
func (s *Serial) Name() string {
	return KindSerial.String()
}

// Run implements Strategy.
func (s *Serial) Run(ctx context.Context, original *images.PixelBuffer, p Params) (*images.PixelBuffer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := original.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "sharpen: serial")
	}
	s.ensure(original.Width, original.Height)

	opt := kernels.Options{Radius: p.Radius, Pool: &s.pool}
	final, err := blurChain(original, s.blur, p.Mode.Passes(), func(_ int, dst, src *images.PixelBuffer) error {
		defer s.prof.StartOperation(StageBlur)()
		return kernels.BoxBlur(dst, src, opt)
	})
	if err != nil {
		return nil, err
	}

	done := s.prof.StartOperation(StageCombine)
	err = kernels.AddWeighted(s.sharpened, original, final, p.Weights)
	done()
	if err != nil {
		return nil, err
	}
	return s.sharpened, nil
}

// ensure allocates the working set for a width x height image, reusing the
// current one when the geometry is unchanged.
func (s *Serial) ensure(width, height int) {
	if s.sharpened != nil && s.sharpened.Width == width && s.sharpened.Height == height {
		return
	}
	slogger().Debug("sharpen: serial working set", "width", width, "height", height)
	s.blur[0] = images.MustPixelBuffer(width, height)
	s.blur[1] = images.MustPixelBuffer(width, height)
	s.sharpened = images.MustPixelBuffer(width, height)
}
