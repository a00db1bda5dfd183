package benchmark

import (
	"github.com/nvr-ai/go-sharpen/compute"
	"github.com/nvr-ai/go-sharpen/images"
	"github.com/nvr-ai/go-sharpen/profiler"
	"github.com/nvr-ai/go-sharpen/sharpen"
	"github.com/pkg/errors"
)

// Runner owns everything a benchmark needs before the timed region starts:
// the compute context on the selected device and both strategies, each with
// its own profiler.
type Runner struct {
	Context          *compute.Context
	Serial           sharpen.Strategy
	Parallel         sharpen.Strategy
	SerialProfiler   *profiler.Profiler
	ParallelProfiler *profiler.Profiler
}

// NewRunner selects a device from enum with the configured affinity and
// builds both strategies on it.
//
// Arguments:
//   - enum: The platform source.
//   - cfg: The benchmark configuration.
//
// Returns:
//   - *Runner: The ready runner. Close it when done.
//   - error: ErrInvalidConfig, compute.ErrNoDevice, or a *compute.BuildError.
func NewRunner(enum compute.Enumerator, cfg *Config) (*Runner, error) {
	affinity, err := cfg.DeviceAffinity()
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "%v", err)
	}

	cc, err := compute.NewContext(enum, affinity)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		Context:          cc,
		SerialProfiler:   profiler.New(profiler.Options{}),
		ParallelProfiler: profiler.New(profiler.Options{}),
	}

	r.Serial, err = sharpen.New(sharpen.KindSerial, nil, sharpen.WithProfiler(r.SerialProfiler))
	if err != nil {
		_ = cc.Close()
		return nil, err
	}
	r.Parallel, err = sharpen.New(sharpen.KindDataParallel, cc,
		sharpen.WithProfiler(r.ParallelProfiler), sharpen.WithUploadOnce(cfg.UploadOnce))
	if err != nil {
		_ = cc.Close()
		return nil, err
	}
	return r, nil
}

// Suite returns a suite comparing the runner's strategies on source.
func (r *Runner) Suite(source *images.PixelBuffer, outputDir string) (*Suite, error) {
	return NewSuite(SuiteArgs{
		Serial:           r.Serial,
		Parallel:         r.Parallel,
		Source:           source,
		OutputDir:        outputDir,
		Device:           r.Context.ExecutionDevice().String(),
		BuildDevice:      r.Context.Device().String(),
		GridLimit:        r.Context.Grid().Limit(),
		SerialProfiler:   r.SerialProfiler,
		ParallelProfiler: r.ParallelProfiler,
	})
}

// Close releases the data-parallel strategy and the compute context.
func (r *Runner) Close() error {
	err := sharpen.Close(r.Parallel)
	if cerr := r.Context.Close(); err == nil {
		err = cerr
	}
	return err
}

// Scenarios expands the configuration into the scenario set a suite runs:
// every configured resolution crossed with every configured radius. Without
// resolutions, the source image's own size is used.
//
// Arguments:
//   - source: The full-size input image.
//
// Returns:
//   - *ScenarioSet: The scenarios, in resolution-major order.
//   - error: ErrInvalidConfig for unknown resolutions or bad parameters.
func (c *Config) Scenarios(source *images.PixelBuffer) (*ScenarioSet, error) {
	p, err := c.Params()
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "%v", err)
	}

	resolutions := make([]images.Resolution, 0, len(c.Resolutions))
	for _, t := range c.Resolutions {
		res, ok := images.GetResolutionByType(t)
		if !ok {
			return nil, errors.Wrapf(ErrInvalidConfig, "unknown resolution %q", t)
		}
		resolutions = append(resolutions, res)
	}
	if len(resolutions) == 0 {
		resolutions = append(resolutions, images.Resolution{
			Name:   "source",
			Pixels: images.ResolutionPixels{Width: source.Width, Height: source.Height},
		})
	}

	radii := c.Radii
	if len(radii) == 0 {
		radii = []int{p.Radius}
	}

	ps := &PredefinedScenarios{}
	set := &ScenarioSet{Name: "Configured", Description: "Resolutions and radii from the configuration"}
	for _, res := range resolutions {
		set.Scenarios = append(set.Scenarios, ps.GetRadiusScenarios(res, radii, p, c.Iterations, c.Warmup).Scenarios...)
	}
	return set, nil
}
