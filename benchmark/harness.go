// Package benchmark times sharpening strategies against each other: a
// harness that discards warm-up runs and averages the rest, and a suite that
// sweeps scenarios across resolutions and radii and persists the results.
package benchmark

import (
	"context"
	"time"

	"github.com/nvr-ai/go-sharpen/images"
	"github.com/nvr-ai/go-sharpen/sharpen"
	"github.com/pkg/errors"
)

// ErrInvalidConfig is returned for iteration counts, radii or paths that
// cannot be benchmarked.
var ErrInvalidConfig = errors.New("benchmark: invalid configuration")

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time

// Record is the timing of one strategy over one measurement.
type Record struct {
	// Strategy is the name of the measured strategy.
	Strategy string `json:"strategy" yaml:"strategy"`
	// Mode is the pipeline mode that was run.
	Mode sharpen.Mode `json:"mode" yaml:"mode"`
	// Iterations is the number of measured runs.
	Iterations int `json:"iterations" yaml:"iterations"`
	// Warmup is the number of discarded leading runs.
	Warmup int `json:"warmup" yaml:"warmup"`
	// Samples holds every run in call order, in milliseconds, warm-up included.
	Samples []float64 `json:"samples" yaml:"samples"`
	// Average is the mean of the measured samples in milliseconds.
	Average float64 `json:"average" yaml:"average"`
	// Min is the fastest measured sample in milliseconds.
	Min float64 `json:"min" yaml:"min"`
	// Max is the slowest measured sample in milliseconds.
	Max float64 `json:"max" yaml:"max"`
	// Checksum fingerprints the output of the last run.
	Checksum string `json:"checksum" yaml:"checksum"`

	output *images.PixelBuffer
}

// Output returns the buffer produced by the last run. It belongs to the
// strategy and changes when the strategy runs again.
func (r *Record) Output() *images.PixelBuffer {
	return r.output
}

// Measured returns the samples that count towards the average.
func (r *Record) Measured() []float64 {
	return r.Samples[r.Warmup:]
}

// Harness calls a strategy repeatedly and averages the timings.
type Harness struct {
	// Iterations is the number of measured runs. Must be >= 1.
	Iterations int
	// Warmup is the number of leading runs that are timed but discarded.
	Warmup int
	// Clock times each run. Defaults to time.Now.
	Clock Clock
}

// NewHarness returns a harness using the wall clock.
func NewHarness(iterations, warmup int) *Harness {
	return &Harness{Iterations: iterations, Warmup: warmup, Clock: time.Now}
}

// Validate checks the iteration counts.
func (h *Harness) Validate() error {
	if h.Iterations < 1 {
		return errors.Wrapf(ErrInvalidConfig, "iterations %d, want >= 1", h.Iterations)
	}
	if h.Warmup < 0 {
		return errors.Wrapf(ErrInvalidConfig, "warmup %d, want >= 0", h.Warmup)
	}
	return nil
}

// Measure runs s exactly Iterations+Warmup times on the same image and
// parameters. Every call is timed; the first Warmup samples are kept in the
// record but excluded from the average. Any failing run aborts the
// measurement.
//
// Arguments:
//   - ctx: Passed to every run.
//   - s: The strategy to time.
//   - original: The input image.
//   - p: The pipeline parameters.
//
// Returns:
//   - *Record: The samples and their average.
//   - error: ErrInvalidConfig, or the first run error.
func (h *Harness) Measure(ctx context.Context, s sharpen.Strategy, original *images.PixelBuffer, p sharpen.Params) (*Record, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	clock := h.Clock
	if clock == nil {
		clock = time.Now
	}

	total := h.Iterations + h.Warmup
	rec := &Record{
		Strategy:   s.Name(),
		Mode:       p.Mode,
		Iterations: h.Iterations,
		Warmup:     h.Warmup,
		Samples:    make([]float64, 0, total),
	}

	var out *images.PixelBuffer
	for i := 0; i < total; i++ {
		start := clock()
		res, err := s.Run(ctx, original, p)
		elapsed := clock().Sub(start)
		if err != nil {
			return nil, errors.Wrapf(err, "benchmark: %s run %d", s.Name(), i)
		}
		out = res

		ms := float64(elapsed) / float64(time.Millisecond)
		rec.Samples = append(rec.Samples, ms)
		slogger().Debug("benchmark: run", "strategy", s.Name(), "run", i, "warmup", i < h.Warmup, "ms", ms)
	}

	measured := rec.Measured()
	rec.Min, rec.Max = measured[0], measured[0]
	var sum float64
	for _, v := range measured {
		sum += v
		rec.Min = min(rec.Min, v)
		rec.Max = max(rec.Max, v)
	}
	rec.Average = sum / float64(len(measured))
	rec.Checksum = images.Checksum(out)
	rec.output = out
	return rec, nil
}

// Comparison pairs the serial and data-parallel records of one input.
type Comparison struct {
	Serial   *Record `json:"serial"   yaml:"serial"`
	Parallel *Record `json:"parallel" yaml:"parallel"`
	// Speedup is Serial.Average / Parallel.Average.
	Speedup float64 `json:"speedup" yaml:"speedup"`
	// Identical reports whether both strategies produced the same bytes.
	Identical bool `json:"identical" yaml:"identical"`
}

// Compare measures serial and then parallel on the same image and parameters.
//
// Returns:
//   - *Comparison: Both records, the speedup and the output equality check.
//   - error: The first measurement error.
func (h *Harness) Compare(ctx context.Context, serial, parallel sharpen.Strategy, original *images.PixelBuffer, p sharpen.Params) (*Comparison, error) {
	sr, err := h.Measure(ctx, serial, original, p)
	if err != nil {
		return nil, err
	}
	pr, err := h.Measure(ctx, parallel, original, p)
	if err != nil {
		return nil, err
	}

	c := &Comparison{
		Serial:    sr,
		Parallel:  pr,
		Speedup:   Speedup(sr.Average, pr.Average),
		Identical: sr.output.Equal(pr.output),
	}
	if !c.Identical {
		slogger().Warn("benchmark: strategies disagree", "serial", sr.Checksum, "parallel", pr.Checksum)
	}
	return c, nil
}

// Speedup returns serial/parallel, or 0 when parallel is not positive.
func Speedup(serial, parallel float64) float64 {
	if parallel <= 0 {
		return 0
	}
	return serial / parallel
}
