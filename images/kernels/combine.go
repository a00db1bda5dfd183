package kernels

import (
	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-sharpen/images"
)

// Weights are the coefficients of the weighted recombination
// dst = Alpha*a + Beta*b + Gamma.
type Weights struct {
	// Alpha weighs the original image.
	Alpha float32 `json:"alpha" yaml:"alpha"`
	// Beta weighs the blurred image. Negative values subtract the blur.
	Beta float32 `json:"beta" yaml:"beta"`
	// Gamma is an additive bias.
	Gamma float32 `json:"gamma" yaml:"gamma"`
}

// DefaultWeights returns the classic unsharp-mask weights (1.5, -0.5, 0).
// Alpha+Beta is not required to be 1.
func DefaultWeights() Weights {
	return Weights{Alpha: 1.5, Beta: -0.5, Gamma: 0}
}

// AddWeighted writes saturate(Alpha*a + Beta*b + Gamma) into dst for every
// sample. dst may be a or b.
//
// Arguments:
//   - dst: The destination buffer.
//   - a: The first operand, weighted by w.Alpha.
//   - b: The second operand, weighted by w.Beta.
//   - w: The weights.
//
// Returns:
//   - error: images.ErrDimensionMismatch if the three buffers differ in geometry.
func AddWeighted(dst, a, b *images.PixelBuffer, w Weights) error {
	if err := CheckCombineArgs(dst, a, b); err != nil {
		return err
	}
	for i := range dst.Samples {
		dst.Samples[i] = WeightedSample(a.Samples[i], b.Samples[i], w)
	}
	return nil
}

// CheckCombineArgs validates the operands of one combine pass.
func CheckCombineArgs(dst, a, b *images.PixelBuffer) error {
	return images.CheckGeometry(dst, a, b)
}

// AddWeightedPixel combines all channels of pixel (x, y). It touches no other
// pixel, so calls for distinct pixels may run concurrently.
func AddWeightedPixel(dst, a, b *images.PixelBuffer, w Weights, x, y int) {
	off := (y*dst.Width + x) * dst.Channels
	for c := 0; c < images.Channels; c++ {
		dst.Samples[off+c] = WeightedSample(a.Samples[off+c], b.Samples[off+c], w)
	}
}

// WeightedSample computes saturate_u8(floor(Alpha*a + Beta*b + Gamma + 0.5)) in
// float32. The explicit conversions keep each product rounded to float32 so
// the compiler cannot fuse them into an FMA, which would make results depend
// on the target architecture.
func WeightedSample(a, b uint8, w Weights) uint8 {
	pa := float32(w.Alpha * float32(a))
	pb := float32(w.Beta * float32(b))
	v := math32.Floor(pa + pb + w.Gamma + 0.5)
	return Saturate(v)
}

// Saturate clamps v to [0, 255] and converts it to a byte. NaN maps to 0.
func Saturate(v float32) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
