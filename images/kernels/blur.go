package kernels

import (
	"sync"

	"github.com/nvr-ai/go-sharpen/images"
	"github.com/pkg/errors"
)

// MaxRadius bounds the blur radius so that a full window sum of 8-bit samples,
// 255*(2*MaxRadius+1)^2, stays inside a uint32.
const MaxRadius = 1024

var (
	// ErrInvalidRadius is returned for negative radii or radii above MaxRadius.
	ErrInvalidRadius = errors.New("kernels: invalid blur radius")
	// ErrAliasedBuffers is returned when the destination shares storage with a
	// source it reads from.
	ErrAliasedBuffers = errors.New("kernels: destination aliases source")
)

// Options configures the blur call.
type Options struct {
	Radius int   // Blur radius (window size = 2*Radius + 1). Must be in [0, MaxRadius].
	Pool   *Pool // Optional scratch pool for the row sums.
}

// Pool lets callers reuse the row-sum scratch across benchmark iterations.
type Pool struct {
	sums sync.Pool // *[]uint32
}

// GetSums returns a scratch slice of exactly n elements. Contents are undefined.
func (p *Pool) GetSums(n int) []uint32 {
	if p == nil {
		return make([]uint32, n)
	}
	if v := p.sums.Get(); v != nil {
		s := *(v.(*[]uint32))
		if cap(s) >= n {
			return s[:n]
		}
	}
	return make([]uint32, n)
}

// PutSums hands a scratch slice back to the pool.
func (p *Pool) PutSums(s []uint32) {
	if p == nil || s == nil {
		return
	}
	p.sums.Put(&s)
}

// ValidateRadius checks that r can be used as a blur radius.
func ValidateRadius(r int) error {
	if r < 0 || r > MaxRadius {
		return errors.Wrapf(ErrInvalidRadius, "radius %d not in [0, %d]", r, MaxRadius)
	}
	return nil
}

// CheckBlurArgs validates a dst/src pair for one blur pass.
func CheckBlurArgs(dst, src *images.PixelBuffer, radius int) error {
	if err := ValidateRadius(radius); err != nil {
		return err
	}
	if err := images.CheckGeometry(src, dst); err != nil {
		return err
	}
	if dst.SharesStorage(src) {
		return ErrAliasedBuffers
	}
	return nil
}

// BoxBlur writes the edge-clamped box blur of src into dst.
//
// Every output sample is the rounded mean of the (2r+1)^2 window around it,
// with out-of-range coordinates clamped to the nearest edge pixel. The divisor
// is always (2r+1)^2, including at the borders.
//
// This is the single-threaded reference. It runs separably with a sliding
// window per row and then per column, but keeps the window sums as exact
// integers and divides once at the end, so its output is bit-identical to the
// per-pixel BlurPixel kernel.
//
// Performance: O(W*H) per pass, independent of Radius.
//
// Arguments:
//   - dst: The destination buffer. Must not share storage with src.
//   - src: The source buffer.
//   - opt: The blur radius and an optional scratch pool.
//
// Returns:
//   - error: ErrInvalidRadius, ErrAliasedBuffers or images.ErrDimensionMismatch.
func BoxBlur(dst, src *images.PixelBuffer, opt Options) error {
	r := opt.Radius
	if err := CheckBlurArgs(dst, src, r); err != nil {
		return err
	}
	if r == 0 {
		copy(dst.Samples, src.Samples)
		return nil
	}

	sums := opt.Pool.GetSums(src.Len())
	defer opt.Pool.PutSums(sums)

	boxSumHoriz(sums, src, r)
	boxBlurVert(dst, sums, r)
	return nil
}

// boxSumHoriz stores, for every sample, the sum of the 2r+1 samples around it
// in the same row and channel.
func boxSumHoriz(sums []uint32, src *images.PixelBuffer, r int) {
	w, h, ch := src.Width, src.Height, src.Channels
	stride := src.Stride()

	for y := 0; y < h; y++ {
		row := src.Samples[y*stride : (y+1)*stride]
		out := sums[y*stride : (y+1)*stride]

		for c := 0; c < ch; c++ {
			// Initial window for x=0 over [-r..+r].
			var sum uint32
			for dx := -r; dx <= r; dx++ {
				sum += uint32(row[ClampCoord(dx, w)*ch+c])
			}

			// Slide: remove the sample leaving on the left, add the one entering on the right.
			for x := 0; x < w; x++ {
				out[x*ch+c] = sum
				sum -= uint32(row[ClampCoord(x-r, w)*ch+c])
				sum += uint32(row[ClampCoord(x+r+1, w)*ch+c])
			}
		}
	}
}

// boxBlurVert slides a 2r+1 window down each column of the row sums and
// writes the rounded mean into dst.
func boxBlurVert(dst *images.PixelBuffer, sums []uint32, r int) {
	w, h, ch := dst.Width, dst.Height, dst.Channels
	stride := dst.Stride()
	n := WindowArea(r)

	for x := 0; x < w; x++ {
		for c := 0; c < ch; c++ {
			col := x*ch + c

			var sum uint32
			for dy := -r; dy <= r; dy++ {
				sum += sums[ClampCoord(dy, h)*stride+col]
			}

			for y := 0; y < h; y++ {
				dst.Samples[y*stride+col] = Mean(sum, n)
				sum -= sums[ClampCoord(y-r, h)*stride+col]
				sum += sums[ClampCoord(y+r+1, h)*stride+col]
			}
		}
	}
}

// BlurPixel computes one output pixel, all channels, of the box blur by
// summing its clamped neighbourhood directly. It reads only src and writes
// only the Channels samples of (x, y) in dst, so calls for distinct pixels are
// independent and may run concurrently.
//
// Callers are expected to have checked the arguments once with CheckBlurArgs.
func BlurPixel(dst, src *images.PixelBuffer, r, x, y int) {
	w, h, ch := src.Width, src.Height, src.Channels
	var acc [images.Channels]uint32

	for dy := -r; dy <= r; dy++ {
		rowOff := ClampCoord(y+dy, h) * w
		for dx := -r; dx <= r; dx++ {
			off := (rowOff + ClampCoord(x+dx, w)) * ch
			for c := 0; c < images.Channels; c++ {
				acc[c] += uint32(src.Samples[off+c])
			}
		}
	}

	n := WindowArea(r)
	out := (y*w + x) * ch
	for c := 0; c < images.Channels; c++ {
		dst.Samples[out+c] = Mean(acc[c], n)
	}
}

// WindowArea returns the fixed box divisor (2r+1)^2.
func WindowArea(r int) uint32 {
	side := uint32(2*r + 1)
	return side * side
}

// Mean divides a window sum by the window area, rounding half up.
func Mean(sum, n uint32) uint8 {
	return uint8((sum + n/2) / n)
}

// ClampCoord maps i into [0, n) by repeating the edge sample.
func ClampCoord(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
