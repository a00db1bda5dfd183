package images

import (
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// Resize rescales a buffer to the given dimensions with Lanczos3 resampling.
// It is used to derive benchmark inputs of a fixed resolution from a single
// source image; the sharpening kernels never resample.
//
// Arguments:
//   - src: The buffer to resize.
//   - width: The target width in pixels.
//   - height: The target height in pixels.
//
// Returns:
//   - *PixelBuffer: A newly allocated buffer of the requested size.
//   - error: An error if src is invalid or the target geometry is empty.
func Resize(src *PixelBuffer, width, height int) (*PixelBuffer, error) {
	if err := src.Validate(); err != nil {
		return nil, errors.Wrap(err, "resize source")
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Wrapf(ErrInvalidGeometry, "resize target %dx%d", width, height)
	}
	if width == src.Width && height == src.Height {
		return src.Clone(), nil
	}

	resized := resize.Resize(uint(width), uint(height), src.ToImage(), resize.Lanczos3)
	out, err := FromImage(resized)
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert resized image")
	}
	return out, nil
}
