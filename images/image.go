package images

import (
	"bytes"
	"image"
	"image/color"

	"github.com/pkg/errors"
)

// Channels is the fixed number of interleaved samples per pixel (R, G, B).
const Channels = 3

var (
	// ErrDimensionMismatch is returned when two buffers taking part in the same
	// operation do not share the same geometry.
	ErrDimensionMismatch = errors.New("images: dimension mismatch")
	// ErrInvalidGeometry is returned for zero-area or inconsistent buffers.
	ErrInvalidGeometry = errors.New("images: invalid geometry")
)

// PixelBuffer is a contiguous, row-major, 3-channel 8-bit raster.
//
// The sample for logical coordinate (x, y, c) lives at
// ((y*Width)+x)*Channels + c. There is no padding between rows.
type PixelBuffer struct {
	// The width of the image in pixels.
	Width int `json:"width" yaml:"width"`
	// The height of the image in pixels.
	Height int `json:"height" yaml:"height"`
	// The number of samples per pixel. Always Channels.
	Channels int `json:"channels" yaml:"channels"`
	// The interleaved samples, exactly Width*Height*Channels long.
	Samples []byte `json:"-" yaml:"-"`
}

// NewPixelBuffer allocates a zeroed buffer of the given geometry.
//
// Arguments:
//   - width: The width in pixels. Must be > 0.
//   - height: The height in pixels. Must be > 0.
//
// Returns:
//   - *PixelBuffer: The allocated buffer.
//   - error: ErrInvalidGeometry if either dimension is not positive.
func NewPixelBuffer(width, height int) (*PixelBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Wrapf(ErrInvalidGeometry, "%dx%d", width, height)
	}
	return &PixelBuffer{
		Width:    width,
		Height:   height,
		Channels: Channels,
		Samples:  make([]byte, width*height*Channels),
	}, nil
}

// MustPixelBuffer is NewPixelBuffer for geometry known to be valid.
func MustPixelBuffer(width, height int) *PixelBuffer {
	b, err := NewPixelBuffer(width, height)
	if err != nil {
		panic(err)
	}
	return b
}

// Wrap builds a buffer view over existing samples without copying them.
//
// Arguments:
//   - width: The width in pixels.
//   - height: The height in pixels.
//   - samples: Backing storage, exactly width*height*Channels long.
//
// Returns:
//   - *PixelBuffer: A buffer sharing samples.
//   - error: ErrInvalidGeometry if the geometry and length disagree.
func Wrap(width, height int, samples []byte) (*PixelBuffer, error) {
	b := &PixelBuffer{Width: width, Height: height, Channels: Channels, Samples: samples}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks the geometry and length invariants.
func (b *PixelBuffer) Validate() error {
	if b == nil {
		return errors.Wrap(ErrInvalidGeometry, "nil buffer")
	}
	if b.Width <= 0 || b.Height <= 0 {
		return errors.Wrapf(ErrInvalidGeometry, "%dx%d", b.Width, b.Height)
	}
	if b.Channels != Channels {
		return errors.Wrapf(ErrInvalidGeometry, "%d channels, want %d", b.Channels, Channels)
	}
	if want := b.Width * b.Height * b.Channels; len(b.Samples) != want {
		return errors.Wrapf(ErrInvalidGeometry, "%d samples, want %d", len(b.Samples), want)
	}
	return nil
}

// Len returns the number of samples.
func (b *PixelBuffer) Len() int {
	return len(b.Samples)
}

// Stride returns the number of samples in one row.
func (b *PixelBuffer) Stride() int {
	return b.Width * b.Channels
}

// Index returns the linear offset of sample (x, y, c).
func (b *PixelBuffer) Index(x, y, c int) int {
	return (y*b.Width+x)*b.Channels + c
}

// At returns sample (x, y, c).
func (b *PixelBuffer) At(x, y, c int) byte {
	return b.Samples[b.Index(x, y, c)]
}

// Set writes sample (x, y, c).
func (b *PixelBuffer) Set(x, y, c int, v byte) {
	b.Samples[b.Index(x, y, c)] = v
}

// Fill sets every sample to v.
func (b *PixelBuffer) Fill(v byte) {
	for i := range b.Samples {
		b.Samples[i] = v
	}
}

// SameGeometry reports whether o has the same width, height and channel count.
func (b *PixelBuffer) SameGeometry(o *PixelBuffer) bool {
	return b != nil && o != nil &&
		b.Width == o.Width && b.Height == o.Height && b.Channels == o.Channels
}

// SharesStorage reports whether b and o are backed by the same sample array.
func (b *PixelBuffer) SharesStorage(o *PixelBuffer) bool {
	if b == nil || o == nil || len(b.Samples) == 0 || len(o.Samples) == 0 {
		return false
	}
	return &b.Samples[0] == &o.Samples[0]
}

// Clone returns a deep copy.
func (b *PixelBuffer) Clone() *PixelBuffer {
	out := *b
	out.Samples = append([]byte(nil), b.Samples...)
	return &out
}

// CopyFrom overwrites b's samples with src's.
func (b *PixelBuffer) CopyFrom(src *PixelBuffer) error {
	if err := CheckGeometry(b, src); err != nil {
		return err
	}
	copy(b.Samples, src.Samples)
	return nil
}

// Equal reports whether both buffers have identical geometry and samples.
func (b *PixelBuffer) Equal(o *PixelBuffer) bool {
	return b.SameGeometry(o) && bytes.Equal(b.Samples, o.Samples)
}

// CheckGeometry validates every buffer and returns ErrDimensionMismatch when
// any of them differs from the first.
func CheckGeometry(bufs ...*PixelBuffer) error {
	for i, buf := range bufs {
		if err := buf.Validate(); err != nil {
			return errors.Wrapf(err, "buffer %d", i)
		}
		if i > 0 && !bufs[0].SameGeometry(buf) {
			return errors.Wrapf(ErrDimensionMismatch, "buffer %d is %dx%dx%d, want %dx%dx%d",
				i, buf.Width, buf.Height, buf.Channels,
				bufs[0].Width, bufs[0].Height, bufs[0].Channels)
		}
	}
	return nil
}

// FromImage converts any image.Image to a PixelBuffer, dropping alpha.
//
// Arguments:
//   - img: The decoded image.
//
// Returns:
//   - *PixelBuffer: The RGB samples of img.
//   - error: ErrInvalidGeometry for an empty image.
func FromImage(img image.Image) (*PixelBuffer, error) {
	bounds := img.Bounds()
	dst, err := NewPixelBuffer(bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, err
	}

	// Fast paths for the layouts the standard decoders produce.
	switch src := img.(type) {
	case *image.RGBA:
		for y := 0; y < dst.Height; y++ {
			row := src.Pix[src.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
			for x := 0; x < dst.Width; x++ {
				i := dst.Index(x, y, 0)
				dst.Samples[i+0] = row[x*4+0]
				dst.Samples[i+1] = row[x*4+1]
				dst.Samples[i+2] = row[x*4+2]
			}
		}
		return dst, nil
	case *image.NRGBA:
		for y := 0; y < dst.Height; y++ {
			row := src.Pix[src.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
			for x := 0; x < dst.Width; x++ {
				i := dst.Index(x, y, 0)
				dst.Samples[i+0] = row[x*4+0]
				dst.Samples[i+1] = row[x*4+1]
				dst.Samples[i+2] = row[x*4+2]
			}
		}
		return dst, nil
	}

	for y := 0; y < dst.Height; y++ {
		for x := 0; x < dst.Width; x++ {
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			i := dst.Index(x, y, 0)
			dst.Samples[i+0] = c.R
			dst.Samples[i+1] = c.G
			dst.Samples[i+2] = c.B
		}
	}
	return dst, nil
}

// ToImage converts the buffer to an opaque *image.RGBA anchored at (0, 0).
func (b *PixelBuffer) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))
	for y := 0; y < b.Height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < b.Width; x++ {
			i := b.Index(x, y, 0)
			row[x*4+0] = b.Samples[i+0]
			row[x*4+1] = b.Samples[i+1]
			row[x*4+2] = b.Samples[i+2]
			row[x*4+3] = 0xff
		}
	}
	return img
}
